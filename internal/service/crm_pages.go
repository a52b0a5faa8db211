package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"crmsync/internal/client/clint"
	"crmsync/internal/models"
	"crmsync/internal/resolver"
)

func (s *CRMSyncService) originsWork(res clint.Page[clint.Origin]) pageWork {
	return pageWork{
		fetched: res.Len(),
		meta:    res.Meta,
		persist: func(ctx context.Context, tx *gorm.DB) (int64, pageStats, error) {
			now := time.Now().UTC()
			stats := pageStats{Fetched: res.Len(), Skipped: res.Invalid}
			items := make([]models.Origin, 0, len(res.Data))
			for _, o := range res.Data {
				if o.ID == "" {
					stats.Skipped++
					s.warnMissingID(EntityOrigins, o.Raw)
					continue
				}
				items = append(items, models.Origin{
					ClintID:    o.ID.String(),
					Name:       o.Name,
					GroupName:  strPtr(o.GroupName),
					LastSeenAt: now,
					RawJSON:    rawJSON(o.Raw),
				})
			}
			if err := s.Store.UpsertOriginsTx(ctx, tx, items); err != nil {
				return 0, stats, err
			}
			stats.Written = len(items)
			return int64(res.Len()), stats, nil
		},
	}
}

func (s *CRMSyncService) stagesWork(res clint.Page[clint.Stage]) pageWork {
	return pageWork{
		fetched: res.Len(),
		meta:    res.Meta,
		persist: func(ctx context.Context, tx *gorm.DB) (int64, pageStats, error) {
			now := time.Now().UTC()
			stats := pageStats{Fetched: res.Len(), Skipped: res.Invalid}
			originIDs := make([]string, 0, len(res.Data))
			for _, st := range res.Data {
				originIDs = append(originIDs, st.OriginID.String())
			}
			origins, err := s.resolver().Origins(ctx, tx, originIDs)
			if err != nil {
				return 0, stats, err
			}
			items := make([]models.Stage, 0, len(res.Data))
			for _, st := range res.Data {
				if st.ID == "" {
					stats.Skipped++
					s.warnMissingID(EntityStages, st.Raw)
					continue
				}
				originID := origins.LocalID(st.OriginID.String())
				if originID == nil && st.OriginID != "" {
					stats.OrphanOrigins++
				}
				items = append(items, models.Stage{
					ClintID:       st.ID.String(),
					Name:          st.Name,
					Position:      st.Position,
					OriginClintID: st.OriginID.Ptr(),
					OriginID:      originID,
					LastSeenAt:    now,
					RawJSON:       rawJSON(st.Raw),
				})
			}
			if err := s.Store.UpsertStagesTx(ctx, tx, items); err != nil {
				return 0, stats, err
			}
			stats.Written = len(items)
			return int64(res.Len()), stats, nil
		},
	}
}

func (s *CRMSyncService) contactsWork(res clint.Page[clint.Contact]) pageWork {
	return pageWork{
		fetched: res.Len(),
		meta:    res.Meta,
		persist: func(ctx context.Context, tx *gorm.DB) (int64, pageStats, error) {
			now := time.Now().UTC()
			stats := pageStats{Fetched: res.Len(), Skipped: res.Invalid}
			items := make([]models.Contact, 0, len(res.Data))
			for i := range res.Data {
				c := &res.Data[i]
				if c.ID == "" {
					stats.Skipped++
					s.warnMissingID(EntityContacts, c.Raw)
					continue
				}
				items = append(items, contactModel(c, now))
			}
			if err := s.Store.UpsertContactsTx(ctx, tx, items); err != nil {
				return 0, stats, err
			}
			stats.Written = len(items)
			return int64(res.Len()), stats, nil
		},
	}
}

// dealsWork persists a deals page. With a non-empty originFilter only deals
// of that origin are written and counted.
func (s *CRMSyncService) dealsWork(res clint.Page[clint.Deal], originFilter string) pageWork {
	return pageWork{
		fetched: res.Len(),
		meta:    res.Meta,
		persist: func(ctx context.Context, tx *gorm.DB) (int64, pageStats, error) {
			now := time.Now().UTC()
			stats := pageStats{Fetched: res.Len(), Skipped: res.Invalid}
			if originFilter != "" {
				stats.Scanned = res.Len()
			}

			stageIDs := make([]string, 0, len(res.Data))
			for _, d := range res.Data {
				stageIDs = append(stageIDs, d.StageID.String())
			}
			stages, err := s.resolver().Stages(ctx, tx, stageIDs)
			if err != nil {
				return 0, stats, err
			}

			deals := make([]clint.Deal, 0, len(res.Data))
			for _, d := range res.Data {
				if d.ID == "" {
					stats.Skipped++
					s.warnMissingID(EntityDeals, d.Raw)
					continue
				}
				if originFilter != "" && dealOrigin(d, stages) != originFilter {
					continue
				}
				deals = append(deals, d)
			}
			if originFilter != "" {
				stats.Matched = len(deals)
			}
			if len(deals) == 0 {
				if originFilter != "" {
					return 0, stats, nil
				}
				return int64(res.Len()), stats, nil
			}

			stubs := make([]models.Contact, 0, len(deals))
			for _, d := range deals {
				if d.Contact != nil && d.Contact.ID != "" {
					stubs = append(stubs, contactModel(d.Contact, now))
				}
			}
			if err := s.Store.EnsureContactsTx(ctx, tx, stubs); err != nil {
				return 0, stats, err
			}
			stats.Stubs = len(stubs)

			contactIDs := make([]string, 0, len(deals))
			originIDs := make([]string, 0, len(deals))
			for _, d := range deals {
				contactIDs = append(contactIDs, d.ContactID.String())
				originIDs = append(originIDs, d.OriginID.String())
			}
			contacts, err := s.resolver().Contacts(ctx, tx, contactIDs)
			if err != nil {
				return 0, stats, err
			}
			origins, err := s.resolver().Origins(ctx, tx, originIDs)
			if err != nil {
				return 0, stats, err
			}

			items := make([]models.Deal, 0, len(deals))
			for _, d := range deals {
				item := dealModel(d, now)
				if ref, ok := stages.Resolve(d.StageID.String()); ok {
					id := ref.LocalID
					item.StageID = &id
				} else if d.StageID != "" {
					stats.OrphanStages++
				}
				item.ContactID = contacts.LocalID(d.ContactID.String())
				if item.ContactID == nil && d.ContactID != "" {
					stats.OrphanContacts++
				}
				if d.OriginID != "" {
					item.OriginID = origins.LocalID(d.OriginID.String())
					if item.OriginID == nil {
						stats.OrphanOrigins++
					}
				} else if ref, ok := stages.Resolve(d.StageID.String()); ok {
					item.OriginID = ref.OriginID
					item.OriginClintID = strPtr(ref.OriginClintID)
				}
				items = append(items, item)
			}
			if err := s.Store.UpsertDealsTx(ctx, tx, items); err != nil {
				return 0, stats, err
			}
			stats.Written = len(items)
			if originFilter != "" {
				return int64(len(items)), stats, nil
			}
			return int64(res.Len()), stats, nil
		},
	}
}

// dealOrigin is the deal's own origin, or its stage's origin when the deal
// does not carry one.
func dealOrigin(d clint.Deal, stages resolver.Map) string {
	if d.OriginID != "" {
		return d.OriginID.String()
	}
	if ref, ok := stages.Resolve(d.StageID.String()); ok {
		return ref.OriginClintID
	}
	return ""
}

func contactModel(c *clint.Contact, now time.Time) models.Contact {
	return models.Contact{
		ClintID:           c.ID.String(),
		Name:              c.Name,
		Email:             strPtr(c.Email),
		Phone:             strPtr(c.Phone),
		Tags:              datatypes.JSON(c.Tags.JSON()),
		Fields:            jsonOrEmptyObject(c.Fields),
		ExternalCreatedAt: c.CreatedAt.Ptr(),
		ExternalUpdatedAt: c.UpdatedAt.Ptr(),
		LastSeenAt:        now,
		RawJSON:           rawJSON(c.Raw),
	}
}

func dealModel(d clint.Deal, now time.Time) models.Deal {
	return models.Deal{
		ClintID:           d.ID.String(),
		Title:             d.Title,
		Status:            d.Status,
		Value:             d.Value.Decimal,
		Currency:          d.Currency,
		UserEmail:         strPtr(d.UserEmail),
		Tags:              datatypes.JSON(d.Tags.JSON()),
		Fields:            jsonOrEmptyObject(d.Fields),
		StageClintID:      d.StageID.Ptr(),
		ContactClintID:    d.ContactID.Ptr(),
		OriginClintID:     d.OriginID.Ptr(),
		WonAt:             d.WonAt.Ptr(),
		LostAt:            d.LostAt.Ptr(),
		LostReason:        strPtr(d.LostReason),
		ExternalCreatedAt: d.CreatedAt.Ptr(),
		ExternalUpdatedAt: d.UpdatedAt.Ptr(),
		LastSeenAt:        now,
		RawJSON:           rawJSON(d.Raw),
	}
}

func (s *CRMSyncService) resolver() *resolver.Resolver {
	if s.Resolver != nil {
		return s.Resolver
	}
	return resolver.New(s.Store)
}

func (s *CRMSyncService) warnMissingID(entity string, raw json.RawMessage) {
	if s.Logger == nil {
		return
	}
	snippet := string(raw)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	s.Logger.Warn("record without id skipped", zap.String("entity", entity), zap.String("raw", snippet))
}

func rawJSON(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}

func jsonOrEmptyObject(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}

func strPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
