package gormrepository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crmsync/internal/models"
)

const upsertBatchSize = 200

func (s *Store) UpsertOriginsTx(ctx context.Context, tx *gorm.DB, items []models.Origin) error {
	items, missing := uniqueByKey(items, func(o models.Origin) string { return o.ClintID })
	s.logMissingKeys("crm_origins", missing)
	if len(items) == 0 {
		return nil
	}
	return createInBatches(tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "clint_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"group_name",
			"last_seen_at",
			"raw_json",
			"updated_at",
		}),
	}), items, upsertBatchSize)
}

func (s *Store) UpsertStagesTx(ctx context.Context, tx *gorm.DB, items []models.Stage) error {
	items, missing := uniqueByKey(items, func(st models.Stage) string { return st.ClintID })
	s.logMissingKeys("crm_stages", missing)
	if len(items) == 0 {
		return nil
	}
	return createInBatches(tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "clint_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"position",
			"origin_clint_id",
			"origin_id",
			"last_seen_at",
			"raw_json",
			"updated_at",
		}),
	}), items, upsertBatchSize)
}

func (s *Store) UpsertContactsTx(ctx context.Context, tx *gorm.DB, items []models.Contact) error {
	items, missing := uniqueByKey(items, func(c models.Contact) string { return c.ClintID })
	s.logMissingKeys("crm_contacts", missing)
	if len(items) == 0 {
		return nil
	}
	return createInBatches(tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "clint_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"email",
			"phone",
			"tags",
			"fields",
			"external_created_at",
			"external_updated_at",
			"last_seen_at",
			"raw_json",
			"updated_at",
		}),
	}), items, upsertBatchSize)
}

// EnsureContactsTx inserts contacts that do not exist yet and leaves existing
// rows untouched. Used for contacts embedded in deal payloads.
func (s *Store) EnsureContactsTx(ctx context.Context, tx *gorm.DB, items []models.Contact) error {
	items, _ = uniqueByKey(items, func(c models.Contact) string { return c.ClintID })
	if len(items) == 0 {
		return nil
	}
	return createInBatches(tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "clint_id"}},
		DoNothing: true,
	}), items, upsertBatchSize)
}

func (s *Store) UpsertDealsTx(ctx context.Context, tx *gorm.DB, items []models.Deal) error {
	items, missing := uniqueByKey(items, func(d models.Deal) string { return d.ClintID })
	s.logMissingKeys("crm_deals", missing)
	if len(items) == 0 {
		return nil
	}
	return createInBatches(tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "clint_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title",
			"status",
			"value",
			"currency",
			"user_email",
			"tags",
			"fields",
			"stage_clint_id",
			"contact_clint_id",
			"origin_clint_id",
			"stage_id",
			"contact_id",
			"origin_id",
			"won_at",
			"lost_at",
			"lost_reason",
			"external_created_at",
			"external_updated_at",
			"last_seen_at",
			"raw_json",
			"updated_at",
		}),
	}), items, upsertBatchSize)
}

func (s *Store) FindOriginsByClintIDsTx(ctx context.Context, tx *gorm.DB, clintIDs []string) ([]models.Origin, error) {
	clintIDs = cleanStrings(clintIDs)
	if tx == nil || len(clintIDs) == 0 {
		return nil, nil
	}
	var items []models.Origin
	if err := tx.WithContext(ctx).
		Model(&models.Origin{}).
		Select("id", "clint_id").
		Where("clint_id IN ?", clintIDs).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) FindStagesByClintIDsTx(ctx context.Context, tx *gorm.DB, clintIDs []string) ([]models.Stage, error) {
	clintIDs = cleanStrings(clintIDs)
	if tx == nil || len(clintIDs) == 0 {
		return nil, nil
	}
	var items []models.Stage
	if err := tx.WithContext(ctx).
		Model(&models.Stage{}).
		Select("id", "clint_id", "origin_id", "origin_clint_id").
		Where("clint_id IN ?", clintIDs).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) FindContactsByClintIDsTx(ctx context.Context, tx *gorm.DB, clintIDs []string) ([]models.Contact, error) {
	clintIDs = cleanStrings(clintIDs)
	if tx == nil || len(clintIDs) == 0 {
		return nil, nil
	}
	var items []models.Contact
	if err := tx.WithContext(ctx).
		Model(&models.Contact{}).
		Select("id", "clint_id").
		Where("clint_id IN ?", clintIDs).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
