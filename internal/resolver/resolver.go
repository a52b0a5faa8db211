// Package resolver turns remote CRM ids into local surrogate ids with one
// bulk query per foreign-key dimension per page.
package resolver

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"crmsync/internal/models"
)

const DefaultChunkSize = 1000

// Ref is what a remote id resolves to. OriginID and OriginClintID are only
// set for stages and carry the stage's parent origin.
type Ref struct {
	LocalID       uint64
	OriginID      *uint64
	OriginClintID string
}

type Map map[string]Ref

func (m Map) Resolve(remoteID string) (Ref, bool) {
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" || m == nil {
		return Ref{}, false
	}
	ref, ok := m[remoteID]
	return ref, ok
}

// LocalID returns nil on a miss, which is the legal orphan state.
func (m Map) LocalID(remoteID string) *uint64 {
	ref, ok := m.Resolve(remoteID)
	if !ok {
		return nil
	}
	id := ref.LocalID
	return &id
}

type Lookup interface {
	FindOriginsByClintIDsTx(ctx context.Context, tx *gorm.DB, clintIDs []string) ([]models.Origin, error)
	FindStagesByClintIDsTx(ctx context.Context, tx *gorm.DB, clintIDs []string) ([]models.Stage, error)
	FindContactsByClintIDsTx(ctx context.Context, tx *gorm.DB, clintIDs []string) ([]models.Contact, error)
}

type Resolver struct {
	lookup    Lookup
	chunkSize int
}

func New(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup, chunkSize: DefaultChunkSize}
}

func (r *Resolver) Origins(ctx context.Context, tx *gorm.DB, remoteIDs []string) (Map, error) {
	out := Map{}
	if r == nil || r.lookup == nil {
		return out, nil
	}
	for _, chunk := range chunkStrings(Distinct(remoteIDs), r.chunkSize) {
		rows, err := r.lookup.FindOriginsByClintIDsTx(ctx, tx, chunk)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			out[row.ClintID] = Ref{LocalID: row.ID}
		}
	}
	return out, nil
}

func (r *Resolver) Stages(ctx context.Context, tx *gorm.DB, remoteIDs []string) (Map, error) {
	out := Map{}
	if r == nil || r.lookup == nil {
		return out, nil
	}
	for _, chunk := range chunkStrings(Distinct(remoteIDs), r.chunkSize) {
		rows, err := r.lookup.FindStagesByClintIDsTx(ctx, tx, chunk)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			ref := Ref{LocalID: row.ID, OriginID: row.OriginID}
			if row.OriginClintID != nil {
				ref.OriginClintID = *row.OriginClintID
			}
			out[row.ClintID] = ref
		}
	}
	return out, nil
}

func (r *Resolver) Contacts(ctx context.Context, tx *gorm.DB, remoteIDs []string) (Map, error) {
	out := Map{}
	if r == nil || r.lookup == nil {
		return out, nil
	}
	for _, chunk := range chunkStrings(Distinct(remoteIDs), r.chunkSize) {
		rows, err := r.lookup.FindContactsByClintIDsTx(ctx, tx, chunk)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			out[row.ClintID] = Ref{LocalID: row.ID}
		}
	}
	return out, nil
}

// Distinct trims ids and drops empties and repeats, keeping first-seen order.
func Distinct(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func chunkStrings(items []string, size int) [][]string {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	if len(items) <= size {
		return [][]string{items}
	}
	chunks := make([][]string, 0, (len(items)/size)+1)
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}
	return chunks
}
