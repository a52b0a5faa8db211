package gormrepository

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"crmsync/internal/repository"
)

type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func createInBatches[T any](db *gorm.DB, items []T, batchSize int) error {
	if len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		if err := db.CreateInBatches(items[i:end], batchSize).Error; err != nil {
			return err
		}
	}
	return nil
}

// uniqueByKey drops items without a key and keeps the last occurrence of
// each key, in first-seen order.
func uniqueByKey[T any](items []T, key func(T) string) ([]T, int) {
	if len(items) == 0 {
		return nil, 0
	}
	index := make(map[string]int, len(items))
	out := make([]T, 0, len(items))
	missing := 0
	for _, item := range items {
		k := strings.TrimSpace(key(item))
		if k == "" {
			missing++
			continue
		}
		if pos, ok := index[k]; ok {
			out[pos] = item
			continue
		}
		index[k] = len(out)
		out = append(out, item)
	}
	return out, missing
}

func (s *Store) logMissingKeys(table string, missing int) {
	if missing == 0 || s == nil || s.logger == nil {
		return
	}
	s.logger.Warn("records without clint_id skipped",
		zap.String("table", table),
		zap.Int("count", missing),
	)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}

var _ repository.Repository = (*Store)(nil)
