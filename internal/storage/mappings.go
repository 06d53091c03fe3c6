package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/Veraticus/spice-sms/internal/model"
)

// GetMapping retrieves the merchant mapping for an alias.
func (s *SQLiteStorage) GetMapping(ctx context.Context, alias string) (*model.MerchantMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(alias, "alias"); err != nil {
		return nil, err
	}
	alias = common.NormalizeMerchant(alias)

	if mapping := s.getCachedMapping(alias); mapping != nil {
		return mapping, nil
	}

	mapping, err := s.getMappingTx(ctx, s.db, alias)
	if err != nil {
		return nil, err
	}
	s.cacheMapping(mapping)
	return mapping, nil
}

func (s *SQLiteStorage) getMappingTx(ctx context.Context, q queryable, alias string) (*model.MerchantMapping, error) {
	mapping, err := scanMapping(q.QueryRowContext(ctx, `
		SELECT alias, normalized_name, display_name, category, source, use_count, updated_at
		FROM merchant_mappings
		WHERE alias = ?
	`, alias))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mapping %q: %w", alias, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	return mapping, nil
}

// SaveMapping creates or replaces the mapping for an alias.
func (s *SQLiteStorage) SaveMapping(ctx context.Context, mapping *model.MerchantMapping) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMapping(mapping); err != nil {
		return err
	}

	mapping.Alias = common.NormalizeMerchant(mapping.Alias)
	if mapping.NormalizedName == "" {
		mapping.NormalizedName = mapping.Alias
	}
	if mapping.DisplayName == "" {
		mapping.DisplayName = common.DisplayMerchant(mapping.NormalizedName)
	}
	if mapping.Source == "" {
		mapping.Source = model.MappingSourceManual
	}
	if mapping.UpdatedAt.IsZero() {
		mapping.UpdatedAt = time.Now().UTC()
	}

	var saved *model.MerchantMapping
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO merchant_mappings (alias, normalized_name, display_name, category, source, use_count, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(alias) DO UPDATE SET
				normalized_name = excluded.normalized_name,
				display_name = excluded.display_name,
				category = excluded.category,
				source = excluded.source,
				use_count = MAX(merchant_mappings.use_count, excluded.use_count),
				updated_at = excluded.updated_at
		`, mapping.Alias, mapping.NormalizedName, mapping.DisplayName, mapping.Category,
			string(mapping.Source), mapping.UseCount, mapping.UpdatedAt)
		if err != nil {
			return err
		}
		saved, err = s.getMappingTx(ctx, tx, mapping.Alias)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save mapping: %w", err)
	}

	mapping.UseCount = saved.UseCount
	s.cacheMapping(saved)

	return nil
}

// ListMappings returns every merchant mapping ordered by alias.
func (s *SQLiteStorage) ListMappings(ctx context.Context) ([]model.MerchantMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT alias, normalized_name, display_name, category, source, use_count, updated_at
		FROM merchant_mappings
		ORDER BY alias
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var mappings []model.MerchantMapping
	for rows.Next() {
		mapping, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		mappings = append(mappings, *mapping)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mappings: %w", err)
	}
	return mappings, nil
}

// DeleteMapping removes the mapping for an alias.
func (s *SQLiteStorage) DeleteMapping(ctx context.Context, alias string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(alias, "alias"); err != nil {
		return err
	}
	alias = common.NormalizeMerchant(alias)

	result, err := s.db.ExecContext(ctx, "DELETE FROM merchant_mappings WHERE alias = ?", alias)
	if err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("mapping %q: %w", alias, common.ErrNotFound)
	}

	s.cacheMutex.Lock()
	delete(s.mappingCache, alias)
	s.cacheMutex.Unlock()

	return nil
}

// LookupNormalized returns the canonical merchant for a previously seen alias.
func (s *SQLiteStorage) LookupNormalized(ctx context.Context, alias string) (string, bool, error) {
	mapping, err := s.GetMapping(ctx, alias)
	if errors.Is(err, common.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return mapping.NormalizedName, mapping.NormalizedName != "", nil
}

// LookupCategory returns the category remembered for a normalized merchant.
// The merchant may match either a mapping's alias or its normalized name.
func (s *SQLiteStorage) LookupCategory(ctx context.Context, normalized string) (string, bool, error) {
	if err := validateContext(ctx); err != nil {
		return "", false, err
	}
	if strings.TrimSpace(normalized) == "" {
		return "", false, nil
	}

	if mapping := s.getCachedMapping(normalized); mapping != nil && mapping.Category != "" {
		return mapping.Category, true, nil
	}

	var category string
	err := s.db.QueryRowContext(ctx, `
		SELECT category
		FROM merchant_mappings
		WHERE (alias = ? OR normalized_name = ?)
			AND category IS NOT NULL AND category != ''
		ORDER BY alias = ? DESC, use_count DESC, updated_at DESC
		LIMIT 1
	`, normalized, normalized, normalized).Scan(&category)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up category: %w", err)
	}
	return category, true, nil
}

// IncrementMappingUse records that a mapping was applied.
func (s *SQLiteStorage) IncrementMappingUse(ctx context.Context, alias string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(alias, "alias"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE merchant_mappings SET use_count = use_count + 1, updated_at = ?
		WHERE alias = ?
	`, time.Now().UTC(), alias)
	if err != nil {
		return fmt.Errorf("failed to increment mapping use: %w", err)
	}

	s.cacheMutex.Lock()
	delete(s.mappingCache, alias)
	s.cacheMutex.Unlock()

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMapping(row rowScanner) (*model.MerchantMapping, error) {
	var (
		mapping     model.MerchantMapping
		displayName sql.NullString
		category    sql.NullString
		source      string
	)
	if err := row.Scan(
		&mapping.Alias,
		&mapping.NormalizedName,
		&displayName,
		&category,
		&source,
		&mapping.UseCount,
		&mapping.UpdatedAt,
	); err != nil {
		return nil, err
	}
	mapping.DisplayName = displayName.String
	mapping.Category = category.String
	mapping.Source = model.MappingSource(source)
	return &mapping, nil
}

// Cache management methods.
func (s *SQLiteStorage) getCachedMapping(alias string) *model.MerchantMapping {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()

	if time.Now().After(s.cacheExpiry) {
		return nil
	}

	if mapping, ok := s.mappingCache[alias]; ok {
		copied := *mapping
		return &copied
	}
	return nil
}

func (s *SQLiteStorage) cacheMapping(mapping *model.MerchantMapping) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	copied := *mapping
	s.mappingCache[mapping.Alias] = &copied
	if time.Now().After(s.cacheExpiry) {
		s.cacheExpiry = time.Now().Add(mappingCacheTTL)
	}
}

// WarmMappingCache loads every mapping into memory.
func (s *SQLiteStorage) WarmMappingCache(ctx context.Context) error {
	mappings, err := s.ListMappings(ctx)
	if err != nil {
		return err
	}

	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	s.mappingCache = make(map[string]*model.MerchantMapping, len(mappings))
	for i := range mappings {
		s.mappingCache[mappings[i].Alias] = &mappings[i]
	}
	s.cacheExpiry = time.Now().Add(mappingCacheTTL)

	common.LogDebug("Warmed merchant mapping cache", common.Fields{"count": len(mappings)})

	return nil
}
