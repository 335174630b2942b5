package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/thread-commands/internal/domain"
)

// GetServerConfig returns the stored configuration of tenantID or ErrNotFound.
func GetServerConfig(ctx context.Context, db *gorm.DB, tenantID string) (*domain.ServerConfig, error) {
	var c domain.ServerConfig
	err := db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadServerConfig returns the configuration of tenantID, creating it with
// defaults on first use. Concurrent first uses converge on one row.
func LoadServerConfig(ctx context.Context, db *gorm.DB, tenantID string) (*domain.ServerConfig, error) {
	c, err := GetServerConfig(ctx, db, tenantID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	fresh := domain.NewServerConfig(tenantID)
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(fresh).Error; err != nil {
		return nil, err
	}
	return GetServerConfig(ctx, db, tenantID)
}

// SaveServerConfig writes every column of c, inserting the row if needed.
func SaveServerConfig(ctx context.Context, db *gorm.DB, c *domain.ServerConfig) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		UpdateAll: true,
	}).Create(c).Error
}

// ListScanTenants returns the ids of tenants that are enabled and opted in to
// reconciliation scans.
func ListScanTenants(ctx context.Context, db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Model(&domain.ServerConfig{}).
		Where("enabled = ? AND scan_enabled = ?", true, true).
		Order("tenant_id ASC").
		Pluck("tenant_id", &ids).Error
	return ids, err
}

// ListTenants returns every tenant with a stored configuration.
func ListTenants(ctx context.Context, db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Model(&domain.ServerConfig{}).Order("tenant_id ASC").Pluck("tenant_id", &ids).Error
	return ids, err
}
