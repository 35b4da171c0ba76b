package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tyemirov/quizsession/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseStorage persists values in a SQL table through GORM. It backs the legacy
// persistent store that predates per-tab storage.
type DatabaseStorage struct {
	db          *gorm.DB
	driverLabel string
}

type storageRecord struct {
	StorageKey    string `gorm:"column:storage_key;primaryKey"`
	StorageValue  string `gorm:"column:storage_value;not null"`
	UpdatedAtUnix int64  `gorm:"column:updated_at_unix;not null"`
}

func (storageRecord) TableName() string {
	return "client_storage"
}

// NewDatabaseStorage opens databaseURL (postgres:// or sqlite://) and migrates the storage table.
func NewDatabaseStorage(ctx context.Context, databaseURL string) (*DatabaseStorage, error) {
	gormDB, driverLabel, err := database.Open(ctx, databaseURL, &storageRecord{})
	if err != nil {
		return nil, fmt.Errorf("tokenstore.database.open: %w", err)
	}
	return &DatabaseStorage{db: gormDB, driverLabel: driverLabel}, nil
}

// Driver exposes the selected database driver label.
func (storage *DatabaseStorage) Driver() string {
	return storage.driverLabel
}

// GetItem returns the stored value for key.
func (storage *DatabaseStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, ErrEmptyKey
	}
	var record storageRecord
	err := storage.db.WithContext(ctx).Where("storage_key = ?", key).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("tokenstore.database.get.%s: %w", storage.driverLabel, err)
	}
	return record.StorageValue, true, nil
}

// SetItem upserts value under key.
func (storage *DatabaseStorage) SetItem(ctx context.Context, key string, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	record := storageRecord{
		StorageKey:    key,
		StorageValue:  value,
		UpdatedAtUnix: time.Now().UTC().Unix(),
	}
	err := storage.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"storage_value", "updated_at_unix"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("tokenstore.database.set.%s: %w", storage.driverLabel, err)
	}
	return nil
}

// RemoveItem deletes key; deleting a missing key succeeds.
func (storage *DatabaseStorage) RemoveItem(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if err := storage.db.WithContext(ctx).Where("storage_key = ?", key).Delete(&storageRecord{}).Error; err != nil {
		return fmt.Errorf("tokenstore.database.remove.%s: %w", storage.driverLabel, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (storage *DatabaseStorage) Close() error {
	sqlDB, err := storage.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
