package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"swarmgate/internal/config"
	"swarmgate/internal/model"
	"swarmgate/internal/registry"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const maxVersionRetries = 5

// Service is the keyed registry store: one row per key, with an optimistic
// version column guarding every read-modify-write.
type Service struct {
	db *gorm.DB
}

var _ registry.Store = (*Service)(nil)

// Init opens the database connection based on the provided configuration and migrates the schema.
func Init(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Every new connection to an in-memory sqlite database starts empty.
	if cfg.Type == "sqlite" && strings.Contains(cfg.DSN, ":memory:") {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sql pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&model.KeyRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return db, nil
}

// NewService opens the database and wraps it in a registry store.
func NewService(cfg config.DatabaseConfig) (*Service, error) {
	db, err := Init(cfg)
	if err != nil {
		return nil, err
	}
	return &Service{db: db}, nil
}

// GetDB exposes the underlying connection for tests and maintenance commands.
func (s *Service) GetDB() *gorm.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", registry.ErrStorageUnavailable, err)
}

func (s *Service) Load(ctx context.Context) ([]model.KeyRecord, error) {
	var records []model.KeyRecord
	if err := s.db.WithContext(ctx).Order("id asc").Find(&records).Error; err != nil {
		return nil, unavailable(err)
	}
	return records, nil
}

// Save upserts every record by key. Rows missing from records are kept,
// since key records are never deleted.
func (s *Service) Save(ctx context.Context, records []model.KeyRecord) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			rec.ID = 0
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				UpdateAll: true,
			}).Create(&rec).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Service) Find(ctx context.Context, key string) (*model.KeyRecord, error) {
	if key == "" {
		return nil, registry.ErrNotFound
	}
	var rec model.KeyRecord
	err := s.db.WithContext(ctx).Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, registry.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &rec, nil
}

func (s *Service) findBySession(ctx context.Context, sessionID string) (*model.KeyRecord, error) {
	var rec model.KeyRecord
	err := s.db.WithContext(ctx).Where("payment_session_id = ?", sessionID).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Insert relies on the unique payment_session_id index: a concurrent insert
// for the same session loses on the constraint and then returns the winner's row.
func (s *Service) Insert(ctx context.Context, rec model.KeyRecord) (model.KeyRecord, bool, error) {
	var stored model.KeyRecord
	var created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.KeyRecord
		err := tx.Where("payment_session_id = ?", rec.PaymentSessionID).First(&existing).Error
		if err == nil {
			stored = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		rec.ID = 0
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		stored, created = rec, true
		return nil
	})
	if err != nil {
		if existing, findErr := s.findBySession(ctx, rec.PaymentSessionID); findErr == nil {
			return *existing, false, nil
		}
		return model.KeyRecord{}, false, unavailable(err)
	}
	return stored, created, nil
}

// apply writes rec if its version is still current. It reports false when another writer got there first.
func (s *Service) apply(ctx context.Context, rec *model.KeyRecord, fromVersion int64) (bool, error) {
	rec.Version = fromVersion + 1
	res := s.db.WithContext(ctx).
		Model(&model.KeyRecord{ID: rec.ID}).
		Where("version = ?", fromVersion).
		Select("*").
		Updates(rec)
	if res.Error != nil {
		return false, unavailable(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Service) Update(ctx context.Context, key string, fn func(*model.KeyRecord) error) (model.KeyRecord, error) {
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		rec, err := s.Find(ctx, key)
		if err != nil {
			return model.KeyRecord{}, err
		}
		version := rec.Version
		if err := fn(rec); err != nil {
			return model.KeyRecord{}, err
		}
		ok, err := s.apply(ctx, rec, version)
		if err != nil {
			return model.KeyRecord{}, err
		}
		if ok {
			return *rec, nil
		}
	}
	return model.KeyRecord{}, fmt.Errorf("%w: %w", registry.ErrStorageUnavailable, registry.ErrConflict)
}

func (s *Service) UpdateEach(ctx context.Context, fn func(*model.KeyRecord) bool) (int, error) {
	records, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for i := range records {
		rec := records[i]
		for attempt := 0; ; attempt++ {
			version := rec.Version
			if !fn(&rec) {
				break
			}
			ok, err := s.apply(ctx, &rec, version)
			if err != nil {
				return count, err
			}
			if ok {
				count++
				break
			}
			if attempt+1 >= maxVersionRetries {
				return count, fmt.Errorf("%w: %w", registry.ErrStorageUnavailable, registry.ErrConflict)
			}
			fresh, err := s.Find(ctx, rec.Key)
			if err != nil {
				return count, err
			}
			rec = *fresh
		}
	}
	return count, nil
}
