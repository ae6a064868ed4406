package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when the requested item does not exist.
var ErrNotFound = errors.New("catalog item not found")

// Repo is the gorm-backed catalog.
type Repo struct {
	db *gorm.DB
}

// NewRepo wraps an open gorm handle.
func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// PoolOptions tunes the SQL connection pool.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenMySQL opens the platform database.
func OpenMySQL(dsn string, pool PoolOptions) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql db: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	return db, nil
}

// AutoMigrate creates or updates the catalog tables.
func (r *Repo) AutoMigrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&Course{}, &Project{}, &Application{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func (r *Repo) GetCourse(ctx context.Context, id int64) (*Course, error) {
	var c Course
	if err := r.first(ctx, &c, id); err != nil {
		return nil, fmt.Errorf("get course %d: %w", id, err)
	}
	return &c, nil
}

func (r *Repo) GetProject(ctx context.Context, id int64) (*Project, error) {
	var p Project
	if err := r.first(ctx, &p, id); err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	return &p, nil
}

func (r *Repo) GetApplication(ctx context.Context, id int64) (*Application, error) {
	var a Application
	if err := r.first(ctx, &a, id); err != nil {
		return nil, fmt.Errorf("get application %d: %w", id, err)
	}
	return &a, nil
}

func (r *Repo) first(ctx context.Context, dest interface{}, id int64) error {
	err := r.db.WithContext(ctx).First(dest, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// UnlockCertificate flips is_certificate_paid on an application. It returns true
// only for the call that flipped it; repeats are no-ops.
func (r *Repo) UnlockCertificate(ctx context.Context, applicationID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&Application{}).
		Where("id = ? AND is_certificate_paid = ?", applicationID, false).
		Update("is_certificate_paid", true)
	if res.Error != nil {
		return false, fmt.Errorf("unlock certificate %d: %w", applicationID, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&Application{}).Where("id = ?", applicationID).Count(&count).Error; err != nil {
			return false, fmt.Errorf("unlock certificate %d: %w", applicationID, err)
		}
		if count == 0 {
			return false, fmt.Errorf("unlock certificate %d: %w", applicationID, ErrNotFound)
		}
		return false, nil
	}
	return true, nil
}

// UnlockEnrollment grants access to a purchased course or project.
// TODO: enrollment rows belong to the enrollment service; call its API once it
// exposes one. Until then purchases are only recorded on the order.
func (r *Repo) UnlockEnrollment(ctx context.Context, userID int64, itemType string, itemID int64) error {
	return nil
}
