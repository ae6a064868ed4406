package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) (*Repo, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	repo := NewRepo(db)
	require.NoError(t, repo.AutoMigrate(context.Background()))
	return repo, db
}

func TestGetCourse(t *testing.T) {
	repo, db := newTestRepo(t)
	instructor := int64(5)
	require.NoError(t, db.Create(&Course{ID: 7, Name: "Go", Price: decimal.RequireFromString("499.00"), InstructorID: &instructor}).Error)

	c, err := repo.GetCourse(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, c.Price.Equal(decimal.NewFromInt(499)))
	require.NotNil(t, c.InstructorID)
	assert.Equal(t, int64(5), *c.InstructorID)

	_, err = repo.GetCourse(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetProjectAndApplication(t *testing.T) {
	repo, db := newTestRepo(t)
	require.NoError(t, db.Create(&Project{ID: 3, Title: "Capstone", Price: decimal.RequireFromString("1299.50")}).Error)
	require.NoError(t, db.Create(&Application{ID: 11, Name: "Asha", Status: "completed"}).Error)

	p, err := repo.GetProject(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "Capstone", p.Title)

	a, err := repo.GetApplication(context.Background(), 11)
	require.NoError(t, err)
	assert.False(t, a.IsCertificatePaid)

	_, err = repo.GetProject(context.Background(), 4)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetApplication(context.Background(), 12)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnlockCertificate_FlipsOnce(t *testing.T) {
	repo, db := newTestRepo(t)
	require.NoError(t, db.Create(&Application{ID: 11, Name: "Asha"}).Error)
	ctx := context.Background()

	flipped, err := repo.UnlockCertificate(ctx, 11)
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = repo.UnlockCertificate(ctx, 11)
	require.NoError(t, err)
	assert.False(t, flipped)

	a, err := repo.GetApplication(ctx, 11)
	require.NoError(t, err)
	assert.True(t, a.IsCertificatePaid)

	_, err = repo.UnlockCertificate(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenMySQL_RequiresDSN(t *testing.T) {
	_, err := OpenMySQL("", PoolOptions{})
	assert.Error(t, err)
}
