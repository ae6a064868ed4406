// Package catalog reads purchasable items from the platform database and
// applies the entitlements a paid order grants.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Course is a sellable course. Price is in rupees.
type Course struct {
	ID           int64           `gorm:"primaryKey"`
	Name         string          `gorm:"size:255;not null"`
	Price        decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	InstructorID *int64          `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Project is a sellable project.
type Project struct {
	ID        int64           `gorm:"primaryKey"`
	Title     string          `gorm:"size:255;not null"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Application is an internship application whose certificate can be bought.
type Application struct {
	ID                int64  `gorm:"primaryKey"`
	Name              string `gorm:"size:255"`
	Email             string `gorm:"size:255"`
	Status            string `gorm:"size:32"`
	IsCertificatePaid bool   `gorm:"not null;default:false"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
