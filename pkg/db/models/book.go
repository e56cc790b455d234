package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pagehaven/bookstore-backend/pkg/enums"
)

// Book is the catalog record referenced by cart snapshots. Catalog management
// lives outside this service; checkout only reads it.
type Book struct {
	ID        int64            `gorm:"column:id;primaryKey;autoIncrement"`
	Title     string           `gorm:"column:title;not null"`
	Author    string           `gorm:"column:author;not null"`
	Format    enums.BookFormat `gorm:"column:format;type:book_format_enum;not null"`
	Price     decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	Currency  enums.Currency   `gorm:"column:currency;type:currency_enum;not null;default:NGN"`
	Active    bool             `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
