package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Course struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	Title        string          `gorm:"not null" json:"title"`
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	InstructorID snowflake.ID    `gorm:"not null;index" json:"instructor_id"`
	Price        decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"price"`
	Deleted      bool            `gorm:"not null;default:false" json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsFree reports whether enrolling requires no payment.
func (c Course) IsFree() bool {
	return !c.Price.IsPositive()
}
