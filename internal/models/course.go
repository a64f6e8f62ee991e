package models

import (
	"time"

	"gorm.io/gorm"

	"cirvee_lms/internal/money"
)

type Course struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Title         string     `gorm:"type:varchar(255);not null" json:"title"`
	Description   string     `gorm:"type:text" json:"description"`
	DurationWeeks int        `json:"duration_weeks"`
	PriceKobo     money.Kobo `json:"price_kobo"`
	IsPublished   bool       `gorm:"default:false" json:"is_published"`
}
