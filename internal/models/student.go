package models

import (
	"time"

	"gorm.io/gorm"
)

// Student is the enrollment-facing profile of a user with the STUDENT role.
type Student struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID    uint   `gorm:"uniqueIndex" json:"user_id"`
	StudentID string `gorm:"type:varchar(30);uniqueIndex" json:"student_id"`

	User        User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Enrollments []Enrollment `gorm:"foreignKey:StudentID" json:"enrollments,omitempty"`
}
