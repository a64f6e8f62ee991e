package models

import (
	"time"

	"gorm.io/gorm"
)

type CohortStatus string

const (
	CohortStatusUpcoming  CohortStatus = "UPCOMING"
	CohortStatusOngoing   CohortStatus = "ONGOING"
	CohortStatusCompleted CohortStatus = "COMPLETED"
)

// Cohort is a scheduled run of a course that students enroll into.
type Cohort struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	CourseID  uint         `gorm:"index" json:"course_id"`
	Name      string       `gorm:"type:varchar(255);not null" json:"name"`
	StartDate time.Time    `json:"start_date"`
	EndDate   *time.Time   `json:"end_date,omitempty"`
	Status    CohortStatus `gorm:"type:varchar(20);default:'UPCOMING'" json:"status"`

	Course Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}
