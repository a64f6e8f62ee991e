package models

import (
	"time"

	"gorm.io/gorm"
)

type EnrollmentStatus string

const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
)

// Enrollment ties a student to a cohort. Activated as a side effect of a
// payment reaching a paid-enough state; never owned by the payment record.
type Enrollment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	StudentID   uint             `gorm:"index;uniqueIndex:idx_enrollments_student_cohort,where:deleted_at IS NULL" json:"student_id"`
	CourseID    uint             `gorm:"index" json:"course_id"`
	CohortID    uint             `gorm:"index;uniqueIndex:idx_enrollments_student_cohort,where:deleted_at IS NULL" json:"cohort_id"`
	Status      EnrollmentStatus `gorm:"type:varchar(20);default:'PENDING'" json:"status"`
	ActivatedAt *time.Time       `json:"activated_at,omitempty"`

	Student Student `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	Course  Course  `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	Cohort  Cohort  `gorm:"foreignKey:CohortID" json:"cohort,omitempty"`
}
