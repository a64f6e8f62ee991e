package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"cirvee_lms/internal/models"
)

// EnrollmentActivator is the enrollment activation capability invoked when a
// payment reaches a paid-enough state. Implementations must be idempotent:
// both the automatic path and admin overrides call it.
type EnrollmentActivator interface {
	Activate(ctx context.Context, studentID, courseID, cohortID uint) error
}

// EnrollmentService manages enrollment records in the relational store.
type EnrollmentService struct {
	db *gorm.DB
}

func NewEnrollmentService(db *gorm.DB) *EnrollmentService {
	return &EnrollmentService{db: db}
}

// Activate upserts an ACTIVE enrollment for the student+cohort pair.
// Re-activating an already-active enrollment is a no-op.
func (s *EnrollmentService) Activate(ctx context.Context, studentID, courseID, cohortID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var enrollment models.Enrollment
		err := tx.Where("student_id = ? AND cohort_id = ?", studentID, cohortID).First(&enrollment).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("lookup enrollment: %w", err)
		}

		now := time.Now()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			enrollment = models.Enrollment{
				StudentID:   studentID,
				CourseID:    courseID,
				CohortID:    cohortID,
				Status:      models.EnrollmentStatusActive,
				ActivatedAt: &now,
			}
			if err := tx.Create(&enrollment).Error; err != nil {
				return fmt.Errorf("create enrollment: %w", err)
			}
			log.Printf("Enrollment activated: student=%d cohort=%d", studentID, cohortID)
			return nil
		}

		if enrollment.Status == models.EnrollmentStatusActive {
			return nil
		}

		updates := map[string]interface{}{"status": models.EnrollmentStatusActive}
		if enrollment.ActivatedAt == nil {
			updates["activated_at"] = &now
		}
		if err := tx.Model(&enrollment).Updates(updates).Error; err != nil {
			return fmt.Errorf("activate enrollment: %w", err)
		}
		log.Printf("Enrollment activated: student=%d cohort=%d", studentID, cohortID)
		return nil
	})
}
