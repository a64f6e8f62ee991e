package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"cirvee_lms/internal/models"
	"cirvee_lms/internal/money"
)

// GormRepository implements PaymentRepository and CatalogRepository on top of
// a relational database via gorm.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

func (r *GormRepository) Create(ctx context.Context, payment *models.Payment, txn *models.PaymentTransaction, audit *models.PaymentAuditLog) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(payment).Error; err != nil {
			return translateErr(err)
		}
		if txn != nil {
			txn.PaymentID = payment.ID
			if err := tx.Create(txn).Error; err != nil {
				return translateErr(err)
			}
		}
		if audit != nil {
			audit.PaymentID = payment.ID
			if err := tx.Create(audit).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

func (r *GormRepository) FindByID(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Preload("Student.User").
		Preload("Course").
		Preload("Cohort").
		Preload("Transactions").
		Preload("AuditLogs").
		First(&payment, id).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &payment, nil
}

func (r *GormRepository) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Preload("Student.User").
		Preload("Course").
		Preload("Cohort").
		Preload("Transactions").
		Where("reference = ?", reference).
		First(&payment).Error
	if err == nil {
		return &payment, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Second installment charges carry their own references; resolve through
	// the transaction table.
	var txn models.PaymentTransaction
	err = r.db.WithContext(ctx).Where("reference = ?", reference).First(&txn).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return r.FindByID(ctx, txn.PaymentID)
}

func (r *GormRepository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&payment).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &payment, nil
}

func (r *GormRepository) FindOpenByStudentCohort(ctx context.Context, studentID, cohortID uint) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND cohort_id = ?", studentID, cohortID).
		Where("status = ? OR (status = ? AND expires_at > ?)",
			models.PaymentStatusProcessing, models.PaymentStatusPending, time.Now()).
		First(&payment).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &payment, nil
}

func (r *GormRepository) ExpireStalePending(ctx context.Context, studentID, cohortID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stale []models.Payment
		err := tx.Where("student_id = ? AND cohort_id = ?", studentID, cohortID).
			Where("status = ? AND expires_at <= ?", models.PaymentStatusPending, time.Now()).
			Find(&stale).Error
		if err != nil {
			return err
		}
		for i := range stale {
			payment := &stale[i]
			payment.Status = models.PaymentStatusFailed
			if err := applyVersionedUpdate(tx, payment); err != nil {
				if errors.Is(err, ErrVersionConflict) {
					continue
				}
				return err
			}
			audit := models.PaymentAuditLog{
				PaymentID:   payment.ID,
				Action:      models.AuditPaymentFailed,
				Description: "Initiation expired without a confirmed charge",
				ActorType:   models.ActorSystem,
			}
			if err := tx.Create(&audit).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *GormRepository) List(ctx context.Context, filter ListPaymentsFilter) ([]models.Payment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Payment{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.CohortID != nil {
		query = query.Where("cohort_id = ?", *filter.CohortID)
	}
	if filter.CourseID != nil {
		query = query.Where("course_id = ?", *filter.CourseID)
	}
	if filter.InstallmentPlan != nil {
		query = query.Where("installment_plan = ?", *filter.InstallmentPlan)
	}
	if filter.StartDate != nil {
		query = query.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("created_at <= ?", *filter.EndDate)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit

	var payments []models.Payment
	err := query.
		Preload("Student.User").
		Preload("Course").
		Preload("Cohort").
		Order("created_at desc").
		Limit(limit).Offset(offset).
		Find(&payments).Error
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

func (r *GormRepository) CreditPayment(ctx context.Context, payment *models.Payment, txn *models.PaymentTransaction, audits []models.PaymentAuditLog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txn.PaymentID = payment.ID
		if err := tx.Create(txn).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateTransaction
			}
			return err
		}
		if err := applyVersionedUpdate(tx, payment); err != nil {
			return err
		}
		for i := range audits {
			audits[i].PaymentID = payment.ID
			if err := tx.Create(&audits[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *GormRepository) UpdateWithVersion(ctx context.Context, payment *models.Payment, audits ...models.PaymentAuditLog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyVersionedUpdate(tx, payment); err != nil {
			return err
		}
		for i := range audits {
			audits[i].PaymentID = payment.ID
			if err := tx.Create(&audits[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// applyVersionedUpdate writes the payment's mutable fields guarded by the
// optimistic version token and bumps it in the same statement.
func applyVersionedUpdate(tx *gorm.DB, payment *models.Payment) error {
	result := tx.Model(&models.Payment{}).
		Where("id = ? AND version = ?", payment.ID, payment.Version).
		Updates(map[string]interface{}{
			"paid_amount_kobo": payment.PaidAmountKobo,
			"balance_kobo":     payment.BalanceKobo,
			"status":           payment.Status,
			"confirmed_at":     payment.ConfirmedAt,
			"version":          gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	payment.Version++
	return nil
}

func (r *GormRepository) RecordTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateTransaction
		}
		return err
	}
	return nil
}

func (r *GormRepository) AppendAudit(ctx context.Context, entry *models.PaymentAuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *GormRepository) HasAuditSince(ctx context.Context, paymentID uint, action string, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PaymentAuditLog{}).
		Where("payment_id = ? AND action = ? AND created_at >= ?", paymentID, action, since).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRepository) FindReminderCandidates(ctx context.Context) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Joins("JOIN enrollments ON enrollments.student_id = payments.student_id AND enrollments.cohort_id = payments.cohort_id AND enrollments.status = ? AND enrollments.deleted_at IS NULL", models.EnrollmentStatusActive).
		Where("payments.status IN ?", []models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusProcessing}).
		Where("payments.balance_kobo > 0").
		Where("payments.installment_plan = ?", models.PlanTwoInstallments).
		Preload("Student.User").
		Preload("Cohort").
		Preload("Course").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *GormRepository) Statistics(ctx context.Context, filter StatsFilter) (*PaymentStatistics, error) {
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.Payment{})
		if filter.CohortID != nil {
			q = q.Where("cohort_id = ?", *filter.CohortID)
		}
		if filter.CourseID != nil {
			q = q.Where("course_id = ?", *filter.CourseID)
		}
		if filter.StartDate != nil {
			q = q.Where("created_at >= ?", *filter.StartDate)
		}
		if filter.EndDate != nil {
			q = q.Where("created_at <= ?", *filter.EndDate)
		}
		return q
	}

	stats := &PaymentStatistics{CountByStatus: make(map[models.PaymentStatus]int64)}

	sumInto := func(dest *money.Kobo, column string, status models.PaymentStatus) error {
		var value *int64
		err := base().Where("status = ?", status).
			Select(fmt.Sprintf("COALESCE(SUM(%s), 0)", column)).
			Scan(&value).Error
		if err != nil {
			return err
		}
		if value != nil {
			*dest = money.Kobo(*value)
		}
		return nil
	}

	if err := sumInto(&stats.TotalRevenueKobo, "paid_amount_kobo", models.PaymentStatusCompleted); err != nil {
		return nil, err
	}
	if err := sumInto(&stats.PendingOutstandingKobo, "balance_kobo", models.PaymentStatusPending); err != nil {
		return nil, err
	}
	if err := sumInto(&stats.ProcessingOutstandingKobo, "balance_kobo", models.PaymentStatusProcessing); err != nil {
		return nil, err
	}

	type statusCount struct {
		Status models.PaymentStatus
		Count  int64
	}
	var counts []statusCount
	if err := base().Select("status, COUNT(*) as count").Group("status").Scan(&counts).Error; err != nil {
		return nil, err
	}
	for _, c := range counts {
		stats.CountByStatus[c.Status] = c.Count
	}

	err := r.db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Order("created_at desc").
		Limit(10).
		Find(&stats.RecentTransactions).Error
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *GormRepository) FindCohort(ctx context.Context, id uint) (*models.Cohort, error) {
	var cohort models.Cohort
	err := r.db.WithContext(ctx).Preload("Course").First(&cohort, id).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &cohort, nil
}

func (r *GormRepository) FindStudentByUserID(ctx context.Context, userID uint) (*models.Student, error) {
	var student models.Student
	err := r.db.WithContext(ctx).Preload("User").Where("user_id = ?", userID).First(&student).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &student, nil
}
