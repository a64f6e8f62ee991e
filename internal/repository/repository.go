package repository

import (
	"context"
	"errors"
	"time"

	"cirvee_lms/internal/models"
	"cirvee_lms/internal/money"
)

// Sentinel errors translated by implementations from store-level outcomes.
var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a uniqueness constraint rejects a write
	// (payment reference, idempotency key, or the open student+cohort index).
	ErrDuplicate = errors.New("duplicate record")
	// ErrDuplicateTransaction is returned when a gateway confirmation has
	// already been recorded for the same gateway reference.
	ErrDuplicateTransaction = errors.New("gateway transaction already recorded")
	// ErrVersionConflict is returned when an optimistic version check fails.
	ErrVersionConflict = errors.New("payment modified concurrently")
)

// ListPaymentsFilter narrows List results. Nil fields are ignored.
type ListPaymentsFilter struct {
	Status          *models.PaymentStatus
	StudentID       *uint
	CohortID        *uint
	CourseID        *uint
	InstallmentPlan *models.InstallmentPlan
	StartDate       *time.Time
	EndDate         *time.Time
	Page            int
	Limit           int
}

// StatsFilter narrows Statistics aggregation. Nil fields are ignored.
type StatsFilter struct {
	CohortID  *uint
	CourseID  *uint
	StartDate *time.Time
	EndDate   *time.Time
}

// PaymentStatistics is a read-only aggregate over the payment table.
type PaymentStatistics struct {
	TotalRevenueKobo          money.Kobo                     `json:"total_revenue_kobo"`
	PendingOutstandingKobo    money.Kobo                     `json:"pending_outstanding_kobo"`
	ProcessingOutstandingKobo money.Kobo                     `json:"processing_outstanding_kobo"`
	CountByStatus             map[models.PaymentStatus]int64 `json:"count_by_status"`
	RecentTransactions        []models.PaymentTransaction    `json:"recent_transactions"`
}

// PaymentRepository is the durable store for payments, their transactions and
// their audit trail. The state-machine logic in the payment service depends on
// this interface only; conditional writes (unique gateway reference, version
// token) are enforced here, not by application-level locks.
type PaymentRepository interface {
	// Create persists a new payment together with its initiation transaction
	// and initial audit entry in one atomic write.
	Create(ctx context.Context, payment *models.Payment, txn *models.PaymentTransaction, audit *models.PaymentAuditLog) error

	FindByID(ctx context.Context, id uint) (*models.Payment, error)
	// FindByReference resolves a payment by its own reference or by any of its
	// transactions' charge references.
	FindByReference(ctx context.Context, reference string) (*models.Payment, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error)
	// FindOpenByStudentCohort returns the non-terminal, non-expired payment for
	// a student+cohort pair, or ErrNotFound.
	FindOpenByStudentCohort(ctx context.Context, studentID, cohortID uint) (*models.Payment, error)
	// ExpireStalePending fails out expired PENDING payments for a
	// student+cohort pair, writing a PAYMENT_FAILED audit entry for each, so
	// the open-payment uniqueness no longer blocks re-initiation.
	ExpireStalePending(ctx context.Context, studentID, cohortID uint) error

	List(ctx context.Context, filter ListPaymentsFilter) ([]models.Payment, int64, error)

	// CreditPayment applies a confirmed gateway amount: it inserts the
	// verification transaction (unique gateway reference) and updates the
	// payment's amounts/status under the optimistic version check, in one
	// database transaction. Audit entries ride along atomically.
	CreditPayment(ctx context.Context, payment *models.Payment, txn *models.PaymentTransaction, audits []models.PaymentAuditLog) error

	// UpdateWithVersion writes payment fields if the version token still
	// matches, bumping it; audit entries are appended in the same transaction.
	UpdateWithVersion(ctx context.Context, payment *models.Payment, audits ...models.PaymentAuditLog) error

	// RecordTransaction appends a standalone transaction row (e.g. a second
	// installment initiation).
	RecordTransaction(ctx context.Context, txn *models.PaymentTransaction) error

	AppendAudit(ctx context.Context, entry *models.PaymentAuditLog) error
	// HasAuditSince reports whether an audit entry with the given action was
	// written for the payment at or after the given time.
	HasAuditSince(ctx context.Context, paymentID uint, action string, since time.Time) (bool, error)

	// FindReminderCandidates returns TWO_INSTALLMENTS payments in PENDING or
	// PROCESSING with outstanding balance whose student has an ACTIVE
	// enrollment in the paid cohort, with student, user, cohort and course
	// loaded.
	FindReminderCandidates(ctx context.Context) ([]models.Payment, error)

	Statistics(ctx context.Context, filter StatsFilter) (*PaymentStatistics, error)
}

// CatalogRepository looks up the enrollment catalog the payment engine
// validates against.
type CatalogRepository interface {
	// FindCohort returns the cohort with its course loaded.
	FindCohort(ctx context.Context, id uint) (*models.Cohort, error)
	FindStudentByUserID(ctx context.Context, userID uint) (*models.Student, error)
}
