package models

import (
	"time"

	"gorm.io/gorm"

	"cirvee_lms/internal/money"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

// IsTerminal reports whether the automated path can still move this status.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// IsValid reports whether s is one of the known lifecycle states.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed:
		return true
	}
	return false
}

type InstallmentPlan string

const (
	PlanFullPayment     InstallmentPlan = "FULL_PAYMENT"
	PlanTwoInstallments InstallmentPlan = "TWO_INSTALLMENTS"
)

func (p InstallmentPlan) IsValid() bool {
	return p == PlanFullPayment || p == PlanTwoInstallments
}

// Payment is one enrollment funding attempt. Amounts are integer kobo and the
// invariant BalanceKobo == TotalAmountKobo - PaidAmountKobo holds on every write.
// Payments are never hard-deleted; failure and cancellation are statuses.
type Payment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Reference      string `gorm:"type:varchar(64);uniqueIndex;not null" json:"reference"`
	IdempotencyKey string `gorm:"type:varchar(64);uniqueIndex;not null" json:"idempotency_key"`

	StudentID uint `gorm:"index;uniqueIndex:idx_payments_student_cohort_open,where:status IN ('PENDING','PROCESSING') AND deleted_at IS NULL" json:"student_id"`
	UserID    uint `gorm:"index" json:"user_id"`
	CourseID  uint `gorm:"index" json:"course_id"`
	CohortID  uint `gorm:"index;uniqueIndex:idx_payments_student_cohort_open,where:status IN ('PENDING','PROCESSING') AND deleted_at IS NULL" json:"cohort_id"`

	TotalAmountKobo money.Kobo `json:"total_amount_kobo"`
	PaidAmountKobo  money.Kobo `json:"paid_amount_kobo"`
	BalanceKobo     money.Kobo `json:"balance_kobo"`

	InstallmentPlan          InstallmentPlan `gorm:"type:varchar(20);default:'FULL_PAYMENT'" json:"installment_plan"`
	FirstInstallmentKobo     money.Kobo      `json:"first_installment_kobo"`
	SecondInstallmentKobo    money.Kobo      `json:"second_installment_kobo"`
	SecondInstallmentDueDate *time.Time      `json:"second_installment_due_date,omitempty"`

	Status      PaymentStatus `gorm:"type:varchar(20);index;default:'PENDING'" json:"status"`
	ExpiresAt   time.Time     `json:"expires_at"`
	ConfirmedAt *time.Time    `json:"confirmed_at,omitempty"`

	// Version is the optimistic concurrency token, bumped on every transition.
	Version uint `gorm:"default:1" json:"-"`

	Student      Student              `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	Course       Course               `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	Cohort       Cohort               `gorm:"foreignKey:CohortID" json:"cohort,omitempty"`
	Transactions []PaymentTransaction `gorm:"foreignKey:PaymentID" json:"transactions,omitempty"`
	AuditLogs    []PaymentAuditLog    `gorm:"foreignKey:PaymentID" json:"audit_logs,omitempty"`
	Refund       *PaymentRefund       `gorm:"foreignKey:PaymentID" json:"refund,omitempty"`
}

// OwnedBy reports whether the payment belongs to the given user.
func (p Payment) OwnedBy(userID uint) bool {
	return p.UserID == userID
}
