package models

import (
	"time"

	"gorm.io/gorm"

	"cirvee_lms/internal/money"
)

type RefundStatus string

const (
	RefundStatusRequested RefundStatus = "REQUESTED"
	RefundStatusApproved  RefundStatus = "APPROVED"
	RefundStatusSettled   RefundStatus = "SETTLED"
	RefundStatusRejected  RefundStatus = "REJECTED"
)

// PaymentRefund is the zero-or-one refund record attached to a payment.
type PaymentRefund struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	PaymentID  uint         `gorm:"uniqueIndex;not null" json:"payment_id"`
	AmountKobo money.Kobo   `json:"amount_kobo"`
	Reason     string       `gorm:"type:text" json:"reason"`
	Status     RefundStatus `gorm:"type:varchar(20);default:'REQUESTED'" json:"status"`
	SettledAt  *time.Time   `json:"settled_at,omitempty"`
}
