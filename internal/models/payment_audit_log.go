package models

import (
	"time"
)

type AuditActorType string

const (
	ActorSystem  AuditActorType = "SYSTEM"
	ActorAdmin   AuditActorType = "ADMIN"
	ActorStudent AuditActorType = "STUDENT"
)

// Audit action tags.
const (
	AuditPaymentInitiated           = "PAYMENT_INITIATED"
	AuditSecondInstallmentInitiated = "SECOND_INSTALLMENT_INITIATED"
	AuditPaymentVerified            = "PAYMENT_VERIFIED"
	AuditPaymentCompleted           = "PAYMENT_COMPLETED"
	AuditPaymentFailed              = "PAYMENT_FAILED"
	AuditPaymentReminder            = "PAYMENT_REMINDER"
	AuditStatusOverride             = "STATUS_OVERRIDE"
	AuditAmountMismatch             = "AMOUNT_MISMATCH"
)

// PaymentAuditLog is the append-only trail of transitions and automated
// actions for a payment. Entries are never mutated or deleted; the reminder
// scheduler reads this table as the source of truth for cooldown dedup.
type PaymentAuditLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	PaymentID   uint                   `gorm:"index:idx_audit_payment_action,priority:1;not null" json:"payment_id"`
	Action      string                 `gorm:"type:varchar(50);index:idx_audit_payment_action,priority:2;not null" json:"action"`
	Description string                 `gorm:"type:text" json:"description"`
	ActorType   AuditActorType         `gorm:"type:varchar(20);not null" json:"actor_type"`
	ActorID     *uint                  `json:"actor_id,omitempty"`
	Metadata    map[string]interface{} `gorm:"serializer:json" json:"metadata,omitempty"`
}
