package models

import (
	"encoding/json"
	"time"

	"cirvee_lms/internal/money"
)

type TransactionKind string

const (
	TransactionKindInitiation   TransactionKind = "INITIATION"
	TransactionKindVerification TransactionKind = "VERIFICATION"
)

// PaymentTransaction records one distinct gateway interaction for a payment.
// Rows are immutable once written. Reference is the charge reference handed to
// the gateway at initiation; GatewayReference is the provider's own transaction
// id, present only on verification rows, and its unique index is what makes
// "credit this confirmation exactly once" a store-level guarantee.
type PaymentTransaction struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	PaymentID        uint            `gorm:"index;not null" json:"payment_id"`
	Kind             TransactionKind `gorm:"type:varchar(20);not null" json:"kind"`
	Reference        string          `gorm:"type:varchar(64);index" json:"reference"`
	GatewayReference *string         `gorm:"type:varchar(64);uniqueIndex" json:"gateway_reference,omitempty"`
	AmountKobo       money.Kobo      `json:"amount_kobo"`
	GatewayStatus    string          `gorm:"type:varchar(50)" json:"gateway_status"`
	Metadata         json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
}
