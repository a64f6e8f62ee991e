package handlers

import (
	"time"

	"cirvee_lms/internal/models"
	"cirvee_lms/internal/money"
)

// InitiatePaymentRequest is the student-facing initiation payload.
type InitiatePaymentRequest struct {
	CohortID        uint                   `json:"cohort_id"`
	AmountKobo      int64                  `json:"amount_kobo"`
	InstallmentPlan string                 `json:"installment_plan"`
	IdempotencyKey  string                 `json:"idempotency_key"`
	PhoneNumber     string                 `json:"phone_number"`
	Metadata        map[string]interface{} `json:"metadata"`
}

// UpdateStatusRequest is the admin override payload.
type UpdateStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// PaymentResponse is the API projection of a payment. Kobo amounts stay
// integers; the display fields carry the naira rendering so clients never
// do money math.
type PaymentResponse struct {
	ID              uint   `json:"id"`
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	InstallmentPlan string `json:"installment_plan"`

	TotalAmountKobo   int64  `json:"total_amount_kobo"`
	PaidAmountKobo    int64  `json:"paid_amount_kobo"`
	BalanceKobo       int64  `json:"balance_kobo"`
	TotalAmountNaira  string `json:"total_amount"`
	PaidAmountNaira   string `json:"paid_amount"`
	BalanceNaira      string `json:"balance"`
	FirstInstallment  string `json:"first_installment,omitempty"`
	SecondInstallment string `json:"second_installment,omitempty"`

	SecondInstallmentDueDate *time.Time `json:"second_installment_due_date,omitempty"`
	ExpiresAt                time.Time  `json:"expires_at"`
	ConfirmedAt              *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`

	CourseTitle string `json:"course_title,omitempty"`
	CohortName  string `json:"cohort_name,omitempty"`

	Transactions []TransactionResponse `json:"transactions,omitempty"`
	AuditLogs    []AuditLogResponse    `json:"audit_logs,omitempty"`
}

// TransactionResponse is a gateway interaction record.
type TransactionResponse struct {
	ID               uint      `json:"id"`
	Kind             string    `json:"kind"`
	Reference        string    `json:"reference"`
	GatewayReference *string   `json:"gateway_reference,omitempty"`
	AmountKobo       int64     `json:"amount_kobo"`
	Amount           string    `json:"amount"`
	GatewayStatus    string    `json:"gateway_status"`
	CreatedAt        time.Time `json:"created_at"`
}

// AuditLogResponse is one audit trail entry.
type AuditLogResponse struct {
	ID          uint                   `json:"id"`
	Action      string                 `json:"action"`
	Description string                 `json:"description"`
	ActorType   string                 `json:"actor_type"`
	ActorID     *uint                  `json:"actor_id,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// InitiateResponse carries the gateway handle alongside the payment.
type InitiateResponse struct {
	Payment          PaymentResponse `json:"payment"`
	AuthorizationURL string          `json:"authorization_url"`
	AccessCode       string          `json:"access_code"`
	Reference        string          `json:"reference"`
}

// ListResponse is a paginated payment collection.
type ListResponse struct {
	Data  []PaymentResponse `json:"data"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

// StatisticsResponse is the admin aggregates projection.
type StatisticsResponse struct {
	TotalRevenueKobo          int64                 `json:"total_revenue_kobo"`
	TotalRevenue              string                `json:"total_revenue"`
	PendingOutstandingKobo    int64                 `json:"pending_outstanding_kobo"`
	PendingOutstanding        string                `json:"pending_outstanding"`
	ProcessingOutstandingKobo int64                 `json:"processing_outstanding_kobo"`
	ProcessingOutstanding     string                `json:"processing_outstanding"`
	CountByStatus             map[string]int64      `json:"count_by_status"`
	RecentTransactions        []TransactionResponse `json:"recent_transactions"`
}

func toPaymentResponse(p *models.Payment, includeTrail bool) PaymentResponse {
	resp := PaymentResponse{
		ID:              p.ID,
		Reference:       p.Reference,
		Status:          string(p.Status),
		InstallmentPlan: string(p.InstallmentPlan),

		TotalAmountKobo:  int64(p.TotalAmountKobo),
		PaidAmountKobo:   int64(p.PaidAmountKobo),
		BalanceKobo:      int64(p.BalanceKobo),
		TotalAmountNaira: money.FormatNaira(p.TotalAmountKobo),
		PaidAmountNaira:  money.FormatNaira(p.PaidAmountKobo),
		BalanceNaira:     money.FormatNaira(p.BalanceKobo),

		SecondInstallmentDueDate: p.SecondInstallmentDueDate,
		ExpiresAt:                p.ExpiresAt,
		ConfirmedAt:              p.ConfirmedAt,
		CreatedAt:                p.CreatedAt,
	}
	if p.InstallmentPlan == models.PlanTwoInstallments {
		resp.FirstInstallment = money.FormatNaira(p.FirstInstallmentKobo)
		resp.SecondInstallment = money.FormatNaira(p.SecondInstallmentKobo)
	}
	if p.Course.ID != 0 {
		resp.CourseTitle = p.Course.Title
	}
	if p.Cohort.ID != 0 {
		resp.CohortName = p.Cohort.Name
	}
	if includeTrail {
		for _, txn := range p.Transactions {
			resp.Transactions = append(resp.Transactions, toTransactionResponse(txn))
		}
		for _, entry := range p.AuditLogs {
			resp.AuditLogs = append(resp.AuditLogs, AuditLogResponse{
				ID:          entry.ID,
				Action:      entry.Action,
				Description: entry.Description,
				ActorType:   string(entry.ActorType),
				ActorID:     entry.ActorID,
				Metadata:    entry.Metadata,
				CreatedAt:   entry.CreatedAt,
			})
		}
	}
	return resp
}

func toTransactionResponse(txn models.PaymentTransaction) TransactionResponse {
	return TransactionResponse{
		ID:               txn.ID,
		Kind:             string(txn.Kind),
		Reference:        txn.Reference,
		GatewayReference: txn.GatewayReference,
		AmountKobo:       int64(txn.AmountKobo),
		Amount:           money.FormatNaira(txn.AmountKobo),
		GatewayStatus:    txn.GatewayStatus,
		CreatedAt:        txn.CreatedAt,
	}
}
