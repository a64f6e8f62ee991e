package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"cirvee_lms/internal/apperrors"
	"cirvee_lms/internal/models"
	"cirvee_lms/internal/money"
	"cirvee_lms/internal/repository"
)

// paymentExpiry bounds how long an initiated, unpaid charge blocks the
// student+cohort pair before re-initiation is allowed.
const paymentExpiry = 24 * time.Hour

// creditRetries bounds the reload-and-retry loop when concurrent verifications
// race on the optimistic version token.
const creditRetries = 3

// PaymentService orchestrates payment initiation, gateway reconciliation,
// installment continuation, admin overrides and read paths. All state
// transitions flow through here.
type PaymentService struct {
	repo           repository.PaymentRepository
	catalog        repository.CatalogRepository
	gateway        PaymentGateway
	enrollments    EnrollmentActivator
	installmentPct int
}

func NewPaymentService(
	repo repository.PaymentRepository,
	catalog repository.CatalogRepository,
	gateway PaymentGateway,
	enrollments EnrollmentActivator,
	installmentPct int,
) *PaymentService {
	if installmentPct <= 0 || installmentPct >= 100 {
		installmentPct = 50
	}
	return &PaymentService{
		repo:           repo,
		catalog:        catalog,
		gateway:        gateway,
		enrollments:    enrollments,
		installmentPct: installmentPct,
	}
}

// InitiatePaymentCommand is the validated input for InitiatePayment,
// constructed once at the service boundary.
type InitiatePaymentCommand struct {
	StudentID       uint
	UserID          uint
	CohortID        uint
	FullName        string
	Email           string
	PhoneNumber     string
	InstallmentPlan models.InstallmentPlan
	AmountKobo      money.Kobo
	IdempotencyKey  string
	Metadata        map[string]interface{}
	ClientIP        string
}

// InitiatePaymentResult carries the persisted payment and the gateway's
// authorization handle for the charge the student still has to complete.
type InitiatePaymentResult struct {
	Payment          *models.Payment
	AuthorizationURL string
	AccessCode       string
	Reference        string
	Existing         bool
}

func (c InitiatePaymentCommand) validate() error {
	if c.StudentID == 0 || c.UserID == 0 {
		return apperrors.Validation("student identity is required")
	}
	if c.CohortID == 0 {
		return apperrors.Validation("cohortId is required")
	}
	if strings.TrimSpace(c.Email) == "" {
		return apperrors.Validation("email is required")
	}
	if !c.InstallmentPlan.IsValid() {
		return apperrors.Validation("installmentPlan must be FULL_PAYMENT or TWO_INSTALLMENTS")
	}
	if c.AmountKobo <= 0 {
		return apperrors.Validation("amount must be a positive kobo value")
	}
	return nil
}

// InitiatePayment creates a PENDING payment with a fresh reference, computes
// the installment breakdown, opens the charge with the gateway and persists
// payment + initiation transaction atomically. A repeated call with the same
// idempotency key returns the original payment without creating a second one.
func (s *PaymentService) InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (*InitiatePaymentResult, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	cohort, err := s.catalog.FindCohort(ctx, cmd.CohortID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Validation("cohort %d does not exist", cmd.CohortID)
		}
		return nil, fmt.Errorf("lookup cohort: %w", err)
	}
	if cohort.Course.ID == 0 {
		return nil, apperrors.Validation("cohort %d has no course attached", cmd.CohortID)
	}
	if cmd.AmountKobo != cohort.Course.PriceKobo {
		return nil, apperrors.Validation("amount does not match course price of %s", money.FormatNaira(cohort.Course.PriceKobo))
	}

	idempotencyKey := cmd.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	} else {
		existing, err := s.repo.FindByIdempotencyKey(ctx, idempotencyKey)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
		if existing != nil {
			// Keys are client-supplied; a replay only ever hands back the
			// caller's own payment.
			if existing.StudentID != cmd.StudentID {
				return nil, apperrors.Conflict("idempotency key is already in use")
			}
			return s.replayInitiation(ctx, existing.ID)
		}
	}

	if _, err := s.repo.FindOpenByStudentCohort(ctx, cmd.StudentID, cmd.CohortID); err == nil {
		return nil, apperrors.Conflict("an active payment already exists for this cohort")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}

	// An abandoned initiation past its expiry must not block a fresh attempt;
	// fail it out so the open-payment uniqueness frees up.
	if err := s.repo.ExpireStalePending(ctx, cmd.StudentID, cmd.CohortID); err != nil {
		return nil, fmt.Errorf("expire stale payments: %w", err)
	}

	reference := newReference()

	payment := &models.Payment{
		Reference:       reference,
		IdempotencyKey:  idempotencyKey,
		StudentID:       cmd.StudentID,
		UserID:          cmd.UserID,
		CourseID:        cohort.CourseID,
		CohortID:        cohort.ID,
		TotalAmountKobo: cmd.AmountKobo,
		PaidAmountKobo:  0,
		BalanceKobo:     cmd.AmountKobo,
		InstallmentPlan: cmd.InstallmentPlan,
		Status:          models.PaymentStatusPending,
		ExpiresAt:       time.Now().Add(paymentExpiry),
		Version:         1,
	}

	chargeAmount := cmd.AmountKobo
	if cmd.InstallmentPlan == models.PlanTwoInstallments {
		first, second := money.SplitInstallments(cmd.AmountKobo, s.installmentPct)
		payment.FirstInstallmentKobo = first
		payment.SecondInstallmentKobo = second
		dueDate := secondInstallmentDueDate(cohort)
		payment.SecondInstallmentDueDate = &dueDate
		chargeAmount = first
	}

	metadata := map[string]interface{}{
		"student_id": cmd.StudentID,
		"cohort_id":  cohort.ID,
		"full_name":  cmd.FullName,
		"client_ip":  cmd.ClientIP,
	}
	for k, v := range cmd.Metadata {
		metadata[k] = v
	}

	auth, err := s.gateway.Authorize(ctx, AuthorizeRequest{
		AmountKobo: chargeAmount,
		Email:      cmd.Email,
		Reference:  reference,
		Metadata:   metadata,
	})
	if err != nil {
		return nil, err
	}

	txnMeta, _ := json.Marshal(map[string]string{
		"authorization_url": auth.AuthorizationURL,
		"access_code":       auth.AccessCode,
	})
	txn := &models.PaymentTransaction{
		Kind:          models.TransactionKindInitiation,
		Reference:     reference,
		AmountKobo:    chargeAmount,
		GatewayStatus: "initialized",
		Metadata:      txnMeta,
	}
	audit := &models.PaymentAuditLog{
		Action:      models.AuditPaymentInitiated,
		Description: fmt.Sprintf("Payment initiated for %s (%s plan)", money.FormatNaira(cmd.AmountKobo), cmd.InstallmentPlan),
		ActorType:   models.ActorStudent,
		ActorID:     &cmd.UserID,
		Metadata: map[string]interface{}{
			"reference": reference,
			"amount":    int64(cmd.AmountKobo),
			"client_ip": cmd.ClientIP,
		},
	}

	if err := s.repo.Create(ctx, payment, txn, audit); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("an active payment already exists for this cohort")
		}
		return nil, fmt.Errorf("persist payment: %w", err)
	}

	log.Printf("Payment initiated: reference=%s student=%d amount=%d", reference, cmd.StudentID, chargeAmount)

	return &InitiatePaymentResult{
		Payment:          payment,
		AuthorizationURL: auth.AuthorizationURL,
		AccessCode:       auth.AccessCode,
		Reference:        reference,
	}, nil
}

// replayInitiation reconstructs the original initiation result for an
// idempotent re-submission.
func (s *PaymentService) replayInitiation(ctx context.Context, paymentID uint) (*InitiatePaymentResult, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("reload payment: %w", err)
	}

	result := &InitiatePaymentResult{
		Payment:   payment,
		Reference: payment.Reference,
		Existing:  true,
	}
	for _, txn := range payment.Transactions {
		if txn.Kind == models.TransactionKindInitiation && txn.Reference == payment.Reference && txn.Metadata != nil {
			var meta map[string]string
			if err := json.Unmarshal(txn.Metadata, &meta); err == nil {
				result.AuthorizationURL = meta["authorization_url"]
				result.AccessCode = meta["access_code"]
			}
			break
		}
	}
	return result, nil
}

// VerifyPayment reconciles a charge reference against the gateway's ledger.
// Safe to call any number of times: webhook retries, user-triggered
// re-verification and polling all converge on the same state, and a confirmed
// charge is credited exactly once per gateway reference.
func (s *PaymentService) VerifyPayment(ctx context.Context, reference string) (*models.Payment, error) {
	payment, err := s.findByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	// Terminal states never move on the automated path. COMPLETED has nothing
	// to apply; FAILED can only be revived by an admin override, so a late
	// confirmation for a failed-out payment is not credited here.
	if payment.Status.IsTerminal() {
		return payment, nil
	}

	verification, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}

	switch verification.Status {
	case GatewayStatusSuccess:
		return s.creditConfirmed(ctx, reference, verification)
	case GatewayStatusFailed:
		return s.markFailed(ctx, payment, verification)
	default:
		// Abandoned or still pending at the gateway: no transition.
		return payment, nil
	}
}

func (s *PaymentService) findByReference(ctx context.Context, reference string) (*models.Payment, error) {
	payment, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("no payment found for reference %s", reference)
		}
		return nil, fmt.Errorf("lookup payment: %w", err)
	}
	return payment, nil
}

// creditConfirmed applies a gateway-confirmed amount exactly once. The insert
// of the verification transaction (unique gateway reference) and the versioned
// payment update happen in one store-level transaction; races converge by
// reloading.
func (s *PaymentService) creditConfirmed(ctx context.Context, reference string, verification *GatewayVerification) (*models.Payment, error) {
	for attempt := 0; attempt < creditRetries; attempt++ {
		payment, err := s.findByReference(ctx, reference)
		if err != nil {
			return nil, err
		}
		// Re-check after reload: a concurrent verification may have completed
		// the payment, or a concurrent expiry may have failed it out.
		if payment.Status.IsTerminal() {
			return payment, nil
		}
		for _, txn := range payment.Transactions {
			if txn.GatewayReference != nil && *txn.GatewayReference == verification.GatewayReference {
				// Already credited; duplicate webhook or poll.
				return payment, nil
			}
		}

		credit := verification.AmountKobo
		expected := s.expectedChargeAmount(payment)
		mismatch := credit != expected
		if credit > payment.BalanceKobo {
			credit = payment.BalanceKobo
		}

		payment.PaidAmountKobo += credit
		payment.BalanceKobo = payment.TotalAmountKobo - payment.PaidAmountKobo

		var audits []models.PaymentAuditLog
		audits = append(audits, models.PaymentAuditLog{
			Action:      models.AuditPaymentVerified,
			Description: fmt.Sprintf("Gateway confirmed %s for reference %s", money.FormatNaira(verification.AmountKobo), reference),
			ActorType:   models.ActorSystem,
			Metadata: map[string]interface{}{
				"gateway_reference": verification.GatewayReference,
				"amount":            int64(verification.AmountKobo),
				"credited":          int64(credit),
			},
		})
		if mismatch {
			audits = append(audits, models.PaymentAuditLog{
				Action:      models.AuditAmountMismatch,
				Description: fmt.Sprintf("Confirmed amount %s does not match an expected installment boundary", money.FormatNaira(verification.AmountKobo)),
				ActorType:   models.ActorSystem,
				Metadata: map[string]interface{}{
					"gateway_reference": verification.GatewayReference,
					"confirmed":         int64(verification.AmountKobo),
					"expected":          int64(expected),
				},
			})
		}

		completed := payment.BalanceKobo == 0
		firstCleared := false
		if completed {
			now := time.Now()
			payment.Status = models.PaymentStatusCompleted
			payment.ConfirmedAt = &now
			audits = append(audits, models.PaymentAuditLog{
				Action:      models.AuditPaymentCompleted,
				Description: "Payment completed in full",
				ActorType:   models.ActorSystem,
			})
		} else if payment.InstallmentPlan == models.PlanTwoInstallments && payment.Status == models.PaymentStatusPending {
			payment.Status = models.PaymentStatusProcessing
			firstCleared = true
		}

		gwRef := verification.GatewayReference
		txn := &models.PaymentTransaction{
			Kind:             models.TransactionKindVerification,
			Reference:        reference,
			GatewayReference: &gwRef,
			AmountKobo:       verification.AmountKobo,
			GatewayStatus:    verification.Status,
		}

		err = s.repo.CreditPayment(ctx, payment, txn, audits)
		if errors.Is(err, repository.ErrDuplicateTransaction) {
			// A concurrent verification won the race; converge on its result.
			return s.findByReference(ctx, reference)
		}
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("credit payment: %w", err)
		}

		// Activation is an idempotent upsert; a cleared first installment
		// already entitles the student to the cohort.
		if completed || firstCleared {
			if err := s.enrollments.Activate(ctx, payment.StudentID, payment.CourseID, payment.CohortID); err != nil {
				log.Printf("Enrollment activation failed for payment %d: %v", payment.ID, err)
			}
		}
		log.Printf("Payment %s verified: status=%s balance=%d", payment.Reference, payment.Status, payment.BalanceKobo)
		return payment, nil
	}
	return nil, apperrors.Conflict("payment is being updated concurrently, retry verification")
}

// expectedChargeAmount is the amount the gateway should be confirming given
// the payment's current position in its plan.
func (s *PaymentService) expectedChargeAmount(payment *models.Payment) money.Kobo {
	if payment.InstallmentPlan == models.PlanTwoInstallments {
		if payment.PaidAmountKobo == 0 {
			return payment.FirstInstallmentKobo
		}
		return payment.SecondInstallmentKobo
	}
	return payment.BalanceKobo
}

func (s *PaymentService) markFailed(ctx context.Context, payment *models.Payment, verification *GatewayVerification) (*models.Payment, error) {
	if payment.Status == models.PaymentStatusFailed {
		return payment, nil
	}

	payment.Status = models.PaymentStatusFailed
	audit := models.PaymentAuditLog{
		Action:      models.AuditPaymentFailed,
		Description: fmt.Sprintf("Gateway reported charge as %s", verification.Status),
		ActorType:   models.ActorSystem,
		Metadata: map[string]interface{}{
			"gateway_reference": verification.GatewayReference,
			"gateway_status":    verification.Status,
		},
	}
	if err := s.repo.UpdateWithVersion(ctx, payment, audit); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return s.repo.FindByID(ctx, payment.ID)
		}
		return nil, fmt.Errorf("mark payment failed: %w", err)
	}
	return payment, nil
}

// SecondInstallmentResult is the gateway handle for the continuation charge.
type SecondInstallmentResult struct {
	Payment          *models.Payment
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// InitiateSecondInstallment opens a new gateway charge for the outstanding
// second installment. Only valid on a PROCESSING two-installment payment
// owned by the caller.
func (s *PaymentService) InitiateSecondInstallment(ctx context.Context, paymentID, userID uint) (*SecondInstallmentResult, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("payment %d not found", paymentID)
		}
		return nil, fmt.Errorf("lookup payment: %w", err)
	}

	if !payment.OwnedBy(userID) {
		return nil, apperrors.Forbidden("payment does not belong to this user")
	}
	if payment.InstallmentPlan != models.PlanTwoInstallments {
		return nil, apperrors.InvalidState("payment is not on a two-installment plan")
	}
	if payment.Status != models.PaymentStatusProcessing {
		return nil, apperrors.InvalidState("second installment requires the first installment to be confirmed")
	}

	reference := newReference()
	auth, err := s.gateway.Authorize(ctx, AuthorizeRequest{
		AmountKobo: payment.SecondInstallmentKobo,
		Email:      payment.Student.User.Email,
		Reference:  reference,
		Metadata: map[string]interface{}{
			"payment_id":  payment.ID,
			"installment": 2,
		},
	})
	if err != nil {
		return nil, err
	}

	txnMeta, _ := json.Marshal(map[string]string{
		"authorization_url": auth.AuthorizationURL,
		"access_code":       auth.AccessCode,
	})
	txn := &models.PaymentTransaction{
		PaymentID:     payment.ID,
		Kind:          models.TransactionKindInitiation,
		Reference:     reference,
		AmountKobo:    payment.SecondInstallmentKobo,
		GatewayStatus: "initialized",
		Metadata:      txnMeta,
	}
	if err := s.repo.RecordTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("record second installment transaction: %w", err)
	}

	audit := &models.PaymentAuditLog{
		PaymentID:   payment.ID,
		Action:      models.AuditSecondInstallmentInitiated,
		Description: fmt.Sprintf("Second installment of %s initiated", money.FormatNaira(payment.SecondInstallmentKobo)),
		ActorType:   models.ActorStudent,
		ActorID:     &userID,
		Metadata:    map[string]interface{}{"reference": reference},
	}
	if err := s.repo.AppendAudit(ctx, audit); err != nil {
		return nil, fmt.Errorf("append audit: %w", err)
	}

	log.Printf("Second installment initiated: payment=%d reference=%s", payment.ID, reference)

	return &SecondInstallmentResult{
		Payment:          payment,
		AuthorizationURL: auth.AuthorizationURL,
		AccessCode:       auth.AccessCode,
		Reference:        reference,
	}, nil
}

// Caller identifies who is asking on a read path. Non-admin callers are always
// constrained to their own records by the service, never by the handler.
type Caller struct {
	UserID    uint
	StudentID uint
	IsAdmin   bool
}

// ListPayments returns a paginated, filtered projection.
func (s *PaymentService) ListPayments(ctx context.Context, filter repository.ListPaymentsFilter, caller Caller) ([]models.Payment, int64, error) {
	if !caller.IsAdmin {
		studentID := caller.StudentID
		filter.StudentID = &studentID
	}
	return s.repo.List(ctx, filter)
}

// GetPaymentDetails returns one payment with its transactions and audit trail.
func (s *PaymentService) GetPaymentDetails(ctx context.Context, id, userID uint, isAdmin bool) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("payment %d not found", id)
		}
		return nil, fmt.Errorf("lookup payment: %w", err)
	}
	if !isAdmin && !payment.OwnedBy(userID) {
		return nil, apperrors.Forbidden("payment does not belong to this user")
	}
	return payment, nil
}

// UpdatePaymentStatus is the administrative override. Any transition is
// permitted, every invocation leaves an ADMIN audit entry, and moving to
// COMPLETED triggers enrollment activation exactly as the automatic path does.
func (s *PaymentService) UpdatePaymentStatus(ctx context.Context, id, adminID uint, newStatus models.PaymentStatus, notes string) (*models.Payment, error) {
	if !newStatus.IsValid() {
		return nil, apperrors.Validation("unknown payment status %q", newStatus)
	}

	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("payment %d not found", id)
		}
		return nil, fmt.Errorf("lookup payment: %w", err)
	}

	from := payment.Status
	payment.Status = newStatus
	if newStatus == models.PaymentStatusCompleted && payment.ConfirmedAt == nil {
		now := time.Now()
		payment.ConfirmedAt = &now
	}

	audit := models.PaymentAuditLog{
		Action:      models.AuditStatusOverride,
		Description: notes,
		ActorType:   models.ActorAdmin,
		ActorID:     &adminID,
		Metadata: map[string]interface{}{
			"from":             string(from),
			"to":               string(newStatus),
			"outstanding_kobo": int64(payment.BalanceKobo),
		},
	}
	if err := s.repo.UpdateWithVersion(ctx, payment, audit); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, apperrors.Conflict("payment was modified concurrently, retry")
		}
		return nil, fmt.Errorf("override payment status: %w", err)
	}

	if newStatus == models.PaymentStatusCompleted {
		if err := s.enrollments.Activate(ctx, payment.StudentID, payment.CourseID, payment.CohortID); err != nil {
			log.Printf("Enrollment activation failed for payment %d: %v", payment.ID, err)
		}
	}

	log.Printf("Payment %d status overridden by admin %d: %s -> %s", payment.ID, adminID, from, newStatus)
	return payment, nil
}

// GetPaymentStatistics returns read-only aggregates; no mutation.
func (s *PaymentService) GetPaymentStatistics(ctx context.Context, filter repository.StatsFilter) (*repository.PaymentStatistics, error) {
	return s.repo.Statistics(ctx, filter)
}

func newReference() string {
	return "CRV-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:20])
}

func secondInstallmentDueDate(cohort *models.Cohort) time.Time {
	// Mid-course: half the course duration past the cohort start.
	days := cohort.Course.DurationWeeks * 7 / 2
	return cohort.StartDate.AddDate(0, 0, days)
}
