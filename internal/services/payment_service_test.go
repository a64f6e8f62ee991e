package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cirvee_lms/internal/apperrors"
	"cirvee_lms/internal/models"
	"cirvee_lms/internal/money"
	"cirvee_lms/internal/repository"
)

type fakeGateway struct {
	authorized    []AuthorizeRequest
	authorizeErr  error
	verifications map[string]*GatewayVerification
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{verifications: make(map[string]*GatewayVerification)}
}

func (g *fakeGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*GatewayAuthorization, error) {
	if g.authorizeErr != nil {
		return nil, g.authorizeErr
	}
	g.authorized = append(g.authorized, req)
	return &GatewayAuthorization{
		AuthorizationURL: "https://checkout.paystack.com/" + req.Reference,
		AccessCode:       "ac_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (g *fakeGateway) Verify(ctx context.Context, reference string) (*GatewayVerification, error) {
	if v, ok := g.verifications[reference]; ok {
		return v, nil
	}
	return &GatewayVerification{Status: GatewayStatusPending}, nil
}

func (g *fakeGateway) confirm(reference, gatewayRef string, amount money.Kobo) {
	g.verifications[reference] = &GatewayVerification{
		Status:           GatewayStatusSuccess,
		AmountKobo:       amount,
		GatewayReference: gatewayRef,
	}
}

type fixture struct {
	svc     *PaymentService
	store   *repository.Memory
	gateway *fakeGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemory()
	store.AddCourse(models.Course{
		ID:            1,
		Title:         "Backend Engineering",
		DurationWeeks: 4,
		PriceKobo:     500000,
		IsPublished:   true,
	})
	store.AddCohort(models.Cohort{
		ID:        1,
		CourseID:  1,
		Name:      "Cohort 7",
		StartDate: time.Now().AddDate(0, 0, 7),
		Status:    models.CohortStatusUpcoming,
	})
	store.AddStudent(models.Student{
		ID:        1,
		UserID:    10,
		StudentID: "CRV/2026/0001",
		User:      models.User{ID: 10, Email: "ada@example.com", FirstName: "Ada"},
	})
	gateway := newFakeGateway()
	svc := NewPaymentService(store, store, gateway, store, 50)
	return &fixture{svc: svc, store: store, gateway: gateway}
}

func (f *fixture) initiate(t *testing.T, cmd InitiatePaymentCommand) *InitiatePaymentResult {
	t.Helper()
	result, err := f.svc.InitiatePayment(context.Background(), cmd)
	require.NoError(t, err)
	return result
}

func baseCommand() InitiatePaymentCommand {
	return InitiatePaymentCommand{
		StudentID:       1,
		UserID:          10,
		CohortID:        1,
		FullName:        "Ada Obi",
		Email:           "ada@example.com",
		InstallmentPlan: models.PlanFullPayment,
		AmountKobo:      500000,
	}
}

func TestInitiateFullPayment(t *testing.T) {
	f := newFixture(t)

	result := f.initiate(t, baseCommand())

	assert.Equal(t, models.PaymentStatusPending, result.Payment.Status)
	assert.Equal(t, money.Kobo(500000), result.Payment.BalanceKobo)
	assert.Equal(t, money.Kobo(0), result.Payment.PaidAmountKobo)
	assert.NotEmpty(t, result.Reference)
	assert.Equal(t, "https://checkout.paystack.com/"+result.Reference, result.AuthorizationURL)
	assert.False(t, result.Payment.ExpiresAt.Before(time.Now().Add(23*time.Hour)))

	require.Len(t, f.gateway.authorized, 1)
	assert.Equal(t, money.Kobo(500000), f.gateway.authorized[0].AmountKobo)

	entries := f.store.AuditEntries(result.Payment.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditPaymentInitiated, entries[0].Action)
	assert.Equal(t, models.ActorStudent, entries[0].ActorType)
}

func TestInitiateTwoInstallmentsSplitsAmount(t *testing.T) {
	f := newFixture(t)

	cmd := baseCommand()
	cmd.InstallmentPlan = models.PlanTwoInstallments
	result := f.initiate(t, cmd)

	assert.Equal(t, money.Kobo(250000), result.Payment.FirstInstallmentKobo)
	assert.Equal(t, money.Kobo(250000), result.Payment.SecondInstallmentKobo)
	require.NotNil(t, result.Payment.SecondInstallmentDueDate)

	// Only the first installment is charged up front.
	require.Len(t, f.gateway.authorized, 1)
	assert.Equal(t, money.Kobo(250000), f.gateway.authorized[0].AmountKobo)
}

func TestInitiateValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*InitiatePaymentCommand)
	}{
		{"missing cohort", func(c *InitiatePaymentCommand) { c.CohortID = 0 }},
		{"unknown cohort", func(c *InitiatePaymentCommand) { c.CohortID = 99 }},
		{"missing email", func(c *InitiatePaymentCommand) { c.Email = "" }},
		{"bad plan", func(c *InitiatePaymentCommand) { c.InstallmentPlan = "WEEKLY" }},
		{"zero amount", func(c *InitiatePaymentCommand) { c.AmountKobo = 0 }},
		{"negative amount", func(c *InitiatePaymentCommand) { c.AmountKobo = -100 }},
		{"amount below course price", func(c *InitiatePaymentCommand) { c.AmountKobo = 400000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := baseCommand()
			tt.mutate(&cmd)
			_, err := f.svc.InitiatePayment(context.Background(), cmd)
			require.Error(t, err)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
		})
	}
}

func TestInitiateIdempotencyKeyReturnsExisting(t *testing.T) {
	f := newFixture(t)

	cmd := baseCommand()
	cmd.IdempotencyKey = "order-42"
	first := f.initiate(t, cmd)

	second, err := f.svc.InitiatePayment(context.Background(), cmd)
	require.NoError(t, err)

	assert.True(t, second.Existing)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, first.Reference, second.Reference)
	assert.Equal(t, first.AuthorizationURL, second.AuthorizationURL)

	// No second payment and no second gateway charge.
	_, total, err := f.store.List(context.Background(), repository.ListPaymentsFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, f.gateway.authorized, 1)
}

func TestInitiateRejectsForeignIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	f.store.AddStudent(models.Student{
		ID:        2,
		UserID:    20,
		StudentID: "CRV/2026/0002",
		User:      models.User{ID: 20, Email: "chidi@example.com", FirstName: "Chidi"},
	})

	cmd := baseCommand()
	cmd.IdempotencyKey = "order-42"
	first := f.initiate(t, cmd)

	// Another student replaying the same key must not be handed the original
	// payment or its checkout URL.
	other := baseCommand()
	other.IdempotencyKey = "order-42"
	other.StudentID = 2
	other.UserID = 20
	other.FullName = "Chidi Eze"
	other.Email = "chidi@example.com"

	_, err := f.svc.InitiatePayment(context.Background(), other)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	reloaded, err := f.store.FindByID(context.Background(), first.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), reloaded.StudentID)
}

func TestInitiateDuplicateOpenPaymentConflicts(t *testing.T) {
	f := newFixture(t)

	f.initiate(t, baseCommand())

	cmd := baseCommand()
	cmd.IdempotencyKey = "different-key"
	_, err := f.svc.InitiatePayment(context.Background(), cmd)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestInitiateAfterExpiryReplacesStalePayment(t *testing.T) {
	f := newFixture(t)

	stale := &models.Payment{
		Reference:       "CRV-STALE",
		IdempotencyKey:  "stale-key",
		StudentID:       1,
		UserID:          10,
		CourseID:        1,
		CohortID:        1,
		TotalAmountKobo: 500000,
		BalanceKobo:     500000,
		InstallmentPlan: models.PlanFullPayment,
		Status:          models.PaymentStatusPending,
		ExpiresAt:       time.Now().Add(-time.Hour),
	}
	require.NoError(t, f.store.Create(context.Background(), stale, nil, nil))

	result := f.initiate(t, baseCommand())
	assert.Equal(t, models.PaymentStatusPending, result.Payment.Status)

	reloaded, err := f.store.FindByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, reloaded.Status)
	assert.Contains(t, auditActions(f.store, stale.ID), models.AuditPaymentFailed)
}

func TestVerifyFullPaymentCompletes(t *testing.T) {
	f := newFixture(t)

	result := f.initiate(t, baseCommand())
	f.gateway.confirm(result.Reference, "psk_1001", 500000)

	payment, err := f.svc.VerifyPayment(context.Background(), result.Reference)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, money.Kobo(0), payment.BalanceKobo)
	assert.Equal(t, money.Kobo(500000), payment.PaidAmountKobo)
	require.NotNil(t, payment.ConfirmedAt)

	enrollment, ok := f.store.EnrollmentFor(1, 1)
	require.True(t, ok)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)

	actions := auditActions(f.store, payment.ID)
	assert.Contains(t, actions, models.AuditPaymentVerified)
	assert.Contains(t, actions, models.AuditPaymentCompleted)
}

func TestVerifyIsIdempotentPerGatewayReference(t *testing.T) {
	f := newFixture(t)

	result := f.initiate(t, baseCommand())
	f.gateway.confirm(result.Reference, "psk_1001", 500000)

	first, err := f.svc.VerifyPayment(context.Background(), result.Reference)
	require.NoError(t, err)
	second, err := f.svc.VerifyPayment(context.Background(), result.Reference)
	require.NoError(t, err)

	assert.Equal(t, money.Kobo(500000), first.PaidAmountKobo)
	assert.Equal(t, money.Kobo(500000), second.PaidAmountKobo)
	assert.Equal(t, models.PaymentStatusCompleted, second.Status)

	reloaded, err := f.store.FindByID(context.Background(), result.Payment.ID)
	require.NoError(t, err)
	verifications := 0
	for _, txn := range reloaded.Transactions {
		if txn.Kind == models.TransactionKindVerification {
			verifications++
		}
	}
	assert.Equal(t, 1, verifications)
}

func TestVerifyPendingStatusIsNoop(t *testing.T) {
	f := newFixture(t)

	result := f.initiate(t, baseCommand())

	// Gateway has no confirmation yet.
	payment, err := f.svc.VerifyPayment(context.Background(), result.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Equal(t, money.Kobo(0), payment.PaidAmountKobo)
}

func TestVerifyUnknownReference(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.VerifyPayment(context.Background(), "CRV-DOESNOTEXIST")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestVerifyFailedChargeMarksFailed(t *testing.T) {
	f := newFixture(t)

	result := f.initiate(t, baseCommand())
	f.gateway.verifications[result.Reference] = &GatewayVerification{
		Status:           GatewayStatusFailed,
		GatewayReference: "psk_1002",
	}

	payment, err := f.svc.VerifyPayment(context.Background(), result.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
	assert.Contains(t, auditActions(f.store, payment.ID), models.AuditPaymentFailed)
}

func TestVerifySuccessAfterFailureDoesNotRevive(t *testing.T) {
	f := newFixture(t)

	result := f.initiate(t, baseCommand())
	f.gateway.verifications[result.Reference] = &GatewayVerification{
		Status:           GatewayStatusFailed,
		GatewayReference: "psk_1010",
	}

	payment, err := f.svc.VerifyPayment(context.Background(), result.Reference)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusFailed, payment.Status)

	// The gateway later reports the charge as successful; only an admin
	// override may move the payment out of FAILED.
	f.gateway.confirm(result.Reference, "psk_1010", 500000)
	payment, err = f.svc.VerifyPayment(context.Background(), result.Reference)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
	assert.Equal(t, money.Kobo(0), payment.PaidAmountKobo)
	assert.Equal(t, money.Kobo(500000), payment.BalanceKobo)

	reloaded, err := f.store.FindByID(context.Background(), payment.ID)
	require.NoError(t, err)
	for _, txn := range reloaded.Transactions {
		assert.NotEqual(t, models.TransactionKindVerification, txn.Kind)
	}
	_, enrolled := f.store.EnrollmentFor(1, 1)
	assert.False(t, enrolled)
}

func TestVerifyExpiredPaymentStaysFailedAlongsideReplacement(t *testing.T) {
	f := newFixture(t)

	stale := &models.Payment{
		Reference:       "CRV-STALE",
		IdempotencyKey:  "stale-key",
		StudentID:       1,
		UserID:          10,
		CourseID:        1,
		CohortID:        1,
		TotalAmountKobo: 500000,
		BalanceKobo:     500000,
		InstallmentPlan: models.PlanFullPayment,
		Status:          models.PaymentStatusPending,
		ExpiresAt:       time.Now().Add(-time.Hour),
	}
	require.NoError(t, f.store.Create(context.Background(), stale, nil, nil))

	// Re-initiation fails the stale payment out and opens a fresh one.
	replacement := f.initiate(t, baseCommand())

	// A late checkout completion against the stale reference must not fund
	// the enrollment twice.
	f.gateway.confirm("CRV-STALE", "psk_1011", 500000)
	payment, err := f.svc.VerifyPayment(context.Background(), "CRV-STALE")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
	assert.Equal(t, money.Kobo(0), payment.PaidAmountKobo)

	open, err := f.store.FindByID(context.Background(), replacement.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, open.Status)
}

func TestVerifyAmountMismatchIsFlaggedNotRejected(t *testing.T) {
	f := newFixture(t)

	result := f.initiate(t, baseCommand())
	f.gateway.confirm(result.Reference, "psk_1003", 300000)

	payment, err := f.svc.VerifyPayment(context.Background(), result.Reference)
	require.NoError(t, err)

	assert.Equal(t, money.Kobo(300000), payment.PaidAmountKobo)
	assert.Equal(t, money.Kobo(200000), payment.BalanceKobo)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Contains(t, auditActions(f.store, payment.ID), models.AuditAmountMismatch)
}

func TestVerifyCreditCappedAtBalance(t *testing.T) {
	f := newFixture(t)

	result := f.initiate(t, baseCommand())
	f.gateway.confirm(result.Reference, "psk_1004", 600000)

	payment, err := f.svc.VerifyPayment(context.Background(), result.Reference)
	require.NoError(t, err)

	// Over-confirmation never pushes the balance negative.
	assert.Equal(t, money.Kobo(500000), payment.PaidAmountKobo)
	assert.Equal(t, money.Kobo(0), payment.BalanceKobo)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	assert.Contains(t, auditActions(f.store, payment.ID), models.AuditAmountMismatch)
}

func TestTwoInstallmentFlow(t *testing.T) {
	f := newFixture(t)

	cmd := baseCommand()
	cmd.InstallmentPlan = models.PlanTwoInstallments
	result := f.initiate(t, cmd)

	// First installment clears.
	f.gateway.confirm(result.Reference, "psk_2001", 250000)
	payment, err := f.svc.VerifyPayment(context.Background(), result.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusProcessing, payment.Status)
	assert.Equal(t, money.Kobo(250000), payment.BalanceKobo)

	// A cleared first installment already activates the enrollment.
	enrollment, ok := f.store.EnrollmentFor(1, 1)
	require.True(t, ok)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)

	// Second installment gets its own charge reference.
	second, err := f.svc.InitiateSecondInstallment(context.Background(), payment.ID, 10)
	require.NoError(t, err)
	assert.NotEqual(t, result.Reference, second.Reference)
	assert.Contains(t, auditActions(f.store, payment.ID), models.AuditSecondInstallmentInitiated)

	f.gateway.confirm(second.Reference, "psk_2002", 250000)
	payment, err = f.svc.VerifyPayment(context.Background(), second.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, money.Kobo(0), payment.BalanceKobo)
	require.NotNil(t, payment.ConfirmedAt)
}

func TestSecondInstallmentGuards(t *testing.T) {
	f := newFixture(t)

	cmd := baseCommand()
	cmd.InstallmentPlan = models.PlanTwoInstallments
	result := f.initiate(t, cmd)

	t.Run("not owner", func(t *testing.T) {
		_, err := f.svc.InitiateSecondInstallment(context.Background(), result.Payment.ID, 99)
		require.Error(t, err)
		assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))
	})

	t.Run("first installment not cleared", func(t *testing.T) {
		_, err := f.svc.InitiateSecondInstallment(context.Background(), result.Payment.ID, 10)
		require.Error(t, err)
		assert.Equal(t, apperrors.KindState, apperrors.KindOf(err))
	})

	t.Run("unknown payment", func(t *testing.T) {
		_, err := f.svc.InitiateSecondInstallment(context.Background(), 999, 10)
		require.Error(t, err)
		assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	})
}

func TestSecondInstallmentRejectedOnFullPaymentPlan(t *testing.T) {
	f := newFixture(t)

	result := f.initiate(t, baseCommand())

	_, err := f.svc.InitiateSecondInstallment(context.Background(), result.Payment.ID, 10)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindState, apperrors.KindOf(err))
}

func TestGetPaymentDetailsOwnership(t *testing.T) {
	f := newFixture(t)

	result := f.initiate(t, baseCommand())

	_, err := f.svc.GetPaymentDetails(context.Background(), result.Payment.ID, 99, false)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	// Admins can read anyone's payment.
	payment, err := f.svc.GetPaymentDetails(context.Background(), result.Payment.ID, 99, true)
	require.NoError(t, err)
	assert.Equal(t, result.Payment.ID, payment.ID)

	// Owners can read their own.
	payment, err = f.svc.GetPaymentDetails(context.Background(), result.Payment.ID, 10, false)
	require.NoError(t, err)
	assert.Equal(t, result.Payment.ID, payment.ID)
}

func TestListPaymentsScopesNonAdminToOwnRecords(t *testing.T) {
	f := newFixture(t)
	f.initiate(t, baseCommand())

	// Caller claims another student's id through the filter; the service
	// overrides it with the caller's own.
	other := uint(2)
	items, total, err := f.svc.ListPayments(context.Background(), repository.ListPaymentsFilter{StudentID: &other}, Caller{
		UserID:    10,
		StudentID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, uint(1), items[0].StudentID)
}

func TestAdminOverrideWritesAuditAndActivates(t *testing.T) {
	f := newFixture(t)

	result := f.initiate(t, baseCommand())
	adminID := uint(77)

	payment, err := f.svc.UpdatePaymentStatus(context.Background(), result.Payment.ID, adminID, models.PaymentStatusCompleted, "confirmed via bank statement")
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	require.NotNil(t, payment.ConfirmedAt)

	enrollment, ok := f.store.EnrollmentFor(1, 1)
	require.True(t, ok)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)

	entries := f.store.AuditEntries(payment.ID)
	var override *models.PaymentAuditLog
	for i := range entries {
		if entries[i].Action == models.AuditStatusOverride {
			override = &entries[i]
		}
	}
	require.NotNil(t, override)
	assert.Equal(t, models.ActorAdmin, override.ActorType)
	require.NotNil(t, override.ActorID)
	assert.Equal(t, adminID, *override.ActorID)
	assert.Equal(t, "confirmed via bank statement", override.Description)
}

func TestAdminOverrideRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	result := f.initiate(t, baseCommand())

	_, err := f.svc.UpdatePaymentStatus(context.Background(), result.Payment.ID, 77, "REFUNDED_MAYBE", "typo")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestStatistics(t *testing.T) {
	f := newFixture(t)
	f.store.AddStudent(models.Student{
		ID:        2,
		UserID:    20,
		StudentID: "CRV/2026/0002",
		User:      models.User{ID: 20, Email: "emeka@example.com", FirstName: "Emeka"},
	})

	// One completed payment.
	first := f.initiate(t, baseCommand())
	f.gateway.confirm(first.Reference, "psk_3001", 500000)
	_, err := f.svc.VerifyPayment(context.Background(), first.Reference)
	require.NoError(t, err)

	// One processing two-installment payment for another student.
	cmd := baseCommand()
	cmd.StudentID = 2
	cmd.UserID = 20
	cmd.Email = "emeka@example.com"
	cmd.InstallmentPlan = models.PlanTwoInstallments
	second := f.initiate(t, cmd)
	f.gateway.confirm(second.Reference, "psk_3002", 250000)
	_, err = f.svc.VerifyPayment(context.Background(), second.Reference)
	require.NoError(t, err)

	stats, err := f.svc.GetPaymentStatistics(context.Background(), repository.StatsFilter{})
	require.NoError(t, err)

	assert.Equal(t, money.Kobo(500000), stats.TotalRevenueKobo)
	assert.Equal(t, money.Kobo(250000), stats.ProcessingOutstandingKobo)
	assert.Equal(t, int64(1), stats.CountByStatus[models.PaymentStatusCompleted])
	assert.Equal(t, int64(1), stats.CountByStatus[models.PaymentStatusProcessing])
	assert.NotEmpty(t, stats.RecentTransactions)
}

func auditActions(store *repository.Memory, paymentID uint) []string {
	var actions []string
	for _, entry := range store.AuditEntries(paymentID) {
		actions = append(actions, entry.Action)
	}
	return actions
}
