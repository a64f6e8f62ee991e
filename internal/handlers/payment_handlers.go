package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"cirvee_lms/internal/apperrors"
	"cirvee_lms/internal/middleware"
	"cirvee_lms/internal/models"
	"cirvee_lms/internal/money"
	"cirvee_lms/internal/repository"
	"cirvee_lms/internal/services"
)

// PaymentHandler serves the student-facing payment endpoints.
type PaymentHandler struct {
	payments *services.PaymentService
	catalog  repository.CatalogRepository
}

func NewPaymentHandler(payments *services.PaymentService, catalog repository.CatalogRepository) *PaymentHandler {
	return &PaymentHandler{payments: payments, catalog: catalog}
}

// Register mounts the student routes on an authenticated group.
func (h *PaymentHandler) Register(g *echo.Group) {
	g.POST("/payments/initiate", h.InitiatePayment)
	g.GET("/payments/verify/:reference", h.VerifyPayment)
	g.POST("/payments/:id/second-installment", h.InitiateSecondInstallment)
	g.GET("/payments", h.ListPayments)
	g.GET("/payments/:id", h.GetPaymentDetails)
}

// InitiatePayment opens a new payment for the caller's student record.
func (h *PaymentHandler) InitiatePayment(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req InitiatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("invalid request body")
	}

	student, err := h.studentFor(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}

	result, err := h.payments.InitiatePayment(c.Request().Context(), services.InitiatePaymentCommand{
		StudentID:       student.ID,
		UserID:          user.ID,
		CohortID:        req.CohortID,
		FullName:        user.FirstName + " " + user.LastName,
		Email:           user.Email,
		PhoneNumber:     req.PhoneNumber,
		InstallmentPlan: models.InstallmentPlan(req.InstallmentPlan),
		AmountKobo:      money.Kobo(req.AmountKobo),
		IdempotencyKey:  req.IdempotencyKey,
		Metadata:        req.Metadata,
		ClientIP:        c.RealIP(),
	})
	if err != nil {
		return err
	}

	status := http.StatusCreated
	if result.Existing {
		status = http.StatusOK
	}
	return c.JSON(status, InitiateResponse{
		Payment:          toPaymentResponse(result.Payment, false),
		AuthorizationURL: result.AuthorizationURL,
		AccessCode:       result.AccessCode,
		Reference:        result.Reference,
	})
}

// VerifyPayment reconciles a charge reference with the gateway. Idempotent;
// students poll this after returning from checkout.
func (h *PaymentHandler) VerifyPayment(c echo.Context) error {
	reference := c.Param("reference")
	if reference == "" {
		return apperrors.Validation("reference is required")
	}

	payment, err := h.payments.VerifyPayment(c.Request().Context(), reference)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPaymentResponse(payment, false))
}

// InitiateSecondInstallment opens the continuation charge for a two-installment
// payment owned by the caller.
func (h *PaymentHandler) InitiateSecondInstallment(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	id, err := paymentID(c)
	if err != nil {
		return err
	}

	result, err := h.payments.InitiateSecondInstallment(c.Request().Context(), id, user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, InitiateResponse{
		Payment:          toPaymentResponse(result.Payment, false),
		AuthorizationURL: result.AuthorizationURL,
		AccessCode:       result.AccessCode,
		Reference:        result.Reference,
	})
}

// ListPayments returns the caller's own payments, paginated.
func (h *PaymentHandler) ListPayments(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	student, err := h.studentFor(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}

	filter := listFilterFromQuery(c)
	items, total, err := h.payments.ListPayments(c.Request().Context(), filter, services.Caller{
		UserID:    user.ID,
		StudentID: student.ID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, buildListResponse(items, total, filter, false))
}

// GetPaymentDetails returns one payment with its transactions and audit trail.
func (h *PaymentHandler) GetPaymentDetails(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	id, err := paymentID(c)
	if err != nil {
		return err
	}

	payment, err := h.payments.GetPaymentDetails(c.Request().Context(), id, user.ID, user.IsAdmin())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPaymentResponse(payment, true))
}

func (h *PaymentHandler) studentFor(ctx context.Context, userID uint) (*models.Student, error) {
	student, err := h.catalog.FindStudentByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Forbidden("no student profile for this account")
		}
		return nil, err
	}
	return student, nil
}

func paymentID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, apperrors.Validation("invalid payment id")
	}
	return uint(id), nil
}

func listFilterFromQuery(c echo.Context) repository.ListPaymentsFilter {
	filter := repository.ListPaymentsFilter{Page: 1, Limit: 20}
	if page, err := strconv.Atoi(c.QueryParam("page")); err == nil && page > 0 {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.QueryParam("limit")); err == nil && limit > 0 && limit <= 100 {
		filter.Limit = limit
	}
	if status := c.QueryParam("status"); status != "" {
		s := models.PaymentStatus(status)
		filter.Status = &s
	}
	if cohort, err := strconv.ParseUint(c.QueryParam("cohort_id"), 10, 32); err == nil && cohort > 0 {
		id := uint(cohort)
		filter.CohortID = &id
	}
	return filter
}

func buildListResponse(items []models.Payment, total int64, filter repository.ListPaymentsFilter, includeTrail bool) ListResponse {
	resp := ListResponse{
		Data:  make([]PaymentResponse, 0, len(items)),
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}
	for i := range items {
		resp.Data = append(resp.Data, toPaymentResponse(&items[i], includeTrail))
	}
	return resp
}
