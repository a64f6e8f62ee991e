package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"cirvee_lms/internal/apperrors"
	"cirvee_lms/internal/middleware"
	"cirvee_lms/internal/models"
	"cirvee_lms/internal/money"
	"cirvee_lms/internal/repository"
	"cirvee_lms/internal/services"
)

// AdminPaymentHandler serves the admin payment endpoints: unscoped listing,
// status override and aggregates.
type AdminPaymentHandler struct {
	payments *services.PaymentService
}

func NewAdminPaymentHandler(payments *services.PaymentService) *AdminPaymentHandler {
	return &AdminPaymentHandler{payments: payments}
}

// Register mounts the admin routes on a group already gated by RequireAdmin.
func (h *AdminPaymentHandler) Register(g *echo.Group) {
	g.GET("/payments", h.ListPayments)
	g.GET("/payments/statistics", h.GetStatistics)
	g.GET("/payments/:id", h.GetPaymentDetails)
	g.PATCH("/payments/:id/status", h.UpdatePaymentStatus)
}

// ListPayments returns payments across all students, filtered and paginated.
func (h *AdminPaymentHandler) ListPayments(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	filter := listFilterFromQuery(c)
	if studentID, err := strconv.ParseUint(c.QueryParam("student_id"), 10, 32); err == nil && studentID > 0 {
		id := uint(studentID)
		filter.StudentID = &id
	}
	if plan := c.QueryParam("installment_plan"); plan != "" {
		p := models.InstallmentPlan(plan)
		filter.InstallmentPlan = &p
	}
	if course, err := strconv.ParseUint(c.QueryParam("course_id"), 10, 32); err == nil && course > 0 {
		id := uint(course)
		filter.CourseID = &id
	}
	if from, err := time.Parse(time.RFC3339, c.QueryParam("start_date")); err == nil {
		filter.StartDate = &from
	}
	if to, err := time.Parse(time.RFC3339, c.QueryParam("end_date")); err == nil {
		filter.EndDate = &to
	}

	items, total, err := h.payments.ListPayments(c.Request().Context(), filter, services.Caller{
		UserID:  user.ID,
		IsAdmin: true,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, buildListResponse(items, total, filter, false))
}

// GetPaymentDetails returns any payment with its full trail.
func (h *AdminPaymentHandler) GetPaymentDetails(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	id, err := paymentID(c)
	if err != nil {
		return err
	}

	payment, err := h.payments.GetPaymentDetails(c.Request().Context(), id, user.ID, true)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPaymentResponse(payment, true))
}

// UpdatePaymentStatus is the manual override for reconciliation discrepancies.
func (h *AdminPaymentHandler) UpdatePaymentStatus(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	id, err := paymentID(c)
	if err != nil {
		return err
	}

	var req UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("invalid request body")
	}
	if req.Notes == "" {
		return apperrors.Validation("notes are required for a status override")
	}

	payment, err := h.payments.UpdatePaymentStatus(
		c.Request().Context(), id, user.ID, models.PaymentStatus(req.Status), req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPaymentResponse(payment, true))
}

// GetStatistics returns revenue and outstanding-balance aggregates.
func (h *AdminPaymentHandler) GetStatistics(c echo.Context) error {
	filter := repository.StatsFilter{}
	if cohort, err := strconv.ParseUint(c.QueryParam("cohort_id"), 10, 32); err == nil && cohort > 0 {
		id := uint(cohort)
		filter.CohortID = &id
	}
	if course, err := strconv.ParseUint(c.QueryParam("course_id"), 10, 32); err == nil && course > 0 {
		id := uint(course)
		filter.CourseID = &id
	}
	if from, err := time.Parse(time.RFC3339, c.QueryParam("from")); err == nil {
		filter.StartDate = &from
	}
	if to, err := time.Parse(time.RFC3339, c.QueryParam("to")); err == nil {
		filter.EndDate = &to
	}

	stats, err := h.payments.GetPaymentStatistics(c.Request().Context(), filter)
	if err != nil {
		return err
	}

	resp := StatisticsResponse{
		TotalRevenueKobo:          int64(stats.TotalRevenueKobo),
		TotalRevenue:              money.FormatNaira(stats.TotalRevenueKobo),
		PendingOutstandingKobo:    int64(stats.PendingOutstandingKobo),
		PendingOutstanding:        money.FormatNaira(stats.PendingOutstandingKobo),
		ProcessingOutstandingKobo: int64(stats.ProcessingOutstandingKobo),
		ProcessingOutstanding:     money.FormatNaira(stats.ProcessingOutstandingKobo),
		CountByStatus:             make(map[string]int64, len(stats.CountByStatus)),
	}
	for status, count := range stats.CountByStatus {
		resp.CountByStatus[string(status)] = count
	}
	for _, txn := range stats.RecentTransactions {
		resp.RecentTransactions = append(resp.RecentTransactions, toTransactionResponse(txn))
	}
	return c.JSON(http.StatusOK, resp)
}
