package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"cirvee_lms/internal/models"
)

// Memory is an in-memory implementation of PaymentRepository and
// CatalogRepository. It enforces the same uniqueness and version rules as the
// relational store and backs the service tests and local development.
type Memory struct {
	mu sync.Mutex

	payments     map[uint]*models.Payment
	transactions []models.PaymentTransaction
	audits       []models.PaymentAuditLog
	courses      map[uint]*models.Course
	cohorts      map[uint]*models.Cohort
	students     map[uint]*models.Student
	enrollments  []models.Enrollment

	nextPaymentID uint
	nextTxnID     uint
	nextAuditID   uint
	nextEnrollID  uint
}

func NewMemory() *Memory {
	return &Memory{
		payments:      make(map[uint]*models.Payment),
		courses:       make(map[uint]*models.Course),
		cohorts:       make(map[uint]*models.Cohort),
		students:      make(map[uint]*models.Student),
		nextPaymentID: 1,
		nextTxnID:     1,
		nextAuditID:   1,
		nextEnrollID:  1,
	}
}

// Seed helpers

func (m *Memory) AddCourse(course models.Course) models.Course {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := course
	m.courses[c.ID] = &c
	return c
}

func (m *Memory) AddCohort(cohort models.Cohort) models.Cohort {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := cohort
	if course, ok := m.courses[c.CourseID]; ok {
		c.Course = *course
	}
	m.cohorts[c.ID] = &c
	return c
}

func (m *Memory) AddStudent(student models.Student) models.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := student
	m.students[s.ID] = &s
	return s
}

// Activate satisfies the enrollment activation capability: it upserts an
// ACTIVE enrollment for the student+cohort pair.
func (m *Memory) Activate(ctx context.Context, studentID, courseID, cohortID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for i := range m.enrollments {
		e := &m.enrollments[i]
		if e.StudentID == studentID && e.CohortID == cohortID {
			e.Status = models.EnrollmentStatusActive
			if e.ActivatedAt == nil {
				e.ActivatedAt = &now
			}
			return nil
		}
	}
	m.enrollments = append(m.enrollments, models.Enrollment{
		ID:          m.nextEnrollID,
		StudentID:   studentID,
		CourseID:    courseID,
		CohortID:    cohortID,
		Status:      models.EnrollmentStatusActive,
		ActivatedAt: &now,
		CreatedAt:   now,
	})
	m.nextEnrollID++
	return nil
}

// EnrollmentFor returns the enrollment for a student+cohort pair, if any.
func (m *Memory) EnrollmentFor(studentID, cohortID uint) (models.Enrollment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.CohortID == cohortID {
			return e, true
		}
	}
	return models.Enrollment{}, false
}

// AuditEntries returns all audit entries for a payment, oldest first.
func (m *Memory) AuditEntries(paymentID uint) []models.PaymentAuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentAuditLog
	for _, a := range m.audits {
		if a.PaymentID == paymentID {
			out = append(out, a)
		}
	}
	return out
}

// PaymentRepository

func (m *Memory) Create(ctx context.Context, payment *models.Payment, txn *models.PaymentTransaction, audit *models.PaymentAuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.payments {
		if p.Reference == payment.Reference || p.IdempotencyKey == payment.IdempotencyKey {
			return ErrDuplicate
		}
		if p.StudentID == payment.StudentID && p.CohortID == payment.CohortID &&
			(p.Status == models.PaymentStatusPending || p.Status == models.PaymentStatusProcessing) {
			return ErrDuplicate
		}
	}

	payment.ID = m.nextPaymentID
	m.nextPaymentID++
	if payment.Version == 0 {
		payment.Version = 1
	}
	payment.CreatedAt = time.Now()
	copied := *payment
	m.payments[copied.ID] = &copied

	if txn != nil {
		txn.PaymentID = payment.ID
		if err := m.appendTransactionLocked(txn); err != nil {
			return err
		}
	}
	if audit != nil {
		audit.PaymentID = payment.ID
		m.appendAuditLocked(audit)
	}
	return nil
}

func (m *Memory) appendTransactionLocked(txn *models.PaymentTransaction) error {
	if txn.GatewayReference != nil {
		for _, existing := range m.transactions {
			if existing.GatewayReference != nil && *existing.GatewayReference == *txn.GatewayReference {
				return ErrDuplicateTransaction
			}
		}
	}
	txn.ID = m.nextTxnID
	m.nextTxnID++
	txn.CreatedAt = time.Now()
	m.transactions = append(m.transactions, *txn)
	return nil
}

func (m *Memory) appendAuditLocked(entry *models.PaymentAuditLog) {
	entry.ID = m.nextAuditID
	m.nextAuditID++
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.audits = append(m.audits, *entry)
}

func (m *Memory) hydrateLocked(p models.Payment) *models.Payment {
	if student, ok := m.students[p.StudentID]; ok {
		p.Student = *student
	}
	if course, ok := m.courses[p.CourseID]; ok {
		p.Course = *course
	}
	if cohort, ok := m.cohorts[p.CohortID]; ok {
		p.Cohort = *cohort
	}
	p.Transactions = nil
	for _, t := range m.transactions {
		if t.PaymentID == p.ID {
			p.Transactions = append(p.Transactions, t)
		}
	}
	p.AuditLogs = nil
	for _, a := range m.audits {
		if a.PaymentID == p.ID {
			p.AuditLogs = append(p.AuditLogs, a)
		}
	}
	return &p
}

func (m *Memory) FindByID(ctx context.Context, id uint) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.hydrateLocked(*p), nil
}

func (m *Memory) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.Reference == reference {
			return m.hydrateLocked(*p), nil
		}
	}
	for _, t := range m.transactions {
		if t.Reference == reference {
			if p, ok := m.payments[t.PaymentID]; ok {
				return m.hydrateLocked(*p), nil
			}
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) FindByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.IdempotencyKey == key {
			return m.hydrateLocked(*p), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) FindOpenByStudentCohort(ctx context.Context, studentID, cohortID uint) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, p := range m.payments {
		if p.StudentID != studentID || p.CohortID != cohortID {
			continue
		}
		if p.Status == models.PaymentStatusProcessing ||
			(p.Status == models.PaymentStatusPending && p.ExpiresAt.After(now)) {
			return m.hydrateLocked(*p), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ExpireStalePending(ctx context.Context, studentID, cohortID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, p := range m.payments {
		if p.StudentID != studentID || p.CohortID != cohortID {
			continue
		}
		if p.Status != models.PaymentStatusPending || p.ExpiresAt.After(now) {
			continue
		}
		p.Status = models.PaymentStatusFailed
		p.Version++
		m.appendAuditLocked(&models.PaymentAuditLog{
			PaymentID:   p.ID,
			Action:      models.AuditPaymentFailed,
			Description: "Initiation expired without a confirmed charge",
			ActorType:   models.ActorSystem,
		})
	}
	return nil
}

func (m *Memory) List(ctx context.Context, filter ListPaymentsFilter) ([]models.Payment, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []models.Payment
	for _, p := range m.payments {
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.StudentID != nil && p.StudentID != *filter.StudentID {
			continue
		}
		if filter.CohortID != nil && p.CohortID != *filter.CohortID {
			continue
		}
		if filter.CourseID != nil && p.CourseID != *filter.CourseID {
			continue
		}
		if filter.InstallmentPlan != nil && p.InstallmentPlan != *filter.InstallmentPlan {
			continue
		}
		if filter.StartDate != nil && p.CreatedAt.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && p.CreatedAt.After(*filter.EndDate) {
			continue
		}
		matched = append(matched, *m.hydrateLocked(*p))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return []models.Payment{}, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (m *Memory) CreditPayment(ctx context.Context, payment *models.Payment, txn *models.PaymentTransaction, audits []models.PaymentAuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.payments[payment.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != payment.Version {
		return ErrVersionConflict
	}

	txn.PaymentID = payment.ID
	if err := m.appendTransactionLocked(txn); err != nil {
		return err
	}

	m.applyVersionedLocked(stored, payment)
	for i := range audits {
		audits[i].PaymentID = payment.ID
		m.appendAuditLocked(&audits[i])
	}
	return nil
}

func (m *Memory) applyVersionedLocked(stored, payment *models.Payment) {
	stored.PaidAmountKobo = payment.PaidAmountKobo
	stored.BalanceKobo = payment.BalanceKobo
	stored.Status = payment.Status
	stored.ConfirmedAt = payment.ConfirmedAt
	stored.Version++
	payment.Version = stored.Version
}

func (m *Memory) UpdateWithVersion(ctx context.Context, payment *models.Payment, audits ...models.PaymentAuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.payments[payment.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != payment.Version {
		return ErrVersionConflict
	}
	m.applyVersionedLocked(stored, payment)
	for i := range audits {
		audits[i].PaymentID = payment.ID
		m.appendAuditLocked(&audits[i])
	}
	return nil
}

func (m *Memory) RecordTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendTransactionLocked(txn)
}

func (m *Memory) AppendAudit(ctx context.Context, entry *models.PaymentAuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendAuditLocked(entry)
	return nil
}

func (m *Memory) HasAuditSince(ctx context.Context, paymentID uint, action string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.audits {
		if a.PaymentID == paymentID && a.Action == action && !a.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) FindReminderCandidates(ctx context.Context) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Payment
	for _, p := range m.payments {
		if p.Status != models.PaymentStatusPending && p.Status != models.PaymentStatusProcessing {
			continue
		}
		if p.BalanceKobo <= 0 || p.InstallmentPlan != models.PlanTwoInstallments {
			continue
		}
		active := false
		for _, e := range m.enrollments {
			if e.StudentID == p.StudentID && e.CohortID == p.CohortID && e.Status == models.EnrollmentStatusActive {
				active = true
				break
			}
		}
		if !active {
			continue
		}
		out = append(out, *m.hydrateLocked(*p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Statistics(ctx context.Context, filter StatsFilter) (*PaymentStatistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &PaymentStatistics{CountByStatus: make(map[models.PaymentStatus]int64)}
	for _, p := range m.payments {
		if filter.CohortID != nil && p.CohortID != *filter.CohortID {
			continue
		}
		if filter.CourseID != nil && p.CourseID != *filter.CourseID {
			continue
		}
		if filter.StartDate != nil && p.CreatedAt.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && p.CreatedAt.After(*filter.EndDate) {
			continue
		}
		stats.CountByStatus[p.Status]++
		switch p.Status {
		case models.PaymentStatusCompleted:
			stats.TotalRevenueKobo += p.PaidAmountKobo
		case models.PaymentStatusPending:
			stats.PendingOutstandingKobo += p.BalanceKobo
		case models.PaymentStatusProcessing:
			stats.ProcessingOutstandingKobo += p.BalanceKobo
		}
	}

	txns := make([]models.PaymentTransaction, len(m.transactions))
	copy(txns, m.transactions)
	sort.Slice(txns, func(i, j int) bool { return txns[i].CreatedAt.After(txns[j].CreatedAt) })
	if len(txns) > 10 {
		txns = txns[:10]
	}
	stats.RecentTransactions = txns
	return stats, nil
}

// CatalogRepository

func (m *Memory) FindCohort(ctx context.Context, id uint) (*models.Cohort, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cohort, ok := m.cohorts[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *cohort
	if course, ok := m.courses[c.CourseID]; ok {
		c.Course = *course
	}
	return &c, nil
}

func (m *Memory) FindStudentByUserID(ctx context.Context, userID uint) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.students {
		if s.UserID == userID {
			copied := *s
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}
