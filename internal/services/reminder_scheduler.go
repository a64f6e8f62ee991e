package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/teambition/rrule-go"

	"cirvee_lms/internal/models"
	"cirvee_lms/internal/repository"
)

const (
	// reminderThreshold is how far into the course duration a cohort must be
	// before outstanding balances start generating reminders.
	reminderThreshold = 0.4

	// reminderCooldown suppresses repeat reminders for the same payment.
	reminderCooldown = 7 * 24 * time.Hour

	// reminderCadence fires the scan once a day at 09:00.
	reminderCadence = "FREQ=DAILY;BYHOUR=9;BYMINUTE=0;BYSECOND=0"
)

// ReminderScheduler scans for overdue installment balances and queues reminder
// notifications. The scan itself never sends email; delivery belongs to the
// worker consuming the queue.
type ReminderScheduler struct {
	repo  repository.PaymentRepository
	queue NotificationQueue
	loc   *time.Location
	now   func() time.Time
}

func NewReminderScheduler(repo repository.PaymentRepository, queue NotificationQueue) *ReminderScheduler {
	tz := os.Getenv("REMINDER_TIMEZONE")
	if tz == "" {
		tz = "Africa/Lagos"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return &ReminderScheduler{
		repo:  repo,
		queue: queue,
		loc:   loc,
		now:   time.Now,
	}
}

// Run blocks, executing the scan on the daily cadence until the context is
// cancelled.
func (s *ReminderScheduler) Run(ctx context.Context) error {
	rule, err := rrule.StrToRRule(reminderCadence)
	if err != nil {
		return fmt.Errorf("parse reminder cadence: %w", err)
	}
	rule.DTStart(s.now().In(s.loc).Add(-24 * time.Hour))

	for {
		next := rule.After(s.now().In(s.loc), false)
		if next.IsZero() {
			return fmt.Errorf("reminder cadence produced no next occurrence")
		}
		log.Printf("Next reminder scan at %s", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if sent, err := s.RunOnce(ctx); err != nil {
			log.Printf("Reminder scan failed: %v", err)
		} else {
			log.Printf("Reminder scan done: %d reminders queued", sent)
		}
	}
}

// RunOnce scans all candidate payments and queues reminders for those past the
// threshold and outside the cooldown window. One bad candidate never aborts
// the scan; the count of queued reminders is returned.
func (s *ReminderScheduler) RunOnce(ctx context.Context) (int, error) {
	candidates, err := s.repo.FindReminderCandidates(ctx)
	if err != nil {
		return 0, fmt.Errorf("find reminder candidates: %w", err)
	}

	sent := 0
	for i := range candidates {
		payment := &candidates[i]
		ok, err := s.remind(ctx, payment)
		if err != nil {
			log.Printf("Reminder for payment %d skipped: %v", payment.ID, err)
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

func (s *ReminderScheduler) remind(ctx context.Context, payment *models.Payment) (bool, error) {
	threshold, err := s.thresholdAt(payment)
	if err != nil {
		return false, err
	}
	if s.now().Before(threshold) {
		return false, nil
	}

	since := s.now().Add(-reminderCooldown)
	reminded, err := s.repo.HasAuditSince(ctx, payment.ID, models.AuditPaymentReminder, since)
	if err != nil {
		return false, fmt.Errorf("cooldown check: %w", err)
	}
	if reminded {
		return false, nil
	}

	user := payment.Student.User
	if user.Email == "" {
		return false, fmt.Errorf("student %d has no email on record", payment.StudentID)
	}

	payload := map[string]interface{}{
		"payment_id":   payment.ID,
		"email":        user.Email,
		"first_name":   user.FirstName,
		"course_title": payment.Course.Title,
		"balance_kobo": int64(payment.BalanceKobo),
	}
	if payment.SecondInstallmentDueDate != nil {
		payload["due_date"] = payment.SecondInstallmentDueDate.Format(time.RFC3339)
	}
	if err := s.queue.Enqueue(ctx, NotificationJob{Type: JobPaymentReminder, Payload: payload}); err != nil {
		return false, fmt.Errorf("enqueue reminder: %w", err)
	}

	audit := &models.PaymentAuditLog{
		PaymentID:   payment.ID,
		Action:      models.AuditPaymentReminder,
		Description: fmt.Sprintf("Reminder queued for outstanding balance of %d kobo", payment.BalanceKobo),
		ActorType:   models.ActorSystem,
		Metadata: map[string]interface{}{
			"balance_kobo":   int64(payment.BalanceKobo),
			"threshold_date": threshold.Format(time.RFC3339),
		},
	}
	if err := s.repo.AppendAudit(ctx, audit); err != nil {
		// The reminder is already queued; a missing audit row only weakens the
		// cooldown, so log and keep going.
		log.Printf("Reminder audit for payment %d not recorded: %v", payment.ID, err)
	}
	return true, nil
}

// thresholdAt computes the point in the cohort's schedule past which the
// outstanding balance is overdue. Candidates with unusable schedule data are
// an error, not a quiet skip.
func (s *ReminderScheduler) thresholdAt(payment *models.Payment) (time.Time, error) {
	start := payment.Cohort.StartDate
	weeks := payment.Course.DurationWeeks
	if weeks <= 0 {
		return time.Time{}, fmt.Errorf("course %d has no usable duration", payment.CourseID)
	}
	if start.IsZero() {
		return time.Time{}, fmt.Errorf("cohort %d has no start date", payment.CohortID)
	}
	duration := time.Duration(weeks) * 7 * 24 * time.Hour
	offset := time.Duration(float64(duration) * reminderThreshold)
	return start.Add(offset), nil
}
