package services

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/gomail.v2"

	"cirvee_lms/internal/money"
)

// EmailService sends transactional mail over SMTP.
type EmailService struct {
	host     string
	port     int
	user     string
	password string
	from     string
}

func NewEmailService() *EmailService {
	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil || port == 0 {
		port = 587
	}
	return &EmailService{
		host:     os.Getenv("SMTP_HOST"),
		port:     port,
		user:     os.Getenv("SMTP_USER"),
		password: os.Getenv("SMTP_PASS"),
		from:     os.Getenv("EMAIL_FROM"),
	}
}

func (s *EmailService) send(to, subject, htmlBody string) error {
	if s.host == "" || s.user == "" || s.password == "" {
		return fmt.Errorf("SMTP credentials not fully configured")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(s.host, s.port, s.user, s.password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// SendPaymentReminder emails a student about an outstanding installment balance.
func (s *EmailService) SendPaymentReminder(to, firstName, courseTitle string, balance money.Kobo, dueDate *time.Time) error {
	due := "as soon as possible"
	if dueDate != nil {
		due = dueDate.Format("2 January 2006")
	}

	body := fmt.Sprintf(`
		<h2>Payment Reminder</h2>
		<p>Hi %s,</p>
		<p>This is a reminder that your enrollment for <strong>%s</strong> has an outstanding balance of <strong>%s</strong>.</p>
		<p>Please complete your second installment by <strong>%s</strong> to keep your enrollment active.</p>
		<p>If you have already paid, you can ignore this email.</p>
	`, firstName, courseTitle, money.FormatNaira(balance), due)

	return s.send(to, "Payment Reminder: Outstanding Balance", body)
}
