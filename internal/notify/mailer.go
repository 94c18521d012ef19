package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/zoner/backend/internal/jobs"
	"github.com/zoner/backend/internal/logging"
)

//go:embed templates/*.html
var templateFS embed.FS

var mailTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Sender delivers a rendered email.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Enqueuer schedules fire-and-forget work.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, fn jobs.Func) error
}

// Mailer renders the account emails and hands them to the outbound pool.
type Mailer struct {
	sender Sender
	queue  Enqueuer
}

// NewMailer constructs a Mailer.
func NewMailer(sender Sender, queue Enqueuer) *Mailer {
	return &Mailer{sender: sender, queue: queue}
}

type codeEmail struct {
	Name          string
	Code          string
	ExpiryMinutes int
	Year          int
}

// SendVerificationCode mails the email verification code.
func (m *Mailer) SendVerificationCode(ctx context.Context, email, name, code string, ttl time.Duration) error {
	return m.dispatch(ctx, "verification_code.html", email, "Your Zoner Verification Code", codeEmail{
		Name: name, Code: code, ExpiryMinutes: int(ttl.Minutes()), Year: time.Now().Year(),
	})
}

// SendPasswordResetCode mails the password reset OTP.
func (m *Mailer) SendPasswordResetCode(ctx context.Context, email, name, code string, ttl time.Duration) error {
	return m.dispatch(ctx, "password_reset.html", email, "Your Zoner Password Reset Code", codeEmail{
		Name: name, Code: code, ExpiryMinutes: int(ttl.Minutes()), Year: time.Now().Year(),
	})
}

// dispatch renders synchronously so template errors surface to the caller,
// then sends on the queue.
func (m *Mailer) dispatch(ctx context.Context, tmpl, to, subject string, data codeEmail) error {
	if data.Name == "" {
		data.Name = "there"
	}
	var buf bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&buf, tmpl, data); err != nil {
		return fmt.Errorf("render %s: %w", tmpl, err)
	}
	html := buf.String()

	return m.queue.Enqueue(ctx, "mail:"+tmpl, func(jobCtx context.Context) error {
		if err := m.sender.Send(jobCtx, to, subject, html); err != nil {
			logging.FromContext(ctx).Warn("email delivery failed", "template", tmpl, "error", err)
			return err
		}
		return nil
	})
}
