package mailer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/logger"
)

// Attachment is a file sent alongside the message body.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message describes one templated email.
type Message struct {
	Template    string
	Subject     string
	To          string
	ToName      string
	Data        any
	Attachments []Attachment
}

// Sender delivers templated email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendgridMailer renders templates locally and sends through the SendGrid v3 API.
type SendgridMailer struct {
	client   sendClient
	from     string
	fromName string
	logg     *logger.Logger
}

// New returns a SendGrid-backed sender, or a logging no-op sender when no API
// key is configured.
func New(cfg config.SendgridConfig, logg *logger.Logger) Sender {
	if !cfg.Enabled() {
		return &nopSender{logg: logg}
	}
	return newSendgridMailer(sendgrid.NewSendClient(cfg.APIKey), cfg, logg)
}

func newSendgridMailer(client sendClient, cfg config.SendgridConfig, logg *logger.Logger) *SendgridMailer {
	return &SendgridMailer{
		client:   client,
		from:     cfg.DefaultFrom,
		fromName: cfg.FromName,
		logg:     logg,
	}
}

func (m *SendgridMailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("mail recipient is required")
	}
	body, err := Render(msg.Template, msg.Data)
	if err != nil {
		return err
	}

	email := mail.NewV3Mail()
	email.SetFrom(mail.NewEmail(m.fromName, m.from))
	email.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	email.AddPersonalizations(p)
	email.AddContent(mail.NewContent("text/html", body))

	for _, att := range msg.Attachments {
		if len(att.Content) == 0 {
			continue
		}
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		a := mail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(att.Content))
		a.SetType(contentType)
		a.SetFilename(att.Filename)
		a.SetDisposition("attachment")
		email.AddAttachment(a)
	}

	resp, err := m.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, truncateBody(resp.Body))
	}

	if m.logg != nil {
		logCtx := m.logg.WithFields(ctx, map[string]any{
			"template":    msg.Template,
			"attachments": len(email.Attachments),
		})
		m.logg.Info(logCtx, "email sent")
	}
	return nil
}

type nopSender struct {
	logg *logger.Logger
}

func (n *nopSender) Send(ctx context.Context, msg Message) error {
	if _, err := Render(msg.Template, msg.Data); err != nil {
		return err
	}
	if n.logg != nil {
		n.logg.Warn(n.logg.WithField(ctx, "template", msg.Template), "sendgrid disabled; email not sent")
	}
	return nil
}

func truncateBody(body string) string {
	const limit = 256
	if len(body) <= limit {
		return body
	}
	return body[:limit]
}
