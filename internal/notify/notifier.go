// Package notify delivers patient-facing messages over WhatsApp and email.
// Delivery is best effort: booking and reminder flows treat a failed send as
// a logged event, never as a reason to roll anything back.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Notifier is the capability the scheduling core consumes.
type Notifier interface {
	NotifyPatient(ctx context.Context, phone, message, email string) error
}

type Config struct {
	SendGridAPIKey  string
	FromEmail       string
	FromName        string
	WhatsAppGateway string // POST endpoint of the WhatsApp relay, empty disables
}

// Service fans one message out to WhatsApp and email. Either channel may be
// unconfigured; sending fails only if every configured channel fails.
type Service struct {
	email   *sendgrid.Client
	from    *mail.Email
	gateway string
	httpc   *http.Client
	logger  zerolog.Logger
}

func NewService(cfg Config, logger zerolog.Logger) *Service {
	s := &Service{
		gateway: cfg.WhatsAppGateway,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
	if cfg.SendGridAPIKey != "" {
		fromName := cfg.FromName
		if fromName == "" {
			fromName = "Meding"
		}
		s.email = sendgrid.NewSendClient(cfg.SendGridAPIKey)
		s.from = mail.NewEmail(fromName, cfg.FromEmail)
	}
	return s
}

func (s *Service) NotifyPatient(ctx context.Context, phone, message, email string) error {
	var errs []string

	if s.gateway != "" && phone != "" {
		if err := s.sendWhatsApp(ctx, phone, message); err != nil {
			s.logger.Error().Err(err).Str("phone", phone).Msg("whatsapp send failed")
			errs = append(errs, err.Error())
		}
	}

	if s.email != nil && email != "" {
		if err := s.sendEmail(ctx, email, message); err != nil {
			s.logger.Error().Err(err).Str("email", email).Msg("email send failed")
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify patient: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s *Service) sendWhatsApp(ctx context.Context, phone, message string) error {
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}

	body, err := json.Marshal(map[string]string{
		"to":   phone,
		"body": message,
	})
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gateway, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp gateway returned %d", resp.StatusCode)
	}
	return nil
}

func (s *Service) sendEmail(ctx context.Context, to, message string) error {
	msg := mail.NewSingleEmail(s.from, "Session update", mail.NewEmail("", to), message, message)

	resp, err := s.email.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned %d", resp.StatusCode)
	}
	return nil
}
