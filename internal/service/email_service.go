package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

// EmailService доставляет одноразовые токены внешним каналом.
// Открытые значения токенов передаются сюда сразу после выпуска
// и нигде не сохраняются.
type EmailService interface {
	SendVerificationLink(ctx context.Context, toEmail, token, idempotencyKey string) error
	SendPasswordResetLink(ctx context.Context, toEmail, token, idempotencyKey string) error
}

// NoopEmailService используется, когда доставка почты отключена (локальная разработка, тесты).
type NoopEmailService struct{}

func (s *NoopEmailService) SendVerificationLink(ctx context.Context, toEmail, token, idempotencyKey string) error {
	log.Printf("[EmailService] noop send verification link to=%s", toEmail)
	return nil
}

func (s *NoopEmailService) SendPasswordResetLink(ctx context.Context, toEmail, token, idempotencyKey string) error {
	log.Printf("[EmailService] noop send password reset link to=%s", toEmail)
	return nil
}

// ResendEmailService отправляет письма через Resend REST API.
type ResendEmailService struct {
	from    string
	baseURL string
	client  *resend.Client
}

func NewResendEmailService(apiKey, from, baseURL string) (*ResendEmailService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("email base url is required")
	}
	return &ResendEmailService{
		from:    from,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  resend.NewClient(apiKey),
	}, nil
}

func (s *ResendEmailService) SendVerificationLink(ctx context.Context, toEmail, token, idempotencyKey string) error {
	link := fmt.Sprintf("%s/api/v1/users/verify/%s", s.baseURL, token)
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{toEmail},
		Subject: "Verify your account",
		Text:    fmt.Sprintf("Follow this link to verify your account: %s", link),
		Html:    fmt.Sprintf("<p>Follow <a href=%q>this link</a> to verify your account.</p>", link),
	}
	return s.send(ctx, params, idempotencyKey)
}

func (s *ResendEmailService) SendPasswordResetLink(ctx context.Context, toEmail, token, idempotencyKey string) error {
	link := fmt.Sprintf("%s/api/v1/users/reset-password/%s", s.baseURL, token)
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{toEmail},
		Subject: "Reset your password",
		Text:    fmt.Sprintf("Follow this link to reset your password: %s. It expires in 1 hour.", link),
		Html:    fmt.Sprintf("<p>Follow <a href=%q>this link</a> to reset your password.</p><p>It expires in 1 hour.</p>", link),
	}
	return s.send(ctx, params, idempotencyKey)
}

func (s *ResendEmailService) send(ctx context.Context, params *resend.SendEmailRequest, idempotencyKey string) error {
	if len(params.To) == 0 || params.To[0] == "" {
		return fmt.Errorf("toEmail is required")
	}

	options := &resend.SendEmailOptions{}
	if strings.TrimSpace(idempotencyKey) != "" {
		options.IdempotencyKey = strings.TrimSpace(idempotencyKey)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		_, err := s.client.Emails.SendWithOptions(ctx, params, options)
		if err == nil {
			return nil
		}
		lastErr = err

		if wait, ok := resendRetryDelay(err, attempt); ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return fmt.Errorf("resend send failed: %w", err)
	}

	return fmt.Errorf("resend send failed after retries: %w", lastErr)
}

func resendRetryDelay(err error, attempt int) (time.Duration, bool) {
	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(rateLimitErr.RetryAfter)); convErr == nil && seconds > 0 {
			if seconds > 30 {
				seconds = 30
			}
			return time.Duration(seconds) * time.Second, true
		}
		return time.Duration(attempt+1) * time.Second, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "temporar") {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	return 0, false
}
