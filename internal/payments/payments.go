// Package payments upgrades users to pro through Stripe subscription
// checkout. Pro unlocks the narrative analysis.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/ZanzyTHEbar/ideoscope/internal/database"
	apperrors "github.com/ZanzyTHEbar/ideoscope/internal/errors"
)

const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionDeleted = "customer.subscription.deleted"

	paymentTypeSubscription = "subscription"
)

// ErrNotConfigured is returned when no Stripe key is set.
var ErrNotConfigured = errors.New("payment system not configured")

// Config configures checkout.
type Config struct {
	SecretKey     string
	WebhookSecret string
	ProPriceID    string
	SuccessURL    string
	CancelURL     string
}

// Users is the part of database.UserService payments need.
type Users interface {
	UpgradeUserToPro(ctx context.Context, userID, stripeCustomerID string) error
	DowngradeCustomer(ctx context.Context, stripeCustomerID string) (*database.User, error)
	CreatePaymentRecord(ctx context.Context, userID, stripePaymentID, currency, status, paymentType string, amount int64) (*database.Payment, error)
}

// QuotaResetter clears usage limits after an upgrade.
type QuotaResetter interface {
	ResetOnUpgrade(ctx context.Context, userID string) error
}

// CheckoutSession is what the frontend needs to redirect to Stripe.
type CheckoutSession struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// Service wraps the Stripe client.
type Service struct {
	cfg    Config
	stripe *client.API
	users  Users
	quota  QuotaResetter
}

// NewService creates a payment service. backends may be nil for the Stripe
// defaults; tests point it at a local server.
func NewService(cfg Config, users Users, quota QuotaResetter, backends *stripe.Backends) *Service {
	s := &Service{cfg: cfg, users: users, quota: quota}
	if cfg.SecretKey != "" {
		s.stripe = &client.API{}
		s.stripe.Init(cfg.SecretKey, backends)
	}
	return s
}

// Enabled reports whether a Stripe key is configured.
func (s *Service) Enabled() bool {
	return s.stripe != nil
}

// CreateCheckoutSession starts a pro subscription checkout for userID.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID string) (*CheckoutSession, error) {
	if !s.Enabled() {
		return nil, apperrors.NewConfigurationError("Payment system is not configured", ErrNotConfigured)
	}
	if s.cfg.ProPriceID == "" {
		return nil, apperrors.NewConfigurationError("Pro price is not configured", ErrNotConfigured)
	}

	params := &stripe.CheckoutSessionParams{
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.cfg.ProPriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		ClientReferenceID: stripe.String(userID),
		Metadata: map[string]string{
			"user_id": userID,
			"type":    paymentTypeSubscription,
		},
	}
	params.Context = ctx

	session, err := s.stripe.CheckoutSessions.New(params)
	if err != nil {
		return nil, apperrors.NewExternalAPIError("stripe", err)
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// HandleWebhook verifies and applies a Stripe event. Unknown event types
// are accepted and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (string, error) {
	if !s.Enabled() {
		return "", apperrors.NewConfigurationError("Payment system is not configured", ErrNotConfigured)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return "", apperrors.NewValidationError("Invalid webhook signature", err.Error())
	}

	switch event.Type {
	case EventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return "", apperrors.NewValidationError("Failed to parse checkout session", err.Error())
		}
		return string(event.Type), s.completeCheckout(ctx, &session)

	case EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return "", apperrors.NewValidationError("Failed to parse subscription", err.Error())
		}
		if sub.Customer == nil || sub.Customer.ID == "" {
			return string(event.Type), nil
		}
		user, err := s.users.DowngradeCustomer(ctx, sub.Customer.ID)
		if err != nil {
			return "", fmt.Errorf("failed to downgrade customer: %w", err)
		}
		slog.Info("Subscription cancelled", "user_id", user.ID)
		return string(event.Type), nil
	}

	return string(event.Type), nil
}

func (s *Service) completeCheckout(ctx context.Context, session *stripe.CheckoutSession) error {
	userID := session.ClientReferenceID
	if userID == "" {
		userID = session.Metadata["user_id"]
	}
	if userID == "" {
		return apperrors.NewValidationError("Checkout session has no user reference")
	}

	customerID := ""
	if session.Customer != nil {
		customerID = session.Customer.ID
	}

	if err := s.users.UpgradeUserToPro(ctx, userID, customerID); err != nil {
		return fmt.Errorf("failed to upgrade user: %w", err)
	}

	if _, err := s.users.CreatePaymentRecord(ctx, userID, session.ID, string(session.Currency), "completed", paymentTypeSubscription, session.AmountTotal); err != nil {
		slog.Error("Failed to record payment", "user_id", userID, "error", err)
	}

	if s.quota != nil {
		if err := s.quota.ResetOnUpgrade(ctx, userID); err != nil {
			slog.Warn("Failed to reset quota after upgrade", "user_id", userID, "error", err)
		}
	}

	slog.Info("User upgraded to pro", "user_id", userID)
	return nil
}
