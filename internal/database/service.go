package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail verification
var ErrInvalidToken = errors.New("invalid session token")

// UserService provides session and subscription logic on top of the
// repository
type UserService struct {
	repo       *Repository
	jwtSecret  []byte
	sessionTTL time.Duration
}

// NewUserService creates a new user service
func NewUserService(repo *Repository, jwtSecret string, sessionTTL time.Duration) *UserService {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &UserService{
		repo:       repo,
		jwtSecret:  []byte(jwtSecret),
		sessionTTL: sessionTTL,
	}
}

// SessionTTL is how long issued tokens stay valid
func (s *UserService) SessionTTL() time.Duration {
	return s.sessionTTL
}

// StartSession creates an anonymous user and a token for it
func (s *UserService) StartSession(ctx context.Context, ipAddress, userAgent string) (*User, string, error) {
	user, err := s.repo.CreateUser(ctx, ipAddress, userAgent)
	if err != nil {
		return nil, "", err
	}

	token, err := s.GenerateSessionToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// GenerateSessionToken generates a JWT token for the user session
func (s *UserService) GenerateSessionToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(s.sessionTTL).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// ValidateSessionToken validates a JWT token and returns the user ID
func (s *UserService) ValidateSessionToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		userID, ok := claims["user_id"].(string)
		if !ok || userID == "" {
			return "", fmt.Errorf("%w: user_id not found in token", ErrInvalidToken)
		}
		return userID, nil
	}

	return "", ErrInvalidToken
}

// GetUser loads the user behind a session
func (s *UserService) GetUser(ctx context.Context, userID string) (*User, error) {
	return s.repo.GetUser(ctx, userID)
}

// IsPro reports whether the user holds an active subscription
func (s *UserService) IsPro(ctx context.Context, userID string) (bool, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.IsPro, nil
}

// UpgradeUserToPro marks the user as a paying subscriber
func (s *UserService) UpgradeUserToPro(ctx context.Context, userID, stripeCustomerID string) error {
	return s.repo.UpdateUserProStatus(ctx, userID, true, stripeCustomerID)
}

// DowngradeCustomer removes pro status when a subscription ends
func (s *UserService) DowngradeCustomer(ctx context.Context, stripeCustomerID string) (*User, error) {
	user, err := s.repo.GetUserByStripeCustomerID(ctx, stripeCustomerID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateUserProStatus(ctx, user.ID, false, stripeCustomerID); err != nil {
		return nil, err
	}
	return user, nil
}

// CreatePaymentRecord creates a payment record in the database
func (s *UserService) CreatePaymentRecord(ctx context.Context, userID, stripePaymentID, currency, status, paymentType string, amount int64) (*Payment, error) {
	return s.repo.CreatePayment(ctx, userID, stripePaymentID, currency, status, paymentType, amount)
}
