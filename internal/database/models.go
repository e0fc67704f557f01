package database

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// User represents an anonymous or paying account
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email,omitempty" db:"email"`
	IPAddress string    `json:"-" db:"ip_address"`
	UserAgent string    `json:"-" db:"user_agent"`
	IsPro     bool      `json:"is_pro" db:"is_pro"`
	StripeID  string    `json:"-" db:"stripe_customer_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Payment represents a Stripe payment
type Payment struct {
	ID              string    `json:"id" db:"id"`
	UserID          string    `json:"user_id" db:"user_id"`
	StripePaymentID string    `json:"stripe_payment_id" db:"stripe_payment_id"`
	Amount          int64     `json:"amount" db:"amount"` // Amount in cents
	Currency        string    `json:"currency" db:"currency"`
	Status          string    `json:"status" db:"status"`
	Type            string    `json:"type" db:"type"` // subscription, one_time
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Test is a questionnaire
type Test struct {
	ID            int64  `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	Description   string `json:"description" yaml:"description"`
	SortOrder     int    `json:"sort_order" yaml:"sort_order"`
	QuestionCount int    `json:"question_count" yaml:"-"`
}

// Category is the catalog record behind one axis
type Category struct {
	ID         int64        `json:"id" yaml:"id"`
	Axis       scoring.Axis `json:"axis" yaml:"axis"`
	Name       string       `json:"name" yaml:"name"`
	LeftLabel  string       `json:"left_label" yaml:"left_label"`
	RightLabel string       `json:"right_label" yaml:"right_label"`
}

// ProgressStatus is the lifecycle state of a user's attempt at a test
type ProgressStatus string

const (
	StatusInProgress ProgressStatus = "in_progress"
	StatusCompleted  ProgressStatus = "completed"
)

// TestProgress holds the answers a user has given so far
type TestProgress struct {
	UserID      string                   `json:"user_id"`
	TestID      int64                    `json:"test_id"`
	Answers     map[int64]float64        `json:"answers"`
	Status      ProgressStatus           `json:"status"`
	Score       *scoring.AxisScoreVector `json:"score,omitempty"`
	UpdatedAt   time.Time                `json:"updated_at"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
}

// InsightRecord is one persisted per-category insight of a scoring run
type InsightRecord struct {
	SequenceID int64               `json:"sequence_id"`
	UserID     string              `json:"user_id"`
	TestID     int64               `json:"test_id"`
	CategoryID int64               `json:"category_id"`
	Category   scoring.Axis        `json:"category"`
	InsightID  int64               `json:"insight_id"`
	Band       scoring.InsightBand `json:"description"`
	Percentage int                 `json:"percentage"`
	CreatedAt  time.Time           `json:"created_at"`
}

// InsightRecordFrom converts a classified axis into a record ready to persist
func InsightRecordFrom(userID string, testID int64, in scoring.AxisInsight) InsightRecord {
	return InsightRecord{
		UserID:     userID,
		TestID:     testID,
		Category:   in.Category,
		InsightID:  in.Insight.ID,
		Band:       in.Band,
		Percentage: in.Score,
	}
}

// IdeologyRecord is one entry of the append-only match history
type IdeologyRecord struct {
	SequenceID   int64     `json:"sequence_id"`
	UserID       string    `json:"user_id"`
	TestID       int64     `json:"test_id,omitempty"`
	IdeologyID   int64     `json:"ideology_id"`
	IdeologyName string    `json:"ideology"`
	Distance     float64   `json:"distance"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewUser creates a new user with generated ID
func NewUser(ipAddress, userAgent string) *User {
	now := time.Now().UTC()
	return &User{
		ID:        uuid.New().String(),
		IPAddress: ipAddress,
		UserAgent: userAgent,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
