package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Ping reports whether the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// CreateUser stores a new anonymous user
func (r *Repository) CreateUser(ctx context.Context, ipAddress, userAgent string) (*User, error) {
	user := NewUser(ipAddress, userAgent)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, ip_address, user_agent, is_pro, stripe_customer_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, user.ID, user.Email, user.IPAddress, user.UserAgent, user.IsPro, user.StripeID, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUser loads a user by id
func (r *Repository) GetUser(ctx context.Context, userID string) (*User, error) {
	stmt, err := r.db.GetPreparedStatement(stmtGetUser)
	if err != nil {
		return nil, err
	}

	var user User
	err = stmt.QueryRowContext(ctx, userID).Scan(
		&user.ID, &user.Email, &user.IPAddress, &user.UserAgent,
		&user.IsPro, &user.StripeID, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetUserByStripeCustomerID gets a user by their Stripe customer ID
func (r *Repository) GetUserByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*User, error) {
	var user User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, ip_address, user_agent, is_pro, stripe_customer_id, created_at, updated_at
		FROM users
		WHERE stripe_customer_id = ?
	`, stripeCustomerID).Scan(
		&user.ID, &user.Email, &user.IPAddress, &user.UserAgent,
		&user.IsPro, &user.StripeID, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by stripe customer ID: %w", err)
	}
	return &user, nil
}

// UpdateUserProStatus updates a user's subscription state
func (r *Repository) UpdateUserProStatus(ctx context.Context, userID string, isPro bool, stripeCustomerID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET is_pro = ?, stripe_customer_id = ?, updated_at = ?
		WHERE id = ?
	`, isPro, stripeCustomerID, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update user pro status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreatePayment creates a payment record
func (r *Repository) CreatePayment(ctx context.Context, userID, stripePaymentID, currency, status, paymentType string, amount int64) (*Payment, error) {
	payment := &Payment{
		ID:              uuid.New().String(),
		UserID:          userID,
		StripePaymentID: stripePaymentID,
		Amount:          amount,
		Currency:        currency,
		Status:          status,
		Type:            paymentType,
		CreatedAt:       time.Now().UTC(),
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, user_id, stripe_payment_id, amount, currency, status, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, payment.ID, payment.UserID, payment.StripePaymentID, payment.Amount,
		payment.Currency, payment.Status, payment.Type, payment.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	return payment, nil
}

// ListTests returns every test with its question count
func (r *Repository) ListTests(ctx context.Context) ([]Test, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.description, t.sort_order, COUNT(q.id)
		FROM tests t LEFT JOIN questions q ON q.test_id = t.id
		GROUP BY t.id ORDER BY t.sort_order, t.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	defer rows.Close()

	var tests []Test
	for rows.Next() {
		var t Test
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.SortOrder, &t.QuestionCount); err != nil {
			return nil, fmt.Errorf("failed to scan test: %w", err)
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// TestExists reports whether a test with the given id is in the catalog
func (r *Repository) TestExists(ctx context.Context, testID int64) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tests WHERE id = ?`, testID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check test: %w", err)
	}
	return n > 0, nil
}

// ListCategories returns the axis categories ordered by id
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, axis, name, left_label, right_label FROM categories ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Axis, &c.Name, &c.LeftLabel, &c.RightLabel); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// ListQuestions returns the questions of a test in presentation order
func (r *Repository) ListQuestions(ctx context.Context, testID int64) ([]scoring.Question, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, test_id, question, effect, sort_order
		FROM questions WHERE test_id = ? ORDER BY sort_order, id
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var questions []scoring.Question
	for rows.Next() {
		var (
			q      scoring.Question
			effect string
		)
		if err := rows.Scan(&q.ID, &q.TestID, &q.Text, &effect, &q.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		if err := json.Unmarshal([]byte(effect), &q.Effect); err != nil {
			return nil, fmt.Errorf("failed to decode effect of question %d: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListInsightCatalog returns every insight entry in lookup order
func (r *Repository) ListInsightCatalog(ctx context.Context) ([]scoring.InsightCatalogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT i.id, c.axis, i.lower_limit, i.upper_limit, i.insight
		FROM insights i JOIN categories c ON c.id = i.category_id
		ORDER BY i.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	defer rows.Close()

	var entries []scoring.InsightCatalogEntry
	for rows.Next() {
		var e scoring.InsightCatalogEntry
		if err := rows.Scan(&e.ID, &e.Category, &e.LowerLimit, &e.UpperLimit, &e.InsightText); err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListIdeologies returns the ideology catalog ordered by ascending id
func (r *Repository) ListIdeologies(ctx context.Context) ([]scoring.IdeologyCatalogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, econ, dipl, govt, scty FROM ideologies ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ideologies: %w", err)
	}
	defer rows.Close()

	var entries []scoring.IdeologyCatalogEntry
	for rows.Next() {
		var e scoring.IdeologyCatalogEntry
		v := &e.ScoreVector
		if err := rows.Scan(&e.ID, &e.Name, &v.Econ, &v.Dipl, &v.Govt, &v.Scty); err != nil {
			return nil, fmt.Errorf("failed to scan ideology: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListPublicFigures returns the public figure catalog ordered by id
func (r *Repository) ListPublicFigures(ctx context.Context) ([]scoring.PublicFigureCatalogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, ideology_id FROM public_figures ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list public figures: %w", err)
	}
	defer rows.Close()

	var entries []scoring.PublicFigureCatalogEntry
	for rows.Next() {
		var e scoring.PublicFigureCatalogEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.IdeologyID); err != nil {
			return nil, fmt.Errorf("failed to scan public figure: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Translation is one localized field of a catalog entity
type Translation struct {
	Entity   string
	EntityID int64
	Field    string
	Lang     string
	Text     string
}

// GetTranslation looks up a single localized field
func (r *Repository) GetTranslation(ctx context.Context, entity string, entityID int64, field, lang string) (string, error) {
	var text string
	err := r.db.QueryRowContext(ctx, `
		SELECT text FROM translations WHERE entity = ? AND entity_id = ? AND field = ? AND lang = ?
	`, entity, entityID, field, lang).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get translation: %w", err)
	}
	return text, nil
}

// ListTranslations returns every translation for a language
func (r *Repository) ListTranslations(ctx context.Context, lang string) ([]Translation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity, entity_id, field, lang, text FROM translations WHERE lang = ?
	`, lang)
	if err != nil {
		return nil, fmt.Errorf("failed to list translations: %w", err)
	}
	defer rows.Close()

	var out []Translation
	for rows.Next() {
		var t Translation
		if err := rows.Scan(&t.Entity, &t.EntityID, &t.Field, &t.Lang, &t.Text); err != nil {
			return nil, fmt.Errorf("failed to scan translation: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
