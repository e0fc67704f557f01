// Package privacy implements data subject requests for anonymous quiz
// users: export, erasure, and the retention sweep over abandoned sessions.
package privacy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/ideoscope/internal/database"
)

// DefaultRetentionDays applies when the configured retention is not positive.
const DefaultRetentionDays = 180

// Service handles data anonymization and privacy compliance
type Service struct {
	db            *database.DB
	repo          *database.Repository
	retentionDays int
}

// NewService creates a privacy service.
func NewService(db *database.DB, repo *database.Repository, retentionDays int) *Service {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Service{db: db, repo: repo, retentionDays: retentionDays}
}

// RetentionDays returns the configured retention window.
func (s *Service) RetentionDays() int {
	return s.retentionDays
}

// AnonymizeData returns the SHA-256 hex digest of data.
func AnonymizeData(data string) string {
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// Export is everything stored about one user.
type Export struct {
	User       *database.User            `json:"user"`
	Progress   []database.TestProgress   `json:"progress"`
	Insights   []database.InsightRecord  `json:"insights"`
	Ideologies []database.IdeologyRecord `json:"ideologies"`
	Payments   []database.Payment        `json:"payments"`
	ExportedAt time.Time                 `json:"exported_at"`
	Retention  map[string]interface{}    `json:"retention"`
}

// ExportUserData collects every row tied to userID.
func (s *Service) ExportUserData(ctx context.Context, userID string) (*Export, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := &Export{
		User:       user,
		Progress:   []database.TestProgress{},
		Insights:   []database.InsightRecord{},
		Ideologies: []database.IdeologyRecord{},
		Payments:   []database.Payment{},
		ExportedAt: time.Now().UTC(),
		Retention:  s.GetDataRetentionInfo(),
	}

	testIDs, err := s.progressTests(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, testID := range testIDs {
		progress, err := s.repo.GetProgress(ctx, userID, testID)
		if err != nil {
			return nil, err
		}
		out.Progress = append(out.Progress, *progress)

		insights, err := s.repo.ListInsights(ctx, userID, testID)
		if err != nil {
			return nil, err
		}
		out.Insights = append(out.Insights, insights...)
	}

	matches, err := s.repo.ListIdeologyMatches(ctx, userID)
	if err != nil {
		return nil, err
	}
	out.Ideologies = append(out.Ideologies, matches...)

	payments, err := s.listPayments(ctx, userID)
	if err != nil {
		return nil, err
	}
	out.Payments = append(out.Payments, payments...)

	return out, nil
}

func (s *Service) progressTests(ctx context.Context, userID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT test_id FROM user_test_progress WHERE user_id = ? ORDER BY test_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Service) listPayments(ctx context.Context, userID string) ([]database.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, stripe_payment_id, amount, currency, status, type, created_at
		FROM payments WHERE user_id = ? ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []database.Payment
	for rows.Next() {
		var p database.Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.StripePaymentID, &p.Amount, &p.Currency, &p.Status, &p.Type, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletionResult counts the rows removed by DeleteUserData. Payments are
// kept for accounting; the user row is anonymized instead.
type DeletionResult struct {
	Progress   int64 `json:"progress"`
	Insights   int64 `json:"insights"`
	Ideologies int64 `json:"ideologies"`
	Anonymized bool  `json:"anonymized"`
}

// DeleteUserData erases a user's answers, insights and match history in one
// transaction. Payment records and the user row stay so pro status and
// accounting survive, but the stored IP and user agent are replaced.
func (s *Service) DeleteUserData(ctx context.Context, userID string) (*DeletionResult, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin deletion: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res := &DeletionResult{}
	deletions := []struct {
		query string
		count *int64
	}{
		{"DELETE FROM insights_per_user_category WHERE user_id = ?", &res.Insights},
		{"DELETE FROM ideology_per_user WHERE user_id = ?", &res.Ideologies},
		{"DELETE FROM user_test_progress WHERE user_id = ?", &res.Progress},
	}
	for _, d := range deletions {
		result, err := tx.ExecContext(ctx, d.query, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to delete user data: %w", err)
		}
		*d.count, _ = result.RowsAffected()
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET ip_address = ?, user_agent = '', email = '', updated_at = ? WHERE id = ?`,
		AnonymizeData(userID), time.Now().UTC(), userID); err != nil {
		return nil, fmt.Errorf("failed to anonymize user: %w", err)
	}
	res.Anonymized = true

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit deletion: %w", err)
	}

	slog.Info("User data deleted",
		"user_id", AnonymizeData(userID)[:8]+"...",
		"progress", res.Progress,
		"insights", res.Insights,
		"ideologies", res.Ideologies,
	)
	return res, nil
}

// GetDataRetentionInfo describes what is kept and for how long.
func (s *Service) GetDataRetentionInfo() map[string]interface{} {
	return map[string]interface{}{
		"inactive_session_retention_days": s.retentionDays,
		"results_retention":               "until deleted by the user",
		"payment_records_retention":       "kept for accounting",
		"anonymization_method":            "SHA-256",
		"ip_address_stored":               true,
	}
}

// CleanupInactive removes anonymous users older than the retention window
// who never completed a test, never matched an ideology and never paid,
// together with their partial answers. It returns the number of users removed.
func (s *Service) CleanupInactive(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin cleanup: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const inactive = `
		SELECT u.id FROM users u
		WHERE u.created_at < ?
		  AND u.is_pro = FALSE
		  AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.user_id = u.id)
		  AND NOT EXISTS (SELECT 1 FROM ideology_per_user m WHERE m.user_id = u.id)
		  AND NOT EXISTS (SELECT 1 FROM insights_per_user_category c WHERE c.user_id = u.id)`

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_test_progress WHERE user_id IN (`+inactive+`)`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to delete stale progress: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id IN (`+inactive+`)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete inactive users: %w", err)
	}
	removed, _ := result.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cleanup: %w", err)
	}

	slog.Info("Data cleanup completed", "cutoff_date", cutoff, "users_deleted", removed)
	return removed, nil
}

// ScheduleDataCleanup runs CleanupInactive every interval until ctx is done.
func (s *Service) ScheduleDataCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanupInactive(ctx); err != nil {
				slog.Error("Data cleanup failed", "error", err)
			}
		}
	}
}
