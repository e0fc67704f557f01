package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
)

// SaveProgress upserts the answers of a user for a test. A completed attempt
// is reopened when new answers arrive.
func (r *Repository) SaveProgress(ctx context.Context, userID string, testID int64, answers map[int64]float64) (*TestProgress, error) {
	encoded, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode answers: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_test_progress (user_id, test_id, answers, status, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, test_id) DO UPDATE SET
			answers = excluded.answers,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, userID, testID, string(encoded), StatusInProgress, now)
	if err != nil {
		return nil, fmt.Errorf("failed to save progress: %w", err)
	}

	return r.GetProgress(ctx, userID, testID)
}

// GetProgress loads the stored attempt of a user for a test
func (r *Repository) GetProgress(ctx context.Context, userID string, testID int64) (*TestProgress, error) {
	var (
		p                      TestProgress
		answers                string
		econ, dipl, govt, scty sql.NullFloat64
		completedAt            sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, test_id, answers, status, econ, dipl, govt, scty, updated_at, completed_at
		FROM user_test_progress WHERE user_id = ? AND test_id = ?
	`, userID, testID).Scan(&p.UserID, &p.TestID, &answers, &p.Status,
		&econ, &dipl, &govt, &scty, &p.UpdatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	if err := json.Unmarshal([]byte(answers), &p.Answers); err != nil {
		return nil, fmt.Errorf("failed to decode answers: %w", err)
	}
	if econ.Valid && dipl.Valid && govt.Valid && scty.Valid {
		p.Score = &scoring.AxisScoreVector{Econ: econ.Float64, Dipl: dipl.Float64, Govt: govt.Float64, Scty: scty.Float64}
	}
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}
	return &p, nil
}

// CompleteProgress stores the computed score vector and marks the attempt
// completed
func (r *Repository) CompleteProgress(ctx context.Context, userID string, testID int64, score scoring.AxisScoreVector) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_test_progress
		SET status = ?, econ = ?, dipl = ?, govt = ?, scty = ?, updated_at = ?, completed_at = ?
		WHERE user_id = ? AND test_id = ?
	`, StatusCompleted, score.Econ, score.Dipl, score.Govt, score.Scty, now, now, userID, testID)
	if err != nil {
		return fmt.Errorf("failed to complete progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PersistInsights stores the insight snapshot of a (user, test) pair. With
// replace set the previous snapshot is deleted first. The delete and the
// insert are separate statements, so a concurrent reader may briefly see an
// empty snapshot.
func (r *Repository) PersistInsights(ctx context.Context, userID string, testID int64, records []InsightRecord, replace bool) error {
	if replace {
		if _, err := r.DeleteInsights(ctx, userID, testID); err != nil {
			return err
		}
	}
	return r.InsertInsights(ctx, userID, testID, records)
}

// DeleteInsights removes the snapshot of a (user, test) pair
func (r *Repository) DeleteInsights(ctx context.Context, userID string, testID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM insights_per_user_category WHERE user_id = ? AND test_id = ?
	`, userID, testID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete insights: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// InsertInsights writes all records in one transaction
func (r *Repository) InsertInsights(ctx context.Context, userID string, testID int64, records []InsightRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO insights_per_user_category (user_id, test_id, category_id, insight_id, band, percentage, created_at)
		VALUES (?, ?, (SELECT id FROM categories WHERE axis = ?), ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insight insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, userID, testID, rec.Category, rec.InsightID, rec.Band, rec.Percentage, now); err != nil {
			return fmt.Errorf("failed to insert insight for %s: %w", rec.Category, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insights: %w", err)
	}
	return nil
}

// ListInsights reads the snapshot of a (user, test) pair in insertion order
func (r *Repository) ListInsights(ctx context.Context, userID string, testID int64) ([]InsightRecord, error) {
	stmt, err := r.db.GetPreparedStatement(stmtListInsightsForUser)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, userID, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	defer rows.Close()

	var records []InsightRecord
	for rows.Next() {
		var rec InsightRecord
		if err := rows.Scan(&rec.SequenceID, &rec.UserID, &rec.TestID, &rec.CategoryID, &rec.Category,
			&rec.InsightID, &rec.Band, &rec.Percentage, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan insight record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListCompletedTests returns the ids of tests the user holds insights for
func (r *Repository) ListCompletedTests(ctx context.Context, userID string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT test_id FROM insights_per_user_category WHERE user_id = ? ORDER BY test_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed tests: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan test id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AppendIdeologyMatch adds a match to the user's history and returns its
// sequence id. Entries are never updated; they only go away when the user
// erases their data. testID 0 records a match computed from submitted scores.
func (r *Repository) AppendIdeologyMatch(ctx context.Context, userID string, testID, ideologyID int64, distance float64) (int64, error) {
	var test sql.NullInt64
	if testID != 0 {
		test = sql.NullInt64{Int64: testID, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO ideology_per_user (user_id, test_id, ideology_id, distance, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, test, ideologyID, distance, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to append ideology match: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read ideology sequence id: %w", err)
	}
	return seq, nil
}

// LatestIdeologyMatch returns the entry with the highest sequence id
func (r *Repository) LatestIdeologyMatch(ctx context.Context, userID string) (*IdeologyRecord, error) {
	stmt, err := r.db.GetPreparedStatement(stmtLatestIdeology)
	if err != nil {
		return nil, err
	}

	var rec IdeologyRecord
	err = stmt.QueryRowContext(ctx, userID).Scan(&rec.SequenceID, &rec.UserID, &rec.TestID,
		&rec.IdeologyID, &rec.IdeologyName, &rec.Distance, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest ideology: %w", err)
	}
	return &rec, nil
}

// CountIdeologyMatches returns the length of a user's match history
func (r *Repository) CountIdeologyMatches(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ideology_per_user WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count ideology matches: %w", err)
	}
	return n, nil
}

// ListIdeologyMatches returns a user's full match history, oldest first
func (r *Repository) ListIdeologyMatches(ctx context.Context, userID string) ([]IdeologyRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.seq, m.user_id, COALESCE(m.test_id, 0), m.ideology_id, i.name, m.distance, m.created_at
		FROM ideology_per_user m
		JOIN ideologies i ON i.id = m.ideology_id
		WHERE m.user_id = ?
		ORDER BY m.seq ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ideology matches: %w", err)
	}
	defer rows.Close()

	var out []IdeologyRecord
	for rows.Next() {
		var rec IdeologyRecord
		if err := rows.Scan(&rec.SequenceID, &rec.UserID, &rec.TestID, &rec.IdeologyID,
			&rec.IdeologyName, &rec.Distance, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ideology match: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
