package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/daniel-c5656/ai-dvisor/internal/plan"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS course_plans (
		user_id TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		title TEXT NOT NULL,
		courses_json TEXT,
		chat_json TEXT,
		session_id TEXT,
		rev INTEGER NOT NULL DEFAULT 1,
		modified INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, plan_id)
	);
	CREATE INDEX IF NOT EXISTS idx_course_plans_modified ON course_plans(user_id, modified);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreatePlan creates an empty plan document and returns its id.
func (s *SQLiteStore) CreatePlan(ctx context.Context, userID, title string) (string, error) {
	planID := uuid.NewString()
	now := time.Now().UnixMilli()

	query := `
	INSERT INTO course_plans (user_id, plan_id, title, rev, modified, created_at)
	VALUES (?, ?, ?, 1, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query, userID, planID, title, now, now); err != nil {
		return "", fmt.Errorf("insert plan: %w", err)
	}
	return planID, nil
}

// GetPlan retrieves a plan document and its revision.
func (s *SQLiteStore) GetPlan(ctx context.Context, userID, planID string) (plan.Snapshot, int64, error) {
	query := `
		SELECT title, courses_json, chat_json, session_id, rev, modified
		FROM course_plans WHERE user_id = ? AND plan_id = ?`

	return scanPlan(s.db.QueryRowContext(ctx, query, userID, planID))
}

func scanPlan(row *sql.Row) (plan.Snapshot, int64, error) {
	var snap plan.Snapshot
	var coursesJSON, chatJSON, sessionID sql.NullString
	var rev int64

	err := row.Scan(&snap.Title, &coursesJSON, &chatJSON, &sessionID, &rev, &snap.Modified)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.Snapshot{}, 0, ErrNotFound
	}
	if err != nil {
		return plan.Snapshot{}, 0, fmt.Errorf("scan plan row: %w", err)
	}

	if coursesJSON.Valid {
		if err := json.Unmarshal([]byte(coursesJSON.String), &snap.Courses); err != nil {
			return plan.Snapshot{}, 0, fmt.Errorf("decode courses: %w", err)
		}
		if snap.Courses == nil {
			snap.Courses = []plan.CourseSection{}
		}
		snap.HasCourses = true
	}
	if chatJSON.Valid {
		if err := json.Unmarshal([]byte(chatJSON.String), &snap.Chat); err != nil {
			return plan.Snapshot{}, 0, fmt.Errorf("decode chat history: %w", err)
		}
		if snap.Chat == nil {
			snap.Chat = []plan.Message{}
		}
		snap.HasChat = true
	}
	if sessionID.Valid {
		snap.SessionID = sessionID.String
		snap.HasSession = true
	}
	snap.CourseCount = len(snap.Courses)

	return snap, rev, nil
}

// ListPlans returns summaries of a user's plans, most recently modified first.
func (s *SQLiteStore) ListPlans(ctx context.Context, userID string) ([]Summary, error) {
	query := `
		SELECT plan_id, title, courses_json, modified
		FROM course_plans WHERE user_id = ? ORDER BY modified DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close plan rows", "error", closeErr)
		}
	}()

	summaries := []Summary{}
	for rows.Next() {
		var sum Summary
		var coursesJSON sql.NullString
		if err := rows.Scan(&sum.ID, &sum.Title, &coursesJSON, &sum.Modified); err != nil {
			return nil, fmt.Errorf("scan plan summary: %w", err)
		}
		if coursesJSON.Valid {
			var courses []plan.CourseSection
			if err := json.Unmarshal([]byte(coursesJSON.String), &courses); err != nil {
				return nil, fmt.Errorf("decode courses: %w", err)
			}
			sum.CourseCount = len(courses)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return summaries, nil
}

// DeletePlan removes a plan document.
func (s *SQLiteStore) DeletePlan(ctx context.Context, userID, planID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM course_plans WHERE user_id = ? AND plan_id = ?`, userID, planID)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePlan applies a partial update inside a transaction, bumping the
// revision and modified timestamp atomically with the field changes.
func (s *SQLiteStore) UpdatePlan(ctx context.Context, userID, planID string, upd plan.Update) (plan.Snapshot, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return plan.Snapshot{}, 0, fmt.Errorf("begin update: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			slog.Warn("failed to roll back plan update", "error", rollbackErr)
		}
	}()

	query := `
		SELECT title, courses_json, chat_json, session_id, rev, modified
		FROM course_plans WHERE user_id = ? AND plan_id = ?`
	snap, rev, err := scanPlan(tx.QueryRowContext(ctx, query, userID, planID))
	if err != nil {
		return plan.Snapshot{}, 0, err
	}

	applyUpdate(&snap, upd)
	rev++
	snap.Modified = time.Now().UnixMilli()

	var coursesJSON, chatJSON, sessionID interface{}
	if snap.HasCourses {
		data, err := json.Marshal(snap.Courses)
		if err != nil {
			return plan.Snapshot{}, 0, fmt.Errorf("encode courses: %w", err)
		}
		coursesJSON = string(data)
	}
	if snap.HasChat {
		data, err := json.Marshal(snap.Chat)
		if err != nil {
			return plan.Snapshot{}, 0, fmt.Errorf("encode chat history: %w", err)
		}
		chatJSON = string(data)
	}
	if snap.HasSession {
		sessionID = snap.SessionID
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE course_plans
		SET title = ?, courses_json = ?, chat_json = ?, session_id = ?, rev = ?, modified = ?
		WHERE user_id = ? AND plan_id = ?`,
		snap.Title, coursesJSON, chatJSON, sessionID, rev, snap.Modified, userID, planID,
	)
	if err != nil {
		return plan.Snapshot{}, 0, fmt.Errorf("update plan: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return plan.Snapshot{}, 0, fmt.Errorf("commit update: %w", err)
	}
	return snap, rev, nil
}
