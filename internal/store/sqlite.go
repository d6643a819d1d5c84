package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/inbox-clarity/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// connPragmas are applied by the driver to every pooled connection, not
// only the one that happens to run a statement first.
const connPragmas = "_pragma=busy_timeout(5000)" +
	"&_pragma=foreign_keys(1)" +
	"&_pragma=journal_mode(WAL)" +
	"&_txlock=immediate"

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dataSource(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func dataSource(dbPath string) string {
	if strings.Contains(dbPath, "?") {
		return dbPath + "&" + connPragmas
	}
	return dbPath + "?" + connPragmas
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.GetContext(ctx, &v, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

type threadRow struct {
	ID               string    `db:"id"`
	UserEmail        string    `db:"user_email"`
	ProviderThreadID string    `db:"provider_thread_id"`
	LastMessageID    string    `db:"last_message_id"`
	Subject          string    `db:"subject"`
	Participants     string    `db:"participants"`
	LastMessageAt    time.Time `db:"last_message_at"`
	MessageCount     int       `db:"message_count"`
	Labels           string    `db:"labels"`
	IsUnread         bool      `db:"is_unread"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// UpsertThread inserts a thread or refreshes the existing row for the same
// user and provider thread id. The returned id is stable across upserts.
func (s *SQLiteStore) UpsertThread(
	ctx context.Context,
	t model.Thread,
) (string, error) {
	if t.UserEmail == "" || t.ProviderThreadID == "" {
		return "", errors.New("upserting thread: user email and provider thread id are required")
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.MessageCount < 1 {
		t.MessageCount = 1
	}

	participants, err := marshalList(t.Participants)
	if err != nil {
		return "", fmt.Errorf("marshaling participants for thread %s: %w", t.ProviderThreadID, err)
	}
	labels, err := marshalList(t.Labels)
	if err != nil {
		return "", fmt.Errorf("marshaling labels for thread %s: %w", t.ProviderThreadID, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO email_threads (
			id, user_email, provider_thread_id, last_message_id,
			subject, participants, last_message_at, message_count,
			labels, is_unread, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_email, provider_thread_id) DO UPDATE SET
			last_message_id = excluded.last_message_id,
			subject         = excluded.subject,
			participants    = excluded.participants,
			last_message_at = excluded.last_message_at,
			message_count   = excluded.message_count,
			labels          = excluded.labels,
			is_unread       = excluded.is_unread,
			updated_at      = excluded.updated_at`,
		t.ID, t.UserEmail, t.ProviderThreadID, t.LastMessageID,
		t.Subject, participants, t.LastMessageAt.UTC(), t.MessageCount,
		labels, boolToInt(t.IsUnread), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("upserting thread %s: %w", t.ProviderThreadID, err)
	}

	var id string
	err = tx.GetContext(ctx, &id,
		"SELECT id FROM email_threads WHERE user_email = ? AND provider_thread_id = ?",
		t.UserEmail, t.ProviderThreadID,
	)
	if err != nil {
		return "", fmt.Errorf("reading thread id for %s: %w", t.ProviderThreadID, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing thread %s: %w", t.ProviderThreadID, err)
	}
	return id, nil
}

// GetThread retrieves a thread by user and provider thread id. It returns
// nil without error when the thread does not exist.
func (s *SQLiteStore) GetThread(
	ctx context.Context,
	userEmail, providerThreadID string,
) (*model.Thread, error) {
	var row threadRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM email_threads WHERE user_email = ? AND provider_thread_id = ?",
		userEmail, providerThreadID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting thread %s: %w", providerThreadID, err)
	}

	t, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r threadRow) toModel() (model.Thread, error) {
	t := model.Thread{
		ID:               r.ID,
		UserEmail:        r.UserEmail,
		ProviderThreadID: r.ProviderThreadID,
		LastMessageID:    r.LastMessageID,
		Subject:          r.Subject,
		LastMessageAt:    r.LastMessageAt.UTC(),
		MessageCount:     r.MessageCount,
		IsUnread:         r.IsUnread,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
	if err := unmarshalList(r.Participants, &t.Participants); err != nil {
		return model.Thread{}, fmt.Errorf("unmarshaling participants: %w", err)
	}
	if err := unmarshalList(r.Labels, &t.Labels); err != nil {
		return model.Thread{}, fmt.Errorf("unmarshaling labels: %w", err)
	}
	return t, nil
}

type insightRow struct {
	ID              string       `db:"id"`
	UserEmail       string       `db:"user_email"`
	ThreadID        string       `db:"thread_id"`
	Category        string       `db:"category"`
	ImportanceScore float64      `db:"importance_score"`
	ImportanceLevel string       `db:"importance_level"`
	RequiresReply   bool         `db:"requires_reply"`
	WaitingForReply bool         `db:"waiting_for_reply"`
	HasDeadline     bool         `db:"has_deadline"`
	DeadlineAt      sql.NullTime `db:"deadline_at"`
	Summary         string       `db:"summary"`
	Reason          string       `db:"reason"`
	ModelUsed       string       `db:"model_used"`
	EvaluatedAt     time.Time    `db:"evaluated_at"`
}

// UpsertInsight inserts or replaces the insight for (user, thread). The
// importance level is derived from the score when not set.
func (s *SQLiteStore) UpsertInsight(
	ctx context.Context,
	in model.Insight,
) error {
	if in.UserEmail == "" || in.ThreadID == "" {
		return errors.New("upserting insight: user email and thread id are required")
	}
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.ImportanceLevel == "" {
		in.ImportanceLevel = model.ImportanceLevel(in.ImportanceScore)
	}
	if in.EvaluatedAt.IsZero() {
		in.EvaluatedAt = time.Now()
	}

	var deadline sql.NullTime
	if in.DeadlineAt != nil {
		deadline = sql.NullTime{Time: in.DeadlineAt.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_insights (
			id, user_email, thread_id, category,
			importance_score, importance_level,
			requires_reply, waiting_for_reply, has_deadline, deadline_at,
			summary, reason, model_used, evaluated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_email, thread_id) DO UPDATE SET
			category          = excluded.category,
			importance_score  = excluded.importance_score,
			importance_level  = excluded.importance_level,
			requires_reply    = excluded.requires_reply,
			waiting_for_reply = excluded.waiting_for_reply,
			has_deadline      = excluded.has_deadline,
			deadline_at       = excluded.deadline_at,
			summary           = excluded.summary,
			reason            = excluded.reason,
			model_used        = excluded.model_used,
			evaluated_at      = excluded.evaluated_at`,
		in.ID, in.UserEmail, in.ThreadID, string(in.Category),
		in.ImportanceScore, in.ImportanceLevel,
		boolToInt(in.RequiresReply), boolToInt(in.WaitingForReply),
		boolToInt(in.HasDeadline), deadline,
		in.Summary, in.Reason, in.ModelUsed, in.EvaluatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting insight for thread %s: %w", in.ThreadID, err)
	}

	return nil
}

// GetInsights retrieves insights matching filter, newest evaluation first.
func (s *SQLiteStore) GetInsights(
	ctx context.Context,
	filter InsightFilter,
) ([]model.Insight, error) {
	var conditions []string
	var args []interface{}

	if filter.UserEmail != nil {
		conditions = append(conditions, "user_email = ?")
		args = append(args, *filter.UserEmail)
	}
	if filter.Category != nil {
		conditions = append(conditions, "category = ?")
		args = append(args, string(*filter.Category))
	}

	query := "SELECT * FROM email_insights"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY evaluated_at DESC, id ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	var rows []insightRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying insights: %w", err)
	}

	insights := make([]model.Insight, 0, len(rows))
	for _, r := range rows {
		insights = append(insights, r.toModel())
	}
	return insights, nil
}

func (r insightRow) toModel() model.Insight {
	in := model.Insight{
		ID:              r.ID,
		UserEmail:       r.UserEmail,
		ThreadID:        r.ThreadID,
		Category:        model.Category(r.Category),
		ImportanceScore: r.ImportanceScore,
		ImportanceLevel: r.ImportanceLevel,
		RequiresReply:   r.RequiresReply,
		WaitingForReply: r.WaitingForReply,
		HasDeadline:     r.HasDeadline,
		Summary:         r.Summary,
		Reason:          r.Reason,
		ModelUsed:       r.ModelUsed,
		EvaluatedAt:     r.EvaluatedAt.UTC(),
	}
	if r.DeadlineAt.Valid {
		d := r.DeadlineAt.Time.UTC()
		in.DeadlineAt = &d
	}
	return in
}

// CountInsightsByCategory returns the number of stored insights per
// category for a user.
func (s *SQLiteStore) CountInsightsByCategory(
	ctx context.Context,
	userEmail string,
) (map[model.Category]int, error) {
	var rows []struct {
		Category string `db:"category"`
		Count    int    `db:"n"`
	}
	err := s.db.SelectContext(ctx, &rows,
		"SELECT category, COUNT(*) AS n FROM email_insights WHERE user_email = ? GROUP BY category",
		userEmail,
	)
	if err != nil {
		return nil, fmt.Errorf("counting insights: %w", err)
	}

	counts := make(map[model.Category]int, len(rows))
	for _, r := range rows {
		counts[model.Category(r.Category)] = r.Count
	}
	return counts, nil
}

func marshalList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalList(s string, dst *[]string) error {
	if s == "" {
		*dst = []string{}
		return nil
	}
	return json.Unmarshal([]byte(s), dst)
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
