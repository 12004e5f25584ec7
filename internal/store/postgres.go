package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/wanderwoll/mockup-pipeline/internal/platform/migrations"
)

var _ ResultStore = (*PostgresStore)(nil)

// PostgresStore implements ResultStore on the pipeline_runs table.
type PostgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

type runRow struct {
	ID        string    `db:"id"`
	Kind      string    `db:"kind"`
	Subject   string    `db:"subject"`
	Success   bool      `db:"success"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

func (r runRow) run() Run {
	return Run{
		ID:        r.ID,
		Kind:      r.Kind,
		Subject:   r.Subject,
		Success:   r.Success,
		Payload:   r.Payload,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// NewPostgresStore wraps an open connection.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// OpenPostgres connects to dsn and applies migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect results database: %w", err)
	}
	if err := migrations.Apply(ctx, db.DB, nil); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresStore(db), nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Record(ctx context.Context, kind, subject string, success bool, payload interface{}) (Run, error) {
	data, err := encodePayload(payload)
	if err != nil {
		return Run{}, err
	}
	row := runRow{
		ID:        uuid.NewString(),
		Kind:      kind,
		Subject:   subject,
		Success:   success,
		Payload:   data,
		CreatedAt: s.now().UTC(),
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO pipeline_runs (id, kind, subject, success, payload, created_at)
		VALUES (:id, :kind, :subject, :success, :payload, :created_at)
	`, row)
	if err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}
	return row.run(), nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Run{}, ErrNotFound
	}
	var row runRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, kind, subject, success, payload, created_at
		FROM pipeline_runs
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return row.run(), nil
}

func (s *PostgresStore) List(ctx context.Context, kind string, limit int) ([]Run, error) {
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, kind, subject, success, payload, created_at
		FROM pipeline_runs
		WHERE ($1 = '' OR kind = $1)
		ORDER BY created_at DESC
		LIMIT NULLIF($2, 0)
	`, kind, max(limit, 0))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]Run, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, r.run())
	}
	return runs, nil
}
