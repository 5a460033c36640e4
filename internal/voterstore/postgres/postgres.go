// Package postgres is the PostgreSQL-backed Store, using pgvector columns
// for biometric templates. Registration and vote marking are single-statement
// compare-and-set operations so concurrent callers cannot both win.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/securevote/backend/internal/config"
	"github.com/securevote/backend/internal/voterstore"
)

// Store is a PostgreSQL voterstore.Store.
type Store struct {
	db  *sql.DB
	dim int
}

// New opens a connection pool, verifies connectivity and runs migrations.
func New(ctx context.Context, cfg *config.DatabaseConfig, embeddingDim int) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, dim: embeddingDim}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema. Idempotent, runs on every startup.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS voters (
			id            BIGSERIAL PRIMARY KEY,
			name          VARCHAR(255) NOT NULL UNIQUE,
			registered_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS voter_templates (
			id         BIGSERIAL PRIMARY KEY,
			voter_name VARCHAR(255) NOT NULL REFERENCES voters(name) ON DELETE CASCADE,
			template   vector(%d) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`, s.dim),
		`CREATE INDEX IF NOT EXISTS voter_templates_name_idx ON voter_templates(voter_name)`,
		`CREATE TABLE IF NOT EXISTS vote_status (
			voter_name       VARCHAR(255) PRIMARY KEY,
			has_voted        BOOLEAN NOT NULL DEFAULT FALSE,
			cast_at          TIMESTAMP WITH TIME ZONE,
			candidate_id     VARCHAR(255),
			ledger_reference VARCHAR(255),
			fallback         BOOLEAN NOT NULL DEFAULT FALSE
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

// Register inserts the voter and its first template in one transaction. The
// ON CONFLICT DO NOTHING insert is the name compare-and-set: zero rows
// affected means somebody else registered the name first.
func (s *Store) Register(ctx context.Context, name string, template []float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO voters (name) VALUES ($1) ON CONFLICT (name) DO NOTHING", name)
	if err != nil {
		return fmt.Errorf("insert voter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return voterstore.ErrAlreadyRegistered
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO voter_templates (voter_name, template) VALUES ($1, $2)",
		name, pgvector.NewVector(template))
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registration: %w", err)
	}
	return nil
}

// IsRegistered checks for an identity record.
func (s *Store) IsRegistered(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM voters WHERE name = $1)", name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check voter exists: %w", err)
	}
	return exists, nil
}

// LoadAllTemplates materializes every voter with all templates, ordered by
// registration so the in-memory pool preserves insertion order.
func (s *Store) LoadAllTemplates(ctx context.Context) ([]voterstore.VoterIdentity, error) {
	query := `
		SELECT v.name, v.registered_at, t.template
		FROM voters v
		JOIN voter_templates t ON t.voter_name = v.name
		ORDER BY v.id, t.id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var out []voterstore.VoterIdentity
	index := make(map[string]int)
	for rows.Next() {
		var (
			name         string
			registeredAt time.Time
			vec          pgvector.Vector
		)
		if err := rows.Scan(&name, &registeredAt, &vec); err != nil {
			return nil, fmt.Errorf("scan template row: %w", err)
		}
		i, ok := index[name]
		if !ok {
			out = append(out, voterstore.VoterIdentity{Name: name, RegisteredAt: registeredAt})
			i = len(out) - 1
			index[name] = i
		}
		out[i].Templates = append(out[i].Templates, vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate template rows: %w", err)
	}
	return out, nil
}

// GetVoteStatus returns the vote status, zero-valued when no record exists.
func (s *Store) GetVoteStatus(ctx context.Context, name string) (voterstore.VoteStatus, error) {
	query := `
		SELECT voter_name, has_voted, cast_at, candidate_id, ledger_reference, fallback
		FROM vote_status
		WHERE voter_name = $1
	`
	var (
		status    voterstore.VoteStatus
		castAt    sql.NullTime
		candidate sql.NullString
		ledgerRef sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&status.Name, &status.HasVoted, &castAt, &candidate, &ledgerRef, &status.Fallback)
	if errors.Is(err, sql.ErrNoRows) {
		return voterstore.VoteStatus{Name: name}, nil
	}
	if err != nil {
		return voterstore.VoteStatus{}, fmt.Errorf("query vote status: %w", err)
	}
	if castAt.Valid {
		t := castAt.Time
		status.CastAt = &t
	}
	status.CandidateID = candidate.String
	status.LedgerReference = ledgerRef.String
	return status, nil
}

// MarkVoted performs the has-voted compare-and-set in one statement: the
// conditional update only applies while has_voted is still false, so of two
// racing callers exactly one sees an affected row.
func (s *Store) MarkVoted(ctx context.Context, name, candidateID, ledgerReference string, fallback bool) error {
	query := `
		INSERT INTO vote_status (voter_name, has_voted, cast_at, candidate_id, ledger_reference, fallback)
		VALUES ($1, TRUE, NOW(), $2, NULLIF($3, ''), $4)
		ON CONFLICT (voter_name) DO UPDATE
		SET has_voted = TRUE, cast_at = NOW(), candidate_id = $2,
		    ledger_reference = NULLIF($3, ''), fallback = $4
		WHERE vote_status.has_voted = FALSE
	`
	res, err := s.db.ExecContext(ctx, query, name, candidateID, ledgerReference, fallback)
	if err != nil {
		return fmt.Errorf("mark voted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return voterstore.ErrAlreadyVoted
	}
	return nil
}

// Stats counts registered and voted voters.
func (s *Store) Stats(ctx context.Context) (voterstore.Stats, error) {
	var stats voterstore.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM voters),
			(SELECT COUNT(*) FROM vote_status WHERE has_voted)
	`).Scan(&stats.Registered, &stats.Voted)
	if err != nil {
		return voterstore.Stats{}, fmt.Errorf("query stats: %w", err)
	}
	stats.Remaining = stats.Registered - stats.Voted
	return stats, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}
