package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	id "credence/pkg/domain"
	"credence/pkg/platform/sentinel"
	txcontext "credence/pkg/platform/tx"
)

// PostgresStore persists identities in two tables: identities (current
// state) and consumed_commitments (append-only, survives deactivation).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, identity Identity) error {
	execer := s.execer(ctx)

	_, err := execer.ExecContext(ctx, `
		INSERT INTO identities (subject, commitment, registered_at, active,
			face_verified, gov_id_verified, income_verified, level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		identity.Subject.String(),
		identity.Commitment.String(),
		identity.RegisteredAt,
		identity.Active,
		identity.FaceVerified,
		identity.GovIDVerified,
		identity.IncomeVerified,
		identity.Level,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert identity: %w", err)
	}

	_, err = execer.ExecContext(ctx, `
		INSERT INTO consumed_commitments (commitment, subject, consumed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (commitment) DO NOTHING
	`, identity.Commitment.String(), identity.Subject.String(), identity.RegisteredAt)
	if err != nil {
		return fmt.Errorf("insert consumed commitment: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, subject id.SubjectID) (Identity, error) {
	var (
		identity   Identity
		subjectStr string
		commitStr  string
	)
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT subject, commitment, registered_at, active,
			face_verified, gov_id_verified, income_verified, level
		FROM identities WHERE subject = $1
	`, subject.String()).Scan(
		&subjectStr,
		&commitStr,
		&identity.RegisteredAt,
		&identity.Active,
		&identity.FaceVerified,
		&identity.GovIDVerified,
		&identity.IncomeVerified,
		&identity.Level,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("select identity: %w", err)
	}

	identity.Subject, err = id.ParseSubjectID(subjectStr)
	if err != nil {
		return Identity{}, fmt.Errorf("parse stored subject: %w", err)
	}
	identity.Commitment, err = id.ParseCommitment(commitStr)
	if err != nil {
		return Identity{}, fmt.Errorf("parse stored commitment: %w", err)
	}
	return identity, nil
}

func (s *PostgresStore) Update(ctx context.Context, identity Identity) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE identities
		SET active = $2, face_verified = $3, gov_id_verified = $4,
			income_verified = $5, level = $6
		WHERE subject = $1
	`,
		identity.Subject.String(),
		identity.Active,
		identity.FaceVerified,
		identity.GovIDVerified,
		identity.IncomeVerified,
		identity.Level,
	)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CommitmentConsumed(ctx context.Context, commitment id.Commitment) (bool, error) {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM consumed_commitments WHERE commitment = $1)
	`, commitment.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("select consumed commitment: %w", err)
	}
	return exists, nil
}
