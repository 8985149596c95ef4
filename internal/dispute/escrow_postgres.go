package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "credence/pkg/domain"
	"credence/pkg/platform/sentinel"
)

// PostgresEscrow persists bonds as double-entry postings: Hold moves value
// from the party's account into the dispute's escrow account, Release moves
// it out to the winner. Balances are derivable from the entries alone.
type PostgresEscrow struct {
	db *pgxpool.Pool
}

func NewPostgresEscrow(db *pgxpool.Pool) *PostgresEscrow {
	return &PostgresEscrow{db: db}
}

func escrowAccount(disputeID id.DisputeID) string {
	return fmt.Sprintf("escrow:dispute:%d", disputeID)
}

func partyAccount(party id.SubjectID) string {
	return "party:" + party.String()
}

func (e *PostgresEscrow) Hold(ctx context.Context, disputeID id.DisputeID, party id.SubjectID, amount int64) error {
	tx, err := e.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin escrow hold: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var existing int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM escrow_entries WHERE account = $1
	`, escrowAccount(disputeID)).Scan(&existing)
	if err != nil {
		return fmt.Errorf("check escrow balance: %w", err)
	}
	if existing != 0 {
		return sentinel.ErrConflict
	}

	if err := e.post(ctx, tx, partyAccount(party), -amount, disputeID); err != nil {
		return err
	}
	if err := e.post(ctx, tx, escrowAccount(disputeID), amount, disputeID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (e *PostgresEscrow) Release(ctx context.Context, disputeID id.DisputeID, winner id.SubjectID) (int64, error) {
	tx, err := e.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin escrow release: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var held int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM escrow_entries WHERE account = $1
	`, escrowAccount(disputeID)).Scan(&held)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("check escrow balance: %w", err)
	}
	if held <= 0 {
		return 0, sentinel.ErrNotFound
	}

	if err := e.post(ctx, tx, escrowAccount(disputeID), -held, disputeID); err != nil {
		return 0, err
	}
	if err := e.post(ctx, tx, partyAccount(winner), held, disputeID); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return held, nil
}

func (e *PostgresEscrow) Held(ctx context.Context, disputeID id.DisputeID) (int64, error) {
	var held int64
	err := e.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM escrow_entries WHERE account = $1
	`, escrowAccount(disputeID)).Scan(&held)
	if err != nil {
		return 0, fmt.Errorf("query escrow balance: %w", err)
	}
	return held, nil
}

func (e *PostgresEscrow) post(ctx context.Context, tx pgx.Tx, account string, amount int64, disputeID id.DisputeID) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO escrow_entries (id, account, amount, dispute_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), account, amount, uint64(disputeID), time.Now())
	if err != nil {
		return fmt.Errorf("post escrow entry: %w", err)
	}
	return nil
}
