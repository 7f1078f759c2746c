package custody

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS custody_accounts (
    id         UUID PRIMARY KEY,
    code       TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS custody_transfers (
    id         UUID PRIMARY KEY,
    seq        BIGSERIAL,
    kind       TEXT NOT NULL,
    reference  TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (kind, reference)
);
CREATE TABLE IF NOT EXISTS custody_entries (
    id          UUID PRIMARY KEY,
    transfer_id UUID NOT NULL REFERENCES custody_transfers (id),
    account_id  UUID NOT NULL REFERENCES custody_accounts (id),
    amount      NUMERIC(78, 0) NOT NULL
);
CREATE INDEX IF NOT EXISTS custody_entries_account_idx ON custody_entries (account_id);
`

// PostgresVault persists the custody journal in PostgreSQL. Every transfer is
// one transaction row with two balancing entries.
type PostgresVault struct {
	db *pgxpool.Pool
}

// NewPostgresVault constructs a Postgres-backed vault.
func NewPostgresVault(db *pgxpool.Pool) *PostgresVault {
	return &PostgresVault{db: db}
}

// Migrate creates the custody tables when missing.
func (v *PostgresVault) Migrate(ctx context.Context) error {
	if _, err := v.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate custody schema: %w", err)
	}
	return nil
}

// EnsureAccount guarantees an account exists for the provided code.
func (v *PostgresVault) EnsureAccount(ctx context.Context, code string) error {
	_, err := v.db.Exec(ctx, `INSERT INTO custody_accounts (id, code) VALUES ($1, $2)
        ON CONFLICT (code) DO NOTHING`, uuid.New(), code)
	return err
}

// Balance returns the summed entries for the specified account code.
func (v *PostgresVault) Balance(ctx context.Context, code string) (*big.Int, error) {
	var accountID uuid.UUID
	if err := v.db.QueryRow(ctx, `SELECT id FROM custody_accounts WHERE code = $1`, code).Scan(&accountID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
		}
		return nil, err
	}
	return balanceForAccount(ctx, v.db, accountID)
}

// Transfer posts a balanced pair of entries moving amount between accounts.
func (v *PostgresVault) Transfer(ctx context.Context, fromCode, toCode, kind, reference string, amount *big.Int) (Receipt, error) {
	if amount == nil || amount.Sign() <= 0 {
		return Receipt{}, ErrInvalidAmount
	}

	tx, err := v.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Receipt{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	ids, err := lockAccounts(ctx, tx, fromCode, toCode)
	if err != nil {
		return Receipt{}, err
	}
	fromID, toID := ids[fromCode], ids[toCode]

	var existingID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM custody_transfers WHERE kind = $1 AND reference = $2`, kind, reference).Scan(&existingID)
	if err == nil {
		fromBal, err := balanceForAccount(ctx, tx, fromID)
		if err != nil {
			return Receipt{}, err
		}
		toBal, err := balanceForAccount(ctx, tx, toID)
		if err != nil {
			return Receipt{}, err
		}
		return Receipt{TransferID: existingID.String(), Reference: reference, Kind: kind, FromBalance: fromBal, ToBalance: toBal}, ErrDuplicateTransfer
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return Receipt{}, err
	}

	fromBalance, err := balanceForAccount(ctx, tx, fromID)
	if err != nil {
		return Receipt{}, err
	}
	if !unbounded(fromCode) && fromBalance.Cmp(amount) < 0 {
		return Receipt{}, ErrInsufficientFunds
	}
	toBalance, err := balanceForAccount(ctx, tx, toID)
	if err != nil {
		return Receipt{}, err
	}

	transferID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO custody_transfers (id, kind, reference) VALUES ($1, $2, $3)`, transferID, kind, reference); err != nil {
		return Receipt{}, err
	}
	const entryInsert = `INSERT INTO custody_entries (id, transfer_id, account_id, amount) VALUES ($1, $2, $3, $4)`
	if _, err := tx.Exec(ctx, entryInsert, uuid.New(), transferID, fromID, numeric(new(big.Int).Neg(amount))); err != nil {
		return Receipt{}, err
	}
	if _, err := tx.Exec(ctx, entryInsert, uuid.New(), transferID, toID, numeric(amount)); err != nil {
		return Receipt{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Receipt{}, err
	}

	return Receipt{
		TransferID:  transferID.String(),
		Reference:   reference,
		Kind:        kind,
		FromBalance: fromBalance.Sub(fromBalance, amount),
		ToBalance:   toBalance.Add(toBalance, amount),
	}, nil
}

// Postings lists the entries of an account in posting order together with the
// opposite account of each transfer.
func (v *PostgresVault) Postings(ctx context.Context, code string) ([]Posting, error) {
	const query = `
        SELECT t.id, t.reference, t.kind, e.amount, ca.code
        FROM custody_entries e
        INNER JOIN custody_accounts a ON a.id = e.account_id
        INNER JOIN custody_transfers t ON t.id = e.transfer_id
        INNER JOIN custody_entries ce ON ce.transfer_id = t.id AND ce.id <> e.id
        INNER JOIN custody_accounts ca ON ca.id = ce.account_id
        WHERE a.code = $1
        ORDER BY t.seq`
	rows, err := v.db.Query(ctx, query, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Posting
	for rows.Next() {
		var (
			transferID uuid.UUID
			amount     pgtype.Numeric
			p          Posting
		)
		if err := rows.Scan(&transferID, &p.Reference, &p.Kind, &amount, &p.Counterparty); err != nil {
			return nil, err
		}
		p.TransferID = transferID.String()
		p.Amount = fromNumeric(amount)
		out = append(out, p)
	}
	return out, rows.Err()
}

// lockAccounts locks both accounts in code order so concurrent transfers over
// the same pair cannot deadlock.
func lockAccounts(ctx context.Context, tx pgx.Tx, codes ...string) (map[string]uuid.UUID, error) {
	sorted := append([]string(nil), codes...)
	sort.Strings(sorted)

	ids := make(map[string]uuid.UUID, len(sorted))
	for _, code := range sorted {
		if _, seen := ids[code]; seen {
			continue
		}
		var id uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM custody_accounts WHERE code = $1 FOR UPDATE`, code).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
			}
			return nil, err
		}
		ids[code] = id
	}
	return ids, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func balanceForAccount(ctx context.Context, q querier, accountID uuid.UUID) (*big.Int, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM custody_entries WHERE account_id = $1`
	var balance pgtype.Numeric
	if err := q.QueryRow(ctx, query, accountID).Scan(&balance); err != nil {
		return nil, err
	}
	return fromNumeric(balance), nil
}

func numeric(v *big.Int) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).Set(v), Valid: true}
}

func fromNumeric(n pgtype.Numeric) *big.Int {
	if !n.Valid || n.Int == nil {
		return new(big.Int)
	}
	v := new(big.Int).Set(n.Int)
	switch {
	case n.Exp > 0:
		v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil))
	case n.Exp < 0:
		v.Quo(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n.Exp)), nil))
	}
	return v
}
