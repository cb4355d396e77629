package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists ledger entries in PostgreSQL ensuring double-entry balance.
// Amounts are stored as NUMERIC(78,0) so the full uint256 range fits.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Balance returns the summed balance for the holder's account of asset.
func (l *PostgresLedger) Balance(ctx context.Context, asset, holder common.Address) (*uint256.Int, error) {
	const query = `
        SELECT COALESCE(SUM(e.amount), 0)::text
        FROM entries e
        INNER JOIN accounts a ON a.id = e.account_id
        WHERE a.code = $1`
	var raw string
	if err := l.db.QueryRow(ctx, query, AccountCode(asset, holder)).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(uint256.Int), nil
		}
		return nil, err
	}
	return parseBalance(raw)
}

// Transfer records a balanced posting between two accounts.
func (l *PostgresLedger) Transfer(ctx context.Context, kind, clientTxID string, posting Posting) (TransactionResult, error) {
	return l.TransferBatch(ctx, kind, clientTxID, []Posting{posting})
}

// TransferBatch records every posting inside one database transaction. Touched
// accounts are locked in code order so concurrent batches cannot deadlock.
func (l *PostgresLedger) TransferBatch(ctx context.Context, kind, clientTxID string, postings []Posting) (TransactionResult, error) {
	if err := validatePostings(postings); err != nil {
		return TransactionResult{}, err
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TransactionResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	codes := make(map[string]struct{})
	for _, p := range postings {
		codes[AccountCode(p.Asset, p.From)] = struct{}{}
		codes[AccountCode(p.Asset, p.To)] = struct{}{}
	}
	ordered := make([]string, 0, len(codes))
	for code := range codes {
		ordered = append(ordered, code)
	}
	sort.Strings(ordered)

	ids := make(map[string]uuid.UUID, len(ordered))
	for _, code := range ordered {
		id, err := lockAccount(ctx, tx, code)
		if err != nil {
			return TransactionResult{}, err
		}
		ids[code] = id
	}

	const existingTxQuery = `SELECT id FROM transactions WHERE client_tx_id = $1 AND kind = $2`
	var existingTxID uuid.UUID
	if err := tx.QueryRow(ctx, existingTxQuery, clientTxID, kind).Scan(&existingTxID); err == nil {
		return TransactionResult{TransactionID: existingTxID.String(), Postings: len(postings)}, ErrDuplicateTransaction
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return TransactionResult{}, err
	}

	// Debits are aggregated per account so a batch that overdraws in total is
	// rejected even when every single item fits.
	debits := make(map[string]*uint256.Int)
	for _, p := range postings {
		code := AccountCode(p.Asset, p.From)
		total, ok := debits[code]
		if !ok {
			total = new(uint256.Int)
			debits[code] = total
		}
		if _, overflow := total.AddOverflow(total, p.Amount); overflow {
			return TransactionResult{}, ErrInsufficientFunds
		}
	}
	for code, total := range debits {
		balance, err := balanceForAccount(ctx, tx, ids[code])
		if err != nil {
			return TransactionResult{}, err
		}
		if balance.Lt(total) {
			return TransactionResult{}, ErrInsufficientFunds
		}
	}

	txID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO transactions (id, client_tx_id, kind, status) VALUES ($1, $2, $3, $4)`, txID, clientTxID, kind, StatusCompleted); err != nil {
		return TransactionResult{}, err
	}
	for _, p := range postings {
		fromID := ids[AccountCode(p.Asset, p.From)]
		toID := ids[AccountCode(p.Asset, p.To)]
		if err := insertEntry(ctx, tx, txID, fromID, "-"+p.Amount.Dec()); err != nil {
			return TransactionResult{}, err
		}
		if err := insertEntry(ctx, tx, txID, toID, p.Amount.Dec()); err != nil {
			return TransactionResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return TransactionResult{}, err
	}
	return TransactionResult{TransactionID: txID.String(), Postings: len(postings)}, nil
}

// Issue credits the holder and debits the asset's issuance account.
func (l *PostgresLedger) Issue(ctx context.Context, req Issuance) (IssuanceResult, error) {
	return l.issue(ctx, req, false)
}

// Redeem debits the holder and credits the asset's issuance account.
func (l *PostgresLedger) Redeem(ctx context.Context, req Issuance) (IssuanceResult, error) {
	return l.issue(ctx, req, true)
}

func (l *PostgresLedger) issue(ctx context.Context, req Issuance, redeem bool) (IssuanceResult, error) {
	if req.Amount == nil || req.Amount.IsZero() {
		return IssuanceResult{}, ErrInvalidAmount
	}
	status := statusOrDefault(req.Status)

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return IssuanceResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	holderCode := AccountCode(req.Asset, req.Holder)
	supplyCode := IssuanceAccountCode(req.Asset)
	first, second := holderCode, supplyCode
	if second < first {
		first, second = second, first
	}
	ids := make(map[string]uuid.UUID, 2)
	for _, code := range []string{first, second} {
		id, err := lockAccount(ctx, tx, code)
		if err != nil {
			return IssuanceResult{}, err
		}
		ids[code] = id
	}
	holderID := ids[holderCode]

	const existingQuery = `SELECT id, status FROM transactions WHERE client_tx_id = $1 AND kind = $2`
	var existingTxID uuid.UUID
	var existingStatus string
	if err := tx.QueryRow(ctx, existingQuery, req.ClientTxID, req.Kind).Scan(&existingTxID, &existingStatus); err == nil {
		bal, balErr := balanceForAccount(ctx, tx, holderID)
		if balErr != nil {
			return IssuanceResult{}, balErr
		}
		return IssuanceResult{TransactionID: existingTxID.String(), HolderBalance: bal, Status: existingStatus}, ErrDuplicateTransaction
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return IssuanceResult{}, err
	}

	holderBalance, err := balanceForAccount(ctx, tx, holderID)
	if err != nil {
		return IssuanceResult{}, err
	}
	holderDelta, supplyDelta := req.Amount.Dec(), "-"+req.Amount.Dec()
	if redeem {
		if holderBalance.Lt(req.Amount) {
			return IssuanceResult{}, ErrInsufficientFunds
		}
		holderBalance.Sub(holderBalance, req.Amount)
		holderDelta, supplyDelta = supplyDelta, holderDelta
	} else if _, overflow := holderBalance.AddOverflow(holderBalance, req.Amount); overflow {
		return IssuanceResult{}, errBalanceOverflow
	}

	txID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO transactions (id, client_tx_id, kind, status) VALUES ($1, $2, $3, $4)`, txID, req.ClientTxID, req.Kind, status); err != nil {
		return IssuanceResult{}, err
	}
	if err := insertEntry(ctx, tx, txID, holderID, holderDelta); err != nil {
		return IssuanceResult{}, err
	}
	if err := insertEntry(ctx, tx, txID, ids[supplyCode], supplyDelta); err != nil {
		return IssuanceResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return IssuanceResult{}, err
	}
	return IssuanceResult{TransactionID: txID.String(), HolderBalance: holderBalance, Status: status}, nil
}

// lockAccount creates the account on first use and takes a row lock on it.
func lockAccount(ctx context.Context, tx pgx.Tx, code string) (uuid.UUID, error) {
	if _, err := tx.Exec(ctx, `INSERT INTO accounts (id, code) VALUES ($1, $2)
        ON CONFLICT (code) DO NOTHING`, uuid.New(), code); err != nil {
		return uuid.Nil, err
	}
	const query = `SELECT id FROM accounts WHERE code = $1 FOR UPDATE`
	var id uuid.UUID
	if err := tx.QueryRow(ctx, query, code).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("account %s not found", code)
		}
		return uuid.Nil, err
	}
	return id, nil
}

func insertEntry(ctx context.Context, tx pgx.Tx, txID, accountID uuid.UUID, amount string) error {
	_, err := tx.Exec(ctx, `INSERT INTO entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4::numeric)`,
		uuid.New(), txID, accountID, amount)
	return err
}

func balanceForAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*uint256.Int, error) {
	const query = `SELECT COALESCE(SUM(amount), 0)::text FROM entries WHERE account_id = $1`
	var raw string
	if err := tx.QueryRow(ctx, query, accountID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(uint256.Int), nil
		}
		return nil, err
	}
	return parseBalance(raw)
}

func parseBalance(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "-") {
		return nil, fmt.Errorf("negative holder balance %s", raw)
	}
	bal, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", raw, err)
	}
	return bal, nil
}
