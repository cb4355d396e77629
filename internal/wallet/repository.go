package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/vault/internal/custody"
)

// Repository persists wallet metadata and the spender tables of their vaults.
type Repository interface {
	custody.Store
	Create(ctx context.Context, wallet Wallet) error
	Get(ctx context.Context, id string) (Wallet, error)
	ListByOwner(ctx context.Context, owner common.Address) ([]Wallet, error)
	// CountByCreator returns how many vaults creator has provisioned.
	CountByCreator(ctx context.Context, creator common.Address) (uint64, error)
	LoadSpenders(ctx context.Context, vault common.Address) ([]custody.SpenderAuthorization, error)
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a wallet record.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet) error {
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets (id, address, owner, creator, created_at)
        VALUES ($1, $2, $3, $4, $5)`,
		walletID, key(wallet.Address), key(wallet.Owner), key(wallet.Creator), wallet.CreatedAt.UTC())
	return err
}

// Get fetches wallet metadata by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Wallet, error) {
	walletUUID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, address, owner, creator, created_at
        FROM wallets WHERE id = $1`, walletUUID)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, ErrWalletNotFound
	}
	return w, err
}

// ListByOwner returns the owner's wallets oldest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, owner common.Address) ([]Wallet, error) {
	rows, err := r.db.Query(ctx, `SELECT id, address, owner, creator, created_at
        FROM wallets WHERE owner = $1 ORDER BY created_at, id`, key(owner))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wallets := []Wallet{}
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// CountByCreator counts the vaults provisioned by creator.
func (r *PostgresRepository) CountByCreator(ctx context.Context, creator common.Address) (uint64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM wallets WHERE creator = $1`, key(creator)).Scan(&n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// SaveOwner records a change of vault ownership.
func (r *PostgresRepository) SaveOwner(ctx context.Context, vault, owner common.Address) error {
	tag, err := r.db.Exec(ctx, `UPDATE wallets SET owner = $2 WHERE address = $1`, key(vault), key(owner))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// SaveSpender upserts one row of a vault's spender table.
func (r *PostgresRepository) SaveSpender(ctx context.Context, vault common.Address, auth custody.SpenderAuthorization) error {
	_, err := r.db.Exec(ctx, `INSERT INTO spender_authorizations
        (vault, spender, authorized, daily_limit, spent_today, period_start, updated_at)
        VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, now())
        ON CONFLICT (vault, spender) DO UPDATE SET
            authorized = EXCLUDED.authorized,
            daily_limit = EXCLUDED.daily_limit,
            spent_today = EXCLUDED.spent_today,
            period_start = EXCLUDED.period_start,
            updated_at = now()`,
		key(vault), key(auth.Spender), auth.Authorized, auth.DailyLimit.Dec(), auth.SpentToday.Dec(), auth.PeriodStart.UTC())
	return err
}

// LoadSpenders reads a vault's spender table.
func (r *PostgresRepository) LoadSpenders(ctx context.Context, vault common.Address) ([]custody.SpenderAuthorization, error) {
	rows, err := r.db.Query(ctx, `SELECT spender, authorized, daily_limit::text, spent_today::text, period_start
        FROM spender_authorizations WHERE vault = $1 ORDER BY spender`, key(vault))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []custody.SpenderAuthorization
	for rows.Next() {
		var (
			spender       string
			auth          custody.SpenderAuthorization
			limit, spent  string
			periodStarted time.Time
		)
		if err := rows.Scan(&spender, &auth.Authorized, &limit, &spent, &periodStarted); err != nil {
			return nil, err
		}
		if err := auth.DailyLimit.SetFromDecimal(limit); err != nil {
			return nil, fmt.Errorf("parse daily limit %q: %w", limit, err)
		}
		if err := auth.SpentToday.SetFromDecimal(spent); err != nil {
			return nil, fmt.Errorf("parse spent today %q: %w", spent, err)
		}
		auth.Spender = common.HexToAddress(spender)
		auth.PeriodStart = periodStarted.UTC()
		out = append(out, auth)
	}
	return out, rows.Err()
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w                       Wallet
		id                      uuid.UUID
		address, owner, creator string
		createdAt               time.Time
	)
	if err := row.Scan(&id, &address, &owner, &creator, &createdAt); err != nil {
		return Wallet{}, err
	}
	w.ID = id.String()
	w.Address = common.HexToAddress(address)
	w.Owner = common.HexToAddress(owner)
	w.Creator = common.HexToAddress(creator)
	w.CreatedAt = createdAt.UTC()
	return w, nil
}

func key(a common.Address) string {
	return strings.ToLower(a.Hex())
}
