package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists token records in creation order.
type Repository interface {
	Create(ctx context.Context, record Record) error
	Get(ctx context.Context, address common.Address) (Record, error)
	ListByCreator(ctx context.Context, creator common.Address) ([]Record, error)
	// Count returns how many tokens have ever been recorded. It seeds the
	// factory nonce.
	Count(ctx context.Context) (uint64, error)
	Delete(ctx context.Context, address common.Address) error
}

// PostgresRepository stores token records in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a token record.
func (r *PostgresRepository) Create(ctx context.Context, record Record) error {
	_, err := r.db.Exec(ctx, `INSERT INTO tokens (address, name, symbol, decimals, total_supply, creator, created_at)
        VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)`,
		addressKey(record.Address), record.Name, record.Symbol, int16(record.Decimals),
		record.TotalSupply.Dec(), addressKey(record.Creator), record.CreatedAt.UTC())
	return err
}

// Get fetches a token by address.
func (r *PostgresRepository) Get(ctx context.Context, address common.Address) (Record, error) {
	row := r.db.QueryRow(ctx, `SELECT address, name, symbol, decimals, total_supply::text, creator, created_at
        FROM tokens WHERE address = $1`, addressKey(address))
	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrTokenNotFound
	}
	return record, err
}

// ListByCreator returns the creator's tokens oldest first.
func (r *PostgresRepository) ListByCreator(ctx context.Context, creator common.Address) ([]Record, error) {
	rows, err := r.db.Query(ctx, `SELECT address, name, symbol, decimals, total_supply::text, creator, created_at
        FROM tokens WHERE creator = $1 ORDER BY seq`, addressKey(creator))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Count returns the number of recorded tokens.
func (r *PostgresRepository) Count(ctx context.Context) (uint64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tokens`).Scan(&n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// Delete removes a token record.
func (r *PostgresRepository) Delete(ctx context.Context, address common.Address) error {
	_, err := r.db.Exec(ctx, `DELETE FROM tokens WHERE address = $1`, addressKey(address))
	return err
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		record    Record
		address   string
		creator   string
		decimals  int16
		supply    string
		createdAt time.Time
	)
	if err := row.Scan(&address, &record.Name, &record.Symbol, &decimals, &supply, &creator, &createdAt); err != nil {
		return Record{}, err
	}
	total, err := uint256.FromDecimal(supply)
	if err != nil {
		return Record{}, fmt.Errorf("parse total supply %q: %w", supply, err)
	}
	record.Address = common.HexToAddress(address)
	record.Creator = common.HexToAddress(creator)
	record.Decimals = uint8(decimals)
	record.TotalSupply = total
	record.CreatedAt = createdAt.UTC()
	return record, nil
}

func addressKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}
