package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ligun0805/token-launchpad/internal/domain"
	"github.com/ligun0805/token-launchpad/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
	now  func() time.Time
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool, now: time.Now}
}

// Compile-time interface checks.
var (
	_ storage.TokenStore = (*TokenStore)(nil)
	_ storage.Pinger     = (*TokenStore)(nil)
)

const tokenColumns = `
	address, name, symbol, total_supply, decimals, tier, creator_address,
	tx_hash, block_number, lp_pair_address, liquidity_added, liquidity_metadata,
	tier_fee_wei, auto_approved, distributed, created_at, updated_at`

// Upsert inserts a token or replaces every pipeline-owned column of an
// existing row. created_at is kept from the first insert.
func (s *TokenStore) Upsert(ctx context.Context, t *domain.TokenRecord) error {
	if t == nil || t.Address == "" {
		return storage.ErrInvalidInput
	}

	meta, err := json.Marshal(t.Liquidity)
	if err != nil {
		return fmt.Errorf("encode liquidity metadata: %w", err)
	}

	query := `
		INSERT INTO tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		ON CONFLICT (address) DO UPDATE SET
			name               = EXCLUDED.name,
			symbol             = EXCLUDED.symbol,
			total_supply       = EXCLUDED.total_supply,
			decimals           = EXCLUDED.decimals,
			tier               = EXCLUDED.tier,
			creator_address    = EXCLUDED.creator_address,
			tx_hash            = EXCLUDED.tx_hash,
			block_number       = EXCLUDED.block_number,
			lp_pair_address    = EXCLUDED.lp_pair_address,
			liquidity_added    = EXCLUDED.liquidity_added,
			liquidity_metadata = EXCLUDED.liquidity_metadata,
			tier_fee_wei       = EXCLUDED.tier_fee_wei,
			auto_approved      = tokens.auto_approved OR EXCLUDED.auto_approved,
			distributed        = tokens.distributed OR EXCLUDED.distributed,
			updated_at         = EXCLUDED.updated_at
		RETURNING created_at, updated_at, auto_approved, distributed
	`

	address := domain.NormalizeAddress(t.Address)
	creator := domain.NormalizeAddress(t.CreatorAddress)
	err = s.pool.QueryRow(ctx, query,
		address,
		t.Name,
		t.Symbol,
		t.TotalSupply,
		t.Decimals,
		t.Tier,
		creator,
		t.TxHash,
		int64(t.BlockNumber),
		t.Pair.String(),
		t.LiquidityAdded,
		meta,
		t.TierFeeWei,
		t.AutoApproved,
		t.Distributed,
		s.now().UnixMilli(),
	).Scan(&t.CreatedAt, &t.UpdatedAt, &t.AutoApproved, &t.Distributed)
	if err != nil {
		return fmt.Errorf("upsert token %s: %w", address, err)
	}
	t.Address = address
	t.CreatorAddress = creator
	return nil
}

// GetByAddress retrieves a token by address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByAddress(ctx context.Context, address string) (*domain.TokenRecord, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE address = $1`

	row := s.pool.QueryRow(ctx, query, domain.NormalizeAddress(address))
	t, err := scanToken(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by address: %w", err)
	}
	return t, nil
}

// ListByCreator retrieves a creator's tokens ordered by created_at ASC.
func (s *TokenStore) ListByCreator(ctx context.Context, creator string) ([]*domain.TokenRecord, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE creator_address = $1
		ORDER BY created_at ASC, address ASC
	`

	rows, err := s.pool.Query(ctx, query, domain.NormalizeAddress(creator))
	if err != nil {
		return nil, fmt.Errorf("list tokens by creator: %w", err)
	}
	defer rows.Close()

	var result []*domain.TokenRecord
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return result, nil
}

// Ping checks database reachability.
func (s *TokenStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// scanToken scans a single row into TokenRecord.
func scanToken(row pgx.Row) (*domain.TokenRecord, error) {
	var (
		t           domain.TokenRecord
		blockNumber int64
		pair        string
		meta        []byte
	)

	err := row.Scan(
		&t.Address,
		&t.Name,
		&t.Symbol,
		&t.TotalSupply,
		&t.Decimals,
		&t.Tier,
		&t.CreatorAddress,
		&t.TxHash,
		&blockNumber,
		&pair,
		&t.LiquidityAdded,
		&meta,
		&t.TierFeeWei,
		&t.AutoApproved,
		&t.Distributed,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.BlockNumber = uint64(blockNumber)
	if t.Pair, err = domain.ParsePairRef(pair); err != nil {
		return nil, fmt.Errorf("lp_pair_address %q: %w", pair, err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Liquidity); err != nil {
			return nil, fmt.Errorf("decode liquidity metadata: %w", err)
		}
	}
	return &t, nil
}
