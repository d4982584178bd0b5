package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/olyamironova/matching-core/internal/port"
	"github.com/shopspring/decimal"
)

var (
	_ port.PairLoader = (*PgRepo)(nil)
	_ port.TradeSink  = (*PgRepo)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS trading_pairs (
  symbol           TEXT PRIMARY KEY,
  base_coin        TEXT NOT NULL,
  quote_coin       TEXT NOT NULL,
  enabled          BOOLEAN NOT NULL DEFAULT TRUE,
  price_precision  INT NOT NULL DEFAULT 8,
  amount_precision INT NOT NULL DEFAULT 8,
  min_amount       NUMERIC(36,18) NOT NULL DEFAULT 0,
  max_amount       NUMERIC(36,18) NOT NULL DEFAULT 0,
  min_price        NUMERIC(36,18) NOT NULL DEFAULT 0,
  max_price        NUMERIC(36,18) NOT NULL DEFAULT 0,
  fee_rate         NUMERIC(12,8) NOT NULL DEFAULT 0.001
);
CREATE TABLE IF NOT EXISTS trades (
  trade_no       TEXT PRIMARY KEY,
  symbol         TEXT NOT NULL,
  maker_order_id BIGINT NOT NULL,
  taker_order_id BIGINT NOT NULL,
  maker_user_id  BIGINT NOT NULL,
  taker_user_id  BIGINT NOT NULL,
  taker_side     TEXT NOT NULL,
  price          NUMERIC(36,18) NOT NULL,
  amount         NUMERIC(36,18) NOT NULL,
  value          NUMERIC(36,18) NOT NULL,
  maker_fee      NUMERIC(36,18) NOT NULL,
  taker_fee      NUMERIC(36,18) NOT NULL,
  created_at     TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS market_stats (
  symbol      TEXT PRIMARY KEY,
  last_price  NUMERIC(36,18) NOT NULL,
  volume      NUMERIC(36,18) NOT NULL,
  trade_count BIGINT NOT NULL,
  updated_at  TIMESTAMPTZ NOT NULL
);`

type PgRepo struct {
	pool *pgxpool.Pool
}

// call Close when finish to work with database.
func NewPgRepo(ctx context.Context, dsn string) (*PgRepo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	return &PgRepo{pool: pool}, nil
}

func (p *PgRepo) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PgRepo) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pg: ensure schema: %w", err)
	}
	return nil
}

// LoadPairs reads every configured trading pair. Numerics are read as text
// so no precision is lost on the way to decimal.
func (p *PgRepo) LoadPairs(ctx context.Context) ([]domain.TradingPair, error) {
	rows, err := p.pool.Query(ctx, `
SELECT symbol, base_coin, quote_coin, enabled, price_precision, amount_precision,
       min_amount::text, max_amount::text, min_price::text, max_price::text, fee_rate::text
FROM trading_pairs
ORDER BY symbol
`)
	if err != nil {
		return nil, fmt.Errorf("pg: load pairs: %w", err)
	}
	defer rows.Close()

	var out []domain.TradingPair
	for rows.Next() {
		var (
			tp                                   domain.TradingPair
			minAmt, maxAmt, minPx, maxPx, feeStr string
		)
		if err := rows.Scan(&tp.Symbol, &tp.BaseCoin, &tp.QuoteCoin, &tp.Enabled,
			&tp.PricePrecision, &tp.AmountPrecision,
			&minAmt, &maxAmt, &minPx, &maxPx, &feeStr); err != nil {
			return nil, fmt.Errorf("pg: scan pair: %w", err)
		}
		if err := parseDecimals(
			decimalField{minAmt, &tp.MinAmount},
			decimalField{maxAmt, &tp.MaxAmount},
			decimalField{minPx, &tp.MinPrice},
			decimalField{maxPx, &tp.MaxPrice},
			decimalField{feeStr, &tp.FeeRate},
		); err != nil {
			return nil, fmt.Errorf("pg: pair %s: %w", tp.Symbol, err)
		}
		out = append(out, tp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg: load pairs: %w", err)
	}
	return out, nil
}

// ApplyTrade records t in the trade ledger and rolls it into the market
// stats. A trade number seen before is ignored.
func (p *PgRepo) ApplyTrade(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil {
		return errors.New("pg: nil trade")
	}
	return withTx(ctx, p.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
INSERT INTO trades(trade_no, symbol, maker_order_id, taker_order_id, maker_user_id, taker_user_id,
                   taker_side, price, amount, value, maker_fee, taker_fee, created_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8::numeric,$9::numeric,$10::numeric,$11::numeric,$12::numeric,$13)
ON CONFLICT (trade_no) DO NOTHING
`, t.TradeNo, t.Symbol, t.MakerOrderID, t.TakerOrderID, t.MakerUserID, t.TakerUserID,
			string(t.TakerSide), t.Price.String(), t.Amount.String(), t.Value.String(),
			t.MakerFee.String(), t.TakerFee.String(), t.CreatedAt)
		if err != nil {
			return fmt.Errorf("pg: insert trade %s: %w", t.TradeNo, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `
INSERT INTO market_stats(symbol, last_price, volume, trade_count, updated_at)
VALUES($1, $2::numeric, $3::numeric, 1, $4)
ON CONFLICT (symbol) DO UPDATE SET
  last_price  = EXCLUDED.last_price,
  volume      = market_stats.volume + EXCLUDED.volume,
  trade_count = market_stats.trade_count + 1,
  updated_at  = EXCLUDED.updated_at
`, t.Symbol, t.Price.String(), t.Amount.String(), t.CreatedAt)
		if err != nil {
			return fmt.Errorf("pg: update market stats %s: %w", t.Symbol, err)
		}
		return nil
	})
}

type decimalField struct {
	raw string
	dst *decimal.Decimal
}

func parseDecimals(fields ...decimalField) error {
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return err
		}
		*f.dst = d
	}
	return nil
}
