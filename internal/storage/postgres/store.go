// Package postgres provides the Postgres-backed time-series store.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/merchwire/shopsignal/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the Postgres connection pool.
type Config struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

type dbPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements store.TimeSeries on Postgres.
type Store struct {
	pool dbPool
}

var _ store.TimeSeries = (*Store)(nil)

// NewStore connects a pool using the provided config.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a Store from an existing pool (primarily for testing).
func NewStoreWithPool(pool dbPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate applies the embedded schema statement by statement.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range splitStatements(schemaSQL) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// EnsureBrand upserts the brand by domain and returns its id. Name, category,
// and ads account mutate on re-discovery.
func (s *Store) EnsureBrand(ctx context.Context, brand store.Brand) (int64, error) {
	if brand.Domain == "" {
		return 0, fmt.Errorf("brand domain is required")
	}
	query := `
		INSERT INTO brands (name, domain, category, ads_account_id)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (domain) DO UPDATE SET
		  name = EXCLUDED.name,
		  category = EXCLUDED.category,
		  ads_account_id = EXCLUDED.ads_account_id
		RETURNING id`
	var id int64
	err := s.pool.QueryRow(ctx, query, brand.Name, brand.Domain, brand.Category, brand.AdAccountID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert brand %s: %w", brand.Domain, err)
	}
	return id, nil
}

// SaveCrawl persists one brand's full crawl result for day inside a single
// transaction. A product's variant set becomes visible atomically or not at all.
func (s *Store) SaveCrawl(ctx context.Context, brandID int64, day time.Time, products []store.ProductRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin crawl tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, product := range products {
		productID, err := ensureProduct(ctx, tx, brandID, product)
		if err != nil {
			return err
		}
		for i, raw := range product.Variants {
			variant := store.ExtractVariant(raw, i+1)
			variantID, err := ensureVariant(ctx, tx, productID, variant)
			if err != nil {
				return err
			}
			if err := upsertPrice(ctx, tx, variantID, day, variant); err != nil {
				return err
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit crawl tx: %w", err)
	}
	return nil
}

func ensureProduct(ctx context.Context, tx pgx.Tx, brandID int64, product store.ProductRecord) (int64, error) {
	query := `
		INSERT INTO products (brand_id, handle, title, url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (brand_id, handle) DO UPDATE SET
		  title = EXCLUDED.title,
		  url = EXCLUDED.url
		RETURNING id`
	var id int64
	if err := tx.QueryRow(ctx, query, brandID, product.Handle, product.Title, product.URL).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert product %s: %w", product.Handle, err)
	}
	return id, nil
}

func ensureVariant(ctx context.Context, tx pgx.Tx, productID int64, variant store.Variant) (int64, error) {
	// SKU identity when present, position identity otherwise. The two
	// partial unique indexes make each upsert target unambiguous.
	var query string
	if variant.SKU != nil {
		query = `
			INSERT INTO variants (product_id, sku, position, options)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (product_id, sku) WHERE sku IS NOT NULL DO UPDATE SET
			  position = EXCLUDED.position,
			  options = EXCLUDED.options
			RETURNING id`
	} else {
		query = `
			INSERT INTO variants (product_id, sku, position, options)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (product_id, position) WHERE sku IS NULL DO UPDATE SET
			  options = EXCLUDED.options
			RETURNING id`
	}
	var id int64
	if err := tx.QueryRow(ctx, query, productID, variant.SKU, variant.Position, variant.OptionsJSON).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert variant: %w", err)
	}
	return id, nil
}

func upsertPrice(ctx context.Context, tx pgx.Tx, variantID int64, day time.Time, variant store.Variant) error {
	query := `
		INSERT INTO prices (variant_id, ts_date, currency, price_cents, compare_at_cents, available)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (variant_id, ts_date) DO UPDATE SET
		  currency = EXCLUDED.currency,
		  price_cents = EXCLUDED.price_cents,
		  compare_at_cents = EXCLUDED.compare_at_cents,
		  available = EXCLUDED.available`
	_, err := tx.Exec(ctx, query, variantID, day, variant.Currency, variant.PriceCents, variant.CompareAtCents, variant.Available)
	if err != nil {
		return fmt.Errorf("upsert price: %w", err)
	}
	return nil
}

// SaveAdObservation upserts one brand's ad counts for day.
func (s *Store) SaveAdObservation(ctx context.Context, brandID int64, day time.Time, activeAds, newAds24h int) error {
	query := `
		INSERT INTO ads_daily (brand_id, ts_date, active_ads, new_ads_24h)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (brand_id, ts_date) DO UPDATE SET
		  active_ads = EXCLUDED.active_ads,
		  new_ads_24h = EXCLUDED.new_ads_24h`
	if _, err := s.pool.Exec(ctx, query, brandID, day, activeAds, newAds24h); err != nil {
		return fmt.Errorf("upsert ad observation: %w", err)
	}
	return nil
}

// PriceRows returns every price observation for day joined with its brand and
// product identity plus the 1-day and 7-day lagged prices per variant.
func (s *Store) PriceRows(ctx context.Context, day time.Time) ([]store.PriceRow, error) {
	query := `
		WITH base AS (
		    SELECT pr.ts_date, b.id AS brand_id, b.name AS brand, b.category,
		           p.title, p.url, v.sku,
		           pr.price_cents, pr.compare_at_cents, pr.available,
		           LAG(pr.price_cents) OVER (PARTITION BY pr.variant_id ORDER BY pr.ts_date) AS price_1d,
		           LAG(pr.price_cents, 7) OVER (PARTITION BY pr.variant_id ORDER BY pr.ts_date) AS price_7d
		    FROM prices pr
		    JOIN variants v ON v.id = pr.variant_id
		    JOIN products p ON p.id = v.product_id
		    JOIN brands b ON b.id = p.brand_id
		    WHERE pr.ts_date <= $1
		)
		SELECT ts_date, brand_id, brand, category, title, url, sku,
		       price_cents, compare_at_cents, available, price_1d, price_7d
		FROM base
		WHERE ts_date = $1
		ORDER BY brand_id, title, sku`
	rows, err := s.pool.Query(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("query price rows: %w", err)
	}
	defer rows.Close()

	var out []store.PriceRow
	for rows.Next() {
		var row store.PriceRow
		err := rows.Scan(
			&row.Date,
			&row.BrandID,
			&row.BrandName,
			&row.Category,
			&row.Title,
			&row.URL,
			&row.SKU,
			&row.PriceCents,
			&row.CompareAtCents,
			&row.Available,
			&row.Price1d,
			&row.Price7d,
		)
		if err != nil {
			return nil, fmt.Errorf("scan price row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price rows: %w", err)
	}
	return out, nil
}

// AdActivity returns each brand's ad window ending on day: the day's counts
// plus the trailing active-ad counts from the preceding six days.
func (s *Store) AdActivity(ctx context.Context, day time.Time) (map[int64]store.AdWindow, error) {
	start := day.AddDate(0, 0, -6)
	query := `
		SELECT brand_id, ts_date, active_ads, new_ads_24h
		FROM ads_daily
		WHERE ts_date BETWEEN $1 AND $2
		ORDER BY brand_id, ts_date`
	rows, err := s.pool.Query(ctx, query, start, day)
	if err != nil {
		return nil, fmt.Errorf("query ad activity: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64][]int)
	latest := make(map[int64]store.AdWindow)
	var order []int64
	for rows.Next() {
		var (
			brandID   int64
			tsDate    time.Time
			activeAds int
			newAds    int
		)
		if err := rows.Scan(&brandID, &tsDate, &activeAds, &newAds); err != nil {
			return nil, fmt.Errorf("scan ad activity: %w", err)
		}
		if _, seen := counts[brandID]; !seen {
			order = append(order, brandID)
		}
		counts[brandID] = append(counts[brandID], activeAds)
		latest[brandID] = store.AdWindow{ActiveToday: activeAds, NewAds24h: newAds}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ad activity: %w", err)
	}

	out := make(map[int64]store.AdWindow, len(order))
	for _, brandID := range order {
		window := latest[brandID]
		series := counts[brandID]
		window.Trailing = series[:len(series)-1]
		out[brandID] = window
	}
	return out, nil
}

// SaveLeaderboard upserts the ranked entries for day in one transaction.
func (s *Store) SaveLeaderboard(ctx context.Context, day time.Time, entries []store.LeaderboardEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin leaderboard tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO leaders (ts_date, brand_id, score, rank)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ts_date, brand_id) DO UPDATE SET
		  score = EXCLUDED.score,
		  rank = EXCLUDED.rank`
	for _, entry := range entries {
		if _, err := tx.Exec(ctx, query, day, entry.BrandID, entry.Score, entry.Rank); err != nil {
			return fmt.Errorf("upsert leaderboard entry: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit leaderboard tx: %w", err)
	}
	return nil
}

// StartRun records a new run as running.
func (s *Store) StartRun(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	query := `
		INSERT INTO runs (id, started_at, status)
		VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, query, id, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun marks the run finished with the provided status and error.
func (s *Store) FinishRun(ctx context.Context, id uuid.UUID, finishedAt time.Time, status store.RunStatus, errMsg *string) error {
	query := `
		UPDATE runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE id = $4`
	if _, err := s.pool.Exec(ctx, query, finishedAt, status, errMsg, id); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func splitStatements(sql string) []string {
	var (
		out    []string
		buffer []string
	)
	for _, line := range strings.Split(sql, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		buffer = append(buffer, line)
		if strings.HasSuffix(stripped, ";") {
			out = append(out, strings.Join(buffer, "\n"))
			buffer = buffer[:0]
		}
	}
	if len(buffer) > 0 {
		out = append(out, strings.Join(buffer, "\n"))
	}
	return out
}
