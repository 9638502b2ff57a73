// Package store declares the persistence contract for brand, product, and
// observation rows. Implementations live in other packages; this package must
// not import database drivers or concrete clients.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// RunStatus mirrors the runs status column.
type RunStatus string

// Run statuses persisted in runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run models one daily ingestion run.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// Brand is a tracked storefront. Domain is the identity key.
type Brand struct {
	ID       int64
	Name     string
	Domain   string
	Category string
	// AdAccountID is the external ads-directory account, empty when untracked.
	AdAccountID string
}

// ProductRecord is one crawled product with its raw variant payloads as
// returned by the origin, prices in major-currency decimal units.
type ProductRecord struct {
	Handle   string
	Title    string
	URL      string
	Variants []map[string]any
}

// Variant is the typed form of one raw variant payload.
type Variant struct {
	// SKU is nil when the origin omits it; identity then falls back to
	// the variant's position within the product.
	SKU      *string
	Position int
	// OptionsJSON carries the origin's option keys opaquely.
	OptionsJSON    []byte
	Currency       string
	PriceCents     *int64
	CompareAtCents *int64
	Available      bool
}

// PriceRow is one variant-day observation joined with its brand and product
// identity plus lagged prices for signal computation.
type PriceRow struct {
	Date           time.Time
	BrandID        int64
	BrandName      string
	Category       string
	Title          string
	URL            string
	SKU            *string
	PriceCents     *int64
	CompareAtCents *int64
	Available      bool
	Price1d        *int64
	Price7d        *int64
}

// AdWindow is one brand's ad activity for a date: the day's counts plus the
// trailing active-ad counts from the preceding days of the window.
type AdWindow struct {
	ActiveToday int
	NewAds24h   int
	Trailing    []int
}

// LeaderboardEntry is one ranked brand for a date.
type LeaderboardEntry struct {
	BrandID   int64
	BrandName string
	Score     float64
	Rank      int
}

// TimeSeries persists crawl results and serves the signal read queries.
// All writes are upserts keyed on the identities in the schema; SaveCrawl
// commits one brand's full result as a single transaction.
type TimeSeries interface {
	EnsureBrand(ctx context.Context, brand Brand) (int64, error)
	SaveCrawl(ctx context.Context, brandID int64, day time.Time, products []ProductRecord) error
	SaveAdObservation(ctx context.Context, brandID int64, day time.Time, activeAds, newAds24h int) error
	PriceRows(ctx context.Context, day time.Time) ([]PriceRow, error)
	AdActivity(ctx context.Context, day time.Time) (map[int64]AdWindow, error)
	SaveLeaderboard(ctx context.Context, day time.Time, entries []LeaderboardEntry) error
	StartRun(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	FinishRun(ctx context.Context, id uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
}
