package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/merchwire/shopsignal/internal/ads"
	"github.com/merchwire/shopsignal/internal/clock"
	"github.com/merchwire/shopsignal/internal/crawler"
	"github.com/merchwire/shopsignal/internal/store"
)

// ProductSource crawls one storefront's catalog.
type ProductSource interface {
	FetchProducts(ctx context.Context, domain string) ([]crawler.Product, error)
}

// AdSource fetches one brand's ad activity summary.
type AdSource interface {
	FetchSummary(ctx context.Context, accountID string, today time.Time) (ads.Summary, error)
}

// Runner executes one full daily run: crawl every configured brand, fetch
// ads, persist, then assemble and persist the digest. Brand failures are
// isolated; the digest is assembled from whatever landed.
type Runner struct {
	brands    []store.Brand
	crawler   ProductSource
	ads       AdSource
	store     store.TimeSeries
	assembler *Assembler
	clock     clock.Clock
	logger    *zap.Logger
}

// NewRunner wires a Runner. ads may be nil when no token is configured; ad
// ingestion is then skipped for every brand.
func NewRunner(
	brands []store.Brand,
	products ProductSource,
	adSource AdSource,
	ts store.TimeSeries,
	assembler *Assembler,
	clk clock.Clock,
	logger *zap.Logger,
) *Runner {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		brands:    brands,
		crawler:   products,
		ads:       adSource,
		store:     ts,
		assembler: assembler,
		clock:     clk,
		logger:    logger,
	}
}

// Run ingests every brand for day and returns the assembled digest. A brand
// whose crawl or ads fetch fails is logged and skipped; only store-level
// failures around the digest itself abort the run.
func (r *Runner) Run(ctx context.Context, day time.Time) (*Digest, error) {
	runID := uuid.New()
	log := r.logger.With(zap.String("run_id", runID.String()), zap.String("date", clock.FormatDate(day)))
	if err := r.store.StartRun(ctx, runID, r.clock.Now()); err != nil {
		return nil, fmt.Errorf("record run start: %w", err)
	}

	degraded := 0
	for _, brand := range r.brands {
		if err := r.ingestBrand(ctx, log, brand, day); err != nil {
			degraded++
		}
	}

	digest, err := r.assembler.Assemble(ctx, day)
	if err != nil {
		r.finish(ctx, log, runID, store.RunError, err.Error())
		return nil, err
	}
	if err := r.store.SaveLeaderboard(ctx, day, leaderboardEntries(digest.Leaderboard)); err != nil {
		r.finish(ctx, log, runID, store.RunError, err.Error())
		return nil, fmt.Errorf("persist leaderboard: %w", err)
	}

	if degraded > 0 {
		r.finish(ctx, log, runID, store.RunSuccess, fmt.Sprintf("%d of %d brands degraded", degraded, len(r.brands)))
	} else {
		r.finish(ctx, log, runID, store.RunSuccess, "")
	}
	return digest, nil
}

func (r *Runner) ingestBrand(ctx context.Context, log *zap.Logger, brand store.Brand, day time.Time) error {
	blog := log.With(zap.String("brand", brand.Name), zap.String("domain", brand.Domain))

	brandID, err := r.store.EnsureBrand(ctx, brand)
	if err != nil {
		blog.Warn("brand upsert failed", zap.Error(err))
		return err
	}

	products, err := r.crawler.FetchProducts(ctx, brand.Domain)
	switch {
	case crawler.IsPolicyViolation(err):
		blog.Warn("crawl blocked by robots policy, skipping brand", zap.Error(err))
		return err
	case err != nil:
		blog.Warn("crawl failed, skipping brand", zap.Error(err))
		return err
	default:
		records := productRecords(products)
		if err := r.store.SaveCrawl(ctx, brandID, day, records); err != nil {
			blog.Warn("persisting crawl failed", zap.Error(err))
			return err
		}
		blog.Info("crawl persisted", zap.Int("products", len(records)))
	}

	if r.ads == nil || brand.AdAccountID == "" {
		return nil
	}
	summary, err := r.ads.FetchSummary(ctx, brand.AdAccountID, day)
	if err != nil {
		// ads degradation does not undo the crawl that already landed
		blog.Warn("ads fetch failed", zap.Error(err))
		return nil
	}
	if err := r.store.SaveAdObservation(ctx, brandID, day, summary.ActiveAds, summary.NewAdsLast24h); err != nil {
		blog.Warn("persisting ad observation failed", zap.Error(err))
		return nil
	}
	return nil
}

func (r *Runner) finish(ctx context.Context, log *zap.Logger, runID uuid.UUID, status store.RunStatus, message string) {
	var errMsg *string
	if message != "" {
		errMsg = &message
	}
	if err := r.store.FinishRun(ctx, runID, r.clock.Now(), status, errMsg); err != nil {
		log.Warn("recording run completion failed", zap.Error(err))
	}
}

func productRecords(products []crawler.Product) []store.ProductRecord {
	records := make([]store.ProductRecord, 0, len(products))
	for _, p := range products {
		records = append(records, store.ProductRecord{
			Handle:   p.Handle,
			Title:    p.Title,
			URL:      p.URL,
			Variants: p.Variants,
		})
	}
	return records
}

func leaderboardEntries(leaders []Leader) []store.LeaderboardEntry {
	entries := make([]store.LeaderboardEntry, 0, len(leaders))
	for _, l := range leaders {
		entries = append(entries, store.LeaderboardEntry{
			BrandID:   l.BrandID,
			BrandName: l.Brand,
			Score:     l.Score,
			Rank:      l.Rank,
		})
	}
	return entries
}
