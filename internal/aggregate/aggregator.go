// Package aggregate drives content acquisition for one research job:
// mapping the site, selecting candidate pages and assembling the corpus.
package aggregate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rivalscope/research/internal/hash/sha256"
	"github.com/rivalscope/research/internal/research"
)

// Result is the acquired raw material for one job.
type Result struct {
	Corpus string
	Brand  *research.Brand
	Meta   research.RawContentMeta
}

// Aggregator acquires a competitor's site content through the hosted
// acquisition service.
type Aggregator struct {
	content      research.ContentClient
	corpusBudget int
	hasher       *sha256.Hasher
	logger       *zap.Logger
}

// New builds an aggregator. A non-positive corpusBudget uses the default.
func New(content research.ContentClient, corpusBudget int, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		content:      content,
		corpusBudget: corpusBudget,
		hasher:       sha256.New(),
		logger:       logger,
	}
}

// Run acquires the site rooted at website and returns the assembled
// corpus. Only a failed homepage scrape is fatal; a failed map degrades
// to a homepage-only run and failed secondary pages are skipped.
func (a *Aggregator) Run(ctx context.Context, website string) (Result, error) {
	rootURL, err := research.NormalizeWebsite(website)
	if err != nil {
		return Result{}, fmt.Errorf("normalize website: %w", err)
	}

	links, err := a.content.MapSite(ctx, rootURL, research.MaxMappedLinks)
	if err != nil {
		a.logger.Warn("site map failed, continuing with homepage only",
			zap.String("url", rootURL), zap.Error(err))
		links = nil
	}
	candidates := research.SelectCandidates(rootURL, links)

	builder := research.NewCorpusBuilder(a.corpusBudget)
	seen := make(map[string]string, len(candidates))
	var brand *research.Brand
	for _, page := range candidates {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		opts := research.ScrapeOptions{IncludeBranding: page.Category == research.CategoryHomepage}
		scraped, err := a.content.Scrape(ctx, page.URL, opts)
		if err != nil {
			if page.Category == research.CategoryHomepage {
				return Result{}, fmt.Errorf("scrape homepage %s: %w", page.URL, err)
			}
			a.logger.Warn("page skipped",
				zap.String("url", page.URL),
				zap.String("category", string(page.Category)),
				zap.Error(err))
			builder.SkipPage(page, err.Error())
			continue
		}
		if scraped.Brand != nil {
			brand = scraped.Brand
		}
		// Marketing sites often alias the same page under several URLs.
		// Identical content only pads the corpus, so keep the first copy.
		digest, err := a.hasher.Hash([]byte(scraped.Markdown))
		if err == nil {
			if dup, ok := seen[digest]; ok {
				a.logger.Debug("duplicate content skipped",
					zap.String("url", page.URL),
					zap.String("duplicate_of", dup))
				builder.SkipPage(page, "duplicate of "+dup)
				continue
			}
			seen[digest] = page.URL
		}
		builder.AddPage(page, scraped.Markdown)
	}

	corpus, meta := builder.Build()
	a.logger.Info("content aggregated",
		zap.String("url", rootURL),
		zap.Int("pages", len(meta.Pages)),
		zap.Int("bytes", meta.TotalBytes),
		zap.Bool("truncated", meta.Truncated))
	return Result{Corpus: corpus, Brand: brand, Meta: meta}, nil
}
