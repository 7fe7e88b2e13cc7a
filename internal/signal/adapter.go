// Package signal normalizes heterogeneous analyst outputs into canonical
// votes. Each analyst is an independent collaborator; one failing analyst
// costs its vote, never the tick.
package signal

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/models"
)

// Analyst is one market-signal source. Implementations live outside this
// repository; the collector only relies on this surface.
type Analyst interface {
	Name() string
	Analyze(ctx context.Context, pair models.Pair, interval string) (*models.AnalystReport, error)
}

// Collection carries the structured votes of one gathering round plus the
// raw analyst prose, which the fusion engine feeds to the language-model
// fallback when no vote parsed.
type Collection struct {
	Pair       models.Pair
	Votes      []models.SignalVote
	RawReports map[string]string
}

// Collector fans a tick out to every registered analyst.
type Collector struct {
	analysts []Analyst
	logger   *zap.Logger
	now      func() time.Time
}

func NewCollector(analysts []Analyst, logger *zap.Logger) *Collector {
	return &Collector{
		analysts: analysts,
		logger:   logger.Named("signal"),
		now:      time.Now,
	}
}

// Collect gathers one vote per analyst for the given symbol. An analyst
// error, panic or unparseable payload removes that analyst's vote and
// nothing else. An unresolvable symbol yields an empty collection and a
// logged parse error.
func (c *Collector) Collect(ctx context.Context, symbol, interval string) Collection {
	pair, err := models.ParsePair(symbol)
	if err != nil {
		c.logger.Error("symbol excluded from collection", zap.String("symbol", symbol), zap.Error(err))
		return Collection{RawReports: map[string]string{}}
	}

	type result struct {
		source string
		vote   *models.SignalVote
		raw    string
	}

	results := make([]result, len(c.analysts))
	var wg sync.WaitGroup
	for i, analyst := range c.analysts {
		wg.Add(1)
		go func(i int, a Analyst) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.logger.Warn("analyst panicked",
						zap.String("analyst", a.Name()), zap.Any("panic", r))
				}
			}()

			report, err := a.Analyze(ctx, pair, interval)
			if err != nil {
				c.logger.Warn("analyst failed, skipping its vote",
					zap.String("analyst", a.Name()), zap.Error(err))
				return
			}
			if report == nil {
				return
			}

			res := result{source: a.Name(), raw: report.RawText()}
			if vote, ok := parseReport(a.Name(), *report, c.now()); ok {
				res.vote = &vote
			} else {
				c.logger.Debug("analyst report carried no structured vote",
					zap.String("analyst", a.Name()))
			}
			results[i] = res
		}(i, analyst)
	}
	wg.Wait()

	coll := Collection{Pair: pair, RawReports: map[string]string{}}
	for _, res := range results {
		if res.source == "" {
			continue
		}
		if res.raw != "" {
			coll.RawReports[res.source] = res.raw
		}
		if res.vote != nil {
			coll.Votes = append(coll.Votes, *res.vote)
		}
	}
	sort.Slice(coll.Votes, func(i, j int) bool {
		return coll.Votes[i].SourceID < coll.Votes[j].SourceID
	})
	return coll
}
