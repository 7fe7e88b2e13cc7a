package signal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/models"
)

type scriptedAnalyst struct {
	name   string
	report *models.AnalystReport
	err    error
	panics bool
}

func (s *scriptedAnalyst) Name() string { return s.name }

func (s *scriptedAnalyst) Analyze(context.Context, models.Pair, string) (*models.AnalystReport, error) {
	if s.panics {
		panic("analyst exploded")
	}
	return s.report, s.err
}

func collect(t *testing.T, analysts ...Analyst) Collection {
	t.Helper()
	c := NewCollector(analysts, zap.NewNop())
	return c.Collect(context.Background(), "BTC/USDT", "1h")
}

func TestCollectGathersVotesSortedBySource(t *testing.T) {
	coll := collect(t,
		&scriptedAnalyst{name: "zeta", report: &models.AnalystReport{Action: "SELL", Confidence: 70.0}},
		&scriptedAnalyst{name: "alpha", report: &models.AnalystReport{Action: "BUY", Confidence: 80.0}},
	)

	assert.Equal(t, models.Pair{Base: "BTC", Quote: "USDT"}, coll.Pair)
	require.Len(t, coll.Votes, 2)
	assert.Equal(t, "alpha", coll.Votes[0].SourceID)
	assert.Equal(t, models.ActionBuy, coll.Votes[0].Action)
	assert.Equal(t, "zeta", coll.Votes[1].SourceID)
}

func TestCollectBadSymbolYieldsEmptyCollection(t *testing.T) {
	c := NewCollector([]Analyst{
		&scriptedAnalyst{name: "a", report: &models.AnalystReport{Action: "BUY"}},
	}, zap.NewNop())

	coll := c.Collect(context.Background(), "NOT A PAIR", "1h")
	assert.True(t, coll.Pair.IsZero())
	assert.Empty(t, coll.Votes)
	assert.Empty(t, coll.RawReports)
}

func TestCollectIsolatesFailures(t *testing.T) {
	coll := collect(t,
		&scriptedAnalyst{name: "good", report: &models.AnalystReport{Action: "BUY", Confidence: 75.0}},
		&scriptedAnalyst{name: "broken", err: errors.New("upstream 500")},
		&scriptedAnalyst{name: "crashy", panics: true},
		&scriptedAnalyst{name: "silent"},
	)

	require.Len(t, coll.Votes, 1)
	assert.Equal(t, "good", coll.Votes[0].SourceID)
}

func TestCollectKeepsProseWithoutVote(t *testing.T) {
	coll := collect(t,
		&scriptedAnalyst{name: "narrative", report: &models.AnalystReport{
			Text: "sentiment is cautiously optimistic but nothing actionable",
		}},
	)

	assert.Empty(t, coll.Votes)
	assert.Equal(t,
		"sentiment is cautiously optimistic but nothing actionable",
		coll.RawReports["narrative"])
}

func TestCollectAllShapesNormalize(t *testing.T) {
	coll := collect(t,
		&scriptedAnalyst{name: "a", report: &models.AnalystReport{Action: "LONG", Confidence: 80.0}},
		&scriptedAnalyst{name: "b", report: &models.AnalystReport{Signal: "bearish", Confidence: 0.6}},
		&scriptedAnalyst{name: "c", report: &models.AnalystReport{Side: "sell", Confidence: "65"}},
		&scriptedAnalyst{name: "d", report: &models.AnalystReport{
			Extra: map[string]any{"rating": "HOLD"},
		}},
	)

	require.Len(t, coll.Votes, 4)
	assert.Equal(t, models.ActionBuy, coll.Votes[0].Action)
	assert.Equal(t, models.ActionSell, coll.Votes[1].Action)
	assert.InDelta(t, 60, coll.Votes[1].Confidence, 1e-9, "0..1 fractions are scaled")
	assert.InDelta(t, 65, coll.Votes[2].Confidence, 1e-9, "numeric strings parse")
	assert.Equal(t, models.ActionHold, coll.Votes[3].Action)
	assert.InDelta(t, 50, coll.Votes[3].Confidence, 1e-9, "missing confidence defaults to 50")
}
