package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dyike/TradeFuseGo/internal/config"
	"github.com/dyike/TradeFuseGo/internal/models"
	"github.com/dyike/TradeFuseGo/internal/pipeline"
	"github.com/dyike/TradeFuseGo/internal/portfolio"
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		Padding(0, 1)

	bannerStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#3B82F6")).
		Padding(0, 2)

	buyStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Bold(true)

	sellStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444")).
		Bold(true)

	holdStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280"))

	rejectStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F59E0B")).
		Bold(true)

	errStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444"))

	dimStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#9CA3AF"))

	sectionStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#3B82F6"))
)

func actionStyle(a models.Action) lipgloss.Style {
	switch a {
	case models.ActionBuy:
		return buyStyle
	case models.ActionSell:
		return sellStyle
	default:
		return holdStyle
	}
}

func renderBanner(cfg config.Config) string {
	lines := []string{
		titleStyle.Render("TradeFuse"),
		fmt.Sprintf("pairs     %s", strings.Join(cfg.Pairs, ", ")),
		fmt.Sprintf("interval  %s, tick every %s", cfg.Interval, cfg.TickInterval()),
		fmt.Sprintf("execution %s", cfg.Execution.Mode),
	}
	return bannerStyle.Render(strings.Join(lines, "\n"))
}

// renderTickResult is the one-line-per-tick summary the run loop prints.
func renderTickResult(res pipeline.TickResult) string {
	elapsed := res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond)
	head := fmt.Sprintf("%s %s %s (%.0f%%, %s)",
		dimStyle.Render(res.FinishedAt.Format("15:04:05")),
		res.Pair,
		actionStyle(res.Decision.Action).Render(string(res.Decision.Action)),
		res.Decision.Confidence,
		res.Decision.Method)

	var tail string
	switch res.Status {
	case pipeline.StatusExecuted:
		tail = buyStyle.Render("executed")
		if res.Fill != nil {
			tail += dimStyle.Render(fmt.Sprintf(" %s @ %s", res.Fill.Quantity, res.Fill.Price))
		}
	case pipeline.StatusHold:
		tail = holdStyle.Render("hold")
	case pipeline.StatusRejectedLedger, pipeline.StatusRejectedRisk:
		reason := ""
		if res.Verdict != nil {
			reason = " " + res.Verdict.Reason
		}
		tail = rejectStyle.Render(string(res.Status)) + dimStyle.Render(reason)
	case pipeline.StatusError:
		tail = errStyle.Render("error " + res.Err)
	default:
		tail = string(res.Status)
	}

	return fmt.Sprintf("%s %s %s", head, tail, dimStyle.Render(elapsed.String()))
}

func renderPortfolio(ledger *portfolio.Ledger) string {
	var b strings.Builder

	b.WriteString(sectionStyle.Render("Portfolio"))
	b.WriteString(fmt.Sprintf("\n  value %s, base balance %s\n",
		ledger.PortfolioValue().StringFixed(2), ledger.BaseBalance().StringFixed(2)))

	holdings := ledger.Holdings()
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Asset < holdings[j].Asset })
	for _, h := range holdings {
		if h.Amount.IsZero() {
			continue
		}
		b.WriteString(fmt.Sprintf("  %-6s %s\n", h.Asset, h.Amount.String()))
	}

	open := ledger.OpenPositions()
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Open positions (%d)", len(open))))
	b.WriteString("\n")
	for _, p := range open {
		line := fmt.Sprintf("  %s %s %s @ %s, pnl %+.2f%%",
			p.Pair,
			actionStyle(p.Action).Render(string(p.Action)),
			p.Size, p.EntryPrice, p.UnrealizedPnLPct)
		b.WriteString(line + "\n")
	}

	closed := ledger.ClosedTrades()
	if len(closed) > 0 {
		b.WriteString(sectionStyle.Render(fmt.Sprintf("Closed trades (%d)", len(closed))))
		b.WriteString("\n")
		shown := closed
		if len(shown) > 10 {
			shown = shown[len(shown)-10:]
		}
		for _, t := range shown {
			style := buyStyle
			if t.PnLPct < 0 {
				style = sellStyle
			}
			b.WriteString(fmt.Sprintf("  %s %s %s %s\n",
				t.Pair, t.ExitReason,
				style.Render(fmt.Sprintf("%+.2f%%", t.PnLPct)),
				dimStyle.Render(t.ClosedAt.Format("01-02 15:04"))))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func renderShutdown(ledger *portfolio.Ledger) string {
	return dimStyle.Render("shutting down") + "\n" + renderPortfolio(ledger)
}
