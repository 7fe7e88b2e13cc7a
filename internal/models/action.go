package models

import "strings"

// Action is the canonical trade direction shared by every stage of the
// pipeline. Analysts, the fusion engine and the ledger all speak this enum.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// ParseAction normalizes free-form analyst output ("buy", " Sell ", "LONG")
// into an Action. The second return is false when the text maps to nothing
// actionable.
func ParseAction(s string) (Action, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG", "BULLISH":
		return ActionBuy, true
	case "SELL", "SHORT", "BEARISH":
		return ActionSell, true
	case "HOLD", "NEUTRAL", "WAIT":
		return ActionHold, true
	default:
		return ActionHold, false
	}
}

// IsTradable reports whether the action moves money.
func (a Action) IsTradable() bool {
	return a == ActionBuy || a == ActionSell
}

func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell || a == ActionHold
}
