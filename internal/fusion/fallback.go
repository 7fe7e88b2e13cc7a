package fusion

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/models"
)

// ChatCompleter is the narrow slice of an eino chat model the fallback
// needs. *openai.ChatModel and *deepseek.ChatModel both satisfy it.
type ChatCompleter interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// LLMFallback asks a language model for a decision when no analyst produced
// a structured vote. It is the last resort, never the primary path.
type LLMFallback struct {
	completer ChatCompleter
	timeout   time.Duration
	logger    *zap.Logger
}

func NewLLMFallback(completer ChatCompleter, timeout time.Duration, logger *zap.Logger) *LLMFallback {
	return &LLMFallback{
		completer: completer,
		timeout:   timeout,
		logger:    logger.Named("fusion.llm"),
	}
}

// modelVerdict is the object the model must embed somewhere in its reply.
type modelVerdict struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

const fallbackSystemPrompt = `You are a trading decision assistant. Given raw analyst commentary for a trading pair, respond with a single JSON object of the form {"action": "BUY"|"SELL"|"HOLD", "confidence": 0-100, "reason": "..."} and nothing else.`

func (e *Engine) fuseFromModel(ctx context.Context, pair models.Pair, rawReports map[string]string) models.FusedDecision {
	verdict, err := e.fallback.decide(ctx, pair, rawReports)
	if err != nil {
		e.logger.Warn("model fallback failed", zap.String("pair", pair.String()), zap.Error(err))
		return e.holdDecision(pair, models.MethodFallback, fmt.Sprintf("model fallback failed: %v", err), true)
	}

	action, ok := models.ParseAction(verdict.Action)
	if !ok {
		return e.holdDecision(pair, models.MethodFallback,
			fmt.Sprintf("model returned unknown action %q", verdict.Action), true)
	}

	decision := models.FusedDecision{
		Action:     action,
		Pair:       pair,
		Confidence: clamp(verdict.Confidence, 0, 100),
		Reason:     strings.TrimSpace(verdict.Reason),
		Method:     models.MethodLLMBased,
		CreatedAt:  e.now(),
	}
	if decision.Reason == "" {
		decision.Reason = "model-based decision"
	}
	return e.applyConfidenceGate(decision)
}

func (f *LLMFallback) decide(ctx context.Context, pair models.Pair, rawReports map[string]string) (*modelVerdict, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	msg, err := f.completer.Generate(ctx, []*schema.Message{
		schema.SystemMessage(fallbackSystemPrompt),
		schema.UserMessage(buildFallbackPrompt(pair, rawReports)),
	})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return nil, fmt.Errorf("empty model response")
	}

	raw, ok := extractJSONObject(msg.Content)
	if !ok {
		return nil, fmt.Errorf("no JSON object in model response")
	}

	var verdict modelVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, fmt.Errorf("parse model verdict: %w", err)
	}
	if strings.TrimSpace(verdict.Action) == "" {
		return nil, fmt.Errorf("model verdict missing action")
	}
	return &verdict, nil
}

func buildFallbackPrompt(pair models.Pair, rawReports map[string]string) string {
	sources := make([]string, 0, len(rawReports))
	for source := range rawReports {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	var b strings.Builder
	fmt.Fprintf(&b, "Trading pair: %s\n\nAnalyst commentary:\n", pair)
	for _, source := range sources {
		fmt.Fprintf(&b, "--- %s ---\n%s\n", source, rawReports[source])
	}
	b.WriteString("\nReply with the JSON decision object only.")
	return b.String()
}

// extractJSONObject returns the first balanced brace-delimited substring,
// tolerating prose around it. Braces inside JSON strings do not count
// toward the balance.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
