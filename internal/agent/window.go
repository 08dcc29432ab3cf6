package agent

import (
	"github.com/soyeahso/paxxium/internal/domain"
	"github.com/soyeahso/paxxium/internal/llm"
)

// DefaultHistoryBudget is the token budget for windowed history.
const DefaultHistoryBudget = 500

// Estimator prices a text for a model. llm.Estimator implements it.
type Estimator interface {
	Estimate(model, text string) int
}

// Window returns the most recent turns of history whose summed estimated
// cost stays within budget, oldest first. The result is always a contiguous
// suffix of history.
//
// The newest turn is kept even when it alone is over budget, so a
// non-empty history never windows down to nothing.
func Window(est Estimator, model string, history []domain.Message, budget int) []llm.Message {
	if len(history) == 0 {
		return nil
	}

	start := len(history)
	total := 0
	for i := len(history) - 1; i >= 0; i-- {
		total += est.Estimate(model, history[i].Content)
		if total > budget && start < len(history) {
			break
		}
		start = i
	}

	turns := make([]llm.Message, 0, len(history)-start)
	for _, m := range history[start:] {
		turns = append(turns, turnOf(m))
	}
	return turns
}

// turnOf tags a persisted message with its provider role.
func turnOf(m domain.Message) llm.Message {
	return llm.Message{Role: string(m.Role()), Content: m.Content}
}
