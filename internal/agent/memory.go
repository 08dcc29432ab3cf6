package agent

import (
	"fmt"
	"sync"

	"github.com/soyeahso/paxxium/internal/domain"
)

// PopulatePolicy selects how Memory seeds itself from stored history.
type PopulatePolicy string

const (
	// PopulateTurns takes the last 6 turns.
	PopulateTurns PopulatePolicy = "turns"
	// PopulatePairs takes the last 3 user→assistant pairs.
	PopulatePairs PopulatePolicy = "pairs"
)

// DefaultMemoryCapacity is the number of exchanges Memory keeps.
const DefaultMemoryCapacity = 3

// ParsePopulatePolicy maps a config value onto a policy.
func ParsePopulatePolicy(s string) (PopulatePolicy, error) {
	switch PopulatePolicy(s) {
	case PopulateTurns, PopulatePairs:
		return PopulatePolicy(s), nil
	case "":
		return PopulatePairs, nil
	}
	return "", fmt.Errorf("unknown populate policy %q", s)
}

// Exchange is one remembered input/output pair.
type Exchange struct {
	Input  string
	Output string
}

// Memory is a bounded sliding window of exchanges. Saving past capacity
// evicts the oldest exchange.
type Memory struct {
	mu        sync.Mutex
	capacity  int
	policy    PopulatePolicy
	exchanges []Exchange
	// generation changes on Clear so holders of derived state can rebuild.
	generation int
}

// NewMemory creates an empty memory holding at most capacity exchanges.
func NewMemory(capacity int, policy PopulatePolicy) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	if policy == "" {
		policy = PopulatePairs
	}
	return &Memory{capacity: capacity, policy: policy}
}

// Save appends one exchange.
func (m *Memory) Save(input, output string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.save(Exchange{Input: input, Output: output})
}

func (m *Memory) save(ex Exchange) {
	m.exchanges = append(m.exchanges, ex)
	if over := len(m.exchanges) - m.capacity; over > 0 {
		m.exchanges = append([]Exchange(nil), m.exchanges[over:]...)
	}
}

// PopulateOnce seeds an empty memory from a stored conversation. It is a
// no-op when memory already holds anything.
func (m *Memory) PopulateOnce(history []domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.exchanges) > 0 {
		return
	}

	var picked []Exchange
	switch m.policy {
	case PopulateTurns:
		picked = lastTurns(history, 6)
	default:
		picked = lastPairs(history, m.capacity)
	}
	for _, ex := range picked {
		m.save(ex)
	}
}

// Clear empties memory and bumps the generation.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges = nil
	m.generation++
}

// Len returns the number of stored exchanges.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.exchanges)
}

// Generation returns a counter that changes on every Clear.
func (m *Memory) Generation() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// Exchanges returns a copy of the stored exchanges, oldest first.
func (m *Memory) Exchanges() []Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Exchange(nil), m.exchanges...)
}

// Messages renders memory as alternating user and assistant turns.
func (m *Memory) Messages() []domain.Message {
	exchanges := m.Exchanges()
	msgs := make([]domain.Message, 0, len(exchanges)*2)
	for _, ex := range exchanges {
		if ex.Input != "" {
			msgs = append(msgs, domain.Message{Author: domain.AuthorUser, Content: ex.Input})
		}
		if ex.Output != "" {
			msgs = append(msgs, domain.Message{Author: domain.AuthorAgent, Content: ex.Output})
		}
	}
	return msgs
}

// lastTurns groups the final n turns into exchanges. A user turn followed
// by a reply forms one exchange; a lone turn becomes a half exchange.
func lastTurns(history []domain.Message, n int) []Exchange {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	var out []Exchange
	for i := 0; i < len(history); i++ {
		msg := history[i]
		if msg.Role() != domain.RoleUser {
			out = append(out, Exchange{Output: msg.Content})
			continue
		}
		ex := Exchange{Input: msg.Content}
		if i+1 < len(history) && history[i+1].Role() == domain.RoleAssistant {
			ex.Output = history[i+1].Content
			i++
		}
		out = append(out, ex)
	}
	return out
}

// lastPairs finds up to n user turns directly answered by the assistant,
// newest first, and returns them in chronological order.
func lastPairs(history []domain.Message, n int) []Exchange {
	var rev []Exchange
	for i := len(history) - 2; i >= 0 && len(rev) < n; i-- {
		if history[i].Role() == domain.RoleUser && history[i+1].Role() == domain.RoleAssistant {
			rev = append(rev, Exchange{Input: history[i].Content, Output: history[i+1].Content})
			i--
		}
	}
	out := make([]Exchange, len(rev))
	for i, ex := range rev {
		out[len(rev)-1-i] = ex
	}
	return out
}
