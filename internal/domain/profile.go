package domain

import "time"

// ProfileAnswer is one answered profile question.
type ProfileAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Profile holds what the core reads about a user: the analysis text used as
// the USER ANALYSIS block and the answers it was derived from.
type Profile struct {
	UserID     string          `json:"user_id"`
	Analysis   string          `json:"analysis"`
	NewsTopics []string        `json:"news_topics"`
	Answers    []ProfileAnswer `json:"answers,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// EncryptedKeys are the per-user provider credentials as stored.
type EncryptedKeys struct {
	ProviderKey string `json:"openai_key"`
	SearchKey   string `json:"serp_key"`
}
