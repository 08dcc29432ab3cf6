package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/soyeahso/paxxium/internal/domain"
)

// ProfileStore keeps profile answers and the derived analysis.
type ProfileStore struct {
	db *DB
}

// NewProfileStore creates a profile store using the given database.
func NewProfileStore(db *DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// GetProfile returns a user's profile, or domain.ErrNotFound.
func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var (
		p                      domain.Profile
		topics, answers, stamp string
	)
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT user_id, analysis, news_topics, answers, updated_at FROM profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.Analysis, &topics, &answers, &stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(topics), &p.NewsTopics); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(answers), &p.Answers); err != nil {
		return nil, err
	}
	p.UpdatedAt, _ = time.Parse(timeLayout, stamp)
	return &p, nil
}

// SaveAnswers replaces the user's profile answers, keeping any analysis.
func (s *ProfileStore) SaveAnswers(ctx context.Context, userID string, answers []domain.ProfileAnswer) error {
	if answers == nil {
		answers = []domain.ProfileAnswer{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	_, err = s.db.sql.ExecContext(ctx,
		`INSERT INTO profiles (user_id, answers, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET answers = excluded.answers, updated_at = excluded.updated_at`,
		userID, string(data), time.Now().UTC().Format(timeLayout),
	)
	return err
}

// SaveAnalysis stores the analysis text and news topics, keeping answers.
func (s *ProfileStore) SaveAnalysis(ctx context.Context, userID, analysis string, topics []string) error {
	if topics == nil {
		topics = []string{}
	}
	data, err := json.Marshal(topics)
	if err != nil {
		return err
	}
	_, err = s.db.sql.ExecContext(ctx,
		`INSERT INTO profiles (user_id, analysis, news_topics, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   analysis = excluded.analysis,
		   news_topics = excluded.news_topics,
		   updated_at = excluded.updated_at`,
		userID, analysis, string(data), time.Now().UTC().Format(timeLayout),
	)
	return err
}

// Analysis returns the stored analysis text, or "" when there is none.
func (s *ProfileStore) Analysis(ctx context.Context, userID string) (string, error) {
	p, err := s.GetProfile(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return p.Analysis, nil
}
