package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/soyeahso/paxxium/internal/domain"
)

// KeyStore holds per-user encrypted provider credentials. It never sees
// plaintext keys.
type KeyStore struct {
	db *DB
}

// NewKeyStore creates a key store using the given database.
func NewKeyStore(db *DB) *KeyStore {
	return &KeyStore{db: db}
}

// PutKeys stores or replaces a user's encrypted keys.
func (s *KeyStore) PutKeys(ctx context.Context, userID string, keys domain.EncryptedKeys) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO user_keys (user_id, provider_key, search_key, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   provider_key = excluded.provider_key,
		   search_key = excluded.search_key,
		   updated_at = excluded.updated_at`,
		userID, keys.ProviderKey, keys.SearchKey, time.Now().UTC().Format(timeLayout),
	)
	return err
}

// GetKeys returns a user's encrypted keys, or domain.ErrNotFound.
func (s *KeyStore) GetKeys(ctx context.Context, userID string) (*domain.EncryptedKeys, error) {
	var keys domain.EncryptedKeys
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT provider_key, search_key FROM user_keys WHERE user_id = ?`, userID,
	).Scan(&keys.ProviderKey, &keys.SearchKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &keys, nil
}

// DeleteKeys removes a user's keys.
func (s *KeyStore) DeleteKeys(ctx context.Context, userID string) error {
	_, err := s.db.sql.ExecContext(ctx, `DELETE FROM user_keys WHERE user_id = ?`, userID)
	return err
}
