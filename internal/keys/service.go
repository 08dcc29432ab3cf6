package keys

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/paxxium/internal/domain"
	"github.com/soyeahso/paxxium/internal/logging"
)

// Store persists encrypted keys. store.KeyStore implements it.
type Store interface {
	PutKeys(ctx context.Context, userID string, keys domain.EncryptedKeys) error
	GetKeys(ctx context.Context, userID string) (*domain.EncryptedKeys, error)
}

// Plain holds decrypted keys. Never log or persist it.
type Plain struct {
	Provider string
	Search   string
}

// Service encrypts keys on the way in and decrypts them on the way out.
type Service struct {
	store  Store
	cipher *Cipher
	log    *logging.Logger
}

// NewService creates a credential service.
func NewService(store Store, cipher *Cipher, log *logging.Logger) *Service {
	return &Service{store: store, cipher: cipher, log: log.Sub("keys")}
}

// SetKeys encrypts and stores a user's keys. The provider key is required.
func (s *Service) SetKeys(ctx context.Context, userID, providerKey, searchKey string) error {
	if providerKey == "" {
		return errors.New("provider key is required")
	}
	encProvider, err := s.cipher.Encrypt(providerKey)
	if err != nil {
		return fmt.Errorf("encrypting provider key: %w", err)
	}
	var encSearch string
	if searchKey != "" {
		if encSearch, err = s.cipher.Encrypt(searchKey); err != nil {
			return fmt.Errorf("encrypting search key: %w", err)
		}
	}
	if err := s.store.PutKeys(ctx, userID, domain.EncryptedKeys{ProviderKey: encProvider, SearchKey: encSearch}); err != nil {
		return &domain.PersistenceError{Op: "put keys", Err: err}
	}
	s.log.Info().Str("userId", userID).Bool("search", searchKey != "").Msg("stored user keys")
	return nil
}

// GetKeys returns the stored ciphertexts. Users without keys get
// domain.ErrUnauthenticated.
func (s *Service) GetKeys(ctx context.Context, userID string) (*domain.EncryptedKeys, error) {
	keys, err := s.store.GetKeys(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("no keys for user %s: %w", userID, domain.ErrUnauthenticated)
	}
	if err != nil {
		return nil, err
	}
	if keys.ProviderKey == "" {
		return nil, fmt.Errorf("no provider key for user %s: %w", userID, domain.ErrUnauthenticated)
	}
	return keys, nil
}

// Decrypt opens one ciphertext.
func (s *Service) Decrypt(ciphertext string) (string, error) {
	return s.cipher.Decrypt(ciphertext)
}

// Resolve fetches and decrypts a user's keys. An absent search key is
// returned empty.
func (s *Service) Resolve(ctx context.Context, userID string) (Plain, error) {
	enc, err := s.GetKeys(ctx, userID)
	if err != nil {
		return Plain{}, err
	}
	provider, err := s.Decrypt(enc.ProviderKey)
	if err != nil {
		return Plain{}, fmt.Errorf("provider key: %w", err)
	}
	var search string
	if enc.SearchKey != "" {
		if search, err = s.Decrypt(enc.SearchKey); err != nil {
			return Plain{}, fmt.Errorf("search key: %w", err)
		}
	}
	return Plain{Provider: provider, Search: search}, nil
}
