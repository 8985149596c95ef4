// Package apikey authenticates machine callers (issuers, verification
// providers) that hold long-lived keys instead of JWTs. Secrets are stored
// only as bcrypt hashes; the plaintext exists once, at issue time.
package apikey

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
)

const secretBytes = 32

type keyRecord struct {
	subject    id.SubjectID
	secretHash []byte
}

// Keyring issues and verifies API keys of the form "<keyID>.<secret>".
type Keyring struct {
	mu   sync.RWMutex
	keys map[string]keyRecord // keyID -> record
}

func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[string]keyRecord)}
}

// Issue mints a key bound to subject and returns the full plaintext key.
// The plaintext cannot be recovered later.
func (k *Keyring) Issue(subject id.SubjectID) (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate api key secret: %w", err)
	}
	secret := hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash api key secret: %w", err)
	}

	keyID := id.NewSubjectID().String()
	k.mu.Lock()
	k.keys[keyID] = keyRecord{subject: subject, secretHash: hash}
	k.mu.Unlock()

	return keyID + "." + secret, nil
}

// Authenticate verifies a full key and returns the bound subject.
func (k *Keyring) Authenticate(fullKey string) (id.SubjectID, error) {
	keyID, secret, ok := strings.Cut(fullKey, ".")
	if !ok {
		return id.NilSubject, dErrors.New(dErrors.CodeUnauthorized, "malformed api key")
	}

	k.mu.RLock()
	record, exists := k.keys[keyID]
	k.mu.RUnlock()
	if !exists {
		return id.NilSubject, dErrors.New(dErrors.CodeUnauthorized, "unknown api key")
	}

	if err := bcrypt.CompareHashAndPassword(record.secretHash, []byte(secret)); err != nil {
		return id.NilSubject, dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
	}
	return record.subject, nil
}

// Revoke removes a key by its ID prefix.
func (k *Keyring) Revoke(keyID string) {
	k.mu.Lock()
	delete(k.keys, keyID)
	k.mu.Unlock()
}
