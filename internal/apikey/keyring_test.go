package apikey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
)

func TestIssueAndAuthenticate(t *testing.T) {
	keyring := NewKeyring()
	subject := id.NewSubjectID()

	fullKey, err := keyring.Issue(subject)
	require.NoError(t, err)
	assert.Contains(t, fullKey, ".")

	bound, err := keyring.Authenticate(fullKey)
	require.NoError(t, err)
	assert.Equal(t, subject, bound)
}

func TestAuthenticateRejections(t *testing.T) {
	keyring := NewKeyring()
	fullKey, err := keyring.Issue(id.NewSubjectID())
	require.NoError(t, err)
	keyID, _, _ := strings.Cut(fullKey, ".")

	t.Run("malformed key", func(t *testing.T) {
		_, err := keyring.Authenticate("no-separator")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("unknown key id", func(t *testing.T) {
		_, err := keyring.Authenticate(id.NewSubjectID().String() + ".secret")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := keyring.Authenticate(keyID + "." + strings.Repeat("0", 64))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("revoked key", func(t *testing.T) {
		keyring.Revoke(keyID)
		_, err := keyring.Authenticate(fullKey)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}
