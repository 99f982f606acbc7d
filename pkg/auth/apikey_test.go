package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAPIKeyAuthenticator_Plaintext(t *testing.T) {
	auth := NewAPIKeyAuthenticator([]APIKey{
		{Key: "secret-one", Name: "ops"},
		{Key: "secret-two", Name: "ci"},
	})

	identity, err := auth.Authenticate(WithToken(context.Background(), "secret-two"))
	require.NoError(t, err)
	assert.Equal(t, "ci", identity.Name)
	assert.Equal(t, "apikey", identity.AuthType)
}

func TestAPIKeyAuthenticator_Bcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	auth := NewAPIKeyAuthenticator([]APIKey{
		{Key: hashPrefix + string(hash), Name: "ops"},
	})

	identity, err := auth.Authenticate(WithToken(context.Background(), "hashed-secret"))
	require.NoError(t, err)
	assert.Equal(t, "ops", identity.Name)

	_, err = auth.Authenticate(WithToken(context.Background(), "wrong"))
	assert.Error(t, err)
}

func TestAPIKeyAuthenticator_Rejects(t *testing.T) {
	auth := NewAPIKeyAuthenticator([]APIKey{{Key: "secret", Name: "ops"}})

	_, err := auth.Authenticate(WithToken(context.Background(), "not-the-secret"))
	assert.Error(t, err)

	_, err = auth.Authenticate(context.Background())
	assert.Error(t, err, "missing token is rejected")
}

func TestGetToken(t *testing.T) {
	assert.Empty(t, GetToken(context.Background()))
	assert.Equal(t, "tok", GetToken(WithToken(context.Background(), "tok")))
}
