package idp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestSessionFromToken_IDTokenPreferred(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := (&oauth2.Token{
		AccessToken: "opaque-access-token",
		Expiry:      exp,
	}).WithExtra(map[string]any{
		"id_token": signToken(t, "user-9", "grace@example.com", exp),
	})

	sess, err := sessionFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-9", sess.Subject)
	assert.Equal(t, "grace@example.com", sess.Email)
	assert.Equal(t, "opaque-access-token", sess.AccessToken)
	assert.Equal(t, exp, sess.ExpiresAt)
}

func TestSessionFromToken_AccessTokenClaims(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	tok := &oauth2.Token{AccessToken: signToken(t, "user-1", "ada@example.com", exp)}

	sess, err := sessionFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.Subject)
	assert.True(t, exp.Equal(sess.ExpiresAt), "expiry falls back to the exp claim")
}

func TestSessionFromToken_Opaque(t *testing.T) {
	_, err := sessionFromToken(&oauth2.Token{AccessToken: "not-a-jwt"})
	assert.Error(t, err)
}

func TestSessionFromToken_NoSubject(t *testing.T) {
	_, err := sessionFromToken(&oauth2.Token{AccessToken: signToken(t, "", "ada@example.com", time.Now().Add(time.Hour))})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no subject")
}
