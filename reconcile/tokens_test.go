package reconcile

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_IssueAndParse(t *testing.T) {
	issuer := testIssuer(t)
	userID := uuid.New()

	pair, err := issuer.IssuePair(userID)
	require.NoError(t, err)
	require.NotEmpty(t, pair.Access)
	require.NotEmpty(t, pair.Refresh)
	assert.NotEqual(t, pair.Access, pair.Refresh)

	parsed, err := issuer.ParseUserID(pair.Access, "access")
	require.NoError(t, err)
	assert.Equal(t, userID, parsed)

	parsed, err = issuer.ParseUserID(pair.Refresh, "refresh")
	require.NoError(t, err)
	assert.Equal(t, userID, parsed)
}

func TestTokenIssuer_RejectsWrongTokenType(t *testing.T) {
	issuer := testIssuer(t)

	pair, err := issuer.IssuePair(uuid.New())
	require.NoError(t, err)

	// 更新權杖不能充當存取權杖
	_, err = issuer.ParseUserID(pair.Refresh, "access")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token type")
}

func TestTokenIssuer_RejectsForeignToken(t *testing.T) {
	issuer := testIssuer(t)
	other := testIssuer(t)

	pair, err := other.IssuePair(uuid.New())
	require.NoError(t, err)

	_, err = issuer.ParseUserID(pair.Access, "access")
	require.Error(t, err)
}

func TestTokenIssuer_RejectsTamperedToken(t *testing.T) {
	issuer := testIssuer(t)

	pair, err := issuer.IssuePair(uuid.New())
	require.NoError(t, err)

	parts := strings.Split(pair.Access, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	_, err = issuer.ParseUserID(tampered, "access")
	require.Error(t, err)
}

func TestTokenIssuer_RejectsExpiredToken(t *testing.T) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	issuer := NewTokenIssuer(key, "ejournal-test", WithAccessTokenTTL(-time.Minute))

	pair, err := issuer.IssuePair(uuid.New())
	require.NoError(t, err)

	_, err = issuer.ParseUserID(pair.Access, "access")
	require.Error(t, err)
}
