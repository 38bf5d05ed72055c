package runtime

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestPrincipalFromRequest_NoHeaderIsAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/get_exchange_rate", nil)
	p, err := PrincipalFromRequest(req)
	require.NoError(t, err)
	require.True(t, p.IsAnonymous())
}

func TestPrincipalFromRequest_ExtractsSubClaim(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/get_exchange_rate", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "alice"))

	p, err := PrincipalFromRequest(req)
	require.NoError(t, err)
	require.Equal(t, "alice", p.ID)
	require.False(t, p.IsAnonymous())
}

func TestPrincipalFromRequest_MalformedHeaderErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/get_exchange_rate", nil)
	req.Header.Set("Authorization", "NotBearer xyz")

	_, err := PrincipalFromRequest(req)
	require.ErrorIs(t, err, ErrMalformedToken)
}

func TestPrincipalFromRequest_EmptySubIsAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/get_exchange_rate", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, ""))

	p, err := PrincipalFromRequest(req)
	require.NoError(t, err)
	require.True(t, p.IsAnonymous())
}

func TestIsPrivileged(t *testing.T) {
	privileged := []string{"cycles-minting-canister"}
	require.True(t, IsPrivileged(Principal{ID: "cycles-minting-canister"}, privileged))
	require.False(t, IsPrivileged(Principal{ID: "alice"}, privileged))
}
