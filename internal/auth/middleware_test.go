package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protectedProbe(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, testUserID, ident.UserID)
		w.WriteHeader(http.StatusNoContent)
	})
}

func doRequest(handler http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareAttachesIdentity(t *testing.T) {
	g := newGateFixture(t)
	tokens := g.login(t)
	handler := Middleware(g.service, protectedProbe(t))

	rec := doRequest(handler, "Bearer "+tokens.AccessToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddlewareRejectsMissingOrMalformedHeader(t *testing.T) {
	g := newGateFixture(t)
	handler := Middleware(g.service, protectedProbe(t))

	for _, authorization := range []string{"", "Bearer", "Bearer ", "Basic dXNlcjpwYXNz"} {
		rec := doRequest(handler, authorization)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "authorization %q", authorization)
	}

	// None of those requests carried anything worth a revocation lookup.
	assert.Zero(t, g.tokenStore.lookupCount())
}

func TestMiddlewareRejectsAfterUserWideRevocation(t *testing.T) {
	ctx := context.Background()
	g := newGateFixture(t)
	tokens := g.login(t)
	handler := Middleware(g.service, protectedProbe(t))

	rec := doRequest(handler, "Bearer "+tokens.AccessToken)
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err := g.service.tokens.RevokeUser(ctx, testUserID, time.Hour, "account_compromise")
	require.NoError(t, err)

	rec = doRequest(handler, "Bearer "+tokens.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
