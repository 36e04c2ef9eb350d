package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/tenantscan/pkg/m365/auth"
)

func TestCredentialsValidate(t *testing.T) {
	err := auth.Credentials{TenantID: "t"}.Validate()
	require.ErrorIs(t, err, auth.ErrNotConfigured)
	assert.Contains(t, err.Error(), "client_id, client_secret")

	assert.NoError(t, auth.Credentials{TenantID: "t", ClientID: "c", ClientSecret: "s"}.Validate())

	_, err = auth.NewCredential(auth.Credentials{})
	assert.ErrorIs(t, err, auth.ErrNotConfigured)
}

func TestRefreshExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt-123", r.PostForm.Get("refresh_token"))
		assert.Equal(t, auth.PowerPlatformScope, r.PostForm.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"delegated","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	ex := auth.RefreshExchange{TenantID: "tenant", ClientID: "client", TokenURL: srv.URL}
	tok, err := ex.AccessToken(context.Background(), "rt-123", auth.PowerPlatformScope)
	require.NoError(t, err)
	assert.Equal(t, "delegated", tok)
}

func TestRefreshExchangeRequiresToken(t *testing.T) {
	_, err := auth.RefreshExchange{TenantID: "t", ClientID: "c"}.AccessToken(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrAccessTokenRequired)

	_, err = auth.RefreshExchange{}.AccessToken(context.Background(), "rt")
	assert.ErrorIs(t, err, auth.ErrNotConfigured)
}

func TestRefreshTokenSourceCachesAndRotates(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if calls.Add(1) == 1 {
			assert.Equal(t, "rt-1", r.PostForm.Get("refresh_token"))
		}
		w.Write([]byte(`{"access_token":"at","token_type":"Bearer","expires_in":3600,"refresh_token":"rt-2"}`))
	}))
	defer srv.Close()

	src := auth.RefreshExchange{TenantID: "t", ClientID: "c", TokenURL: srv.URL}.
		TokenSource(context.Background(), "rt-1", auth.PowerPlatformScope)

	first, err := src.Token()
	require.NoError(t, err)
	second, err := src.Token()
	require.NoError(t, err)

	assert.Equal(t, "at", first.AccessToken)
	assert.Equal(t, "rt-2", second.RefreshToken)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRefreshExchangeSurfacesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	_, err := auth.RefreshExchange{TenantID: "t", ClientID: "c", TokenURL: srv.URL}.
		AccessToken(context.Background(), "expired")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_grant")
}
