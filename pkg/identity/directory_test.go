package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminClient_LookupByEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/admin/users", r.URL.Path)
			assert.Equal(t, "shell@example.com", r.URL.Query().Get("email"))
			assert.Equal(t, "Bearer admin-token", r.Header.Get("Authorization"))

			json.NewEncoder(w).Encode(map[string]interface{}{
				"users": []map[string]interface{}{
					{"id": "acc-1", "email": "shell@example.com", "email_confirmed": false},
				},
			})
		}))
		defer srv.Close()

		account, err := NewAdminClient(srv.URL, "admin-token").LookupByEmail(ctx, "shell@example.com")
		require.NoError(t, err)
		assert.Equal(t, "acc-1", account.ID)
		assert.False(t, account.EmailConfirmed)
	})

	t.Run("empty result set is not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"users": []interface{}{}})
		}))
		defer srv.Close()

		_, err := NewAdminClient(srv.URL, "admin-token").LookupByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("404 is not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := NewAdminClient(srv.URL, "admin-token").LookupByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("server error is surfaced", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := NewAdminClient(srv.URL, "admin-token").LookupByEmail(ctx, "someone@example.com")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestAdminClient_DeleteAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		var gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			assert.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		require.NoError(t, NewAdminClient(srv.URL, "admin-token").DeleteAccount(ctx, "acc-1"))
		assert.Equal(t, "/admin/users/acc-1", gotPath)
	})

	t.Run("missing account", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		err := NewAdminClient(srv.URL, "admin-token").DeleteAccount(ctx, "acc-404")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestPrincipalContext(t *testing.T) {
	p := &Principal{ID: "user-1", Email: "ada@example.com"}
	ctx := WithPrincipal(context.Background(), p)

	got, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, p, got)

	_, ok = PrincipalFromContext(context.Background())
	assert.False(t, ok)
}
