package member

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

func TestHTTPDirectoryResolve(t *testing.T) {
	known := id.MemberID(uuid.New())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/members/"+known.String() {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"` + known.String() + `","display_name":"Grace Okafor","category":"youth"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dir, err := NewHTTPDirectory(server.URL, server.Client())
	require.NoError(t, err)

	t.Run("known member resolves with category", func(t *testing.T) {
		profile, err := dir.Resolve(context.Background(), known)
		require.NoError(t, err)
		assert.True(t, profile.Exists)
		assert.Equal(t, "Grace Okafor", profile.DisplayName)
		assert.Equal(t, CategoryYouth, profile.Category)
	})

	t.Run("unknown member is not an error", func(t *testing.T) {
		profile, err := dir.Resolve(context.Background(), id.MemberID(uuid.New()))
		require.NoError(t, err)
		assert.False(t, profile.Exists)
	})
}

func TestHTTPDirectoryUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	dir, err := NewHTTPDirectory(server.URL, server.Client())
	require.NoError(t, err)

	_, err = dir.Resolve(context.Background(), id.MemberID(uuid.New()))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func TestHTTPDirectoryUnknownCategoryDefaultsToAdult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"display_name":"Sam","category":"elder"}`))
	}))
	defer server.Close()

	dir, err := NewHTTPDirectory(server.URL, server.Client())
	require.NoError(t, err)

	profile, err := dir.Resolve(context.Background(), id.MemberID(uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, CategoryAdult, profile.Category)
}
