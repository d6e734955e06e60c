package fleet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/services/", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("include_public"))
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"items": [
				{
					"service_id": "svc-1",
					"name": "org/model-a",
					"standard_template": "vllm",
					"instances": [
						{"instance_id": "i-1", "active": true, "verified": true}
					]
				},
				{
					"service_id": "svc-2",
					"name": "org/model-b",
					"standard_template": "vllm",
					"instances": []
				}
			]
		}`))
	}))
	defer srv.Close()

	dir := NewDirectory(srv.URL, WithTimeout(5*time.Second))
	snap, err := dir.Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Services, 2)
	assert.Equal(t, "svc-1", snap.Services[0].ServiceID)
	assert.Equal(t, "vllm", snap.Services[0].Template)
	assert.True(t, snap.Services[0].Live())
	assert.False(t, snap.Services[1].Live())
	assert.WithinDuration(t, time.Now(), snap.FetchedAt, time.Minute)
}

func TestDirectoryFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := NewDirectory(srv.URL, WithTimeout(2*time.Second))
	_, err := dir.Fetch(context.Background())
	require.Error(t, err)
}
