package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaledhikmat/vs-counter/service/config"
)

func TestHTTPPostsJSON(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	svc := NewHTTP(config.NewFromMap(map[string]string{"WEBHOOK_URL": srv.URL}))
	require.NoError(t, svc.Post(map[string]interface{}{"class": "person", "total": 3}))

	assert.Equal(t, "person", got["class"])
	assert.Equal(t, float64(3), got["total"])
}

func TestHTTPReportsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := NewHTTP(config.NewFromMap(map[string]string{"WEBHOOK_URL": srv.URL}))
	assert.Error(t, svc.Post(map[string]interface{}{}))
}

func TestFakeAcceptsEverything(t *testing.T) {
	assert.NoError(t, NewFake(config.NewHardCoded()).Post(map[string]interface{}{"x": 1}))
}
