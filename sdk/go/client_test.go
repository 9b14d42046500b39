package stafflinesdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsHitBookingEndpoints(t *testing.T) {
	type call struct {
		method, path, apiKey string
		body                 map[string]any
	}
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		calls = append(calls, call{r.Method, r.URL.Path, r.Header.Get("X-Api-Key"), body})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"assignment":{"id":"a1","status":"pending_acceptance","version":3},"project_status":"forming-team"}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	c.APIKey = "slk_test"
	ctx := context.Background()

	res, err := c.Offer(ctx, "a1", "cand-1")
	require.NoError(t, err)
	assert.Equal(t, "pending_acceptance", res.Assignment.Status)
	assert.Equal(t, int64(3), res.Assignment.Version)
	assert.Equal(t, "forming-team", res.ProjectStatus)

	_, err = c.Complete(ctx, "a1", "requirements-changed", &Snapshot{ProfileID: "data-engineer", Seniority: "senior"})
	require.NoError(t, err)
	_, err = c.Decline(ctx, "a1", "")
	require.NoError(t, err)

	require.Len(t, calls, 3)
	assert.Equal(t, call{http.MethodPost, "/v0/assignments/a1/offer", "slk_test", map[string]any{"candidate_id": "cand-1"}}, calls[0])
	assert.Equal(t, "/v0/assignments/a1/complete", calls[1].path)
	assert.Equal(t, "requirements-changed", calls[1].body["reason"])
	assert.Equal(t, map[string]any{"profile_id": "data-engineer", "seniority": "senior"}, calls[1].body["replacement"])
	assert.Empty(t, calls[2].body)
}

func TestAPIErrorsAreDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"already_taken","message":"someone else already took this"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BearerToken = "tok"
	_, err := c.Accept(context.Background(), "a1")
	require.Error(t, err)
	assert.True(t, IsTaken(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "someone else already took this", apiErr.Message)
}
