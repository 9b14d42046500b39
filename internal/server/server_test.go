package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"staffline/internal/config"
	"staffline/internal/db"
	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err, "open db")
	require.NoError(t, migrate.Migrate(conn), "migrate")
	cfg := config.Default()
	e := engine.New(conn, cfg)
	_, err = e.SeedCatalog(context.Background(), cfg.Catalog)
	require.NoError(t, err, "seed catalog")
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{
		JWTSecret:              testSecret,
		AllowLegacyActorHeader: true,
		EnableDevLogin:         true,
	}})
	require.NoError(t, err, "build handler")
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	return &testServer{URL: srv.URL + "/v0", Engine: e, client: srv.Client()}
}

func token(t *testing.T, actor string, roles ...string) map[string]string {
	t.Helper()
	tok, err := signToken(testSecret, actor, roles, time.Hour, time.Now())
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err, "marshal body")
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := s.client.Do(req)
	require.NoError(t, err, "do request")
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err, "read body")
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), "decode %s", string(data))
	return v
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func requireError(t *testing.T, res *http.Response, data []byte, status int, code string) apiErrorBody {
	t.Helper()
	require.Equal(t, status, res.StatusCode, string(data))
	env := decode[errorEnvelope](t, data)
	assert.Equal(t, code, env.Error.Code)
	return env.Error
}

var (
	admin     = func(t *testing.T) map[string]string { return token(t, "ops", "admin") }
	client    = func(t *testing.T) map[string]string { return token(t, "client-1", "client") }
	candidate = func(t *testing.T, id string) map[string]string { return token(t, id, "candidate") }
)

// fixture creates a project owned by client-1 with one searching seat and two candidates.
type fixture struct {
	ProjectID    string
	RequestID    string
	AssignmentID string
}

func (s *testServer) fixture(t *testing.T) fixture {
	t.Helper()
	for _, id := range []string{"cand-1", "cand-2"} {
		res, data := s.do(t, http.MethodPut, "/candidates/"+id, map[string]any{
			"profile_id": "backend-developer",
			"seniority":  "senior",
			"languages":  []string{"en", "fr"},
		}, admin(t))
		require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	}
	res, data := s.do(t, http.MethodPost, "/projects", map[string]any{"id": "proj-1", "name": "Payments"}, client(t))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	p := decode[domain.Project](t, data)
	assert.Equal(t, "client-1", p.OwnerID)

	res, data = s.do(t, http.MethodPost, "/projects/proj-1/seats", map[string]any{
		"id":           "seat-1",
		"requirements": map[string]any{"profile_id": "backend-developer", "seniority": "senior", "languages": []string{"en"}},
	}, client(t))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	added := decode[engine.Result](t, data)
	assert.Equal(t, domain.StatusDraft, added.Assignment.Status)

	res, data = s.do(t, http.MethodPost, "/seats/seat-1/search", nil, client(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	opened := decode[engine.Result](t, data)
	assert.Equal(t, domain.StatusSearching, opened.Assignment.Status)
	assert.ElementsMatch(t, []string{"cand-1", "cand-2"}, opened.Eligible)
	assert.Equal(t, domain.ProjectFormingTeam, opened.ProjectStatus)
	return fixture{ProjectID: p.ID, RequestID: "seat-1", AssignmentID: opened.Assignment.ID}
}

func TestHealthIsPublicAndAPIRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	res, data := s.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))

	res, data = s.do(t, http.MethodGet, "/me", nil, nil)
	requireError(t, res, data, http.StatusUnauthorized, "unauthorized")

	res, data = s.do(t, http.MethodGet, "/me", nil, map[string]string{"Authorization": "Bearer nope"})
	requireError(t, res, data, http.StatusUnauthorized, "invalid_credentials")
}

func TestBookingFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	f := s.fixture(t)

	res, data := s.do(t, http.MethodGet, "/assignments/"+f.AssignmentID+"/eligible", nil, client(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.ElementsMatch(t, []string{"cand-1", "cand-2"}, decode[EligibleResponse](t, data).Candidates)

	res, data = s.do(t, http.MethodPost, "/assignments/"+f.AssignmentID+"/offer", map[string]any{"candidate_id": "cand-1"}, client(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	offered := decode[engine.Result](t, data)
	assert.Equal(t, domain.StatusPendingAcceptance, offered.Assignment.Status)

	res, data = s.do(t, http.MethodPost, "/assignments/"+f.AssignmentID+"/accept", nil, candidate(t, "cand-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	accepted := decode[engine.Result](t, data)
	assert.Equal(t, domain.StatusAccepted, accepted.Assignment.Status)
	assert.Equal(t, domain.ProjectReady, accepted.ProjectStatus)

	res, data = s.do(t, http.MethodGet, "/projects/"+f.ProjectID, nil, candidate(t, "cand-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	rep := decode[engine.StatusReport](t, data)
	assert.Equal(t, domain.ProjectReady, rep.Project.Status)
	assert.Equal(t, 1, rep.Seats.Accepted)

	res, data = s.do(t, http.MethodGet, "/projects/"+f.ProjectID+"/seats", nil, client(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	seats := decode[[]SeatResponse](t, data)
	require.Len(t, seats, 1)
	require.NotNil(t, seats[0].Head)
	assert.Equal(t, f.AssignmentID, seats[0].Head.ID)

	res, data = s.do(t, http.MethodPost, "/projects/"+f.ProjectID+"/start", nil, client(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, domain.ProjectInProgress, decode[domain.Project](t, data).Status)
}

func TestSecondAcceptIsAlreadyTaken(t *testing.T) {
	s := newTestServer(t)
	f := s.fixture(t)
	res, data := s.do(t, http.MethodPost, "/assignments/"+f.AssignmentID+"/offer", map[string]any{"candidate_id": "cand-1"}, client(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	var wg sync.WaitGroup
	statuses := make([]int, 2)
	bodies := make([][]byte, 2)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, data := s.do(t, http.MethodPost, "/assignments/"+f.AssignmentID+"/accept", nil, candidate(t, "cand-1"))
			statuses[i], bodies[i] = res.StatusCode, data
		}(i)
	}
	wg.Wait()

	wins, losses := 0, 0
	for i, status := range statuses {
		switch status {
		case http.StatusOK:
			wins++
		case http.StatusConflict:
			losses++
			env := decode[errorEnvelope](t, bodies[i])
			assert.Equal(t, "already_taken", env.Error.Code)
			assert.Equal(t, "someone else already took this", env.Error.Message)
		default:
			t.Fatalf("unexpected status %d: %s", status, bodies[i])
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)
}

func TestOfferOnClaimedSeatIsAlreadyTaken(t *testing.T) {
	s := newTestServer(t)
	f := s.fixture(t)
	res, data := s.do(t, http.MethodPost, "/assignments/"+f.AssignmentID+"/offer", map[string]any{"candidate_id": "cand-1"}, client(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = s.do(t, http.MethodPost, "/assignments/"+f.AssignmentID+"/offer", map[string]any{"candidate_id": "cand-2"}, client(t))
	requireError(t, res, data, http.StatusConflict, "already_taken")
}

func TestDeclineReopensSeat(t *testing.T) {
	s := newTestServer(t)
	f := s.fixture(t)
	res, data := s.do(t, http.MethodPost, "/assignments/"+f.AssignmentID+"/offer", map[string]any{"candidate_id": "cand-2"}, client(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = s.do(t, http.MethodPost, "/assignments/"+f.AssignmentID+"/decline", map[string]any{"reason": "candidate-unavailable"}, candidate(t, "cand-2"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	declined := decode[engine.Result](t, data)
	assert.Equal(t, domain.StatusDeclined, declined.Assignment.Status)
	require.NotNil(t, declined.Successor)
	assert.Equal(t, domain.StatusSearching, declined.Successor.Status)
	require.NotNil(t, declined.Successor.PreviousAssignmentID)
	assert.Equal(t, f.AssignmentID, *declined.Successor.PreviousAssignmentID)

	res, data = s.do(t, http.MethodGet, "/seats/"+f.RequestID+"/history", nil, client(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	chain := decode[[]domain.Assignment](t, data)
	require.Len(t, chain, 2)
	assert.Equal(t, f.AssignmentID, chain[0].ID)
	assert.Equal(t, declined.Successor.ID, chain[1].ID)
}

func TestAuthorizationRules(t *testing.T) {
	s := newTestServer(t)
	f := s.fixture(t)
	offerPath := "/assignments/" + f.AssignmentID + "/offer"

	// candidates cannot offer
	res, data := s.do(t, http.MethodPost, offerPath, map[string]any{"candidate_id": "cand-1"}, candidate(t, "cand-1"))
	requireError(t, res, data, http.StatusForbidden, "forbidden")

	// another client does not own the project
	res, data = s.do(t, http.MethodPost, offerPath, map[string]any{"candidate_id": "cand-1"}, token(t, "client-2", "client"))
	requireError(t, res, data, http.StatusForbidden, "not_owner")

	res, data = s.do(t, http.MethodPost, offerPath, map[string]any{"candidate_id": "cand-1"}, client(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	// only the offered candidate may answer
	res, data = s.do(t, http.MethodPost, "/assignments/"+f.AssignmentID+"/accept", nil, candidate(t, "cand-2"))
	requireError(t, res, data, http.StatusForbidden, "not_owner")

	// admins may act for anyone
	res, data = s.do(t, http.MethodPost, "/assignments/"+f.AssignmentID+"/accept", map[string]any{"candidate_id": "cand-1"}, admin(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = s.do(t, http.MethodPost, "/projects", map[string]any{"name": "Other", "owner_id": "client-9"}, client(t))
	requireError(t, res, data, http.StatusForbidden, "forbidden")

	res, data = s.do(t, http.MethodPost, "/candidates/cand-2/availability", map[string]any{"availability": "paused"}, candidate(t, "cand-1"))
	requireError(t, res, data, http.StatusForbidden, "not_owner")

	res, data = s.do(t, http.MethodPost, "/candidates/cand-1/availability", map[string]any{"availability": "paused"}, candidate(t, "cand-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, domain.AvailabilityPaused, decode[domain.Candidate](t, data).Availability)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	f := s.fixture(t)

	res, data := s.do(t, http.MethodPost, "/assignments/missing/offer", map[string]any{"candidate_id": "cand-1"}, client(t))
	requireError(t, res, data, http.StatusNotFound, "not_found")

	res, data = s.do(t, http.MethodPut, "/candidates/junior-1", map[string]any{"profile_id": "backend-developer", "seniority": "junior"}, admin(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = s.do(t, http.MethodPost, "/assignments/"+f.AssignmentID+"/offer", map[string]any{"candidate_id": "junior-1"}, client(t))
	requireError(t, res, data, http.StatusUnprocessableEntity, "not_eligible")

	res, data = s.do(t, http.MethodPost, "/assignments/"+f.AssignmentID+"/accept", nil, admin(t))
	requireError(t, res, data, http.StatusConflict, "invalid_transition")

	res, data = s.do(t, http.MethodPost, "/projects/proj-1/seats", map[string]any{
		"requirements": map[string]any{"profile_id": "astronaut", "seniority": "senior"},
	}, client(t))
	requireError(t, res, data, http.StatusBadRequest, "invalid_request")
}

func TestCancelIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	f := s.fixture(t)
	for i := 0; i < 2; i++ {
		res, data := s.do(t, http.MethodPost, "/assignments/"+f.AssignmentID+"/cancel", nil, client(t))
		require.Equal(t, http.StatusOK, res.StatusCode, string(data))
		assert.Equal(t, domain.StatusCancelled, decode[engine.Result](t, data).Assignment.Status)
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	s := newTestServer(t)
	res, data := s.do(t, http.MethodPost, "/api-keys", map[string]any{"actor_id": "client-1", "role": "client", "name": "ci"}, admin(t))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	issued := decode[APIKeyResponse](t, data)
	require.NotEmpty(t, issued.Key)

	res, data = s.do(t, http.MethodGet, "/me", nil, map[string]string{"X-Api-Key": issued.Key})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	me := decode[WhoAmIResponse](t, data)
	assert.Equal(t, "client-1", me.ActorID)
	assert.Equal(t, []string{"client"}, me.Roles)
	assert.Contains(t, me.Permissions, "seat.offer")
	assert.Equal(t, "api_key", me.Source)

	res, data = s.do(t, http.MethodGet, "/api-keys?actor_id=client-1", nil, admin(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	listed := decode[[]APIKeyResponse](t, data)
	require.Len(t, listed, 1)
	assert.Empty(t, listed[0].Key)

	res, _ = s.do(t, http.MethodDelete, "/api-keys/"+issued.ID, nil, admin(t))
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	res, data = s.do(t, http.MethodGet, "/me", nil, map[string]string{"X-Api-Key": issued.Key})
	requireError(t, res, data, http.StatusUnauthorized, "invalid_credentials")
}

func TestDevLoginAndLegacyHeader(t *testing.T) {
	s := newTestServer(t)
	res, data := s.do(t, http.MethodPost, "/auth/dev/login", map[string]any{"actor_id": "client-1", "roles": []string{"client"}}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	tok := decode[DevLoginResponse](t, data).Token

	res, data = s.do(t, http.MethodGet, "/me", nil, map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "jwt", decode[WhoAmIResponse](t, data).Source)

	res, data = s.do(t, http.MethodPost, "/auth/dev/login", map[string]any{"actor_id": "x", "roles": []string{"pilot"}}, nil)
	requireError(t, res, data, http.StatusBadRequest, "bad_request")

	res, data = s.do(t, http.MethodGet, "/me", nil, map[string]string{"X-Actor-Id": "cand-1"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	me := decode[WhoAmIResponse](t, data)
	assert.Equal(t, "legacy_header", me.Source)
	assert.Equal(t, []string{"candidate"}, me.Roles)
}

func TestProjectReadsAreScopedToOwnerAndTeam(t *testing.T) {
	s := newTestServer(t)
	f := s.fixture(t)
	outsider := token(t, "client-2", "client")
	reads := []string{
		"/projects/" + f.ProjectID,
		"/projects/" + f.ProjectID + "/seats",
		"/seats/" + f.RequestID + "/history",
		"/assignments/" + f.AssignmentID,
		"/events?project_id=" + f.ProjectID,
	}
	for _, path := range reads {
		res, data := s.do(t, http.MethodGet, path, nil, outsider)
		requireError(t, res, data, http.StatusForbidden, "not_owner")

		res, data = s.do(t, http.MethodGet, path, nil, candidate(t, "cand-1"))
		requireError(t, res, data, http.StatusForbidden, "not_owner")

		res, data = s.do(t, http.MethodGet, path, nil, client(t))
		require.Equal(t, http.StatusOK, res.StatusCode, "%s: %s", path, data)

		res, data = s.do(t, http.MethodGet, path, nil, admin(t))
		require.Equal(t, http.StatusOK, res.StatusCode, "%s: %s", path, data)
	}

	res, data := s.do(t, http.MethodGet, "/projects", nil, outsider)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Empty(t, decode[[]domain.Project](t, data))

	res, data = s.do(t, http.MethodPost, "/assignments/"+f.AssignmentID+"/offer", map[string]any{"candidate_id": "cand-1"}, client(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	// an offered candidate joins the project's readers
	res, data = s.do(t, http.MethodGet, "/assignments/"+f.AssignmentID, nil, candidate(t, "cand-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = s.do(t, http.MethodGet, "/projects", nil, candidate(t, "cand-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	projects := decode[[]domain.Project](t, data)
	require.Len(t, projects, 1)
	assert.Equal(t, f.ProjectID, projects[0].ID)

	res, data = s.do(t, http.MethodGet, "/assignments/"+f.AssignmentID, nil, candidate(t, "cand-2"))
	requireError(t, res, data, http.StatusForbidden, "not_owner")
}

func TestLegacyHeaderCannotChooseRoles(t *testing.T) {
	s := newTestServer(t)
	legacy := map[string]string{"X-Actor-Id": "mallory", "X-Actor-Roles": "admin"}

	res, data := s.do(t, http.MethodGet, "/me", nil, legacy)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, []string{"candidate"}, decode[WhoAmIResponse](t, data).Roles)

	res, data = s.do(t, http.MethodGet, "/api-keys", nil, legacy)
	requireError(t, res, data, http.StatusForbidden, "forbidden")
}

func TestNewRejectsUnknownLegacyRole(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn, config.Default())
	_, err = New(Config{Engine: e, Auth: AuthConfig{
		JWTSecret:              testSecret,
		AllowLegacyActorHeader: true,
		LegacyActorRole:        "root",
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root")
}

func TestEventsPagination(t *testing.T) {
	s := newTestServer(t)
	f := s.fixture(t)

	res, data := s.do(t, http.MethodGet, "/events?project_id="+f.ProjectID+"&limit=2", nil, client(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	page := decode[paginatedEvents](t, data)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)
	assert.Greater(t, page.Items[0].ID, page.Items[1].ID)
	assert.Equal(t, strconv.FormatInt(page.Items[1].ID, 10), page.NextCursor)

	res, data = s.do(t, http.MethodGet, "/events?project_id="+f.ProjectID+"&limit=2&cursor="+page.NextCursor, nil, client(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	next := decode[paginatedEvents](t, data)
	require.NotEmpty(t, next.Items)
	assert.Less(t, next.Items[0].ID, page.Items[1].ID)

	res, data = s.do(t, http.MethodGet, "/events", nil, client(t))
	requireError(t, res, data, http.StatusBadRequest, "bad_request")
}

func TestOpenAPIDocumentIsServed(t *testing.T) {
	s := newTestServer(t)
	res, data := s.do(t, http.MethodGet, "/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/v0/assignments/{assignment_id}/accept")
}

func TestOpenAPIDocumentConcurrentFetches(t *testing.T) {
	s := newTestServer(t)
	const fetches = 8
	bodies := make([][]byte, fetches)
	var g errgroup.Group
	for i := 0; i < fetches; i++ {
		g.Go(func() error {
			res, data := s.do(t, http.MethodGet, "/openapi.json", nil, nil)
			if res.StatusCode != http.StatusOK {
				return fmt.Errorf("status %d", res.StatusCode)
			}
			bodies[i] = data
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, b := range bodies[1:] {
		assert.Equal(t, bodies[0], b)
	}
}
