package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffline/internal/db"
	"staffline/internal/domain"
	"staffline/internal/migrate"
	"staffline/internal/repo"
)

const ts = "2024-01-01T09:00:00.000000Z"

func newRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	r := repo.New(conn)
	ctx := context.Background()
	require.NoError(t, r.InsertProject(ctx, nil, domain.Project{ID: "p1", Name: "P", OwnerID: "o", Status: domain.ProjectAwaitingTeam, CreatedAt: ts, UpdatedAt: ts}))
	require.NoError(t, r.InsertRequest(ctx, nil, domain.ResourceRequest{ID: "seat-1", ProjectID: "p1", Requirements: domain.Snapshot{ProfileID: "be", Seniority: "senior"}, CreatedAt: ts}))
	return r, ctx
}

func assignment(id string, status domain.AssignmentStatus, prev *string) domain.Assignment {
	a := domain.Assignment{
		ID: id, ProjectID: "p1", RequestID: "seat-1",
		Requirements: domain.Snapshot{ProfileID: "be", Seniority: "senior", Languages: []string{"fr"}},
		Status:       status, PreviousAssignmentID: prev, CreatedAt: ts, UpdatedAt: ts,
	}
	if status.Terminal() {
		done := ts
		a.CompletedAt = &done
	}
	return a
}

func TestConditionalUpdate(t *testing.T) {
	r, ctx := newRepo(t)
	a := assignment("a1", domain.StatusSearching, nil)
	require.NoError(t, r.InsertAssignment(ctx, nil, a))

	stored, err := r.GetAssignment(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.Equal(t, []string{"fr"}, stored.Requirements.Languages)

	cand := "c1"
	next := stored
	next.Status = domain.StatusPendingAcceptance
	next.CandidateID = &cand
	ok, err := r.ConditionalUpdate(ctx, nil, next, domain.StatusSearching, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.ConditionalUpdate(ctx, nil, next, domain.StatusSearching, 1)
	require.NoError(t, err)
	assert.False(t, ok, "stale status and version must not match")

	stored, err = r.GetAssignment(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.Equal(t, domain.StatusPendingAcceptance, stored.Status)
	assert.Equal(t, "c1", *stored.CandidateID)
}

func TestSecondLiveAssignmentConflicts(t *testing.T) {
	r, ctx := newRepo(t)
	require.NoError(t, r.InsertAssignment(ctx, nil, assignment("a1", domain.StatusPendingAcceptance, nil)))
	err := r.InsertAssignment(ctx, nil, assignment("a2", domain.StatusSearching, nil))
	assert.ErrorIs(t, err, repo.ErrConflict)
}

func TestChainAndHeads(t *testing.T) {
	r, ctx := newRepo(t)
	require.NoError(t, r.InsertAssignment(ctx, nil, assignment("a1", domain.StatusDeclined, nil)))
	a1 := "a1"
	require.NoError(t, r.InsertAssignment(ctx, nil, assignment("a2", domain.StatusCancelled, &a1)))
	a2 := "a2"
	require.NoError(t, r.InsertAssignment(ctx, nil, assignment("a3", domain.StatusSearching, &a2)))

	err := r.InsertAssignment(ctx, nil, assignment("fork", domain.StatusCancelled, &a1))
	assert.ErrorIs(t, err, repo.ErrConflict, "a row has at most one successor")

	chain, err := r.Chain(ctx, "a3")
	require.NoError(t, err)
	ids := make([]string, 0, len(chain))
	for _, a := range chain {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"a1", "a2", "a3"}, ids)

	head, err := r.HeadForRequestTx(ctx, nil, "seat-1")
	require.NoError(t, err)
	assert.Equal(t, "a3", head.ID)
	heads, err := r.SeatHeadsTx(ctx, nil, "p1")
	require.NoError(t, err)
	require.Len(t, heads, 1)

	has, err := r.HasSuccessorTx(ctx, nil, "a2")
	require.NoError(t, err)
	assert.True(t, has)

	_, err = r.ClaimedForRequestTx(ctx, nil, "seat-1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestCandidateProjectIDs(t *testing.T) {
	r, ctx := newRepo(t)
	require.NoError(t, r.InsertProject(ctx, nil, domain.Project{ID: "p2", Name: "Q", OwnerID: "o", Status: domain.ProjectAwaitingTeam, CreatedAt: ts, UpdatedAt: ts}))
	require.NoError(t, r.InsertRequest(ctx, nil, domain.ResourceRequest{ID: "seat-2", ProjectID: "p2", Requirements: domain.Snapshot{ProfileID: "be", Seniority: "senior"}, CreatedAt: ts}))

	cand := "c1"
	a1 := assignment("a1", domain.StatusDeclined, nil)
	a1.CandidateID = &cand
	require.NoError(t, r.InsertAssignment(ctx, nil, a1))
	a2 := assignment("a2", domain.StatusPendingAcceptance, nil)
	a2.ProjectID, a2.RequestID, a2.CandidateID = "p2", "seat-2", &cand
	require.NoError(t, r.InsertAssignment(ctx, nil, a2))

	ids, err := r.CandidateProjectIDs(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids)

	ids, err = r.CandidateProjectIDs(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCompletedAtMustMatchStatus(t *testing.T) {
	r, ctx := newRepo(t)
	a := assignment("a1", domain.StatusCancelled, nil)
	a.CompletedAt = nil
	assert.Error(t, r.InsertAssignment(ctx, nil, a))
}

func TestNormalizeSet(t *testing.T) {
	assert.Equal(t, []string{"en", "fr"}, repo.NormalizeSet([]string{" fr", "en", "fr", ""}))
	assert.Empty(t, repo.NormalizeSet(nil))
}

func TestQueryCandidatesFiltersAndOrders(t *testing.T) {
	r, ctx := newRepo(t)
	for _, c := range []domain.Candidate{
		{ID: "c2", ProfileID: "be", Seniority: "senior", Availability: domain.AvailabilityAvailable, CreatedAt: "2024-01-02", UpdatedAt: ts},
		{ID: "c1", ProfileID: "be", Seniority: "senior", Availability: domain.AvailabilityAvailable, CreatedAt: "2024-01-03", UpdatedAt: ts},
		{ID: "c3", ProfileID: "be", Seniority: "senior", Availability: domain.AvailabilityPaused, CreatedAt: "2024-01-01", UpdatedAt: ts},
		{ID: "c4", ProfileID: "fe", Seniority: "senior", Availability: domain.AvailabilityAvailable, CreatedAt: "2024-01-01", UpdatedAt: ts},
	} {
		require.NoError(t, r.UpsertCandidate(ctx, nil, c))
	}
	got, err := r.QueryCandidates(ctx, nil, "be", "senior", domain.AvailabilityAvailable)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c2", got[0].ID)
	assert.Equal(t, "c1", got[1].ID)
}
