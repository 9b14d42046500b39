package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffline/internal/domain"
)

func candidate(id, created string, langs, exps []string) domain.Candidate {
	return domain.Candidate{
		ID:           id,
		ProfileID:    "backend",
		Seniority:    "senior",
		Languages:    langs,
		Expertises:   exps,
		Availability: domain.AvailabilityAvailable,
		CreatedAt:    created,
	}
}

func TestEligible(t *testing.T) {
	req := domain.Snapshot{ProfileID: "backend", Seniority: "senior", Languages: []string{"fr"}, Expertises: []string{"go"}}
	base := candidate("c1", "2024-01-01", []string{"en", "fr"}, []string{"go", "sql"})

	tests := []struct {
		name   string
		mutate func(c *domain.Candidate)
		want   bool
	}{
		{"superset matches", func(c *domain.Candidate) {}, true},
		{"paused candidate", func(c *domain.Candidate) { c.Availability = domain.AvailabilityPaused }, false},
		{"in qualification", func(c *domain.Candidate) { c.Availability = domain.AvailabilityInQualification }, false},
		{"other profile", func(c *domain.Candidate) { c.ProfileID = "frontend" }, false},
		{"other seniority", func(c *domain.Candidate) { c.Seniority = "junior" }, false},
		{"missing language", func(c *domain.Candidate) { c.Languages = []string{"en"} }, false},
		{"missing expertise", func(c *domain.Candidate) { c.Expertises = []string{"sql"} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			assert.Equal(t, tt.want, Eligible(req, c))
		})
	}
}

func TestEmptyConstraintSetsMatchAnyone(t *testing.T) {
	req := domain.Snapshot{ProfileID: "backend", Seniority: "senior"}
	assert.True(t, Eligible(req, candidate("c1", "2024-01-01", nil, nil)))
}

func TestFilterOrdersByRegistration(t *testing.T) {
	req := domain.Snapshot{ProfileID: "backend", Seniority: "senior"}
	ids, err := Filter(req, []domain.Candidate{
		candidate("c3", "2024-03-01", nil, nil),
		candidate("c2", "2024-01-01", nil, nil),
		candidate("c1", "2024-01-01", nil, nil),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2", "c3"}, ids)
}

func TestFilterNoMatchIsEmptyNotError(t *testing.T) {
	req := domain.Snapshot{ProfileID: "backend", Seniority: "senior", Languages: []string{"fr"}}
	ids, err := Filter(req, []domain.Candidate{candidate("c1", "2024-01-01", []string{"en"}, nil)})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestInvalidRequest(t *testing.T) {
	_, err := Filter(domain.Snapshot{Seniority: "senior"}, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = Filter(domain.Snapshot{ProfileID: "backend"}, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestMatcherUsesSource(t *testing.T) {
	var gotProfile, gotSeniority string
	m := New(SourceFunc(func(_ context.Context, profileID, seniority string) ([]domain.Candidate, error) {
		gotProfile, gotSeniority = profileID, seniority
		return []domain.Candidate{candidate("c1", "2024-01-01", []string{"fr"}, nil)}, nil
	}))
	req := domain.Snapshot{ProfileID: "backend", Seniority: "senior", Languages: []string{"fr"}}
	ok, err := m.IsEligible(context.Background(), req, "c1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "backend", gotProfile)
	assert.Equal(t, "senior", gotSeniority)

	ok, err = m.IsEligible(context.Background(), req, "c2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatcherPropagatesSourceErrors(t *testing.T) {
	boom := errors.New("store down")
	m := New(SourceFunc(func(context.Context, string, string) ([]domain.Candidate, error) { return nil, boom }))
	_, err := m.FindEligibleCandidates(context.Background(), domain.Snapshot{ProfileID: "p", Seniority: "s"})
	assert.ErrorIs(t, err, boom)
}
