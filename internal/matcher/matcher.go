// Package matcher maps a seat's requirements to the candidates that qualify for it.
//
// Eligibility is a hard boolean filter. Ordering is first-registered, first-offered
// (created_at ascending, id ascending) so repeated searches return the same list.
package matcher

import (
	"context"
	"errors"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"staffline/internal/domain"
)

var ErrInvalidRequest = errors.New("invalid request")

// Source loads the available candidates of one profile/seniority pair.
type Source interface {
	AvailableCandidates(ctx context.Context, profileID, seniority string) ([]domain.Candidate, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, profileID, seniority string) ([]domain.Candidate, error)

func (f SourceFunc) AvailableCandidates(ctx context.Context, profileID, seniority string) ([]domain.Candidate, error) {
	return f(ctx, profileID, seniority)
}

type Matcher struct {
	Source Source
}

func New(src Source) Matcher {
	return Matcher{Source: src}
}

// Validate checks that the snapshot names exactly one profile and one seniority tier.
func Validate(req domain.Snapshot) error {
	if strings.TrimSpace(req.ProfileID) == "" {
		return errors.Join(ErrInvalidRequest, errors.New("profile is required"))
	}
	if strings.TrimSpace(req.Seniority) == "" {
		return errors.Join(ErrInvalidRequest, errors.New("seniority is required"))
	}
	return nil
}

// FindEligibleCandidates returns the ordered ids of candidates that satisfy req.
// No match yields an empty list, not an error.
func (m Matcher) FindEligibleCandidates(ctx context.Context, req domain.Snapshot) ([]string, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	if m.Source == nil {
		return nil, errors.New("matcher has no candidate source")
	}
	candidates, err := m.Source.AvailableCandidates(ctx, req.ProfileID, req.Seniority)
	if err != nil {
		return nil, err
	}
	return Filter(req, candidates)
}

// IsEligible re-runs the search and reports whether candidateID is in the result.
func (m Matcher) IsEligible(ctx context.Context, req domain.Snapshot, candidateID string) (bool, error) {
	ids, err := m.FindEligibleCandidates(ctx, req)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == candidateID {
			return true, nil
		}
	}
	return false, nil
}

// Filter applies the eligibility predicate to a candidate snapshot and orders the survivors.
func Filter(req domain.Snapshot, candidates []domain.Candidate) ([]string, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	langs := mapset.NewThreadUnsafeSet(req.Languages...)
	exps := mapset.NewThreadUnsafeSet(req.Expertises...)
	eligible := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if eligibleFor(req, langs, exps, c) {
			eligible = append(eligible, c)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].CreatedAt != eligible[j].CreatedAt {
			return eligible[i].CreatedAt < eligible[j].CreatedAt
		}
		return eligible[i].ID < eligible[j].ID
	})
	ids := make([]string, 0, len(eligible))
	for _, c := range eligible {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// Eligible reports whether a single candidate satisfies req.
func Eligible(req domain.Snapshot, c domain.Candidate) bool {
	return eligibleFor(req, mapset.NewThreadUnsafeSet(req.Languages...), mapset.NewThreadUnsafeSet(req.Expertises...), c)
}

func eligibleFor(req domain.Snapshot, langs, exps mapset.Set[string], c domain.Candidate) bool {
	if c.Availability != domain.AvailabilityAvailable {
		return false
	}
	if c.ProfileID != req.ProfileID || c.Seniority != req.Seniority {
		return false
	}
	return langs.IsSubset(mapset.NewThreadUnsafeSet(c.Languages...)) &&
		exps.IsSubset(mapset.NewThreadUnsafeSet(c.Expertises...))
}
