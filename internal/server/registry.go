package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/repo"
)

type candidatePath struct {
	CandidateID string `path:"candidate_id"`
}

func (h handlers) registerCandidates(api huma.API) {
	e := h.engine
	huma.Register(api, huma.Operation{
		OperationID: "upsert-candidate",
		Method:      http.MethodPut,
		Path:        "/candidates/{candidate_id}",
		Summary:     "Register or replace a candidate",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		CandidateID string                 `path:"candidate_id"`
		Body        UpsertCandidateRequest `json:"body"`
	}) (*bodyOf[domain.Candidate], error) {
		principal, err := h.authorize(ctx, "candidate.manage")
		if err != nil {
			return nil, handleError(err)
		}
		c, err := e.UpsertCandidate(ctx, engine.UpsertCandidateOptions{
			ID:           input.CandidateID,
			DisplayName:  input.Body.DisplayName,
			ProfileID:    input.Body.ProfileID,
			Seniority:    input.Body.Seniority,
			Languages:    input.Body.Languages,
			Expertises:   input.Body.Expertises,
			Availability: domain.Availability(input.Body.Availability),
			ActorID:      principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-candidates",
		Method:      http.MethodGet,
		Path:        "/candidates",
		Summary:     "List candidates",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ProfileID    string `query:"profile_id"`
		Seniority    string `query:"seniority"`
		Availability string `query:"availability"`
		Limit        int    `query:"limit" default:"50"`
	}) (*bodyOf[[]domain.Candidate], error) {
		if _, err := h.authorize(ctx, "candidate.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListCandidates(ctx, repo.CandidateFilters{
			ProfileID:    input.ProfileID,
			Seniority:    input.Seniority,
			Availability: input.Availability,
			Limit:        normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-candidate",
		Method:      http.MethodGet,
		Path:        "/candidates/{candidate_id}",
		Summary:     "Get candidate",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *candidatePath) (*bodyOf[domain.Candidate], error) {
		if err := h.authorizeSelf(ctx, input.CandidateID, "candidate.read"); err != nil {
			return nil, handleError(err)
		}
		c, err := e.Repo.GetCandidate(ctx, input.CandidateID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-availability",
		Method:      http.MethodPost,
		Path:        "/candidates/{candidate_id}/availability",
		Summary:     "Change candidate availability",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		CandidateID string              `path:"candidate_id"`
		Body        AvailabilityRequest `json:"body"`
	}) (*bodyOf[domain.Candidate], error) {
		principal, err := h.authorize(ctx, "candidate.availability")
		if err != nil {
			return nil, handleError(err)
		}
		if principal.ActorID != input.CandidateID && !h.policy.IsAdmin(principal.Roles) {
			return nil, newAPIError(http.StatusForbidden, "not_owner", "candidates may only change their own availability", nil)
		}
		c, err := e.SetAvailability(ctx, input.CandidateID, domain.Availability(input.Body.Availability), principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c), nil
	})
}

// authorizeSelf passes when the caller holds perm or is the candidate itself.
func (h handlers) authorizeSelf(ctx context.Context, candidateID, perm string) error {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return authErr
	}
	if principal.ActorID == candidateID {
		return nil
	}
	return h.policy.Check(principal.Roles, perm)
}

func (h handlers) registerCatalog(api huma.API) {
	e := h.engine
	huma.Register(api, huma.Operation{
		OperationID: "list-catalog",
		Method:      http.MethodGet,
		Path:        "/catalog",
		Summary:     "List catalog entries",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Kind string `query:"kind" doc:"profile, seniority, language or expertise"`
	}) (*bodyOf[[]domain.CatalogItem], error) {
		if _, err := h.authorize(ctx, "catalog.read"); err != nil {
			return nil, handleError(err)
		}
		if input.Kind != "" && !domain.CatalogKind(input.Kind).Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown catalog kind", map[string]any{"kind": input.Kind})
		}
		items, err := e.Repo.ListCatalog(ctx, domain.CatalogKind(input.Kind))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-catalog-item",
		Method:        http.MethodPost,
		Path:          "/catalog",
		Summary:       "Add or rename a catalog entry",
		DefaultStatus: http.StatusCreated,
		Errors:        standardErrors,
	}, func(ctx context.Context, input *struct {
		Body CatalogItemRequest `json:"body"`
	}) (*bodyOf[domain.CatalogItem], error) {
		if _, err := h.authorize(ctx, "catalog.manage"); err != nil {
			return nil, handleError(err)
		}
		item, err := e.AddCatalogItem(ctx, domain.CatalogItem{
			Kind: domain.CatalogKind(input.Body.Kind),
			ID:   input.Body.ID,
			Name: input.Body.Name,
			Rank: input.Body.Rank,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(item), nil
	})
}

func (h handlers) registerAPIKeys(api huma.API) {
	e := h.engine
	huma.Register(api, huma.Operation{
		OperationID:   "issue-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Issue an API key",
		DefaultStatus: http.StatusCreated,
		Errors:        standardErrors,
	}, func(ctx context.Context, input *struct {
		Body IssueAPIKeyRequest `json:"body"`
	}) (*bodyOf[APIKeyResponse], error) {
		if _, err := h.authorize(ctx, "apikey.manage"); err != nil {
			return nil, handleError(err)
		}
		key, secret, err := e.IssueAPIKey(ctx, engine.IssueAPIKeyOptions{
			ActorID: input.Body.ActorID,
			Role:    input.Body.Role,
			Name:    input.Body.Name,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := apiKeyResponse(key)
		resp.Key = secret
		return respond(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*bodyOf[[]APIKeyResponse], error) {
		if _, err := h.authorize(ctx, "apikey.manage"); err != nil {
			return nil, handleError(err)
		}
		keys, err := e.ListAPIKeys(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			out = append(out, apiKeyResponse(k))
		}
		return respond(out), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{key_id}",
		Summary:       "Revoke an API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if _, err := h.authorize(ctx, "apikey.manage"); err != nil {
			return nil, handleError(err)
		}
		if err := e.RevokeAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
