package server

import (
	"staffline/internal/domain"
	"staffline/internal/engine"
)

// Request payloads

type CreateProjectRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name" minLength:"1"`
	// OwnerID defaults to the caller; only admins may set it to someone else.
	OwnerID string `json:"owner_id,omitempty"`
}

type AddSeatRequest struct {
	ID           string          `json:"id,omitempty"`
	Requirements domain.Snapshot `json:"requirements"`
}

type OfferRequest struct {
	CandidateID string `json:"candidate_id" minLength:"1"`
}

type AcceptRequest struct {
	// CandidateID defaults to the caller.
	CandidateID string `json:"candidate_id,omitempty"`
}

type ReasonRequest struct {
	Reason string `json:"reason,omitempty" doc:"requirements-changed, project-completed, candidate-unavailable, client-request or other"`
}

type CompleteRequest struct {
	Reason      string           `json:"reason,omitempty" doc:"requirements-changed, project-completed, candidate-unavailable, client-request or other"`
	Replacement *domain.Snapshot `json:"replacement,omitempty"`
}

type ReopenRequest struct {
	Replacement *domain.Snapshot `json:"replacement,omitempty"`
}

type UpsertCandidateRequest struct {
	DisplayName  string   `json:"display_name,omitempty"`
	ProfileID    string   `json:"profile_id" minLength:"1"`
	Seniority    string   `json:"seniority" minLength:"1"`
	Languages    []string `json:"languages,omitempty"`
	Expertises   []string `json:"expertises,omitempty"`
	Availability string   `json:"availability,omitempty" enum:"available,paused,unavailable,in-qualification"`
}

type AvailabilityRequest struct {
	Availability string `json:"availability" enum:"available,paused,unavailable,in-qualification"`
}

type CatalogItemRequest struct {
	Kind string `json:"kind" enum:"profile,seniority,language,expertise"`
	ID   string `json:"id" minLength:"1"`
	Name string `json:"name,omitempty"`
	Rank int    `json:"rank,omitempty"`
}

type IssueAPIKeyRequest struct {
	ActorID string `json:"actor_id" minLength:"1"`
	Role    string `json:"role" minLength:"1"`
	Name    string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id" minLength:"1"`
	Roles   []string `json:"roles,omitempty"`
}

// Responses

type ResultResponse = engine.Result

type ProjectReportResponse = engine.StatusReport

type SeatResponse struct {
	Request domain.ResourceRequest `json:"request"`
	Head    *domain.Assignment     `json:"head,omitempty"`
}

type EligibleResponse struct {
	AssignmentID string   `json:"assignment_id"`
	Candidates   []string `json:"candidates"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
	// Key is only returned once, at creation.
	Key string `json:"key,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Role: k.Role, Name: k.Name, CreatedAt: k.CreatedAt}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
