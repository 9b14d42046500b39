package domain

import (
	"strings"
	"time"
)

// TimeFormat is a fixed-width UTC timestamp layout; values sort lexicographically.
const TimeFormat = "2006-01-02T15:04:05.000000Z07:00"

// FormatTime renders t in TimeFormat (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

type AssignmentStatus string

const (
	StatusDraft             AssignmentStatus = "draft"
	StatusSearching         AssignmentStatus = "searching"
	StatusPendingAcceptance AssignmentStatus = "pending_acceptance"
	StatusAccepted          AssignmentStatus = "accepted"
	StatusDeclined          AssignmentStatus = "declined"
	StatusCompleted         AssignmentStatus = "completed"
	StatusCancelled         AssignmentStatus = "cancelled"
)

// Terminal reports whether the row is retired (completed_at is set).
func (s AssignmentStatus) Terminal() bool {
	switch s {
	case StatusDeclined, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Claimed reports whether the seat is held by a candidate.
func (s AssignmentStatus) Claimed() bool {
	return s == StatusPendingAcceptance || s == StatusAccepted
}

// Open reports whether the seat is still looking for someone.
func (s AssignmentStatus) Open() bool {
	return s == StatusSearching || s == StatusPendingAcceptance
}

func (s AssignmentStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSearching, StatusPendingAcceptance, StatusAccepted,
		StatusDeclined, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type ProjectStatus string

const (
	ProjectFormingTeam  ProjectStatus = "forming-team"
	ProjectAwaitingTeam ProjectStatus = "awaiting-team"
	ProjectReady        ProjectStatus = "ready"
	ProjectInProgress   ProjectStatus = "in-progress"
	ProjectPaused       ProjectStatus = "paused"
	ProjectCompleted    ProjectStatus = "completed"
	ProjectArchived     ProjectStatus = "archived"
	ProjectDeleted      ProjectStatus = "deleted"
)

// OwnerDriven statuses are set by explicit owner actions and never derived.
func (s ProjectStatus) OwnerDriven() bool {
	switch s {
	case ProjectInProgress, ProjectPaused, ProjectCompleted, ProjectArchived, ProjectDeleted:
		return true
	}
	return false
}

type Availability string

const (
	AvailabilityAvailable       Availability = "available"
	AvailabilityPaused          Availability = "paused"
	AvailabilityUnavailable     Availability = "unavailable"
	AvailabilityInQualification Availability = "in-qualification"
)

func (a Availability) Valid() bool {
	switch a {
	case AvailabilityAvailable, AvailabilityPaused, AvailabilityUnavailable, AvailabilityInQualification:
		return true
	}
	return false
}

type CompletionReason string

const (
	ReasonRequirementsChanged  CompletionReason = "requirements-changed"
	ReasonProjectCompleted     CompletionReason = "project-completed"
	ReasonCandidateUnavailable CompletionReason = "candidate-unavailable"
	ReasonClientRequest        CompletionReason = "client-request"
	ReasonOther                CompletionReason = "other"
)

// ParseCompletionReason accepts both dashed and underscored spellings.
func ParseCompletionReason(s string) (CompletionReason, bool) {
	r := CompletionReason(strings.ReplaceAll(strings.TrimSpace(s), "_", "-"))
	switch r {
	case ReasonRequirementsChanged, ReasonProjectCompleted, ReasonCandidateUnavailable, ReasonClientRequest, ReasonOther:
		return r, true
	}
	return "", false
}

// Snapshot is the requirement set of a seat, copied onto every assignment.
type Snapshot struct {
	ProfileID  string   `json:"profile_id"`
	Seniority  string   `json:"seniority"`
	Languages  []string `json:"languages,omitempty"`
	Expertises []string `json:"expertises,omitempty"`
}

type ResourceRequest struct {
	ID           string   `json:"id"`
	ProjectID    string   `json:"project_id"`
	Requirements Snapshot `json:"requirements"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
}

type Assignment struct {
	ID                   string           `json:"id"`
	ProjectID            string           `json:"project_id"`
	RequestID            string           `json:"request_id"`
	Requirements         Snapshot         `json:"requirements"`
	Status               AssignmentStatus `json:"status"`
	CandidateID          *string          `json:"candidate_id,omitempty"`
	PreviousAssignmentID *string          `json:"previous_assignment_id,omitempty"`
	Version              int64            `json:"version"`
	OfferedAt            *string          `json:"offered_at,omitempty" format:"date-time"`
	AcceptedAt           *string          `json:"accepted_at,omitempty" format:"date-time"`
	CompletedAt          *string          `json:"completed_at,omitempty" format:"date-time"`
	CompletionReason     *string          `json:"completion_reason,omitempty"`
	CreatedAt            string           `json:"created_at" format:"date-time"`
	UpdatedAt            string           `json:"updated_at" format:"date-time"`
}

type Candidate struct {
	ID           string       `json:"id"`
	DisplayName  string       `json:"display_name,omitempty"`
	ProfileID    string       `json:"profile_id"`
	Seniority    string       `json:"seniority"`
	Languages    []string     `json:"languages,omitempty"`
	Expertises   []string     `json:"expertises,omitempty"`
	Availability Availability `json:"availability"`
	CreatedAt    string       `json:"created_at" format:"date-time"`
	UpdatedAt    string       `json:"updated_at" format:"date-time"`
}

type Project struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	OwnerID   string        `json:"owner_id"`
	Status    ProjectStatus `json:"status"`
	CreatedAt string        `json:"created_at" format:"date-time"`
	UpdatedAt string        `json:"updated_at" format:"date-time"`
}

type CatalogKind string

const (
	CatalogProfile   CatalogKind = "profile"
	CatalogSeniority CatalogKind = "seniority"
	CatalogLanguage  CatalogKind = "language"
	CatalogExpertise CatalogKind = "expertise"
)

func (k CatalogKind) Valid() bool {
	switch k {
	case CatalogProfile, CatalogSeniority, CatalogLanguage, CatalogExpertise:
		return true
	}
	return false
}

// CatalogItem is one reference entry; Rank orders seniority tiers.
type CatalogItem struct {
	Kind CatalogKind `json:"kind"`
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Rank int         `json:"rank,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
