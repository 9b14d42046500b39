package stafflinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Staffline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Snapshot is the requirement set of a seat.
type Snapshot struct {
	ProfileID  string   `json:"profile_id"`
	Seniority  string   `json:"seniority"`
	Languages  []string `json:"languages,omitempty"`
	Expertises []string `json:"expertises,omitempty"`
}

// Assignment represents the API assignment model.
type Assignment struct {
	ID                   string   `json:"id"`
	ProjectID            string   `json:"project_id"`
	RequestID            string   `json:"request_id"`
	Requirements         Snapshot `json:"requirements"`
	Status               string   `json:"status"`
	CandidateID          *string  `json:"candidate_id,omitempty"`
	PreviousAssignmentID *string  `json:"previous_assignment_id,omitempty"`
	Version              int64    `json:"version"`
	CompletionReason     *string  `json:"completion_reason,omitempty"`
}

// Result is returned by every booking command.
type Result struct {
	Assignment    Assignment  `json:"assignment"`
	Successor     *Assignment `json:"successor,omitempty"`
	Eligible      []string    `json:"eligible,omitempty"`
	ProjectStatus string      `json:"project_status"`
}

type Project struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
	Status  string `json:"status"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityID   string `json:"entity_id"`
	EntityKind string `json:"entity_kind"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsTaken reports whether err means another caller won the race for the seat.
func IsTaken(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "already_taken"
}

// CreateProject creates a project owned by the caller.
func (c *Client) CreateProject(ctx context.Context, id, name string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", map[string]any{"id": id, "name": name}, &resp)
	return resp, err
}

// AddSeat adds a seat to a project.
func (c *Client) AddSeat(ctx context.Context, projectID, seatID string, req Snapshot) (Result, error) {
	var resp Result
	endpoint := fmt.Sprintf("v0/projects/%s/seats", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"id": seatID, "requirements": req}, &resp)
	return resp, err
}

// OpenSearch moves a draft seat to searching and returns the eligible candidates.
func (c *Client) OpenSearch(ctx context.Context, seatID string) (Result, error) {
	var resp Result
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/seats/%s/search", url.PathEscape(seatID)), nil, &resp)
	return resp, err
}

// Offer proposes a searching assignment to a candidate.
func (c *Client) Offer(ctx context.Context, assignmentID, candidateID string) (Result, error) {
	return c.command(ctx, assignmentID, "offer", map[string]any{"candidate_id": candidateID})
}

// Accept accepts a pending offer as the authenticated candidate.
func (c *Client) Accept(ctx context.Context, assignmentID string) (Result, error) {
	return c.command(ctx, assignmentID, "accept", map[string]any{})
}

// Decline declines a pending offer; the seat reopens.
func (c *Client) Decline(ctx context.Context, assignmentID, reason string) (Result, error) {
	return c.command(ctx, assignmentID, "decline", reasonBody(reason))
}

// Cancel cancels an assignment.
func (c *Client) Cancel(ctx context.Context, assignmentID, reason string) (Result, error) {
	return c.command(ctx, assignmentID, "cancel", reasonBody(reason))
}

// Complete completes an accepted assignment. A non-nil replacement opens a successor seat search.
func (c *Client) Complete(ctx context.Context, assignmentID, reason string, replacement *Snapshot) (Result, error) {
	body := reasonBody(reason)
	if replacement != nil {
		body["replacement"] = replacement
	}
	return c.command(ctx, assignmentID, "complete", body)
}

// Reopen opens a searching successor for a retired assignment.
func (c *Client) Reopen(ctx context.Context, assignmentID string, replacement *Snapshot) (Result, error) {
	body := map[string]any{}
	if replacement != nil {
		body["replacement"] = replacement
	}
	return c.command(ctx, assignmentID, "reopen", body)
}

// Eligible lists the candidates eligible for an assignment.
func (c *Client) Eligible(ctx context.Context, assignmentID string) ([]string, error) {
	var resp struct {
		Candidates []string `json:"candidates"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/assignments/%s/eligible", url.PathEscape(assignmentID)), nil, &resp)
	return resp.Candidates, err
}

// History returns the assignment chain of a seat, oldest first.
func (c *Client) History(ctx context.Context, seatID string) ([]Assignment, error) {
	var resp []Assignment
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/seats/%s/history", url.PathEscape(seatID)), nil, &resp)
	return resp, err
}

// Events lists a project's events, newest first. Pass the previous NextCursor to page back.
func (c *Client) Events(ctx context.Context, projectID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	q.Set("project_id", projectID)
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, "v0/events?"+q.Encode(), nil, &resp)
	return resp, err
}

func reasonBody(reason string) map[string]any {
	body := map[string]any{}
	if reason != "" {
		body["reason"] = reason
	}
	return body
}

func (c *Client) command(ctx context.Context, assignmentID, action string, body any) (Result, error) {
	var resp Result
	endpoint := fmt.Sprintf("v0/assignments/%s/%s", url.PathEscape(assignmentID), action)
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
