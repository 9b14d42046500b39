package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"staffline/internal/config"
	"staffline/internal/db"
	"staffline/internal/domain"
	"staffline/internal/events"
	"staffline/internal/matcher"
	"staffline/internal/readiness"
	"staffline/internal/repo"
)

// Engine is the single writer of assignment and project status.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
	Logger *slog.Logger
	// AfterCommit runs after every committed command, outside the transaction.
	AfterCommit func()
}

func New(conn *db.Conn, cfg *config.Config) Engine {
	return Engine{
		DB:     conn.DB,
		Repo:   repo.New(conn),
		Events: events.Writer{Dialect: conn.Dialect},
		Config: cfg,
		Now:    time.Now,
		Logger: slog.Default(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return domain.FormatTime(e.now())
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	w.Now = e.now
	return w.Append(ctx, tx, evtType, projectID, entityKind, entityID, actorID, payload)
}

// withTx runs fn in a transaction and fires AfterCommit once it commits.
func (e Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if e.AfterCommit != nil {
		e.AfterCommit()
	}
	return nil
}

// matcherTx binds the matcher to the candidate registry as seen by tx.
func (e Engine) matcherTx(tx *sql.Tx) matcher.Matcher {
	return matcher.New(matcher.SourceFunc(func(ctx context.Context, profileID, seniority string) ([]domain.Candidate, error) {
		return e.Repo.QueryCandidates(ctx, tx, profileID, seniority, domain.AvailabilityAvailable)
	}))
}

// Result is returned by every booking command.
type Result struct {
	Assignment    domain.Assignment    `json:"assignment"`
	Successor     *domain.Assignment   `json:"successor,omitempty"`
	Eligible      []string             `json:"eligible,omitempty"`
	ProjectStatus domain.ProjectStatus `json:"project_status"`
}

type CreateProjectOptions struct {
	ID      string
	Name    string
	OwnerID string
	ActorID string
}

// CreateProject registers an empty project; it awaits its first seats.
func (e Engine) CreateProject(ctx context.Context, opts CreateProjectOptions) (domain.Project, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Project{}, invalidRequest("project name is required")
	}
	owner := opts.OwnerID
	if owner == "" {
		owner = opts.ActorID
	}
	if owner == "" {
		return domain.Project{}, invalidRequest("project owner is required")
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.stamp()
	p := domain.Project{
		ID:        id,
		Name:      name,
		OwnerID:   owner,
		Status:    domain.ProjectAwaitingTeam,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		return e.appendEvent(ctx, tx, events.ProjectCreated, p.ID, "project", p.ID, opts.ActorID,
			events.EventPayload{"name": p.Name, "owner_id": p.OwnerID, "status": p.Status})
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// GetProjectStatus returns the stored project status.
func (e Engine) GetProjectStatus(ctx context.Context, projectID string) (domain.ProjectStatus, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return "", notFound(err, "project", projectID)
	}
	return p.Status, nil
}

// StatusReport is a project with the booking state of its seat heads.
type StatusReport struct {
	Project domain.Project      `json:"project"`
	Seats   readiness.Counts    `json:"seats"`
	Heads   []domain.Assignment `json:"heads"`
}

func (e Engine) ProjectReport(ctx context.Context, projectID string) (StatusReport, error) {
	var rep StatusReport
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return rep, notFound(err, "project", projectID)
	}
	heads, err := e.Repo.SeatHeadsTx(ctx, nil, projectID)
	if err != nil {
		return rep, err
	}
	rep.Project = p
	rep.Heads = heads
	rep.Seats = readiness.Count(heads)
	return rep, nil
}

// Recompute re-derives a project's status from its seat heads and stores it.
func (e Engine) Recompute(ctx context.Context, projectID, actorID string) (domain.ProjectStatus, error) {
	var status domain.ProjectStatus
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		status, err = e.recompute(ctx, tx, projectID, actorID)
		return err
	})
	return status, err
}

func (e Engine) recompute(ctx context.Context, tx *sql.Tx, projectID, actorID string) (domain.ProjectStatus, error) {
	p, err := e.Repo.GetProjectForUpdateTx(ctx, tx, projectID)
	if err != nil {
		return "", notFound(err, "project", projectID)
	}
	heads, err := e.Repo.SeatHeadsTx(ctx, tx, projectID)
	if err != nil {
		return "", err
	}
	next := readiness.Derive(p.Status, heads)
	if next == p.Status {
		return p.Status, nil
	}
	if err := e.setProjectStatus(ctx, tx, p, next, actorID); err != nil {
		return "", err
	}
	return next, nil
}

func (e Engine) setProjectStatus(ctx context.Context, tx *sql.Tx, p domain.Project, next domain.ProjectStatus, actorID string) error {
	ok, err := e.Repo.UpdateProjectStatus(ctx, tx, p.ID, p.Status, next, e.stamp())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: project %s changed concurrently", repo.ErrConflict, p.ID)
	}
	return e.appendEvent(ctx, tx, events.ProjectStatusChanged, p.ID, "project", p.ID, actorID,
		events.EventPayload{"old": p.Status, "new": next})
}
