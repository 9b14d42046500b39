package engine

import (
	"context"
	"database/sql"
	"fmt"

	"staffline/internal/domain"
	"staffline/internal/readiness"
)

type seatAction int

const (
	keepSeat seatAction = iota
	cancelSeat
	completeSeat
)

// ownerChange describes an explicit owner action on a project.
type ownerChange struct {
	name    string
	allowed func(domain.ProjectStatus) bool
	// seat decides what happens to each live seat head.
	seat   func(domain.Assignment) (seatAction, domain.CompletionReason)
	target func(heads []domain.Assignment) domain.ProjectStatus
	purge  bool
}

func (e Engine) applyOwnerChange(ctx context.Context, projectID, actorID string, c ownerChange) (domain.Project, error) {
	var out domain.Project
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		p, err := e.Repo.GetProjectForUpdateTx(ctx, tx, projectID)
		if err != nil {
			return notFound(err, "project", projectID)
		}
		if !c.allowed(p.Status) {
			return fmt.Errorf("%w: cannot %s project %s in status %s", ErrInvalidTransition, c.name, p.ID, p.Status)
		}
		heads, err := e.Repo.SeatHeadsTx(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if c.seat != nil {
			for i, h := range heads {
				if h.Status.Terminal() {
					continue
				}
				action, why := c.seat(h)
				switch action {
				case cancelSeat:
					heads[i], err = e.cancelTx(ctx, tx, h, why, actorID)
				case completeSeat:
					heads[i], err = e.completeTx(ctx, tx, h, why, actorID)
				}
				if err != nil {
					return err
				}
			}
		}
		if c.purge {
			if err := e.Repo.PurgeProjectSeats(ctx, tx, p.ID); err != nil {
				return err
			}
		}
		next := c.target(heads)
		if next != p.Status {
			if err := e.setProjectStatus(ctx, tx, p, next, actorID); err != nil {
				return err
			}
			p.Status = next
			p.UpdatedAt = e.stamp()
		}
		out = p
		return nil
	})
	return out, err
}

func fixed(s domain.ProjectStatus) func([]domain.Assignment) domain.ProjectStatus {
	return func([]domain.Assignment) domain.ProjectStatus { return s }
}

func oneOf(statuses ...domain.ProjectStatus) func(domain.ProjectStatus) bool {
	return func(s domain.ProjectStatus) bool {
		for _, v := range statuses {
			if v == s {
				return true
			}
		}
		return false
	}
}

func notIn(statuses ...domain.ProjectStatus) func(domain.ProjectStatus) bool {
	in := oneOf(statuses...)
	return func(s domain.ProjectStatus) bool { return !in(s) }
}

// Start moves a ready project into in-progress.
func (e Engine) Start(ctx context.Context, projectID, actorID string) (domain.Project, error) {
	return e.applyOwnerChange(ctx, projectID, actorID, ownerChange{
		name:    "start",
		allowed: oneOf(domain.ProjectReady),
		target:  fixed(domain.ProjectInProgress),
	})
}

// Pause cancels open and draft seats and keeps accepted ones.
func (e Engine) Pause(ctx context.Context, projectID, actorID string) (domain.Project, error) {
	return e.applyOwnerChange(ctx, projectID, actorID, ownerChange{
		name:    "pause",
		allowed: oneOf(domain.ProjectFormingTeam, domain.ProjectAwaitingTeam, domain.ProjectReady, domain.ProjectInProgress),
		seat: func(a domain.Assignment) (seatAction, domain.CompletionReason) {
			if a.Status == domain.StatusAccepted {
				return keepSeat, ""
			}
			return cancelSeat, domain.ReasonClientRequest
		},
		target: fixed(domain.ProjectPaused),
	})
}

// Resume re-derives the status of a paused project. Seats cancelled by the pause stay
// cancelled until reopened.
func (e Engine) Resume(ctx context.Context, projectID, actorID string) (domain.Project, error) {
	return e.applyOwnerChange(ctx, projectID, actorID, ownerChange{
		name:    "resume",
		allowed: oneOf(domain.ProjectPaused),
		target: func(heads []domain.Assignment) domain.ProjectStatus {
			return readiness.Derive(domain.ProjectFormingTeam, heads)
		},
	})
}

// Finish completes accepted seats, cancels the rest and closes the project.
func (e Engine) Finish(ctx context.Context, projectID, actorID string) (domain.Project, error) {
	return e.applyOwnerChange(ctx, projectID, actorID, ownerChange{
		name:    "finish",
		allowed: notIn(domain.ProjectCompleted, domain.ProjectArchived, domain.ProjectDeleted),
		seat: func(a domain.Assignment) (seatAction, domain.CompletionReason) {
			if a.Status == domain.StatusAccepted {
				return completeSeat, domain.ReasonProjectCompleted
			}
			return cancelSeat, domain.ReasonProjectCompleted
		},
		target: fixed(domain.ProjectCompleted),
	})
}

// Archive cancels every live seat.
func (e Engine) Archive(ctx context.Context, projectID, actorID string) (domain.Project, error) {
	return e.applyOwnerChange(ctx, projectID, actorID, ownerChange{
		name:    "archive",
		allowed: notIn(domain.ProjectArchived, domain.ProjectDeleted),
		seat: func(domain.Assignment) (seatAction, domain.CompletionReason) {
			return cancelSeat, domain.ReasonClientRequest
		},
		target: fixed(domain.ProjectArchived),
	})
}

// Delete cancels every live seat, then destroys the project's seats and assignments.
// The project row and its events remain.
func (e Engine) Delete(ctx context.Context, projectID, actorID string) (domain.Project, error) {
	return e.applyOwnerChange(ctx, projectID, actorID, ownerChange{
		name:    "delete",
		allowed: notIn(domain.ProjectDeleted),
		seat: func(domain.Assignment) (seatAction, domain.CompletionReason) {
			return cancelSeat, domain.ReasonClientRequest
		},
		purge:  true,
		target: fixed(domain.ProjectDeleted),
	})
}
