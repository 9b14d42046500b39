package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"staffline/internal/domain"
	"staffline/internal/events"
	"staffline/internal/matcher"
	"staffline/internal/repo"
)

var assignmentTransitions = map[domain.AssignmentStatus][]domain.AssignmentStatus{
	domain.StatusDraft:             {domain.StatusSearching, domain.StatusCancelled},
	domain.StatusSearching:         {domain.StatusPendingAcceptance, domain.StatusCancelled},
	domain.StatusPendingAcceptance: {domain.StatusAccepted, domain.StatusDeclined, domain.StatusCancelled},
	domain.StatusAccepted:          {domain.StatusCompleted, domain.StatusCancelled},
}

func ensureAssignmentTransition(from, to domain.AssignmentStatus) error {
	for _, next := range assignmentTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: assignment %s -> %s", ErrInvalidTransition, from, to)
}

// ensureMutable rejects changes to projects the owner has closed.
func ensureMutable(p domain.Project) error {
	switch p.Status {
	case domain.ProjectCompleted, domain.ProjectArchived, domain.ProjectDeleted:
		return fmt.Errorf("%w: project %s is %s", ErrInvalidTransition, p.ID, p.Status)
	}
	return nil
}

// ensureStaffable rejects searches and offers on projects that are not recruiting.
func ensureStaffable(p domain.Project) error {
	if p.Status == domain.ProjectPaused {
		return fmt.Errorf("%w: project %s is paused", ErrInvalidTransition, p.ID)
	}
	return ensureMutable(p)
}

func normalizeSnapshot(s domain.Snapshot) domain.Snapshot {
	return domain.Snapshot{
		ProfileID:  strings.TrimSpace(s.ProfileID),
		Seniority:  strings.TrimSpace(s.Seniority),
		Languages:  repo.NormalizeSet(s.Languages),
		Expertises: repo.NormalizeSet(s.Expertises),
	}
}

// validateSnapshot checks shape and that every id is in the catalog.
func (e Engine) validateSnapshot(ctx context.Context, tx *sql.Tx, s domain.Snapshot) error {
	if err := matcher.Validate(s); err != nil {
		return err
	}
	return e.validateCatalogRefs(ctx, tx, s.ProfileID, s.Seniority, s.Languages, s.Expertises)
}

func (e Engine) validateCatalogRefs(ctx context.Context, tx *sql.Tx, profileID, seniority string, languages, expertises []string) error {
	checks := []struct {
		kind domain.CatalogKind
		ids  []string
	}{
		{domain.CatalogProfile, []string{profileID}},
		{domain.CatalogSeniority, []string{seniority}},
		{domain.CatalogLanguage, languages},
		{domain.CatalogExpertise, expertises},
	}
	for _, c := range checks {
		missing, err := e.Repo.MissingCatalogIDs(ctx, tx, c.kind, c.ids)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return invalidRequest("unknown %s %s", c.kind, strings.Join(missing, ","))
		}
	}
	return nil
}

func (e Engine) loadAssignment(ctx context.Context, tx *sql.Tx, id string) (domain.Assignment, domain.Project, error) {
	a, err := e.Repo.GetAssignmentTx(ctx, tx, id)
	if err != nil {
		return a, domain.Project{}, notFound(err, "assignment", id)
	}
	p, err := e.Repo.GetProjectForUpdateTx(ctx, tx, a.ProjectID)
	if err != nil {
		return a, p, notFound(err, "project", a.ProjectID)
	}
	// Re-read under the project lock; the first read may predate a commit we waited on.
	a, err = e.Repo.GetAssignmentTx(ctx, tx, id)
	if err != nil {
		return a, p, notFound(err, "assignment", id)
	}
	return a, p, nil
}

// cas applies next over prev and returns the stored row, or ok=false when another writer won.
func (e Engine) cas(ctx context.Context, tx *sql.Tx, prev, next domain.Assignment) (domain.Assignment, bool, error) {
	next.UpdatedAt = e.stamp()
	ok, err := e.Repo.ConditionalUpdate(ctx, tx, next, prev.Status, prev.Version)
	if err != nil || !ok {
		return prev, false, err
	}
	next.Version = prev.Version + 1
	return next, true, nil
}

func (e Engine) finish(ctx context.Context, tx *sql.Tx, res *Result, actorID string) error {
	status, err := e.recompute(ctx, tx, res.Assignment.ProjectID, actorID)
	if err != nil {
		return err
	}
	res.ProjectStatus = status
	return nil
}

type AddSeatOptions struct {
	ID           string
	ProjectID    string
	Requirements domain.Snapshot
	ActorID      string
}

// AddSeat creates a seat and its draft assignment.
func (e Engine) AddSeat(ctx context.Context, opts AddSeatOptions) (Result, error) {
	var res Result
	snap := normalizeSnapshot(opts.Requirements)
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		p, err := e.Repo.GetProjectForUpdateTx(ctx, tx, opts.ProjectID)
		if err != nil {
			return notFound(err, "project", opts.ProjectID)
		}
		if err := ensureMutable(p); err != nil {
			return err
		}
		if err := e.validateSnapshot(ctx, tx, snap); err != nil {
			return err
		}
		now := e.stamp()
		rr := domain.ResourceRequest{ID: opts.ID, ProjectID: p.ID, Requirements: snap, CreatedAt: now}
		if rr.ID == "" {
			rr.ID = uuid.NewString()
		}
		if err := e.Repo.InsertRequest(ctx, tx, rr); err != nil {
			return fmt.Errorf("insert seat: %w", err)
		}
		a := domain.Assignment{
			ID:           uuid.NewString(),
			ProjectID:    p.ID,
			RequestID:    rr.ID,
			Requirements: snap,
			Status:       domain.StatusDraft,
			Version:      1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := e.Repo.InsertAssignment(ctx, tx, a); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
		if err := e.appendEvent(ctx, tx, events.SeatCreated, p.ID, "assignment", a.ID, opts.ActorID,
			events.EventPayload{"request_id": rr.ID, "requirements": snap}); err != nil {
			return err
		}
		res.Assignment = a
		return e.finish(ctx, tx, &res, opts.ActorID)
	})
	return res, err
}

// OpenSearch moves the draft head of a seat to searching and returns the eligible candidates.
// An empty list leaves the seat searching.
func (e Engine) OpenSearch(ctx context.Context, requestID, actorID string) (Result, error) {
	var res Result
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		rr, err := e.Repo.GetRequestTx(ctx, tx, requestID)
		if err != nil {
			return notFound(err, "seat", requestID)
		}
		p, err := e.Repo.GetProjectForUpdateTx(ctx, tx, rr.ProjectID)
		if err != nil {
			return notFound(err, "project", rr.ProjectID)
		}
		if err := ensureStaffable(p); err != nil {
			return err
		}
		head, err := e.Repo.HeadForRequestTx(ctx, tx, requestID)
		if err != nil {
			return notFound(err, "assignment for seat", requestID)
		}
		if err := ensureAssignmentTransition(head.Status, domain.StatusSearching); err != nil {
			return err
		}
		next := head
		next.Status = domain.StatusSearching
		stored, ok, err := e.cas(ctx, tx, head, next)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: assignment %s changed concurrently", ErrStaleOffer, head.ID)
		}
		eligible, err := e.matcherTx(tx).FindEligibleCandidates(ctx, stored.Requirements)
		if err != nil {
			return err
		}
		if err := e.appendEvent(ctx, tx, events.SeatSearchOpened, p.ID, "assignment", stored.ID, actorID,
			events.EventPayload{"request_id": requestID, "eligible": len(eligible)}); err != nil {
			return err
		}
		res.Assignment = stored
		res.Eligible = eligible
		return e.finish(ctx, tx, &res, actorID)
	})
	return res, err
}

// Eligible lists the current eligible candidates for an assignment without changing it.
func (e Engine) Eligible(ctx context.Context, assignmentID string) ([]string, error) {
	a, err := e.Repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, notFound(err, "assignment", assignmentID)
	}
	return e.matcherTx(nil).FindEligibleCandidates(ctx, a.Requirements)
}

// Offer proposes a searching seat to a candidate that is eligible right now.
func (e Engine) Offer(ctx context.Context, assignmentID, candidateID, actorID string) (Result, error) {
	var res Result
	if strings.TrimSpace(candidateID) == "" {
		return res, invalidRequest("candidate is required")
	}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		a, p, err := e.loadAssignment(ctx, tx, assignmentID)
		if err != nil {
			return err
		}
		if err := ensureStaffable(p); err != nil {
			return err
		}
		if a.Status.Claimed() {
			return fmt.Errorf("%w: assignment %s is %s", ErrAlreadyClaimed, a.ID, a.Status)
		}
		if err := ensureAssignmentTransition(a.Status, domain.StatusPendingAcceptance); err != nil {
			return err
		}
		claimed, err := e.Repo.ClaimedForRequestTx(ctx, tx, a.RequestID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: seat %s held by assignment %s", ErrAlreadyClaimed, a.RequestID, claimed.ID)
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}
		ok, err := e.matcherTx(tx).IsEligible(ctx, a.Requirements, candidateID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s for assignment %s", ErrNotEligible, candidateID, a.ID)
		}
		now := e.stamp()
		next := a
		next.Status = domain.StatusPendingAcceptance
		next.CandidateID = &candidateID
		next.OfferedAt = &now
		stored, ok, err := e.cas(ctx, tx, a, next)
		if errors.Is(err, repo.ErrConflict) || (err == nil && !ok) {
			return fmt.Errorf("%w: assignment %s", ErrAlreadyClaimed, a.ID)
		}
		if err != nil {
			return err
		}
		if err := e.appendEvent(ctx, tx, events.SeatOffered, p.ID, "assignment", a.ID, actorID,
			events.EventPayload{"assignment_id": a.ID, "candidate_id": candidateID, "request_id": a.RequestID}); err != nil {
			return err
		}
		res.Assignment = stored
		return e.finish(ctx, tx, &res, actorID)
	})
	return res, err
}

// ensureAnswerable checks that a candidate can still answer the offer on a.
// Rows that moved past pending_acceptance are stale; rows that never had an offer are invalid.
func ensureAnswerable(a domain.Assignment, to domain.AssignmentStatus) error {
	switch {
	case a.Status == domain.StatusPendingAcceptance:
		return nil
	case a.Status == domain.StatusAccepted || a.Status.Terminal():
		return fmt.Errorf("%w: assignment %s is %s", ErrStaleOffer, a.ID, a.Status)
	}
	return ensureAssignmentTransition(a.Status, to)
}

// Accept confirms a pending offer for the offered candidate. Of two concurrent accepts
// exactly one succeeds; the other gets ErrStaleOffer.
func (e Engine) Accept(ctx context.Context, assignmentID, candidateID, actorID string) (Result, error) {
	var res Result
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		a, p, err := e.loadAssignment(ctx, tx, assignmentID)
		if err != nil {
			return err
		}
		if err := ensureAnswerable(a, domain.StatusAccepted); err != nil {
			return err
		}
		if a.CandidateID == nil || *a.CandidateID != candidateID {
			return fmt.Errorf("%w: assignment %s is not offered to %s", ErrStaleOffer, a.ID, candidateID)
		}
		now := e.stamp()
		next := a
		next.Status = domain.StatusAccepted
		next.AcceptedAt = &now
		stored, ok, err := e.cas(ctx, tx, a, next)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: assignment %s", ErrStaleOffer, a.ID)
		}
		if err := e.appendEvent(ctx, tx, events.SeatAccepted, p.ID, "assignment", a.ID, actorID,
			events.EventPayload{"assignment_id": a.ID, "candidate_id": candidateID, "request_id": a.RequestID}); err != nil {
			return err
		}
		res.Assignment = stored
		return e.finish(ctx, tx, &res, actorID)
	})
	return res, err
}

func parseReason(raw string, fallback domain.CompletionReason) (domain.CompletionReason, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	r, ok := domain.ParseCompletionReason(raw)
	if !ok {
		return "", invalidRequest("unknown completion reason %q", raw)
	}
	return r, nil
}

func retire(a domain.Assignment, status domain.AssignmentStatus, reason domain.CompletionReason, now string) domain.Assignment {
	next := a
	next.Status = status
	next.CompletedAt = &now
	r := string(reason)
	next.CompletionReason = &r
	return next
}

// Decline retires a pending offer and reopens the seat in the same transaction.
func (e Engine) Decline(ctx context.Context, assignmentID, reason, actorID string) (Result, error) {
	var res Result
	why, err := parseReason(reason, domain.ReasonOther)
	if err != nil {
		return res, err
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		a, p, err := e.loadAssignment(ctx, tx, assignmentID)
		if err != nil {
			return err
		}
		if err := ensureAnswerable(a, domain.StatusDeclined); err != nil {
			return err
		}
		stored, ok, err := e.cas(ctx, tx, a, retire(a, domain.StatusDeclined, why, e.stamp()))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: assignment %s", ErrStaleOffer, a.ID)
		}
		payload := events.EventPayload{"assignment_id": a.ID, "reason": why, "request_id": a.RequestID}
		if a.CandidateID != nil {
			payload["candidate_id"] = *a.CandidateID
		}
		if err := e.appendEvent(ctx, tx, events.SeatDeclined, p.ID, "assignment", a.ID, actorID, payload); err != nil {
			return err
		}
		successor, eligible, err := e.reopenTx(ctx, tx, stored, nil, actorID)
		if err != nil {
			return err
		}
		res.Assignment = stored
		res.Successor = &successor
		res.Eligible = eligible
		return e.finish(ctx, tx, &res, actorID)
	})
	return res, err
}

// Cancel retires any non-terminal assignment. Cancelling a terminal one is a no-op.
func (e Engine) Cancel(ctx context.Context, assignmentID, reason, actorID string) (Result, error) {
	var res Result
	why, err := parseReason(reason, domain.ReasonClientRequest)
	if err != nil {
		return res, err
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		a, p, err := e.loadAssignment(ctx, tx, assignmentID)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			res.Assignment = a
			res.ProjectStatus = p.Status
			return nil
		}
		stored, err := e.cancelTx(ctx, tx, a, why, actorID)
		if err != nil {
			return err
		}
		res.Assignment = stored
		return e.finish(ctx, tx, &res, actorID)
	})
	return res, err
}

func (e Engine) cancelTx(ctx context.Context, tx *sql.Tx, a domain.Assignment, why domain.CompletionReason, actorID string) (domain.Assignment, error) {
	stored, ok, err := e.cas(ctx, tx, a, retire(a, domain.StatusCancelled, why, e.stamp()))
	if err != nil {
		return a, err
	}
	if !ok {
		return a, fmt.Errorf("%w: assignment %s changed concurrently", ErrStaleOffer, a.ID)
	}
	payload := events.EventPayload{"assignment_id": a.ID, "reason": why, "previous_status": a.Status, "request_id": a.RequestID}
	if a.CandidateID != nil {
		payload["candidate_id"] = *a.CandidateID
	}
	if err := e.appendEvent(ctx, tx, events.SeatCancelled, a.ProjectID, "assignment", a.ID, actorID, payload); err != nil {
		return a, err
	}
	return stored, nil
}

type CompleteOptions struct {
	AssignmentID string
	Reason       string
	// Replacement, when set, opens a new search with these requirements on the same seat.
	Replacement *domain.Snapshot
	ActorID     string
}

// Complete retires an accepted assignment, optionally chaining a replacement search.
func (e Engine) Complete(ctx context.Context, opts CompleteOptions) (Result, error) {
	var res Result
	fallback := domain.ReasonOther
	if opts.Replacement != nil {
		fallback = domain.ReasonRequirementsChanged
	}
	why, err := parseReason(opts.Reason, fallback)
	if err != nil {
		return res, err
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		a, p, err := e.loadAssignment(ctx, tx, opts.AssignmentID)
		if err != nil {
			return err
		}
		if err := ensureAssignmentTransition(a.Status, domain.StatusCompleted); err != nil {
			return err
		}
		if opts.Replacement != nil {
			if err := ensureStaffable(p); err != nil {
				return err
			}
		}
		stored, err := e.completeTx(ctx, tx, a, why, opts.ActorID)
		if err != nil {
			return err
		}
		res.Assignment = stored
		if opts.Replacement != nil {
			successor, eligible, err := e.reopenTx(ctx, tx, stored, opts.Replacement, opts.ActorID)
			if err != nil {
				return err
			}
			res.Successor = &successor
			res.Eligible = eligible
		}
		return e.finish(ctx, tx, &res, opts.ActorID)
	})
	return res, err
}

func (e Engine) completeTx(ctx context.Context, tx *sql.Tx, a domain.Assignment, why domain.CompletionReason, actorID string) (domain.Assignment, error) {
	stored, ok, err := e.cas(ctx, tx, a, retire(a, domain.StatusCompleted, why, e.stamp()))
	if err != nil {
		return a, err
	}
	if !ok {
		return a, fmt.Errorf("%w: assignment %s changed concurrently", ErrStaleOffer, a.ID)
	}
	payload := events.EventPayload{"assignment_id": a.ID, "reason": why, "request_id": a.RequestID}
	if a.CandidateID != nil {
		payload["candidate_id"] = *a.CandidateID
	}
	if err := e.appendEvent(ctx, tx, events.SeatCompleted, a.ProjectID, "assignment", a.ID, actorID, payload); err != nil {
		return a, err
	}
	return stored, nil
}

type ReopenOptions struct {
	AssignmentID string
	Replacement  *domain.Snapshot
	ActorID      string
}

// Reopen starts a new search on a seat whose latest assignment is retired.
func (e Engine) Reopen(ctx context.Context, opts ReopenOptions) (Result, error) {
	var res Result
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		a, p, err := e.loadAssignment(ctx, tx, opts.AssignmentID)
		if err != nil {
			return err
		}
		if err := ensureStaffable(p); err != nil {
			return err
		}
		if !a.Status.Terminal() {
			return fmt.Errorf("%w: assignment %s is %s; only a retired seat can be reopened", ErrInvalidTransition, a.ID, a.Status)
		}
		superseded, err := e.Repo.HasSuccessorTx(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		if superseded {
			return fmt.Errorf("%w: assignment %s was already reopened", ErrInvalidTransition, a.ID)
		}
		successor, eligible, err := e.reopenTx(ctx, tx, a, opts.Replacement, opts.ActorID)
		if err != nil {
			return err
		}
		res.Assignment = a
		res.Successor = &successor
		res.Eligible = eligible
		return e.finish(ctx, tx, &res, opts.ActorID)
	})
	return res, err
}

// reopenTx inserts a searching successor of prev, copying its requirements unless replaced.
func (e Engine) reopenTx(ctx context.Context, tx *sql.Tx, prev domain.Assignment, replacement *domain.Snapshot, actorID string) (domain.Assignment, []string, error) {
	snap := prev.Requirements
	if replacement != nil {
		snap = normalizeSnapshot(*replacement)
		if err := e.validateSnapshot(ctx, tx, snap); err != nil {
			return domain.Assignment{}, nil, err
		}
	}
	now := e.stamp()
	prevID := prev.ID
	next := domain.Assignment{
		ID:                   uuid.NewString(),
		ProjectID:            prev.ProjectID,
		RequestID:            prev.RequestID,
		Requirements:         snap,
		Status:               domain.StatusSearching,
		PreviousAssignmentID: &prevID,
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := e.Repo.InsertAssignment(ctx, tx, next); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return next, nil, fmt.Errorf("%w: seat %s already has a live assignment", ErrAlreadyClaimed, prev.RequestID)
		}
		return next, nil, err
	}
	eligible, err := e.matcherTx(tx).FindEligibleCandidates(ctx, snap)
	if err != nil {
		return next, nil, err
	}
	if err := e.appendEvent(ctx, tx, events.SeatReopened, prev.ProjectID, "assignment", next.ID, actorID,
		events.EventPayload{"old_assignment_id": prev.ID, "new_assignment_id": next.ID, "request_id": prev.RequestID, "eligible": len(eligible)}); err != nil {
		return next, nil, err
	}
	return next, eligible, nil
}

// History returns every assignment of a seat, oldest first.
func (e Engine) History(ctx context.Context, requestID string) ([]domain.Assignment, error) {
	head, err := e.Repo.HeadForRequestTx(ctx, nil, requestID)
	if err != nil {
		return nil, notFound(err, "seat", requestID)
	}
	return e.Repo.Chain(ctx, head.ID)
}

// ExpireOffers cancels offers pending for longer than olderThan and reopens their seats.
// Offers answered while the sweep runs are skipped.
func (e Engine) ExpireOffers(ctx context.Context, olderThan time.Duration, actorID string) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := domain.FormatTime(e.now().Add(-olderThan))
	pending, err := e.Repo.ListPendingOfferedBefore(ctx, cutoff, 100)
	if err != nil {
		return 0, err
	}
	expired := 0
	var errs []error
	for _, offer := range pending {
		err := e.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := e.Repo.GetProjectForUpdateTx(ctx, tx, offer.ProjectID); err != nil {
				return err
			}
			a, err := e.Repo.GetAssignmentTx(ctx, tx, offer.ID)
			if err != nil {
				return err
			}
			if a.Status != domain.StatusPendingAcceptance || a.Version != offer.Version {
				return fmt.Errorf("%w: assignment %s answered during sweep", ErrStaleOffer, a.ID)
			}
			stored, err := e.cancelTx(ctx, tx, a, domain.ReasonOther, actorID)
			if err != nil {
				return err
			}
			if _, _, err := e.reopenTx(ctx, tx, stored, nil, actorID); err != nil {
				return err
			}
			_, err = e.recompute(ctx, tx, a.ProjectID, actorID)
			return err
		})
		switch {
		case err == nil:
			expired++
		case IsTaken(err):
			e.logger().Debug("offer expiry skipped", "assignment_id", offer.ID, "err", err)
		default:
			errs = append(errs, fmt.Errorf("expire %s: %w", offer.ID, err))
		}
	}
	return expired, errors.Join(errs...)
}
