package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"staffline/internal/domain"
)

const assignmentColumns = `id,project_id,request_id,profile_id,seniority,languages_json,expertises_json,status,candidate_id,previous_assignment_id,version,offered_at,accepted_at,completed_at,completion_reason,created_at,updated_at`

func scanAssignment(row scanner) (domain.Assignment, error) {
	var a domain.Assignment
	var status, langs, exps string
	var candidateID, previousID, offeredAt, acceptedAt, completedAt, reason sql.NullString
	err := row.Scan(&a.ID, &a.ProjectID, &a.RequestID, &a.Requirements.ProfileID, &a.Requirements.Seniority, &langs, &exps,
		&status, &candidateID, &previousID, &a.Version, &offeredAt, &acceptedAt, &completedAt, &reason, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Status = domain.AssignmentStatus(status)
	if a.Requirements.Languages, err = unmarshalSet(langs); err != nil {
		return a, fmt.Errorf("assignment %s languages: %w", a.ID, err)
	}
	if a.Requirements.Expertises, err = unmarshalSet(exps); err != nil {
		return a, fmt.Errorf("assignment %s expertises: %w", a.ID, err)
	}
	a.CandidateID = ptrFromNull(candidateID)
	a.PreviousAssignmentID = ptrFromNull(previousID)
	a.OfferedAt = ptrFromNull(offeredAt)
	a.AcceptedAt = ptrFromNull(acceptedAt)
	a.CompletedAt = ptrFromNull(completedAt)
	a.CompletionReason = ptrFromNull(reason)
	return a, nil
}

func (r Repo) scanAssignments(rows *sql.Rows) ([]domain.Assignment, error) {
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// InsertAssignment stores a new row. A second live or claimed row for the same seat is rejected with ErrConflict.
func (r Repo) InsertAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	langs, err := marshalSet(a.Requirements.Languages)
	if err != nil {
		return err
	}
	exps, err := marshalSet(a.Requirements.Expertises)
	if err != nil {
		return err
	}
	if a.Version == 0 {
		a.Version = 1
	}
	_, err = r.exec(ctx, tx, `INSERT INTO assignments(`+assignmentColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ProjectID, a.RequestID, a.Requirements.ProfileID, a.Requirements.Seniority, langs, exps,
		string(a.Status), nullableStringPtr(a.CandidateID), nullableStringPtr(a.PreviousAssignmentID), a.Version,
		nullableStringPtr(a.OfferedAt), nullableStringPtr(a.AcceptedAt), nullableStringPtr(a.CompletedAt), nullableStringPtr(a.CompletionReason),
		a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	return r.GetAssignmentTx(ctx, nil, id)
}

func (r Repo) GetAssignmentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Assignment, error) {
	return scanAssignment(r.queryRow(ctx, tx, `SELECT `+assignmentColumns+` FROM assignments WHERE id=?`, id))
}

// ConditionalUpdate writes next over the row only if it still holds expectedStatus at expectedVersion.
// It returns false when another writer got there first; the version is bumped on success.
func (r Repo) ConditionalUpdate(ctx context.Context, tx *sql.Tx, next domain.Assignment, expectedStatus domain.AssignmentStatus, expectedVersion int64) (bool, error) {
	res, err := r.exec(ctx, tx, `UPDATE assignments
SET status=?, candidate_id=?, offered_at=?, accepted_at=?, completed_at=?, completion_reason=?, updated_at=?, version=version+1
WHERE id=? AND status=? AND version=?`,
		string(next.Status), nullableStringPtr(next.CandidateID), nullableStringPtr(next.OfferedAt), nullableStringPtr(next.AcceptedAt),
		nullableStringPtr(next.CompletedAt), nullableStringPtr(next.CompletionReason), next.UpdatedAt,
		next.ID, string(expectedStatus), expectedVersion)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r Repo) ListAssignmentsByProject(ctx context.Context, projectID string) ([]domain.Assignment, error) {
	return r.ListAssignmentsByProjectTx(ctx, nil, projectID)
}

func (r Repo) ListAssignmentsByProjectTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.Assignment, error) {
	rows, err := r.query(ctx, tx, `SELECT `+assignmentColumns+` FROM assignments WHERE project_id=? ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	return r.scanAssignments(rows)
}

// CandidateProjectIDs returns the projects where the candidate was ever offered a seat.
func (r Repo) CandidateProjectIDs(ctx context.Context, candidateID string) ([]string, error) {
	rows, err := r.query(ctx, nil, `SELECT DISTINCT project_id FROM assignments WHERE candidate_id=? ORDER BY project_id`, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SeatHeadsTx returns the most recent assignment of every seat in the project.
func (r Repo) SeatHeadsTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.Assignment, error) {
	rows, err := r.query(ctx, tx, `SELECT `+assignmentColumns+` FROM assignments a
WHERE a.project_id=? AND NOT EXISTS (SELECT 1 FROM assignments s WHERE s.previous_assignment_id=a.id)
ORDER BY a.created_at ASC, a.id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	return r.scanAssignments(rows)
}

// HeadForRequestTx returns the chain head of a seat.
func (r Repo) HeadForRequestTx(ctx context.Context, tx *sql.Tx, requestID string) (domain.Assignment, error) {
	return scanAssignment(r.queryRow(ctx, tx, `SELECT `+assignmentColumns+` FROM assignments a
WHERE a.request_id=? AND NOT EXISTS (SELECT 1 FROM assignments s WHERE s.previous_assignment_id=a.id)`, requestID))
}

// ClaimedForRequestTx returns the pending or accepted assignment of a seat, if any.
func (r Repo) ClaimedForRequestTx(ctx context.Context, tx *sql.Tx, requestID string) (domain.Assignment, error) {
	return scanAssignment(r.queryRow(ctx, tx, `SELECT `+assignmentColumns+` FROM assignments
WHERE request_id=? AND status IN ('pending_acceptance','accepted') LIMIT 1`, requestID))
}

// HasSuccessorTx reports whether a newer assignment already links back to id.
func (r Repo) HasSuccessorTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var n int
	err := r.queryRow(ctx, tx, `SELECT COUNT(*) FROM assignments WHERE previous_assignment_id=?`, id).Scan(&n)
	return n > 0, err
}

// Chain walks previous_assignment_id from id back to the root and returns root-first order.
func (r Repo) Chain(ctx context.Context, id string) ([]domain.Assignment, error) {
	var chain []domain.Assignment
	seen := map[string]bool{}
	cur := id
	for cur != "" {
		if seen[cur] {
			return nil, fmt.Errorf("assignment chain cycle at %s", cur)
		}
		seen[cur] = true
		a, err := r.GetAssignment(ctx, cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, a)
		cur = ""
		if a.PreviousAssignmentID != nil {
			cur = *a.PreviousAssignmentID
		}
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// ListPendingOfferedBefore returns pending offers older than cutoff, oldest first.
func (r Repo) ListPendingOfferedBefore(ctx context.Context, cutoff string, limit int) ([]domain.Assignment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.query(ctx, nil, `SELECT `+assignmentColumns+` FROM assignments
WHERE status='pending_acceptance' AND offered_at < ? ORDER BY offered_at ASC, id ASC LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return r.scanAssignments(rows)
}

// PurgeProjectSeats removes every assignment and seat of a project.
func (r Repo) PurgeProjectSeats(ctx context.Context, tx *sql.Tx, projectID string) error {
	if _, err := r.exec(ctx, tx, `DELETE FROM assignments WHERE project_id=?`, projectID); err != nil {
		return err
	}
	_, err := r.exec(ctx, tx, `DELETE FROM resource_requests WHERE project_id=?`, projectID)
	return err
}
