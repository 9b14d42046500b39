package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"staffline/internal/domain"
)

const candidateColumns = `id,COALESCE(display_name,''),profile_id,seniority,languages_json,expertises_json,availability,created_at,updated_at`

func scanCandidate(row scanner) (domain.Candidate, error) {
	var c domain.Candidate
	var langs, exps, availability string
	err := row.Scan(&c.ID, &c.DisplayName, &c.ProfileID, &c.Seniority, &langs, &exps, &availability, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.Availability = domain.Availability(availability)
	if c.Languages, err = unmarshalSet(langs); err != nil {
		return c, fmt.Errorf("candidate %s languages: %w", c.ID, err)
	}
	if c.Expertises, err = unmarshalSet(exps); err != nil {
		return c, fmt.Errorf("candidate %s expertises: %w", c.ID, err)
	}
	return c, nil
}

// UpsertCandidate inserts or replaces a registry record; created_at is kept on update.
func (r Repo) UpsertCandidate(ctx context.Context, tx *sql.Tx, c domain.Candidate) error {
	langs, err := marshalSet(c.Languages)
	if err != nil {
		return err
	}
	exps, err := marshalSet(c.Expertises)
	if err != nil {
		return err
	}
	_, err = r.exec(ctx, tx, `INSERT INTO candidates(id,display_name,profile_id,seniority,languages_json,expertises_json,availability,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET display_name=excluded.display_name, profile_id=excluded.profile_id, seniority=excluded.seniority,
languages_json=excluded.languages_json, expertises_json=excluded.expertises_json, availability=excluded.availability, updated_at=excluded.updated_at`,
		c.ID, nullable(c.DisplayName), c.ProfileID, c.Seniority, langs, exps, string(c.Availability), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) SetCandidateAvailability(ctx context.Context, tx *sql.Tx, id string, availability domain.Availability, updatedAt string) error {
	res, err := r.exec(ctx, tx, `UPDATE candidates SET availability=?, updated_at=? WHERE id=?`, string(availability), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetCandidate(ctx context.Context, id string) (domain.Candidate, error) {
	return r.GetCandidateTx(ctx, nil, id)
}

func (r Repo) GetCandidateTx(ctx context.Context, tx *sql.Tx, id string) (domain.Candidate, error) {
	return scanCandidate(r.queryRow(ctx, tx, `SELECT `+candidateColumns+` FROM candidates WHERE id=?`, id))
}

// QueryCandidates returns candidates for a profile/seniority pair in a given availability, oldest first.
func (r Repo) QueryCandidates(ctx context.Context, tx *sql.Tx, profileID, seniority string, availability domain.Availability) ([]domain.Candidate, error) {
	rows, err := r.query(ctx, tx, `SELECT `+candidateColumns+` FROM candidates
WHERE profile_id=? AND seniority=? AND availability=? ORDER BY created_at ASC, id ASC`, profileID, seniority, string(availability))
	if err != nil {
		return nil, err
	}
	return scanCandidates(rows)
}

type CandidateFilters struct {
	ProfileID    string
	Seniority    string
	Availability string
	Limit        int
}

func (r Repo) ListCandidates(ctx context.Context, f CandidateFilters) ([]domain.Candidate, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ProfileID != "" {
		clauses = append(clauses, "profile_id=?")
		args = append(args, f.ProfileID)
	}
	if f.Seniority != "" {
		clauses = append(clauses, "seniority=?")
		args = append(args, f.Seniority)
	}
	if f.Availability != "" {
		clauses = append(clauses, "availability=?")
		args = append(args, f.Availability)
	}
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, err
	}
	return scanCandidates(rows)
}

func scanCandidates(rows *sql.Rows) ([]domain.Candidate, error) {
	defer rows.Close()
	var res []domain.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
