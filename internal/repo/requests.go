package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"staffline/internal/domain"
)

const requestColumns = `id,project_id,profile_id,seniority,languages_json,expertises_json,created_at`

func scanRequest(row scanner) (domain.ResourceRequest, error) {
	var rr domain.ResourceRequest
	var langs, exps string
	err := row.Scan(&rr.ID, &rr.ProjectID, &rr.Requirements.ProfileID, &rr.Requirements.Seniority, &langs, &exps, &rr.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rr, ErrNotFound
	}
	if err != nil {
		return rr, err
	}
	if rr.Requirements.Languages, err = unmarshalSet(langs); err != nil {
		return rr, fmt.Errorf("request %s languages: %w", rr.ID, err)
	}
	if rr.Requirements.Expertises, err = unmarshalSet(exps); err != nil {
		return rr, fmt.Errorf("request %s expertises: %w", rr.ID, err)
	}
	return rr, nil
}

func (r Repo) InsertRequest(ctx context.Context, tx *sql.Tx, rr domain.ResourceRequest) error {
	langs, err := marshalSet(rr.Requirements.Languages)
	if err != nil {
		return err
	}
	exps, err := marshalSet(rr.Requirements.Expertises)
	if err != nil {
		return err
	}
	_, err = r.exec(ctx, tx, `INSERT INTO resource_requests(`+requestColumns+`) VALUES (?,?,?,?,?,?,?)`,
		rr.ID, rr.ProjectID, rr.Requirements.ProfileID, rr.Requirements.Seniority, langs, exps, rr.CreatedAt)
	return err
}

func (r Repo) GetRequest(ctx context.Context, id string) (domain.ResourceRequest, error) {
	return r.GetRequestTx(ctx, nil, id)
}

func (r Repo) GetRequestTx(ctx context.Context, tx *sql.Tx, id string) (domain.ResourceRequest, error) {
	return scanRequest(r.queryRow(ctx, tx, `SELECT `+requestColumns+` FROM resource_requests WHERE id=?`, id))
}

func (r Repo) ListRequests(ctx context.Context, projectID string) ([]domain.ResourceRequest, error) {
	rows, err := r.query(ctx, nil, `SELECT `+requestColumns+` FROM resource_requests WHERE project_id=? ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ResourceRequest
	for rows.Next() {
		rr, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rr)
	}
	return res, rows.Err()
}
