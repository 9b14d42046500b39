package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"staffline/internal/db"
	"staffline/internal/domain"
)

type Repo struct {
	DB      *sql.DB
	Dialect db.Dialect
}

// New wraps an open connection.
func New(conn *db.Conn) Repo {
	return Repo{DB: conn.DB, Dialect: conn.Dialect}
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a uniqueness violation (duplicate id, second claimed row for a seat).
	ErrConflict = errors.New("conflict")
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) Querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func (r Repo) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (sql.Result, error) {
	res, err := r.q(tx).ExecContext(ctx, r.Dialect.Rebind(query), args...)
	if err != nil && isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return res, err
}

func (r Repo) query(ctx context.Context, tx *sql.Tx, query string, args ...any) (*sql.Rows, error) {
	return r.q(tx).QueryContext(ctx, r.Dialect.Rebind(query), args...)
}

func (r Repo) queryRow(ctx context.Context, tx *sql.Tx, query string, args ...any) *sql.Row {
	return r.q(tx).QueryRowContext(ctx, r.Dialect.Rebind(query), args...)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY constraint failed")
}

// --- projects ---

const projectColumns = `id,name,owner_id,status,created_at,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (domain.Project, error) {
	var p domain.Project
	var status string
	err := row.Scan(&p.ID, &p.Name, &p.OwnerID, &status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	p.Status = domain.ProjectStatus(status)
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.exec(ctx, tx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?)`,
		p.ID, p.Name, p.OwnerID, string(p.Status), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return r.GetProjectTx(ctx, nil, id)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(r.queryRow(ctx, tx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

// GetProjectForUpdateTx reads a project and, on postgres, holds its row lock until tx ends.
// Commands that recompute readiness take it first so writes to one project apply one at a time.
// SQLite transactions already begin with the database write lock.
func (r Repo) GetProjectForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id=?`
	if r.Dialect == db.Postgres {
		query += ` FOR UPDATE`
	}
	return scanProject(r.queryRow(ctx, tx, query, id))
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.query(ctx, nil, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpdateProjectStatus sets the status when it still equals expected.
func (r Repo) UpdateProjectStatus(ctx context.Context, tx *sql.Tx, id string, expected, status domain.ProjectStatus, updatedAt string) (bool, error) {
	res, err := r.exec(ctx, tx, `UPDATE projects SET status=?, updated_at=? WHERE id=? AND status=?`,
		string(status), updatedAt, id, string(expected))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func ptrFromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// NormalizeSet sorts and de-duplicates ids, dropping blanks.
func NormalizeSet(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func marshalSet(in []string) (string, error) {
	b, err := json.Marshal(NormalizeSet(in))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalSet(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
