package repo

import (
	"context"
	"database/sql"

	"staffline/internal/domain"
)

func (r Repo) UpsertCatalogItem(ctx context.Context, tx *sql.Tx, item domain.CatalogItem) error {
	_, err := r.exec(ctx, tx, `INSERT INTO catalog_items(kind,id,name,rank) VALUES (?,?,?,?)
ON CONFLICT(kind,id) DO UPDATE SET name=excluded.name, rank=excluded.rank`,
		string(item.Kind), item.ID, item.Name, item.Rank)
	return err
}

// ListCatalog returns entries of one kind, or all kinds when kind is empty.
func (r Repo) ListCatalog(ctx context.Context, kind domain.CatalogKind) ([]domain.CatalogItem, error) {
	query := `SELECT kind,id,name,rank FROM catalog_items`
	var args []any
	if kind != "" {
		query += ` WHERE kind=?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY kind ASC, rank ASC, id ASC`
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CatalogItem
	for rows.Next() {
		var it domain.CatalogItem
		var k string
		if err := rows.Scan(&k, &it.ID, &it.Name, &it.Rank); err != nil {
			return nil, err
		}
		it.Kind = domain.CatalogKind(k)
		res = append(res, it)
	}
	return res, rows.Err()
}

// MissingCatalogIDs returns the ids of kind that are not in the catalog.
func (r Repo) MissingCatalogIDs(ctx context.Context, tx *sql.Tx, kind domain.CatalogKind, ids []string) ([]string, error) {
	var missing []string
	for _, id := range NormalizeSet(ids) {
		var n int
		if err := r.queryRow(ctx, tx, `SELECT COUNT(*) FROM catalog_items WHERE kind=? AND id=?`, string(kind), id).Scan(&n); err != nil {
			return nil, err
		}
		if n == 0 {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
