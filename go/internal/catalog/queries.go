package catalog

import (
	"context"
	"database/sql"
)

const listItemsBySourceOrder = `
SELECT id, title, source_order
FROM catalog_items
ORDER BY source_order
`

// ItemRow is the database row for a catalog item.
type ItemRow struct {
	ID          string
	Title       string
	SourceOrder int32
}

// Queries runs catalog SQL against a database handle.
type Queries struct {
	db *sql.DB
}

// New creates catalog queries bound to the given database.
func New(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// ListItemsBySourceOrder returns the full item batch in source order.
func (q *Queries) ListItemsBySourceOrder(ctx context.Context) ([]ItemRow, error) {
	rows, err := q.db.QueryContext(ctx, listItemsBySourceOrder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ItemRow
	for rows.Next() {
		var row ItemRow
		if err := rows.Scan(&row.ID, &row.Title, &row.SourceOrder); err != nil {
			return nil, err
		}
		items = append(items, row)
	}
	return items, rows.Err()
}
