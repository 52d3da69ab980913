package catalog

import (
	"context"
	"fmt"

	"github.com/mcdev12/curator/go/internal/models"
)

// Querier defines what the repository needs from the database layer
type Querier interface {
	ListItemsBySourceOrder(ctx context.Context) ([]ItemRow, error)
}

// Repository implements item catalog data access operations
type Repository struct {
	queries Querier
}

// NewRepository creates a new catalog repository
func NewRepository(querier Querier) *Repository {
	return &Repository{
		queries: querier,
	}
}

// LoadItems loads the ordered item batch for a new session. A store failure
// is surfaced as ErrSourceUnavailable and is fatal to the start transition.
func (r *Repository) LoadItems(ctx context.Context) ([]models.Item, error) {
	rows, err := r.queries.ListItemsBySourceOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	items := make([]models.Item, len(rows))
	for i, row := range rows {
		items[i] = models.Item{
			ID:          row.ID,
			Title:       row.Title,
			SourceOrder: int(row.SourceOrder),
		}
	}

	return items, nil
}
