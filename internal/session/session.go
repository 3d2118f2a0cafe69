// Package session connects the sync engine to the backend that owns the
// remote chat lists.
package session

import (
	"context"
	"errors"

	"github.com/tOgg1/chatsync/internal/models"
)

// DefaultPageSize is used when a PageRequest carries no limit.
const DefaultPageSize = 100

// ErrClosed is returned by sessions that have been shut down.
var ErrClosed = errors.New("session closed")

// PageRequest asks for the entries of a list that sort after After.
type PageRequest struct {
	List   models.ListID
	Filter models.Filter

	// After is the position of the last entry already loaded. Nil starts
	// at the top of the list.
	After *models.Position

	Limit int
}

// Session is the upstream backend session.
type Session interface {
	// Subscribe starts delivering change notifications for (list, filter).
	// The returned function cancels the subscription and closes the channel.
	Subscribe(list models.ListID, filter models.Filter) (<-chan models.ChangeNotification, func())

	// FetchPage returns at most req.Limit entries sorting after req.After,
	// in list order. A page shorter than the limit ends the list.
	FetchPage(ctx context.Context, req PageRequest) ([]models.Entry, error)
}

// EffectiveLimit returns the page limit to request.
func (r PageRequest) EffectiveLimit() int {
	if r.Limit <= 0 {
		return DefaultPageSize
	}
	return r.Limit
}
