// Package statequery gives handler hooks read-only access to the current
// published state of the upload storage.
package statequery

import (
	"context"

	"tideflow/internal/pipefile"
	"tideflow/internal/storage"
)

// StateQuery wraps a storage broker behind a query-only surface so handler
// hooks can inspect remote state without being handed write capabilities.
type StateQuery struct {
	broker storage.Broker
}

// New constructs a StateQuery over the given broker.
func New(broker storage.Broker) *StateQuery {
	return &StateQuery{broker: broker}
}

// QueryStorage performs a prefix search against the published-object store.
// It has no side effects on local state and, for a fixed storage state,
// returns identical results on repeated calls. The result can be stale by
// the time a later publish executes; there is no transactional guarantee
// between a query and a subsequent write.
func (q *StateQuery) QueryStorage(ctx context.Context, prefix string) (*pipefile.RemoteCollection, error) {
	return q.broker.Query(ctx, prefix)
}
