package pk

import (
	"context"
)

// Execute runs a Runnable as one fresh execution.
// A new Tracker is attached unless the context already carries one, so
// every call deduplicates tasks independently of earlier calls.
func Execute(ctx context.Context, r Runnable) error {
	if r == nil {
		return nil
	}
	if TrackerFromContext(ctx) == nil {
		ctx = WithTracker(ctx, NewTracker())
	}
	return r.run(ctx)
}
