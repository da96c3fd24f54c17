package quota

import "context"

// Store persists the usage ledger: date (YYYY-MM-DD) -> user id -> count.
//
// Implementations need not be safe for concurrent use on their own; Tracker
// serializes every call. External stores must still make Add atomic when
// several processes share them.
type Store interface {
	Usage(ctx context.Context, day, userID string) (int, error)
	// Add increments the cell by n and returns the new count.
	Add(ctx context.Context, day, userID string, n int) (int, error)
	Day(ctx context.Context, day string) (map[string]int, error)
	DeleteDay(ctx context.Context, day string) error
	// PruneBefore removes every day strictly before cutoff and reports how many were removed.
	PruneBefore(ctx context.Context, cutoff string) (int, error)
}
