// Package quota enforces the per-user daily generation allowance.
//
// Accounting favours availability: when the ledger cannot be read or written the
// Tracker returns a degraded value (zero usage, unchanged ledger) together with a
// *PersistenceError. Generation keeps working and usage may undercount until
// storage recovers; operators are told through the log and the failure hook.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	DefaultDailyLimit    = 50
	DefaultRetentionDays = 7

	// Unlimited is the remaining count reported for users on their own credential.
	Unlimited = -1
)

// Decision is the outcome of a quota check.
type Decision struct {
	CanProceed bool `json:"can_proceed"`
	Remaining  int  `json:"remaining"`
	Unlimited  bool `json:"unlimited"`
}

type UserUsage struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// Stats aggregates one day of usage. Users is sorted by count, highest first.
type Stats struct {
	Date        string      `json:"date"`
	TotalUsage  int         `json:"total_usage"`
	ActiveUsers int         `json:"active_users"`
	Users       []UserUsage `json:"users"`
}

type Option func(*Tracker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLocation sets the time zone that decides where a calendar day starts.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) {
		if loc != nil {
			t.loc = loc
		}
	}
}

func WithRetention(days int) Option {
	return func(t *Tracker) {
		if days > 0 {
			t.retentionDays = days
		}
	}
}

// WithFailureHook registers a callback for every persistence failure.
func WithFailureHook(fn func(error)) Option {
	return func(t *Tracker) { t.onFailure = fn }
}

// Tracker owns the usage ledger. All ledger access goes through its mutex.
type Tracker struct {
	mu            sync.Mutex
	store         Store
	limit         int
	retentionDays int
	loc           *time.Location
	now           func() time.Time
	log           *slog.Logger
	onFailure     func(error)
	lastPruned    string
}

func NewTracker(store Store, dailyLimit int, log *slog.Logger, opts ...Option) *Tracker {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	if log == nil {
		log = slog.Default()
	}
	t := &Tracker{
		store:         store,
		limit:         dailyLimit,
		retentionDays: DefaultRetentionDays,
		loc:           time.Local,
		now:           time.Now,
		log:           log,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) DailyLimit() int { return t.limit }

// Today returns the current ledger date key.
func (t *Tracker) Today() string {
	return t.now().In(t.loc).Format(time.DateOnly)
}

// Usage returns today's count for userID, zero when unseen.
func (t *Tracker) Usage(ctx context.Context, userID string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.store.Usage(ctx, t.Today(), userID)
	if err != nil {
		return 0, t.fail("read usage", err, "user", userID)
	}
	return n, nil
}

// AddUsage increments today's count for userID by n and returns the new count.
// The first write of each day prunes days older than the retention window.
func (t *Tracker) AddUsage(ctx context.Context, userID string, n int) (int, error) {
	if n < 1 {
		return 0, fmt.Errorf("add usage %d: %w", n, ErrInvalidCount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	today := t.Today()
	var pruneErr error
	if t.lastPruned != today {
		_, pruneErr = t.pruneLocked(ctx, today)
	}

	// One failure report per call, the write taking precedence.
	count, err := t.store.Add(ctx, today, userID, n)
	if err != nil {
		return 0, t.fail("add usage", err, "user", userID, "count", n)
	}
	if pruneErr != nil {
		t.fail("prune", pruneErr)
	}
	return count, nil
}

// CheckQuota decides whether userID may generate. Own-credential users are
// never limited and the ledger is not consulted for them.
func (t *Tracker) CheckQuota(ctx context.Context, userID string, ownCredential bool) (Decision, error) {
	if ownCredential {
		return Decision{CanProceed: true, Remaining: Unlimited, Unlimited: true}, nil
	}
	used, err := t.Usage(ctx, userID)
	remaining := t.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Decision{CanProceed: remaining > 0, Remaining: remaining}, err
}

// Stats returns today's aggregate usage.
func (t *Tracker) Stats(ctx context.Context) (Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	today := t.Today()
	stats := Stats{Date: today, Users: []UserUsage{}}
	users, err := t.store.Day(ctx, today)
	if err != nil {
		return stats, t.fail("read stats", err)
	}
	for id, n := range users {
		stats.TotalUsage += n
		stats.Users = append(stats.Users, UserUsage{UserID: id, Count: n})
	}
	stats.ActiveUsers = len(stats.Users)
	sort.Slice(stats.Users, func(i, j int) bool {
		if stats.Users[i].Count != stats.Users[j].Count {
			return stats.Users[i].Count > stats.Users[j].Count
		}
		return stats.Users[i].UserID < stats.Users[j].UserID
	})
	return stats, nil
}

// ClearToday removes every cell of the current date. Other dates are untouched.
func (t *Tracker) ClearToday(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	today := t.Today()
	if err := t.store.DeleteDay(ctx, today); err != nil {
		return t.fail("clear today", err)
	}
	t.log.Info("usage cleared", "date", today)
	return nil
}

// Prune removes days older than the retention window.
func (t *Tracker) Prune(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed, err := t.pruneLocked(ctx, t.Today())
	if err != nil {
		return 0, t.fail("prune", err)
	}
	return removed, nil
}

func (t *Tracker) pruneLocked(ctx context.Context, today string) (int, error) {
	day, err := time.ParseInLocation(time.DateOnly, today, t.loc)
	if err != nil {
		return 0, err
	}
	cutoff := day.AddDate(0, 0, -t.retentionDays).Format(time.DateOnly)
	removed, err := t.store.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune before %s: %w", cutoff, err)
	}
	t.lastPruned = today
	if removed > 0 {
		t.log.Info("usage ledger pruned", "cutoff", cutoff, "days_removed", removed)
	}
	return removed, nil
}

func (t *Tracker) fail(op string, err error, attrs ...any) error {
	pe := &PersistenceError{Op: op, Err: err}
	t.log.Error("usage ledger unavailable, accounting degraded", append([]any{"op", op, "err", err}, attrs...)...)
	if t.onFailure != nil {
		t.onFailure(pe)
	}
	return pe
}
