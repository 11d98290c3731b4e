package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldsync/fieldsync/internal/api"
	"github.com/fieldsync/fieldsync/internal/entity"
	"github.com/fieldsync/fieldsync/internal/logging"
	"github.com/fieldsync/fieldsync/internal/store"
)

// State is the engine's lifecycle position. A session moves
// Idle -> Initializing -> Syncing -> one of the terminal states; any
// terminal state admits a new session.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateSyncing
	StateCompleted
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateSyncing:
		return "syncing"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of a session, published to observers on
// every state transition and on throttled page progress.
type Snapshot struct {
	SessionID       string
	State           State
	Collection      string
	CollectionIndex int
	CollectionCount int
	PageIndex       int
	RecordsApplied  int64
	Fraction        float64
	StartedAt       time.Time
	Err             error
}

// Observer receives session snapshots. Called synchronously from the
// sync goroutine, so observers must not block.
type Observer func(Snapshot)

// Fetcher is the remote side of the engine.
type Fetcher interface {
	FetchPage(ctx context.Context, req api.PageRequest) (*api.PageResult, error)
	Identity(ctx context.Context) (entity.Identity, error)
}

// Options tune a sync engine.
type Options struct {
	PageSize         int
	ProgressInterval time.Duration
}

// Engine walks the role-filtered collection list in order, one page at a
// time, committing each page before fetching the next. One session runs
// at a time; the out-of-band single-record path may run alongside it.
type Engine struct {
	client Fetcher
	store  *store.Store
	opts   Options

	mu        sync.Mutex
	state     State
	stopped   bool
	identity  *entity.Identity
	snapshot  Snapshot
	observers []Observer
}

// New creates an idle engine.
func New(client Fetcher, st *store.Store, opts Options) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = 500
	}
	return &Engine{
		client: client,
		store:  st,
		opts:   opts,
		state:  StateIdle,
	}
}

// Subscribe registers an observer for session snapshots.
func (e *Engine) Subscribe(obs Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, obs)
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Stop requests a graceful stop. The running session finishes its
// current collection and exits at the next collection boundary;
// checkpoints already saved are kept.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateInitializing || e.state == StateSyncing {
		e.stopped = true
	}
}

// Snapshot returns the latest published snapshot.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

func (e *Engine) stopRequested() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// publish updates the shared snapshot and fans it out.
func (e *Engine) publish(snap Snapshot) {
	e.mu.Lock()
	e.state = snap.State
	e.snapshot = snap
	obs := make([]Observer, len(e.observers))
	copy(obs, e.observers)
	e.mu.Unlock()

	for _, fn := range obs {
		fn(snap)
	}
}

// Sync runs one full session synchronously and returns its terminal
// error, nil on completion or graceful stop. Calling Sync while a
// session is already running is a logged no-op.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateInitializing || e.state == StateSyncing {
		e.mu.Unlock()
		logging.Warn("sync already running, ignoring start request")
		return nil
	}
	e.state = StateInitializing
	e.stopped = false
	e.mu.Unlock()

	sessionID := uuid.New().String()[:8]
	startedAt := time.Now()

	snap := Snapshot{
		SessionID: sessionID,
		State:     StateInitializing,
		StartedAt: startedAt,
	}
	e.publish(snap)

	if err := e.store.CreateSession(ctx, sessionID, startedAt); err != nil {
		return e.finish(ctx, snap, StateFailed, fmt.Errorf("recording session: %w", err))
	}

	identity, err := e.client.Identity(ctx)
	if err != nil {
		return e.finish(ctx, snap, StateFailed, fmt.Errorf("resolving identity: %w", err))
	}
	e.mu.Lock()
	e.identity = &identity
	e.mu.Unlock()

	checkpoints, err := e.store.LoadCheckpoints(ctx)
	if err != nil {
		return e.finish(ctx, snap, StateFailed, err)
	}

	cols := CollectionsFor(identity.RoleID)
	estimator := NewEstimator(cols)
	limiter := newThrottle(e.opts.ProgressInterval)
	snap.CollectionCount = len(cols)

	logging.Info("sync session %s started: role=%d actor=%d collections=%d",
		sessionID, identity.RoleID, identity.ActorID, len(cols))

	for i, col := range cols {
		// Stop is honored only here, at the collection boundary.
		if e.stopRequested() {
			logging.Info("sync session %s stopped before %s", sessionID, col.Name)
			return e.finish(ctx, snap, StateStopped, nil)
		}

		snap.State = StateSyncing
		snap.Collection = col.Name
		snap.CollectionIndex = i
		snap.PageIndex = 0
		snap.Fraction = estimator.Fraction()
		e.publish(snap)

		since := checkpoints[col.Name].SyncedAsOf
		applied, serverAsOf, err := e.syncCollection(ctx, col, identity, since, &snap, estimator, limiter)
		if err == nil {
			// The empty page confirms the walk is complete; only now
			// does the delta cursor advance, to the server-reported
			// timestamp.
			err = e.store.SetCheckpoint(ctx, col.Name, serverAsOf)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logging.Info("sync session %s cancelled during %s", sessionID, col.Name)
				return e.finish(ctx, snap, StateStopped, nil)
			}
			// A bulk page failure is fatal for the session.
			return e.finish(ctx, snap, StateFailed, fmt.Errorf("syncing %s: %w", col.Name, err))
		}
		estimator.CollectionDone(col)
		snap.Fraction = estimator.Fraction()
		e.publish(snap)

		logging.Debug("collection %s done: %d records, as_of=%s", col.Name, applied, serverAsOf)
	}

	logging.Info("sync session %s completed: %d records applied in %s",
		sessionID, snap.RecordsApplied, time.Since(startedAt).Round(time.Millisecond))
	return e.finish(ctx, snap, StateCompleted, nil)
}

// syncCollection walks one collection's pages until the server returns
// an empty page. Each page is persisted before the next is fetched.
// Returns the record count and the server timestamp from the final page.
func (e *Engine) syncCollection(ctx context.Context, col Collection, identity entity.Identity, since string, snap *Snapshot, estimator *Estimator, limiter *throttle) (int64, string, error) {
	var applied int64
	base := snap.RecordsApplied
	for page := 0; ; page++ {
		result, err := e.client.FetchPage(ctx, api.PageRequest{
			Collection: col.Name,
			PageIndex:  page,
			PageSize:   e.opts.PageSize,
			Identity:   identity,
			Since:      since,
		})
		if err != nil {
			return applied, "", err
		}

		if len(result.Records) == 0 {
			return applied, result.ServerAsOf, nil
		}

		if err := col.Apply(ctx, e.store, result.Records); err != nil {
			return applied, "", err
		}
		applied += int64(len(result.Records))

		estimator.PageDone(col, page+1)
		snap.PageIndex = page
		snap.RecordsApplied = base + applied
		snap.Fraction = estimator.Fraction()
		if limiter.allow(time.Now()) {
			e.publish(*snap)
		}
	}
}

// finish records the terminal state of a session, in local history and
// to observers, and returns the session error.
func (e *Engine) finish(ctx context.Context, snap Snapshot, state State, err error) error {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
		logging.Error("sync session %s failed: %v", snap.SessionID, err)
	}
	if snap.SessionID != "" {
		// History is best effort; a write failure must not mask the
		// session outcome.
		if herr := e.store.CompleteSession(ctx, snap.SessionID, state.String(), errMsg); herr != nil {
			logging.Warn("recording session outcome: %v", herr)
		}
	}

	snap.State = state
	snap.Err = err
	if state == StateCompleted {
		snap.Fraction = 1.0
	}
	e.publish(snap)
	return err
}

// FetchSingle downloads one record out of band and persists it through
// the same idempotent sink as the bulk walk. On failure the (table,
// record) pair is parked on the retry queue.
func (e *Engine) FetchSingle(ctx context.Context, table entity.TableID, recordID int64) error {
	// An unknown table can never succeed on retry; reject it here
	// instead of parking a permanent queue entry.
	if _, ok := ByTable(table); !ok {
		return fmt.Errorf("unknown table id %d", int(table))
	}

	err := e.fetchSingle(ctx, table, recordID)
	if err != nil {
		if qerr := e.store.EnqueueFailedOp(ctx, table, recordID); qerr != nil {
			logging.Warn("enqueueing failed op %s/%d: %v", table, recordID, qerr)
		}
	}
	return err
}

func (e *Engine) fetchSingle(ctx context.Context, table entity.TableID, recordID int64) error {
	col, ok := ByTable(table)
	if !ok {
		return fmt.Errorf("unknown table id %d", int(table))
	}

	identity, err := e.resolveIdentity(ctx)
	if err != nil {
		return err
	}
	if !col.SyncedFor(identity.RoleID) {
		logging.Debug("skipping %s/%d: not synced for role %d", col.Name, recordID, identity.RoleID)
		return nil
	}

	result, err := e.client.FetchPage(ctx, api.PageRequest{
		Collection: col.Name,
		PageSize:   1,
		Identity:   identity,
		RecordID:   recordID,
	})
	if err != nil {
		return fmt.Errorf("fetching %s/%d: %w", col.Name, recordID, err)
	}
	if len(result.Records) == 0 {
		// Deleted or out of scope server side. Nothing to persist.
		logging.Debug("record %s/%d not returned by server", col.Name, recordID)
		return nil
	}

	if err := col.Apply(ctx, e.store, result.Records); err != nil {
		return fmt.Errorf("persisting %s/%d: %w", col.Name, recordID, err)
	}
	return nil
}

// resolveIdentity returns the cached session identity, asking the server
// once if no session has resolved it yet.
func (e *Engine) resolveIdentity(ctx context.Context) (entity.Identity, error) {
	e.mu.Lock()
	cached := e.identity
	e.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	identity, err := e.client.Identity(ctx)
	if err != nil {
		return entity.Identity{}, fmt.Errorf("resolving identity: %w", err)
	}
	e.mu.Lock()
	e.identity = &identity
	e.mu.Unlock()
	return identity, nil
}

// RetryFailedOperations sweeps the failed-op queue, re-attempting each
// parked single-record fetch. Entries that succeed are removed; entries
// that fail again stay parked for the next sweep.
func (e *Engine) RetryFailedOperations(ctx context.Context) (retried, remaining int, err error) {
	ops, err := e.store.ListFailedOps(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return retried, remaining, err
		}
		if ferr := e.fetchSingle(ctx, op.TableID, op.RecordID); ferr != nil {
			logging.Debug("retry %s/%d still failing: %v", op.TableID, op.RecordID, ferr)
			remaining++
			continue
		}
		if derr := e.store.DeleteFailedOp(ctx, op.ID); derr != nil {
			return retried, remaining, derr
		}
		retried++
	}

	if retried > 0 || remaining > 0 {
		logging.Info("retry sweep: %d recovered, %d still parked", retried, remaining)
	}
	return retried, remaining, nil
}
