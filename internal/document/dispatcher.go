package document

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	apperrors "github.com/boardsync/collab/internal/errors"
	"github.com/boardsync/collab/internal/room"
	"github.com/boardsync/collab/internal/storage"
)

// Store persists documents. storage.SQLiteStore implements it.
type Store interface {
	// SaveWorkspace replaces the document and returns the recorded
	// timestamp, or storage.ErrWorkspaceNotFound.
	SaveWorkspace(ctx context.Context, workspaceID string, elements, viewState json.RawMessage) (time.Time, error)
}

// Publisher fans a persisted update out to the other members of a room.
type Publisher interface {
	PublishUpdate(workspaceID string, origin room.Member, u Updated)
}

// Dispatcher persists updates and broadcasts them in the order received.
//
// Each workspace has a lane: a FIFO of pending updates drained by a single
// goroutine that exists only while the lane is non-empty. Updates to the
// same workspace are persisted and published strictly in submission order;
// different workspaces proceed independently. The dispatcher's mutex guards
// lane bookkeeping only and is never held across a store call.
type Dispatcher struct {
	store Store
	pub   Publisher

	mu    sync.Mutex
	lanes map[string]*lane
	wg    sync.WaitGroup
}

type lane struct {
	queue []*job
}

type job struct {
	ctx    context.Context
	origin room.Member
	update Update

	// persisted shape, computed before queueing
	elements  json.RawMessage
	viewState json.RawMessage

	done chan outcome
}

type outcome struct {
	ts  time.Time
	err error
}

// NewDispatcher creates a Dispatcher that saves to store and publishes
// through pub.
func NewDispatcher(store Store, pub Publisher) *Dispatcher {
	return &Dispatcher{
		store: store,
		pub:   pub,
		lanes: make(map[string]*lane),
	}
}

// ApplyUpdate persists u and publishes it to origin's room peers.
//
// origin must be bound to u.WorkspaceID, otherwise an auth.unauthorized
// error is returned and nothing happens. A malformed document is rejected
// with server.invalid_message before it is queued. On success the recorded
// timestamp is returned and the caller confirms to the sender. On a store
// failure the document is unchanged, nothing is published, and a
// workspace.not_found or storage.save_failed error is returned.
//
// ApplyUpdate blocks until the update has been processed or ctx is done.
// Once queued, an update is processed even if the caller stops waiting: if
// ctx is canceled before the store call the update is dropped, and if it
// was already persisted it is still published.
func (d *Dispatcher) ApplyUpdate(ctx context.Context, origin room.Member, u Update) (time.Time, error) {
	if u.WorkspaceID == "" || origin.Workspace() != u.WorkspaceID {
		return time.Time{}, apperrors.Unauthorized("not authorized for this workspace")
	}

	elements, viewState, err := ToPersisted(u)
	if err != nil {
		return time.Time{}, apperrors.InvalidMessage(err.Error())
	}

	j := &job{
		ctx:       ctx,
		origin:    origin,
		update:    u,
		elements:  elements,
		viewState: viewState,
		done:      make(chan outcome, 1),
	}
	d.enqueue(j)

	select {
	case o := <-j.done:
		return o.ts, o.err
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
}

// Wait blocks until every queued update has been processed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Pending returns the number of workspaces with updates in flight.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lanes)
}

func (d *Dispatcher) enqueue(j *job) {
	workspaceID := j.update.WorkspaceID

	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.lanes[workspaceID]
	if !ok {
		l = &lane{}
		d.lanes[workspaceID] = l
		d.wg.Add(1)
		go d.drain(workspaceID, l)
	}
	l.queue = append(l.queue, j)
}

// drain processes a lane until it is empty, then retires it.
func (d *Dispatcher) drain(workspaceID string, l *lane) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		if len(l.queue) == 0 {
			delete(d.lanes, workspaceID)
			d.mu.Unlock()
			return
		}
		j := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		d.mu.Unlock()

		j.done <- d.process(j)
	}
}

func (d *Dispatcher) process(j *job) outcome {
	u := j.update

	if err := j.ctx.Err(); err != nil {
		return outcome{err: err}
	}

	ts, err := d.store.SaveWorkspace(j.ctx, u.WorkspaceID, j.elements, j.viewState)
	if err != nil {
		log.Printf("document: save failed for workspace %s (user %s): %v", u.WorkspaceID, u.UserID, err)
		if errors.Is(err, storage.ErrWorkspaceNotFound) {
			return outcome{err: apperrors.WorkspaceNotFound(u.WorkspaceID)}
		}
		return outcome{err: apperrors.PersistenceFailed(u.WorkspaceID, err)}
	}

	d.pub.PublishUpdate(u.WorkspaceID, j.origin, ToWire(u, ts))
	log.Printf("document: workspace %s updated by %s at %s", u.WorkspaceID, u.UserID, ts.Format(time.RFC3339Nano))

	return outcome{ts: ts}
}
