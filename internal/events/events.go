// Package events publishes document lifecycle notifications and purge
// requests to the message bus.
package events

import (
	"context"
	"sync"
	"time"
)

type Type string

const (
	DocumentCreated      Type = "document.created"
	DocumentDeleted      Type = "document.deleted"
	DocumentRestored     Type = "document.restored"
	DocumentPurged       Type = "document.purged"
	ACLUpdated           Type = "document.acl_updated"
	RetentionUpdated     Type = "document.retention_updated"
	VersionCreated       Type = "version.created"
	VersionStatusChanged Type = "version.status_changed"
)

// Event is the wire payload of a lifecycle notification.
type Event struct {
	Type       Type      `json:"type"`
	DocumentID string    `json:"documentId"`
	CustomerID string    `json:"customerId,omitempty"`
	Version    int       `json:"version,omitempty"`
	ActorID    string    `json:"actorId"`
	Mode       string    `json:"mode,omitempty"`
	At         time.Time `json:"at"`
}

// SweepRequest asks workers to run a purge sweep, e.g. after a physical
// purge failed inline.
type SweepRequest struct {
	DocumentID string    `json:"documentId,omitempty"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}

// Publisher is best effort: lifecycle state and the audit ledger are the
// source of truth, events only notify.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	RequestSweep(ctx context.Context, r SweepRequest) error
}

// Noop discards everything.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error             { return nil }
func (Noop) RequestSweep(context.Context, SweepRequest) error { return nil }

// Recorder keeps published messages in memory. Used by tests and by the
// single-process setup to drive sweeps without a bus.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	sweeps []SweepRequest
	Err    error
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) RequestSweep(_ context.Context, s SweepRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sweeps = append(r.sweeps, s)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Sweeps() []SweepRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SweepRequest(nil), r.sweeps...)
}
