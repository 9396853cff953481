// Package audit is the append-only ledger of lifecycle actions. Every record
// is chained to the previous record of the same document by a SHA-256 hash,
// so edits or deletions in the backing store are detectable with Verify.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Action string

const (
	ActionCreate              Action = "CREATE"
	ActionRead                Action = "READ"
	ActionUpdateACL           Action = "UPDATE_ACL"
	ActionUpdateRetention     Action = "UPDATE_RETENTION"
	ActionDelete              Action = "DELETE"
	ActionCreateVersion       Action = "CREATE_VERSION"
	ActionRestore             Action = "RESTORE"
	ActionPurge               Action = "PURGE"
	ActionUpdateVersionStatus Action = "UPDATE_VERSION_STATUS"
)

type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultDenied  Result = "DENIED"
	ResultError   Result = "ERROR"
)

// ErrMissingReason is returned when a non-success entry has no reason.
var ErrMissingReason = errors.New("audit: reason required for non-success result")

// Entry is what callers hand to the ledger.
type Entry struct {
	DocumentID string
	Version    *int
	Action     Action
	ActorID    string
	Roles      []string
	Result     Result
	Reason     string
	IP         string
	UserAgent  string
}

func (e Entry) validate() error {
	if e.DocumentID == "" {
		return errors.New("audit: document id required")
	}
	if e.Action == "" || e.Result == "" {
		return errors.New("audit: action and result required")
	}
	if e.Result != ResultSuccess && e.Reason == "" {
		return ErrMissingReason
	}
	return nil
}

// Record is an appended, immutable ledger entry. Ledgers hand out copies.
type Record struct {
	Seq        uint64    `json:"seq" bson:"seq"`
	DocumentID string    `json:"documentId" bson:"documentId"`
	Version    *int      `json:"version,omitempty" bson:"version,omitempty"`
	Action     Action    `json:"action" bson:"action"`
	ActorID    string    `json:"actorId" bson:"actorId"`
	Roles      []string  `json:"roles" bson:"roles"`
	Result     Result    `json:"result" bson:"result"`
	Reason     string    `json:"reason,omitempty" bson:"reason,omitempty"`
	IP         string    `json:"ip,omitempty" bson:"ip,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty" bson:"userAgent,omitempty"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
	PrevHash   string    `json:"prevHash" bson:"prevHash"`
	Hash       string    `json:"hash" bson:"hash"`
}

func (r Record) clone() Record {
	out := r
	out.Roles = slices.Clone(r.Roles)
	if r.Version != nil {
		v := *r.Version
		out.Version = &v
	}
	return out
}

// Query selects the records of one document, optionally one version.
type Query struct {
	DocumentID string
	Version    *int
}

func (q Query) matches(r Record) bool {
	if r.DocumentID != q.DocumentID {
		return false
	}
	if q.Version == nil {
		return true
	}
	return r.Version != nil && *r.Version == *q.Version
}

// Ledger appends and reads audit records. Append must not return until the
// record is durable in the backing store.
type Ledger interface {
	Append(ctx context.Context, e Entry) (Record, error)
	Query(ctx context.Context, q Query) ([]Record, error)
}

// stamp truncates to the millisecond precision of BSON datetimes so that
// hashes survive a round trip through the store.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func newRecord(e Entry, seq uint64, ts time.Time, prev string) Record {
	r := Record{
		Seq:        seq,
		DocumentID: e.DocumentID,
		Action:     e.Action,
		ActorID:    e.ActorID,
		Roles:      slices.Clone(e.Roles),
		Result:     e.Result,
		Reason:     e.Reason,
		IP:         e.IP,
		UserAgent:  e.UserAgent,
		Timestamp:  ts.UTC(),
		PrevHash:   prev,
	}
	if r.Roles == nil {
		r.Roles = []string{}
	}
	if e.Version != nil {
		v := *e.Version
		r.Version = &v
	}
	r.Hash = r.computeHash()
	return r
}

func (r Record) computeHash() string {
	var b strings.Builder
	field := func(s string) {
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
		b.WriteByte('|')
	}
	field(r.PrevHash)
	field(strconv.FormatUint(r.Seq, 10))
	field(r.DocumentID)
	if r.Version != nil {
		field(strconv.Itoa(*r.Version))
	} else {
		field("-")
	}
	field(string(r.Action))
	field(r.ActorID)
	field(strconv.Itoa(len(r.Roles)))
	for _, role := range r.Roles {
		field(role)
	}
	field(string(r.Result))
	field(r.Reason)
	field(r.IP)
	field(r.UserAgent)
	field(r.Timestamp.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ChainError reports the first record whose hash or link does not verify.
type ChainError struct {
	Seq    uint64
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("audit chain broken at seq %d: %s", e.Seq, e.Reason)
}

// Verify checks the hash chain of one document's records, in append order.
// Records must be the complete, unfiltered trail of the document.
func Verify(records []Record) error {
	prev := ""
	for _, r := range records {
		if r.PrevHash != prev {
			return &ChainError{Seq: r.Seq, Reason: "previous hash mismatch"}
		}
		if r.computeHash() != r.Hash {
			return &ChainError{Seq: r.Seq, Reason: "record hash mismatch"}
		}
		prev = r.Hash
	}
	return nil
}
