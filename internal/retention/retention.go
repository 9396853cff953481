// Package retention decides how and when a document may be deleted.
package retention

import (
	"time"

	"github.com/docledger/docledger/internal/document"
)

// Policy is an immutable retention rule resolved by id.
type Policy struct {
	ID          string
	Period      time.Duration
	DefaultMode document.DeletionMode
}

// Plan describes how a delete request must be applied.
type Plan struct {
	// Mode is the policy-derived mode: soft or hard.
	Mode document.DeletionMode
	// Immediate is true when the document must be purged now.
	Immediate bool
	// EffectiveAt is when the deletion takes full effect. For a scheduled
	// hard delete this is the purge time; otherwise it equals now.
	EffectiveAt time.Time
	// PolicyResolved is false when the document referenced an unknown policy.
	PolicyResolved bool
}

// Applied returns the mode applied to the document right now. A scheduled
// hard delete is a soft tombstone until EffectiveAt.
func (p Plan) Applied() document.DeletionMode {
	if p.Immediate {
		return document.ModeHard
	}
	return document.ModeSoft
}

// Scheduled reports whether a hard purge must happen later.
func (p Plan) Scheduled() bool {
	return p.Mode == document.ModeHard && !p.Immediate
}

// EffectiveMode resolves the mode for ret: the document mode when set,
// otherwise the policy default, otherwise soft.
func EffectiveMode(ret document.Retention, policy *Policy) document.DeletionMode {
	if ret.Mode != "" {
		return ret.Mode
	}
	if policy != nil && policy.DefaultMode != "" {
		return policy.DefaultMode
	}
	return document.ModeSoft
}

// DecideDeletion returns the deletion plan for a document with retention ret.
// policy is the resolved policy for ret.PolicyID, or nil when the document
// has no policy or the id could not be resolved. It is deterministic and has
// no side effects. A hard-locked document before its delete-at time yields
// ErrRetentionLock.
func DecideDeletion(ret document.Retention, policy *Policy, now time.Time) (Plan, error) {
	soft := Plan{Mode: document.ModeSoft, EffectiveAt: now, PolicyResolved: true}

	if ret.PolicyID != "" && policy == nil {
		// never hard-delete on a policy we cannot see
		soft.PolicyResolved = false
		return soft, nil
	}

	due := ret.DeleteAt == nil || !now.Before(*ret.DeleteAt)
	switch EffectiveMode(ret, policy) {
	case document.ModeHard:
		if due {
			return Plan{Mode: document.ModeHard, Immediate: true, EffectiveAt: now, PolicyResolved: true}, nil
		}
		return Plan{Mode: document.ModeHard, EffectiveAt: *ret.DeleteAt, PolicyResolved: true}, nil
	case document.ModeHardLocked:
		if !due {
			return Plan{}, document.NewError(document.ErrRetentionLock, "decide-deletion", document.ReasonRetentionLock)
		}
		return Plan{Mode: document.ModeHard, Immediate: true, EffectiveAt: now, PolicyResolved: true}, nil
	default:
		return soft, nil
	}
}

// ComputeDeleteAt fills ret.DeleteAt from the policy period when the caller
// did not supply one. The returned value is a copy.
func ComputeDeleteAt(ret document.Retention, policy *Policy, createdAt time.Time) document.Retention {
	out := ret.Clone()
	if out.DeleteAt == nil && policy != nil && policy.Period > 0 {
		t := createdAt.Add(policy.Period)
		out.DeleteAt = &t
	}
	return out
}

// CheckUpdate rejects a retention change that would release a hard-locked
// document before its delete-at time. next must already carry its computed
// DeleteAt. The lock may be extended but never shortened or downgraded.
// A retention naming a policy that cannot be resolved deletes softly and so
// holds no lock.
func CheckUpdate(current document.Retention, curPolicy *Policy, next document.Retention, nextPolicy *Policy, now time.Time) error {
	if !hardLocked(current, curPolicy) {
		return nil
	}
	if current.DeleteAt == nil || !now.Before(*current.DeleteAt) {
		return nil
	}
	if !hardLocked(next, nextPolicy) ||
		next.DeleteAt == nil || next.DeleteAt.Before(*current.DeleteAt) {
		return document.NewError(document.ErrRetentionLock, "update-retention", document.ReasonRetentionLock)
	}
	return nil
}

func hardLocked(ret document.Retention, policy *Policy) bool {
	if ret.PolicyID != "" && policy == nil {
		return false
	}
	return EffectiveMode(ret, policy) == document.ModeHardLocked
}
