// Package access decides whether an actor may exercise a capability on a
// document, given only the document ACL.
package access

import (
	"slices"

	"github.com/docledger/docledger/internal/document"
)

// SystemActorID is reserved for migrations and recovery tooling. It is the
// only actor allowed through a missing or empty ACL.
const SystemActorID = "system"

// Capability is an operation class gated by the ACL.
type Capability string

const (
	Read      Capability = "read"
	Write     Capability = "write"
	Delete    Capability = "delete"
	ManageACL Capability = "manage-acl"
)

// Actor is an authenticated identity and its role set.
type Actor struct {
	ID        string   `json:"id"`
	Roles     []string `json:"roles,omitempty"`
	IP        string   `json:"-"`
	UserAgent string   `json:"-"`
}

// System returns the reserved system actor.
func System() Actor { return Actor{ID: SystemActorID} }

func (a Actor) IsSystem() bool { return a.ID == SystemActorID }

// Rule names the ACL rule that produced a decision.
type Rule string

const (
	RuleSystem  Rule = "system"
	RuleOwner   Rule = "owner"
	RuleRole    Rule = "role"
	RuleReader  Rule = "reader"
	RuleUpdater Rule = "updater"
	RuleNone    Rule = "none"
)

// Decision is the outcome of Authorize. An allowed Decision is the grant
// proof the version manager requires.
type Decision struct {
	Allowed    bool
	Capability Capability
	Rule       Rule
	ActorID    string
	Reason     string
}

func allow(actor Actor, c Capability, r Rule) Decision {
	return Decision{Allowed: true, Capability: c, Rule: r, ActorID: actor.ID}
}

func deny(actor Actor, c Capability, r Rule) Decision {
	return Decision{Capability: c, Rule: r, ActorID: actor.ID, Reason: document.ReasonInsufficientPermissions}
}

// Authorize evaluates the ACL rules in order; the first matching rule wins.
// It never fails: a nil or empty ACL denies everyone but the system actor.
func Authorize(acl *document.ACL, actor Actor, c Capability) Decision {
	if actor.IsSystem() {
		return allow(actor, c, RuleSystem)
	}
	if actor.ID == "" || acl.Empty() {
		return deny(actor, c, RuleNone)
	}
	if slices.Contains(acl.Owners, actor.ID) {
		return allow(actor, c, RuleOwner)
	}
	if intersects(acl.Roles, actor.Roles) {
		return grantIf(actor, c, RuleRole, Read, Write)
	}
	if slices.Contains(acl.Readers, actor.ID) {
		return grantIf(actor, c, RuleReader, Read)
	}
	if slices.Contains(acl.Updaters, actor.ID) {
		return grantIf(actor, c, RuleUpdater, Read, Write)
	}
	return deny(actor, c, RuleNone)
}

// Can is a convenience wrapper returning only the verdict.
func Can(acl *document.ACL, actor Actor, c Capability) bool {
	return Authorize(acl, actor, c).Allowed
}

func grantIf(actor Actor, c Capability, r Rule, granted ...Capability) Decision {
	if slices.Contains(granted, c) {
		return allow(actor, c, r)
	}
	return deny(actor, c, r)
}

func intersects(a, b []string) bool {
	for _, x := range a {
		if x != "" && slices.Contains(b, x) {
			return true
		}
	}
	return false
}
