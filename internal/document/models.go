package document

import (
	"slices"
	"time"
)

// Taxonomy classifies a document. It is fixed at creation time.
type Taxonomy struct {
	Domain   string `json:"domain" bson:"domain"`
	Category string `json:"category" bson:"category"`
	DocType  string `json:"docType" bson:"docType"`
}

// ACL holds identity and role grants. Grants are additive.
type ACL struct {
	Owners   []string `json:"owners" bson:"owners"`
	Readers  []string `json:"readers" bson:"readers"`
	Updaters []string `json:"updaters" bson:"updaters"`
	Roles    []string `json:"roles" bson:"roles"`
}

// Empty reports whether the ACL grants nothing to anyone.
func (a *ACL) Empty() bool {
	return a == nil || (len(a.Owners) == 0 && len(a.Readers) == 0 && len(a.Updaters) == 0 && len(a.Roles) == 0)
}

// Clone returns a deep copy so callers never share slices with the store.
func (a ACL) Clone() ACL {
	return ACL{
		Owners:   slices.Clone(a.Owners),
		Readers:  slices.Clone(a.Readers),
		Updaters: slices.Clone(a.Updaters),
		Roles:    slices.Clone(a.Roles),
	}
}

// DeletionMode is the retention mode applied when a document is deleted.
type DeletionMode string

const (
	ModeSoft       DeletionMode = "soft"
	ModeHard       DeletionMode = "hard"
	ModeHardLocked DeletionMode = "hard-locked"
)

// Valid reports whether m is a known mode. The empty mode is valid and means
// "use the policy default".
func (m DeletionMode) Valid() bool {
	switch m {
	case "", ModeSoft, ModeHard, ModeHardLocked:
		return true
	}
	return false
}

// Retention links a document to a retention policy.
type Retention struct {
	PolicyID string       `json:"policyId,omitempty" bson:"policyId,omitempty"`
	DeleteAt *time.Time   `json:"deleteAt,omitempty" bson:"deleteAt,omitempty"`
	Mode     DeletionMode `json:"mode,omitempty" bson:"mode,omitempty"`
}

func (r Retention) Clone() Retention {
	out := r
	if r.DeleteAt != nil {
		t := *r.DeleteAt
		out.DeleteAt = &t
	}
	return out
}

// State is the lifecycle state derived from the document timestamps.
type State string

const (
	StateActive      State = "active"
	StateSoftDeleted State = "soft-deleted"
)

// Document is the persistent document metadata record.
type Document struct {
	ID             string    `json:"id" bson:"id"`
	CustomerID     string    `json:"customerId" bson:"customerId"`
	ProcessID      string    `json:"processId,omitempty" bson:"processId,omitempty"`
	Taxonomy       Taxonomy  `json:"taxonomy" bson:"taxonomy"`
	ACL            ACL       `json:"acl" bson:"acl"`
	Retention      Retention `json:"retention" bson:"retention"`
	CurrentVersion int       `json:"currentVersion" bson:"currentVersion"`
	// LatestVersion is the highest version number ever assigned. It differs
	// from CurrentVersion only after versions have been retired.
	LatestVersion int        `json:"latestVersion" bson:"latestVersion"`
	CreatedAt     time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt" bson:"updatedAt"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty" bson:"deletedAt,omitempty"`
	// PurgeAt is set when a hard purge has been scheduled for a tombstoned document.
	PurgeAt *time.Time `json:"purgeAt,omitempty" bson:"purgeAt,omitempty"`
}

func (d *Document) State() State {
	if d.DeletedAt != nil {
		return StateSoftDeleted
	}
	return StateActive
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.ACL = d.ACL.Clone()
	out.Retention = d.Retention.Clone()
	if d.DeletedAt != nil {
		t := *d.DeletedAt
		out.DeletedAt = &t
	}
	if d.PurgeAt != nil {
		t := *d.PurgeAt
		out.PurgeAt = &t
	}
	return &out
}

// VersionStatus tracks the integrity/currency of a version.
type VersionStatus string

const (
	VersionActive     VersionStatus = "active"
	VersionSuperseded VersionStatus = "superseded"
	VersionCorrupt    VersionStatus = "corrupt"
)

// CanTransition reports whether a version may move from s to next.
func (s VersionStatus) CanTransition(next VersionStatus) bool {
	switch s {
	case VersionActive:
		return next == VersionSuperseded || next == VersionCorrupt
	case VersionSuperseded:
		return next == VersionCorrupt
	}
	return false
}

// Version is an immutable snapshot of a document's content metadata.
type Version struct {
	DocumentID string        `json:"documentId" bson:"documentId"`
	Version    int           `json:"version" bson:"version"`
	Filename   string        `json:"filename" bson:"filename"`
	MimeType   string        `json:"mimeType" bson:"mimeType"`
	Size       int64         `json:"size" bson:"size"`
	Hash       string        `json:"hash,omitempty" bson:"hash,omitempty"`
	StorageKey string        `json:"storageKey" bson:"storageKey"`
	Status     VersionStatus `json:"status" bson:"status"`
	CreatedBy  string        `json:"createdBy" bson:"createdBy"`
	CreatedAt  time.Time     `json:"createdAt" bson:"createdAt"`
}

// VersionMetadata is the caller-supplied part of a new version.
type VersionMetadata struct {
	Filename   string `json:"filename"`
	MimeType   string `json:"mimeType"`
	Size       int64  `json:"size"`
	Hash       string `json:"hash,omitempty"`
	StorageKey string `json:"storageKey"`
}

// ContentRef points at the binary content of one version. The bytes live in
// the storage collaborator; URL is filled when a presigner is configured.
type ContentRef struct {
	DocumentID string `json:"documentId"`
	Version    int    `json:"version"`
	StorageKey string `json:"storageKey"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mimeType"`
	Size       int64  `json:"size"`
	Hash       string `json:"hash,omitempty"`
	URL        string `json:"url,omitempty"`
}

// Filter narrows a document listing. Empty fields do not filter.
type Filter struct {
	CustomerID     string
	Domain         string
	Category       string
	DocType        string
	IncludeDeleted bool
	Page           int
	Limit          int
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Normalize applies listing defaults and bounds.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f
}

// Page is one page of a listing plus pagination metadata.
type Page struct {
	Items      []*Document `json:"items"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	Total      int         `json:"total"`
	TotalPages int         `json:"totalPages"`
}

// DeleteResult reports the outcome of a delete.
type DeleteResult struct {
	Mode      DeletionMode `json:"mode"`
	DeletedAt time.Time    `json:"deletedAt"`
	PurgeAt   *time.Time   `json:"purgeAt,omitempty"`
}
