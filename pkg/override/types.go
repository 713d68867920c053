package override

import (
	"context"
	"time"

	"provost-hq/provost/pkg/ledger"
)

// Status is the lifecycle state of an override request. All states
// except PENDING are terminal.
type Status string

const (
	// StatusPending accepts signatures.
	StatusPending Status = "PENDING"

	// StatusApproved means quorum was reached before expiry.
	StatusApproved Status = "APPROVED"

	// StatusRejected means an authorized actor vetoed the request.
	StatusRejected Status = "REJECTED"

	// StatusExpired means the TTL elapsed before quorum.
	StatusExpired Status = "EXPIRED"
)

// Category classifies why a bypass was requested.
type Category string

const (
	CategoryEmergencyHotfix   Category = "EMERGENCY_HOTFIX"
	CategoryFalsePositive     Category = "FALSE_POSITIVE"
	CategoryLegacyCode        Category = "LEGACY_CODE"
	CategoryBusinessException Category = "BUSINESS_EXCEPTION"
)

// Valid reports whether the category is a known variant.
func (c Category) Valid() bool {
	switch c {
	case CategoryEmergencyHotfix, CategoryFalsePositive, CategoryLegacyCode, CategoryBusinessException:
		return true
	}
	return false
}

// Override is one bypass request against a policy version for a
// subject.
type Override struct {
	// ID is the override identifier (UUID v4).
	ID string `json:"id"`

	// Subject is the governed external subject.
	Subject ledger.SubjectRef `json:"subject"`

	// PolicyVersionID is the policy version being bypassed.
	PolicyVersionID string `json:"policy_version_id"`

	// Category classifies the bypass.
	Category Category `json:"category"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// TTLHours bounds how long the request may stay PENDING.
	TTLHours int `json:"ttl_hours"`

	// CreatedAt is when the request was made.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is CreatedAt plus the TTL.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the override's TTL has elapsed at the given
// time.
func (o *Override) Expired(at time.Time) bool {
	return at.After(o.ExpiresAt)
}

// Signature is one actor's endorsement of an override. The role is
// snapshotted at signing time so later role changes do not rewrite
// history, and the commit SHA confines the endorsement to the exact
// code state reviewed.
type Signature struct {
	// ID is the signature identifier (UUID v4).
	ID string `json:"id"`

	// OverrideID references the signed override.
	OverrideID string `json:"override_id"`

	// ActorID identifies the signer. One signature per actor per
	// override.
	ActorID string `json:"actor_id"`

	// RoleAtSigning is the signer's role snapshotted at signing time.
	RoleAtSigning string `json:"role_at_signing"`

	// Justification is the mandatory free-text reason, 10-5000 chars.
	Justification string `json:"justification"`

	// CommitSHA is the commit the signer reviewed.
	CommitSHA string `json:"commit_sha"`

	// SignedAt is when the signature was recorded.
	SignedAt time.Time `json:"signed_at"`
}

// Revocation withdraws an approved override without touching its
// status; enforcement consults revocations as an additional gate.
type Revocation struct {
	// ID is the revocation identifier (UUID v4).
	ID string `json:"id"`

	// OverrideID references the revoked override.
	OverrideID string `json:"override_id"`

	// ActorID identifies who revoked.
	ActorID string `json:"actor_id"`

	// Reason is the free-text revocation reason.
	Reason string `json:"reason"`

	// RevokedAt is when the revocation was recorded.
	RevokedAt time.Time `json:"revoked_at"`
}

// Store is the persistence interface for overrides. AddSignature owns
// the atomicity of the deciding signature: the signature insert and the
// PENDING→APPROVED flip commit together or not at all.
type Store interface {
	// PutOverride inserts a new override.
	PutOverride(ctx context.Context, o *Override) error

	// GetOverride returns an override by id.
	GetOverride(ctx context.Context, id string) (*Override, error)

	// OverridesBySubject returns all overrides for a subject, newest
	// first.
	OverridesBySubject(ctx context.Context, subject ledger.SubjectRef) ([]*Override, error)

	// AddSignature inserts a signature and runs the quorum predicate
	// over all signatures including the new one, flipping the override
	// to APPROVED in the same transaction when the predicate holds. It
	// returns whether the override was approved by this signature.
	// Fails with DuplicateSignatureError when the actor already signed
	// and with InvalidStateError when the override is not PENDING.
	AddSignature(ctx context.Context, sig *Signature, quorum func([]*Signature) (bool, error)) (bool, error)

	// SignaturesFor returns an override's signatures in signing order.
	SignaturesFor(ctx context.Context, overrideID string) ([]*Signature, error)

	// TransitionStatus moves an override from one status to another as
	// a compare-and-swap, reporting whether the transition happened.
	TransitionStatus(ctx context.Context, id string, from, to Status) (bool, error)

	// ExpirePending transitions every PENDING override past its TTL to
	// EXPIRED and returns how many rows changed.
	ExpirePending(ctx context.Context, now time.Time) (int, error)

	// PutRevocation inserts a revocation row.
	PutRevocation(ctx context.Context, r *Revocation) error

	// RevocationFor returns the revocation for an override, or a
	// NotFoundError when none exists.
	RevocationFor(ctx context.Context, overrideID string) (*Revocation, error)
}
