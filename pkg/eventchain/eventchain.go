// Package eventchain implements the hash-chained, signed append-only
// event log: each event commits to the hash of the event before it, and
// carries a detached Ed25519 signature over that chain hash. Verifying
// the chain re-derives every chain hash and signature rather than trusting
// whatever the log claims, the same fail-closed discipline this module's
// other proof-verification code uses throughout.
package eventchain

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ledgerspine/spine/pkg/canonjson"
	"github.com/ledgerspine/spine/pkg/keys"
)

// ActorType classifies who produced an event. Server and ops actors are
// held to a stricter signing policy than user/system actors: revocation
// is a hard gate for governed server actors and informational-only for
// everyone else.
type ActorType string

const (
	ActorServer ActorType = "server"
	ActorOps    ActorType = "ops"
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
)

// Actor identifies who is appending an event. It carries no key or
// governance metadata of its own: those are properties of the signing
// key named in Event.SignerKeyID, resolved through a KeyInfoResolver.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id"`
}

// requiresGovernance reports whether this actor type falls under the
// hard server-governance + revocation gate.
func (t ActorType) requiresGovernance() bool {
	return t == ActorServer || t == ActorOps
}

// Event is one entry in a hash-chained log.
type Event struct {
	V             int             `json:"v"`
	ID            string          `json:"id"`
	StreamID      string          `json:"streamId"`
	Type          string          `json:"type"`
	Actor         Actor           `json:"actor"`
	Payload       json.RawMessage `json:"payload"`
	PayloadHash   string          `json:"payloadHash"`
	At            time.Time       `json:"at"`
	PrevChainHash string          `json:"prevChainHash"`
	ChainHash     string          `json:"chainHash"`
	SignerKeyID   string          `json:"signerKeyId"`
	Signature     string          `json:"signature"`
}

// EventSchemaVersion is the envelope version carried in Event.V.
const EventSchemaVersion = 1

// envelope is the subset of Event fields that participate in the chain
// hash. SignerKeyID, ChainHash, and Signature are excluded: the first two
// are resolved/produced alongside the hash rather than part of what it
// commits to, and including ChainHash or Signature would make the hash
// self-referential.
type envelope struct {
	V             int             `json:"v"`
	ID            string          `json:"id"`
	StreamID      string          `json:"streamId"`
	Type          string          `json:"type"`
	Actor         Actor           `json:"actor"`
	PayloadHash   string          `json:"payloadHash"`
	At            time.Time       `json:"at"`
	PrevChainHash string          `json:"prevChainHash"`
}

func (e *Event) envelope() envelope {
	return envelope{
		V:             e.V,
		ID:            e.ID,
		StreamID:      e.StreamID,
		Type:          e.Type,
		Actor:         e.Actor,
		PayloadHash:   e.PayloadHash,
		At:            e.At.UTC(),
		PrevChainHash: e.PrevChainHash,
	}
}

// GenesisChainHash is the PrevChainHash of the first event in a stream.
const GenesisChainHash = ""

// RevocationChecker reports whether a key has been revoked, and whether
// that revocation carries a time-authority timestamp proof. VerifyChain
// fails a governed actor signed with a revoked key whether or not a time
// proof is present, and only warns for other actors; hasTimeProof changes
// nothing but the warning text.
type RevocationChecker interface {
	IsRevoked(keyID string) (revoked bool, hasTimeProof bool)
}

// noRevocations treats every key as unrevoked; used when the caller has
// no revocation list to consult (e.g. building, not verifying).
type noRevocations struct{}

func (noRevocations) IsRevoked(string) (bool, bool) { return false, false }

// NoRevocations is a RevocationChecker that never reports a revocation.
var NoRevocations RevocationChecker = noRevocations{}

// KeyInfoResolver resolves a signing key's governance metadata by keyId.
// Event no longer carries purpose/serverGoverned on its actor: both are
// properties of the resolved signing key, looked up the same way a
// verifier resolves a signer's trust.
type KeyInfoResolver interface {
	ResolveKeyInfo(keyID string) (purpose string, serverGoverned bool, found bool)
}

// SignerKey is the signer-side counterpart of KeyInfoResolver: the key a
// caller is about to sign with, along with its own purpose/serverGoverned
// attributes, supplied once at event-creation time.
type SignerKey struct {
	KeyID          string
	PrivateKey     ed25519.PrivateKey
	Purpose        string
	ServerGoverned bool
}

// CreateEvent builds, hashes, and signs a new event extending the chain
// whose current head is prevChainHash. The payload is canonicalized and
// hashed before being embedded; payload must be a value canonjson.Marshal
// can encode.
func CreateEvent(eventID, streamID string, eventType string, actor Actor, payload any, occurredAt time.Time, prevChainHash string, signer SignerKey) (*Event, error) {
	if err := validateActorPolicy(actor.Type, signer.Purpose, signer.ServerGoverned); err != nil {
		return nil, err
	}
	payloadHash, canonicalPayload, err := canonjson.MarshalHash(payload)
	if err != nil {
		return nil, fmt.Errorf("eventchain: hash payload: %w", err)
	}
	ev := &Event{
		V:             EventSchemaVersion,
		ID:            eventID,
		StreamID:      streamID,
		Type:          eventType,
		Actor:         actor,
		Payload:       json.RawMessage(canonicalPayload),
		PayloadHash:   payloadHash,
		At:            occurredAt,
		PrevChainHash: prevChainHash,
		SignerKeyID:   signer.KeyID,
	}
	chainHash, _, err := canonjson.MarshalHash(ev.envelope())
	if err != nil {
		return nil, fmt.Errorf("eventchain: hash envelope: %w", err)
	}
	ev.ChainHash = chainHash
	sig, err := keys.SignDigest(signer.PrivateKey, chainHash)
	if err != nil {
		return nil, fmt.Errorf("eventchain: sign event: %w", err)
	}
	ev.Signature = sig
	return ev, nil
}

func validateActorPolicy(actorType ActorType, purpose string, serverGoverned bool) error {
	if actorType.requiresGovernance() {
		if purpose != "server" {
			return fmt.Errorf("eventchain: actor type %q requires purpose \"server\", got %q", actorType, purpose)
		}
		if !serverGoverned {
			return fmt.Errorf("eventchain: actor type %q requires serverGoverned=true", actorType)
		}
	}
	return nil
}

// ChainErrorCode enumerates the closed set of chain-verification failure
// reasons.
type ChainErrorCode string

const (
	ChainErrBrokenLink       ChainErrorCode = "CHAIN_BROKEN_LINK"
	ChainErrHashMismatch     ChainErrorCode = "CHAIN_HASH_MISMATCH"
	ChainErrBadSignature     ChainErrorCode = "CHAIN_BAD_SIGNATURE"
	ChainErrUnknownSigner    ChainErrorCode = "CHAIN_UNKNOWN_SIGNER"
	ChainErrRevokedSigner    ChainErrorCode = "CHAIN_REVOKED_SIGNER"
	ChainErrPayloadMismatch  ChainErrorCode = "CHAIN_PAYLOAD_HASH_MISMATCH"
	ChainErrGovernancePolicy ChainErrorCode = "CHAIN_GOVERNANCE_POLICY_VIOLATION"
)

// ChainError reports a single verification failure, tagged with an event
// index and a closed error code.
type ChainError struct {
	Index   int
	EventID string
	Code    ChainErrorCode
	Message string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("eventchain: event %d (%s): %s: %s", e.Index, e.EventID, e.Code, e.Message)
}

// VerifyResult is the outcome of verifying a whole chain.
type VerifyResult struct {
	Valid    bool
	Errors   []*ChainError
	Warnings []*ChainError // revocation-without-timeproof on non-governed actors, etc.
}

// VerifyChain re-derives every chain hash and signature in order,
// checking link continuity, signer trust, and the governance/revocation
// policy asymmetry between governed (server/ops) and ungoverned actor
// types. Ordering is established purely through prevChainHash linkage;
// there is no separate sequence counter to check. It never stops at the
// first error: callers get the complete set of problems, matching the
// fail-closed-but-complete shape this module's other multi-step
// verifiers use.
func VerifyChain(events []Event, trusted keys.TrustedKeySet, revocations RevocationChecker, keyInfo KeyInfoResolver) *VerifyResult {
	if revocations == nil {
		revocations = NoRevocations
	}
	result := &VerifyResult{Valid: true}
	prevChainHash := GenesisChainHash
	for i, ev := range events {
		fail := func(code ChainErrorCode, format string, args ...any) {
			result.Valid = false
			result.Errors = append(result.Errors, &ChainError{
				Index: i, EventID: ev.ID, Code: code,
				Message: fmt.Sprintf(format, args...),
			})
		}
		warn := func(code ChainErrorCode, format string, args ...any) {
			result.Warnings = append(result.Warnings, &ChainError{
				Index: i, EventID: ev.ID, Code: code,
				Message: fmt.Sprintf(format, args...),
			})
		}

		if ev.PrevChainHash != prevChainHash {
			fail(ChainErrBrokenLink, "expected prevChainHash %q, got %q", prevChainHash, ev.PrevChainHash)
		}

		wantChainHash, _, err := canonjson.MarshalHash(ev.envelope())
		if err != nil {
			fail(ChainErrHashMismatch, "failed to recompute chain hash: %v", err)
		} else if wantChainHash != ev.ChainHash {
			fail(ChainErrHashMismatch, "recomputed chain hash %q does not match stored %q", wantChainHash, ev.ChainHash)
		}

		wantPayloadHash := canonjson.HashHex(canonicalOrEmpty(ev.Payload))
		if len(ev.Payload) > 0 && wantPayloadHash != ev.PayloadHash {
			fail(ChainErrPayloadMismatch, "recomputed payload hash %q does not match stored %q", wantPayloadHash, ev.PayloadHash)
		}

		pub, known := trusted.Lookup(ev.SignerKeyID)
		if !known {
			fail(ChainErrUnknownSigner, "signer key %q is not in the trusted key set", ev.SignerKeyID)
		} else if !keys.VerifyDigest(pub, ev.ChainHash, ev.Signature) {
			fail(ChainErrBadSignature, "signature over chain hash does not verify for key %q", ev.SignerKeyID)
		}

		purpose, serverGoverned, foundKeyInfo := "", false, true
		if keyInfo != nil {
			purpose, serverGoverned, foundKeyInfo = keyInfo.ResolveKeyInfo(ev.SignerKeyID)
		}
		if !foundKeyInfo {
			fail(ChainErrGovernancePolicy, "no key record found to resolve purpose/serverGoverned for signer %q", ev.SignerKeyID)
		} else if err := validateActorPolicy(ev.Actor.Type, purpose, serverGoverned); err != nil {
			fail(ChainErrGovernancePolicy, "%v", err)
		}

		revoked, hasTimeProof := revocations.IsRevoked(ev.SignerKeyID)
		if revoked {
			if ev.Actor.Type.requiresGovernance() {
				fail(ChainErrRevokedSigner, "governed actor signed with revoked key %q", ev.SignerKeyID)
			} else if !hasTimeProof {
				warn(ChainErrRevokedSigner, "ungoverned actor signed with a key revoked without a time-authority proof (informational)")
			} else {
				warn(ChainErrRevokedSigner, "ungoverned actor signed with a revoked key (informational)")
			}
		}

		prevChainHash = ev.ChainHash
	}
	return result
}

func canonicalOrEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	canon, err := canonjson.CanonicalizeJSON(raw)
	if err != nil {
		return raw
	}
	return canon
}
