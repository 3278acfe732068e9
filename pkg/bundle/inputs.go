package bundle

import (
	"time"

	"github.com/ledgerspine/spine/pkg/eventchain"
	"github.com/ledgerspine/spine/pkg/governance"
	"github.com/ledgerspine/spine/pkg/keys"
)

// Snapshot caches a stream's head for fast consistency checks, mirroring
// the event chain's last link without replaying the whole log.
type Snapshot struct {
	StreamID      string `json:"streamId"`
	LastChainHash string `json:"lastChainHash"`
	LastEventID   string `json:"lastEventId"`
}

// SnapshotFromChain derives a snapshot from the tail of an event slice. An
// empty slice produces a snapshot with an empty chain hash, matching a
// genesis-only stream's prevChainHash convention.
func SnapshotFromChain(streamID string, events []eventchain.Event) Snapshot {
	s := Snapshot{StreamID: streamID}
	if len(events) > 0 {
		last := events[len(events)-1]
		s.LastChainHash = last.ChainHash
		s.LastEventID = last.ID
	}
	return s
}

// PublicKeyRecord is one entry of keys/public_keys.json: the key material
// and governance metadata a verifier needs to resolve a signer and decide
// whether it is bound by the hard server-governance revocation gate.
type PublicKeyRecord struct {
	TenantID       string     `json:"tenantId"`
	KeyID          string     `json:"keyId"`
	PublicKeyPem   string     `json:"publicKeyPem"`
	Purpose        string     `json:"purpose"`
	ServerGoverned bool       `json:"serverGoverned,omitempty"`
	ValidFrom      *time.Time `json:"validFrom,omitempty"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty"`
}

// Artifact is a single opaque, canonical-JSON business artifact embedded
// in a bundle under artifacts/<artifactId>.json. The builder computes the
// record's artifactHash over artifactId, kind, and body, with the
// artifactHash field itself excluded,
// the same "hash everything but your own hash field" discipline every
// other signed structure in this module follows.
type Artifact struct {
	ArtifactID string `json:"artifactId"`
	Kind       string `json:"kind"`
	Body       any    `json:"body"`
}

// ArtifactRecord is the on-disk, hashed form of an Artifact.
type ArtifactRecord struct {
	ArtifactID   string `json:"artifactId"`
	Kind         string `json:"kind"`
	Body         any    `json:"body"`
	ArtifactHash string `json:"artifactHash"`
}

// ContractDoc is a contract document embedded under
// contracts/<hash>.json, keyed by the content hash of Body.
type ContractDoc struct {
	Body any `json:"body"`
}

// ManifestSigner pairs a keypair with the context (scope, purpose,
// governed flag) a governance policy needs to decide whether it is
// authorized to sign a given bundle surface.
type ManifestSigner struct {
	KeyPair  *keys.KeyPair
	Scope    string
	Purpose  string
	Governed bool
}

func (s ManifestSigner) signerContext() governance.SignerContext {
	return governance.SignerContext{KeyID: s.KeyPair.KeyID, Scope: s.Scope, Governed: s.Governed, Purpose: s.Purpose}
}

// BuildParams is the common input set every per-kind builder consumes,
// enumerated from spec §6's buildXBundleV1(params) operation list.
type BuildParams struct {
	TenantID string
	Scope    string

	Events   []eventchain.Event
	Snapshot Snapshot

	GovernanceEvents   []eventchain.Event
	GovernanceSnapshot *Snapshot

	Artifacts          []Artifact
	ContractDocsByHash map[string]ContractDoc

	PublicKeys []PublicKeyRecord

	ManifestSigner            ManifestSigner
	VerificationReportSigner  *ManifestSigner
	GovernancePolicy          *governance.PolicyV2
	RevocationList            *governance.RevocationList
	TimestampAuthoritySigner  *keys.KeyPair
	TimestampAuthorityAttests time.Time

	ToolVersion string
	ToolCommit  string

	RequireHeadAttestation bool
	GeneratedAt            time.Time
}

// BuildResult is what every builder function returns: the full file set
// ready to be laid out on disk or zipped, plus the structured manifest,
// attestation, and (if requested) report for callers that want to inspect
// them without re-parsing the files map.
type BuildResult struct {
	Files       map[string][]byte
	Manifest    *Manifest
	Attestation *HeadAttestation
	Report      *VerificationReport
}
