package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ledgerspine/spine/pkg/canonjson"
	"github.com/ledgerspine/spine/pkg/eventchain"
)

// ParseManifest decodes manifest.json.
func ParseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("bundle: parse manifest.json: %w", err)
	}
	return &m, nil
}

// ParseHeadAttestation decodes attestation/bundle_head_attestation.json.
func ParseHeadAttestation(raw []byte) (*HeadAttestation, error) {
	var a HeadAttestation
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("bundle: parse head attestation: %w", err)
	}
	return &a, nil
}

// ParseVerificationReport decodes verify/verification_report.json.
func ParseVerificationReport(raw []byte) (*VerificationReport, error) {
	var r VerificationReport
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("bundle: parse verification report: %w", err)
	}
	return &r, nil
}

// ParsePublicKeysFile decodes keys/public_keys.json.
func ParsePublicKeysFile(raw []byte) ([]PublicKeyRecord, error) {
	var doc struct {
		Keys []PublicKeyRecord `json:"keys"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("bundle: parse public_keys.json: %w", err)
	}
	return doc.Keys, nil
}

// ParseSnapshot decodes a snapshot.json file.
func ParseSnapshot(raw []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("bundle: parse snapshot.json: %w", err)
	}
	return &s, nil
}

// ParseArtifactRecord decodes an artifacts/<id>.json file.
func ParseArtifactRecord(raw []byte) (*ArtifactRecord, error) {
	var a ArtifactRecord
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("bundle: parse artifact record: %w", err)
	}
	return &a, nil
}

// VerifyArtifactHash recomputes an artifact record's hash and compares it
// to the stored one.
func VerifyArtifactHash(a *ArtifactRecord) error {
	hash, _, err := canonjson.MarshalHash(artifactHashable{a.ArtifactID, a.Kind, a.Body})
	if err != nil {
		return fmt.Errorf("bundle: hash artifact %q: %w", a.ArtifactID, err)
	}
	if hash != a.ArtifactHash {
		return fmt.Errorf("%w: artifact %q: recomputed %q, stored %q", ErrHashMismatch, a.ArtifactID, hash, a.ArtifactHash)
	}
	return nil
}

// ParseEventsJSONL splits a JSONL file of events into individual Event
// values, returning each line's raw bytes alongside the parsed value so
// callers can do their own byte-level comparisons (e.g. against
// payload_material.jsonl) without re-marshaling.
func ParseEventsJSONL(raw []byte) ([]eventchain.Event, [][]byte, error) {
	lines := splitLines(raw)
	events := make([]eventchain.Event, 0, len(lines))
	for i, line := range lines {
		var ev eventchain.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, nil, fmt.Errorf("bundle: parse events.jsonl line %d: %w", i, err)
		}
		events = append(events, ev)
	}
	return events, lines, nil
}

func splitLines(raw []byte) [][]byte {
	trimmed := bytes.TrimRight(raw, "\n")
	if len(trimmed) == 0 {
		return nil
	}
	return bytes.Split(trimmed, []byte("\n"))
}
