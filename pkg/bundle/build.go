package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ledgerspine/spine/pkg/canonjson"
	"github.com/ledgerspine/spine/pkg/eventchain"
	"github.com/ledgerspine/spine/pkg/governance"
)

// payloadMaterial is the payload-only projection of an event written to
// events/payload_material.jsonl: everything needed to re-derive
// payloadHash, nothing that depends on chain position or signature.
type payloadMaterial struct {
	V        int              `json:"v"`
	ID       string           `json:"id"`
	StreamID string           `json:"streamId"`
	Type     string           `json:"type"`
	Actor    eventchain.Actor `json:"actor"`
	Payload  json.RawMessage  `json:"payload"`
	At       time.Time        `json:"at"`
}

func projectPayloadMaterial(ev eventchain.Event) payloadMaterial {
	return payloadMaterial{
		V: ev.V, ID: ev.ID, StreamID: ev.StreamID, Type: ev.Type,
		Actor: ev.Actor, Payload: ev.Payload, At: ev.At,
	}
}

func jsonLines[T any](rows []T, marshal func(T) (any, error)) ([]byte, error) {
	var buf bytes.Buffer
	for _, row := range rows {
		v, err := marshal(row)
		if err != nil {
			return nil, err
		}
		line, err := canonjson.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func eventsJSONL(events []eventchain.Event) ([]byte, error) {
	return jsonLines(events, func(ev eventchain.Event) (any, error) { return ev, nil })
}

func payloadMaterialJSONL(events []eventchain.Event) ([]byte, error) {
	return jsonLines(events, func(ev eventchain.Event) (any, error) { return projectPayloadMaterial(ev), nil })
}

// PayloadMaterialLine renders the canonical payload-material projection
// line for ev, with no trailing newline, so a verifier can compare it
// byte-for-byte against the corresponding line of
// events/payload_material.jsonl.
func PayloadMaterialLine(ev eventchain.Event) ([]byte, error) {
	return canonjson.Marshal(projectPayloadMaterial(ev))
}

func publicKeysFile(keys []PublicKeyRecord) ([]byte, error) {
	sorted := append([]PublicKeyRecord(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].KeyID < sorted[j].KeyID })
	canon, err := canonjson.Marshal(struct {
		Keys []PublicKeyRecord `json:"keys"`
	}{sorted})
	if err != nil {
		return nil, err
	}
	return append(canon, '\n'), nil
}

func snapshotFile(s Snapshot) ([]byte, error) {
	canon, err := canonjson.Marshal(s)
	if err != nil {
		return nil, err
	}
	return append(canon, '\n'), nil
}

// artifactHashable is the subset of an artifact record that participates
// in artifactHash: the record minus its own hash field.
type artifactHashable struct {
	ArtifactID string `json:"artifactId"`
	Kind       string `json:"kind"`
	Body       any    `json:"body"`
}

func buildArtifactRecord(a Artifact) (*ArtifactRecord, []byte, error) {
	hash, _, err := canonjson.MarshalHash(artifactHashable{a.ArtifactID, a.Kind, a.Body})
	if err != nil {
		return nil, nil, fmt.Errorf("bundle: hash artifact %q: %w", a.ArtifactID, err)
	}
	rec := &ArtifactRecord{ArtifactID: a.ArtifactID, Kind: a.Kind, Body: a.Body, ArtifactHash: hash}
	canon, err := canonjson.Marshal(rec)
	if err != nil {
		return nil, nil, fmt.Errorf("bundle: marshal artifact %q: %w", a.ArtifactID, err)
	}
	return rec, append(canon, '\n'), nil
}

func contractFile(doc ContractDoc) (hash string, fileBytes []byte, err error) {
	hash, canon, err := canonjson.MarshalHash(doc.Body)
	if err != nil {
		return "", nil, fmt.Errorf("bundle: hash contract doc: %w", err)
	}
	return hash, append(canon, '\n'), nil
}

func jsonFile(v any) ([]byte, error) {
	canon, err := canonjson.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(canon, '\n'), nil
}

// assembleContent lays out every manifest-indexed file for one bundle's
// own surface (not counting embedded sub-bundles, the manifest itself, or
// the attestation/report/timestamp-proof files, which bind to the
// manifest hash and so cannot be part of its own closure).
func assembleContent(p BuildParams, streamLabel string) (map[string][]byte, error) {
	files := make(map[string][]byte)

	evBytes, err := eventsJSONL(p.Events)
	if err != nil {
		return nil, fmt.Errorf("bundle: events.jsonl: %w", err)
	}
	files["events/events.jsonl"] = evBytes

	pmBytes, err := payloadMaterialJSONL(p.Events)
	if err != nil {
		return nil, fmt.Errorf("bundle: payload_material.jsonl: %w", err)
	}
	files["events/payload_material.jsonl"] = pmBytes

	pkBytes, err := publicKeysFile(p.PublicKeys)
	if err != nil {
		return nil, fmt.Errorf("bundle: public_keys.json: %w", err)
	}
	files["keys/public_keys.json"] = pkBytes

	snapBytes, err := snapshotFile(p.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("bundle: snapshot.json: %w", err)
	}
	files[fmt.Sprintf("%s/snapshot.json", streamLabel)] = snapBytes

	if len(p.GovernanceEvents) > 0 {
		govEvBytes, err := eventsJSONL(p.GovernanceEvents)
		if err != nil {
			return nil, fmt.Errorf("bundle: governance/events.jsonl: %w", err)
		}
		files["governance/events.jsonl"] = govEvBytes
		if p.GovernanceSnapshot != nil {
			gsBytes, err := snapshotFile(*p.GovernanceSnapshot)
			if err != nil {
				return nil, fmt.Errorf("bundle: governance/snapshot.json: %w", err)
			}
			files["governance/snapshot.json"] = gsBytes
		}
	}

	if p.GovernancePolicy != nil {
		b, err := jsonFile(p.GovernancePolicy)
		if err != nil {
			return nil, fmt.Errorf("bundle: governance/policy.json: %w", err)
		}
		files["governance/policy.json"] = b
	}

	if p.RevocationList != nil {
		b, err := jsonFile(p.RevocationList)
		if err != nil {
			return nil, fmt.Errorf("bundle: governance/revocations.json: %w", err)
		}
		files["governance/revocations.json"] = b
	}

	for _, a := range p.Artifacts {
		_, b, err := buildArtifactRecord(a)
		if err != nil {
			return nil, err
		}
		files[fmt.Sprintf("artifacts/%s.json", a.ArtifactID)] = b
	}

	hashes := make([]string, 0, len(p.ContractDocsByHash))
	for h := range p.ContractDocsByHash {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	for _, h := range hashes {
		doc := p.ContractDocsByHash[h]
		gotHash, b, err := contractFile(doc)
		if err != nil {
			return nil, err
		}
		if gotHash != h {
			return nil, fmt.Errorf("bundle: contract doc keyed %q hashes to %q", h, gotHash)
		}
		files[fmt.Sprintf("contracts/%s.json", h)] = b
	}

	return files, nil
}

// sealBundle takes the content file set plus a computed manifest and
// attaches the manifest.json file, the optional head attestation,
// verification report, and timestamp-authority proof. These three are
// deliberately excluded from the manifest's own files[] index (and so
// from manifestHash) because each binds forward to manifestHash itself;
// including them would make the hash self-referential. The verifier
// checks them via their own dedicated steps (attestation, report) rather
// than the generic per-file hash loop.
func sealBundle(p BuildParams, kind governance.BundleKind, manifest *Manifest, files map[string][]byte) (*BuildResult, error) {
	out := make(map[string][]byte, len(files)+4)
	for k, v := range files {
		out[k] = v
	}
	manifestBytes, err := jsonFile(manifest)
	if err != nil {
		return nil, fmt.Errorf("bundle: manifest.json: %w", err)
	}
	out["manifest.json"] = manifestBytes

	result := &BuildResult{Files: out, Manifest: manifest}

	if p.RequireHeadAttestation {
		att, err := SignHeadAttestation(manifest.ManifestHash, p.GeneratedAt, p.ManifestSigner.KeyPair)
		if err != nil {
			return nil, fmt.Errorf("bundle: sign head attestation: %w", err)
		}
		if p.GovernancePolicy != nil {
			if err := p.GovernancePolicy.AdmitHeadAttestationSigner(kind, p.ManifestSigner.signerContext()); err != nil {
				return nil, fmt.Errorf("bundle: head attestation signer: %w", err)
			}
		}
		attBytes, err := jsonFile(att)
		if err != nil {
			return nil, fmt.Errorf("bundle: attestation file: %w", err)
		}
		out["attestation/bundle_head_attestation.json"] = attBytes
		result.Attestation = att

		if p.VerificationReportSigner != nil {
			if p.GovernancePolicy != nil {
				if err := p.GovernancePolicy.AdmitVerificationReportSigner(kind, p.VerificationReportSigner.signerContext()); err != nil {
					return nil, fmt.Errorf("bundle: verification report signer: %w", err)
				}
			}
			report, err := SignVerificationReport(manifest.ManifestHash, att.AttestationHash, ToolInfo{Version: p.ToolVersion, Commit: p.ToolCommit}, nil, p.GeneratedAt, p.VerificationReportSigner.KeyPair)
			if err != nil {
				return nil, fmt.Errorf("bundle: sign verification report: %w", err)
			}
			repBytes, err := jsonFile(report)
			if err != nil {
				return nil, fmt.Errorf("bundle: report file: %w", err)
			}
			out["verify/verification_report.json"] = repBytes
			result.Report = report
		}

		if p.TimestampAuthoritySigner != nil {
			tp, err := governance.SignTimeProof(p.TimestampAuthorityAttests, p.TimestampAuthoritySigner)
			if err != nil {
				return nil, fmt.Errorf("bundle: sign timestamp proof: %w", err)
			}
			tpBytes, err := jsonFile(tp)
			if err != nil {
				return nil, fmt.Errorf("bundle: timestamp proof file: %w", err)
			}
			out["attestation/timestamp_proof.json"] = tpBytes
		}
	}

	return result, nil
}

// embedSubBundle copies a built sub-bundle's files into the outer file set
// under prefix and returns the binding block entry the outer manifest
// must record.
func embedSubBundle(outer map[string][]byte, prefix string, sub *BuildResult) EmbeddedBinding {
	for name, data := range sub.Files {
		outer[prefix+name] = data
	}
	return EmbeddedBinding{Prefix: prefix, Kind: sub.Manifest.Kind, ManifestHash: sub.Manifest.ManifestHash}
}
