// Package verify implements the offline bundle verifier (spec §4.6): file
// integrity, hash-chain re-derivation, snapshot consistency, governance
// policy admission, attestation and verification-report checks, artifact
// hash checks, and embedded sub-bundle binding, across three modes. Its
// overall shape — one method per step, a typed diagnostic accumulator,
// continue-on-error rather than stop-at-first-failure — matches spec
// §4.6's eight-step list and three verification modes.
package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ledgerspine/spine/pkg/bundle"
	"github.com/ledgerspine/spine/pkg/eventchain"
	"github.com/ledgerspine/spine/pkg/governance"
	"github.com/ledgerspine/spine/pkg/keys"
	"github.com/ledgerspine/spine/pkg/verifyreport"
)

// Closed error-code set, spec §7.
const (
	CodeMissingFile         = "MISSING_FILE"
	CodeUndeclaredFile      = "UNDECLARED_FILE"
	CodeFileHashMismatch    = "FILE_HASH_MISMATCH"
	CodeFileSizeMismatch    = "FILE_SIZE_MISMATCH"
	CodeManifestHashMismatch = "MANIFEST_HASH_MISMATCH"

	CodePayloadHashMismatch     = "PAYLOAD_HASH_MISMATCH"
	CodeChainHashMismatch       = "CHAIN_HASH_MISMATCH"
	CodePrevChainHashMismatch   = "PREV_CHAIN_HASH_MISMATCH"
	CodeSignatureInvalid        = "SIGNATURE_INVALID"
	CodeKeyUnknown              = "KEY_UNKNOWN"
	CodeKeyRevoked              = "KEY_REVOKED"
	CodePurposeMismatch         = "PURPOSE_MISMATCH"

	CodeAttestationHashMismatch            = "ATTESTATION_HASH_MISMATCH"
	CodeAttestationSignatureInvalid        = "ATTESTATION_SIGNATURE_INVALID"
	CodeAttestationManifestBindingMismatch = "ATTESTATION_MANIFEST_BINDING_MISMATCH"

	CodeReportSignatureInvalid = "REPORT_SIGNATURE_INVALID"
	CodeReportBindingMismatch = "REPORT_BINDING_MISMATCH"
	CodeReportSignerUnauthorized = "REPORT_SIGNER_UNAUTHORIZED"
	CodeReportMissing = "REPORT_MISSING"

	CodePolicySignatureInvalid  = "POLICY_SIGNATURE_INVALID"
	CodePolicyRootUntrusted     = "POLICY_ROOT_UNTRUSTED"
	CodePolicySignerUnauthorized = "POLICY_SIGNER_UNAUTHORIZED"

	CodeRevocationSignatureInvalid = "REVOCATION_SIGNATURE_INVALID"
	CodeRevokedWithoutTimeproof    = "REVOKED_WITHOUT_TIMEPROOF"

	CodeArtifactHashMismatch = "ARTIFACT_HASH_MISMATCH"
	CodeEmbeddedBindingMismatch = "EMBEDDED_BINDING_MISMATCH"

	CodeInputInvalid        = "INPUT_INVALID"
	CodeCancelled           = "CANCELLED"
	CodeToolVersionUnknown  = "TOOL_VERSION_UNKNOWN"
	CodeToolCommitUnknown   = "TOOL_COMMIT_UNKNOWN"
)

// TrustInputs are the read-only, per-call trust sets spec §5 requires:
// the core never holds these across calls.
type TrustInputs struct {
	GovernanceRoots keys.TrustedKeySet
	PricingSigners  keys.TrustedKeySet
	TimeAuthorities keys.TrustedKeySet
}

// resolveKeys returns the union of trust sets a bundle-internal signer
// (head attestation, verification report) may be drawn from: the
// bundle's own registered key table plus the externally trusted
// pricing-signer set.
func (t TrustInputs) resolveKeys(bundleKeys keys.TrustedKeySet) keys.TrustedKeySet {
	out := make(keys.TrustedKeySet, len(bundleKeys)+len(t.PricingSigners))
	for k, v := range bundleKeys {
		out[k] = v
	}
	for k, v := range t.PricingSigners {
		out[k] = v
	}
	return out
}

// Params is the input to Verify.
type Params struct {
	Files           map[string][]byte
	Kind            bundle.Kind
	Mode            verifyreport.Mode
	Trust           TrustInputs
	HashConcurrency int
	Tool            verifyreport.Tool
	Target          verifyreport.Target
}

// ErrCancelled names the cancelled condition for callers. Verify itself
// never returns it: a cancelled context is recorded in the report as a
// CANCELLED diagnostic carrying the context's own error text.
var ErrCancelled = errors.New("verify: cancelled")

// Verify runs the full offline verification procedure against an
// in-memory file tree (already extracted from a directory or zip) and
// returns a VerifyCliOutput.v1 report. It never returns a Go error for a
// recoverable verification failure; only a cancelled context short
// circuits early.
func Verify(ctx context.Context, p Params) *verifyreport.Output {
	out := verifyreport.New(p.Tool, p.Mode, p.Target)
	vctx := &vctx{out: out, trust: p.Trust, mode: p.Mode, hashConcurrency: p.HashConcurrency}
	if vctx.hashConcurrency < 1 {
		vctx.hashConcurrency = 1
	}
	vctx.verifyTree(ctx, p.Files, p.Kind, "")
	out.Finalize()
	return out
}

// vctx threads the report, trust inputs, and mode through the recursive
// per-bundle verification steps.
type vctx struct {
	out             *verifyreport.Output
	trust           TrustInputs
	mode            verifyreport.Mode
	hashConcurrency int
}

func (v *vctx) strict() bool {
	return v.mode == verifyreport.ModeStrict || v.mode == verifyreport.ModeFailOnWarnings
}

func diagPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + name
}

func (v *vctx) errf(prefix, code, name, format string, args ...any) {
	v.out.AddError(code, diagPath(prefix, name), fmt.Sprintf(format, args...))
}

func (v *vctx) warnf(prefix, code, name, format string, args ...any) {
	v.out.AddWarning(code, diagPath(prefix, name), fmt.Sprintf(format, args...))
}

// verifyTree verifies one bundle's own surface (files scoped to this
// bundle, with nested sub-bundle files still present under their prefix)
// and recurses into any embedded sub-bundles. prefix is the diagnostic
// path prefix for this bundle (empty at the top level).
func (v *vctx) verifyTree(ctx context.Context, files map[string][]byte, kind bundle.Kind, prefix string) (manifestHash string, attestationHash string) {
	if err := ctx.Err(); err != nil {
		v.errf(prefix, CodeCancelled, "", "verification cancelled: %v", err)
		return "", ""
	}

	manifestRaw, ok := files["manifest.json"]
	if !ok {
		v.errf(prefix, CodeMissingFile, "manifest.json", "manifest.json is missing")
		return "", ""
	}
	manifest, err := bundle.ParseManifest(manifestRaw)
	if err != nil {
		v.errf(prefix, CodeInputInvalid, "manifest.json", "%v", err)
		return "", ""
	}
	if err := bundle.VerifyManifestHash(manifest); err != nil {
		v.errf(prefix, CodeManifestHashMismatch, "manifest.json", "%v", err)
	}
	manifestHash = manifest.ManifestHash

	// Step 1: file integrity.
	v.verifyFileIntegrity(ctx, files, manifest, prefix)

	// Step 2/3: chain + snapshot.
	trustedEventKeys, keyInfo, revocations, timeProof := v.loadKeyMaterial(files, prefix)
	v.verifyChains(files, kind, trustedEventKeys, keyInfo, revocations, timeProof, prefix)
	v.verifySnapshot(files, kind, prefix)

	// Step 4: policy admission (strict only).
	var policy *governance.PolicyV2
	if raw, ok := files["governance/policy.json"]; ok {
		policy = v.loadPolicy(raw, prefix)
	}

	// Step 5: attestation.
	resolvedKeys := v.trust.resolveKeys(trustedEventKeys)
	var att *bundle.HeadAttestation
	if raw, ok := files["attestation/bundle_head_attestation.json"]; ok {
		att = v.verifyAttestation(raw, manifestHash, resolvedKeys, prefix)
		if att != nil {
			attestationHash = att.AttestationHash
			if policy != nil && v.strict() {
				v.checkPolicyAdmission(policy, kind, files, att.SignerKeyID, true, prefix)
				v.checkRevocationFor(revocations, timeProof, att.SignerKeyID, att.AttestedAt, "attestation/bundle_head_attestation.json", prefix)
			}
		}
	} else {
		v.errf(prefix, CodeMissingFile, "attestation/bundle_head_attestation.json", "head attestation is required")
	}

	// Step 6: verification report.
	if raw, ok := files["verify/verification_report.json"]; ok {
		report := v.verifyReport(raw, manifestHash, attestationHash, resolvedKeys, prefix)
		if report != nil && policy != nil && v.strict() {
			v.checkReportAdmission(policy, kind, report.SignerKeyID, prefix)
			v.checkRevocationFor(revocations, timeProof, report.SignerKeyID, report.SignedAt, "verify/verification_report.json", prefix)
		}
	} else if v.strict() {
		v.errf(prefix, CodeReportMissing, "verify/verification_report.json", "verification report is required in strict mode")
	} else {
		v.warnf(prefix, CodeReportMissing, "verify/verification_report.json", "no verification report present")
	}

	// Step 7: artifact hashes.
	v.verifyArtifacts(files, prefix)

	// Step 8: embedded sub-bundle binding.
	for _, b := range manifest.EmbeddedBindings {
		sub := subTree(files, b.Prefix)
		subManifestHash, _ := v.verifyTree(ctx, sub, b.Kind, diagPath(prefix, b.Prefix))
		if subManifestHash != "" && subManifestHash != b.ManifestHash {
			v.errf(prefix, CodeEmbeddedBindingMismatch, b.Prefix, "outer binding records %q, embedded manifest is %q", b.ManifestHash, subManifestHash)
		}
	}

	return manifestHash, attestationHash
}

func subTree(files map[string][]byte, prefix string) map[string][]byte {
	out := make(map[string][]byte)
	for name, data := range files {
		if strings.HasPrefix(name, prefix) {
			out[strings.TrimPrefix(name, prefix)] = data
		}
	}
	return out
}

var reservedTopLevelFiles = map[string]bool{
	"manifest.json":                              true,
	"attestation/bundle_head_attestation.json":   true,
	"verify/verification_report.json":            true,
	"attestation/timestamp_proof.json":           true,
}

func (v *vctx) verifyFileIntegrity(ctx context.Context, files map[string][]byte, manifest *bundle.Manifest, prefix string) {
	accounted := make(map[string]bool, len(manifest.Files))
	for _, f := range manifest.Files {
		accounted[f.Name] = true
	}
	// Files nested under an embedded sub-bundle prefix are accounted for
	// by that sub-bundle's own manifest.Files entries (they're listed by
	// their full prefixed name in this manifest), so no special-casing
	// is needed here beyond the reserved top-level names.

	type hashJob struct {
		name string
		want bundle.ManifestFile
	}
	jobs := make([]hashJob, len(manifest.Files))
	for i, f := range manifest.Files {
		jobs[i] = hashJob{f.Name, f}
	}

	results := make([]*verifyreport.Diagnostic, len(jobs))
	var wg sync.WaitGroup
	sem := make(chan struct{}, v.hashConcurrency)
	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, job hashJob) {
			defer wg.Done()
			defer func() { <-sem }()
			data, ok := files[job.name]
			if !ok {
				results[i] = &verifyreport.Diagnostic{Code: CodeMissingFile, Path: job.name, Message: "listed file is missing"}
				return
			}
			sum := sha256.Sum256(data)
			gotHash := hex.EncodeToString(sum[:])
			if gotHash != job.want.SHA256 {
				results[i] = &verifyreport.Diagnostic{Code: CodeFileHashMismatch, Path: job.name, Message: fmt.Sprintf("recomputed %q, manifest declares %q", gotHash, job.want.SHA256)}
				return
			}
			if int64(len(data)) != job.want.Bytes {
				results[i] = &verifyreport.Diagnostic{Code: CodeFileSizeMismatch, Path: job.name, Message: fmt.Sprintf("recomputed %d bytes, manifest declares %d", len(data), job.want.Bytes)}
			}
		}(i, job)
	}
	wg.Wait()
	for _, d := range results {
		if d != nil {
			v.errf(prefix, d.Code, d.Path, "%s", d.Message)
		}
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if accounted[name] || reservedTopLevelFiles[name] {
			continue
		}
		v.errf(prefix, CodeUndeclaredFile, name, "file present on disk but not listed in manifest.files[]")
	}
}

// keyInfoAdapter bridges the public-key records loaded from a bundle
// into eventchain.KeyInfoResolver, so chain verification can resolve a
// signer's purpose/serverGoverned without importing pkg/bundle.
type keyInfoAdapter struct {
	records map[string]bundle.PublicKeyRecord
}

func (k keyInfoAdapter) ResolveKeyInfo(keyID string) (purpose string, serverGoverned bool, found bool) {
	r, ok := k.records[keyID]
	if !ok {
		return "", false, false
	}
	return r.Purpose, r.ServerGoverned, true
}

func (v *vctx) loadKeyMaterial(files map[string][]byte, prefix string) (keys.TrustedKeySet, keyInfoAdapter, *governance.RevocationList, *governance.TimeProof) {
	trusted := make(keys.TrustedKeySet)
	records := make(map[string]bundle.PublicKeyRecord)
	if raw, ok := files["keys/public_keys.json"]; ok {
		recs, err := bundle.ParsePublicKeysFile(raw)
		if err != nil {
			v.errf(prefix, CodeInputInvalid, "keys/public_keys.json", "%v", err)
		} else {
			for _, r := range recs {
				pub, err := keys.ParsePublicKeyPEM(r.PublicKeyPem)
				if err != nil {
					v.errf(prefix, CodeInputInvalid, "keys/public_keys.json", "key %q: %v", r.KeyID, err)
					continue
				}
				trusted[r.KeyID] = pub
				records[r.KeyID] = r
			}
		}
	}
	// Governance events inside the stream may introduce additional keys:
	// by convention a KEY_ADDED/KEY_ROTATED event's payload is itself a
	// public-key record.
	if raw, ok := files["governance/events.jsonl"]; ok {
		events, _, err := bundle.ParseEventsJSONL(raw)
		if err == nil {
			for _, ev := range events {
				if ev.Type != "KEY_ADDED" && ev.Type != "KEY_ROTATED" {
					continue
				}
				var rec bundle.PublicKeyRecord
				if json.Unmarshal(ev.Payload, &rec) == nil && rec.PublicKeyPem != "" {
					if pub, err := keys.ParsePublicKeyPEM(rec.PublicKeyPem); err == nil {
						trusted[rec.KeyID] = pub
						records[rec.KeyID] = rec
					}
				}
			}
		}
	}
	var revocations *governance.RevocationList
	if raw, ok := files["governance/revocations.json"]; ok {
		var rl governance.RevocationList
		if err := json.Unmarshal(raw, &rl); err != nil {
			v.errf(prefix, CodeInputInvalid, "governance/revocations.json", "%v", err)
		} else if err := rl.Verify(v.trust.GovernanceRoots); err != nil {
			v.errf(prefix, CodeRevocationSignatureInvalid, "governance/revocations.json", "%v", err)
		} else {
			revocations = &rl
		}
	}
	var timeProof *governance.TimeProof
	if raw, ok := files["attestation/timestamp_proof.json"]; ok {
		var tp governance.TimeProof
		if err := json.Unmarshal(raw, &tp); err == nil {
			if err := tp.Verify(v.trust.TimeAuthorities); err == nil {
				timeProof = &tp
			}
		}
	}
	return trusted, keyInfoAdapter{records}, revocations, timeProof
}

func (v *vctx) verifyChains(files map[string][]byte, kind bundle.Kind, trusted keys.TrustedKeySet, keyInfo keyInfoAdapter, revocations *governance.RevocationList, timeProof *governance.TimeProof, prefix string) {
	v.verifyOneChain(files, "events/events.jsonl", "events/payload_material.jsonl", trusted, keyInfo, revocations, timeProof, prefix)
	if _, ok := files["governance/events.jsonl"]; ok {
		v.verifyOneChain(files, "governance/events.jsonl", "", trusted, keyInfo, revocations, timeProof, prefix)
	}
}

func (v *vctx) verifyOneChain(files map[string][]byte, eventsPath, materialPath string, trusted keys.TrustedKeySet, keyInfo keyInfoAdapter, revocations *governance.RevocationList, timeProof *governance.TimeProof, prefix string) {
	raw, ok := files[eventsPath]
	if !ok {
		v.errf(prefix, CodeMissingFile, eventsPath, "%s is required", eventsPath)
		return
	}
	events, lines, err := bundle.ParseEventsJSONL(raw)
	if err != nil {
		v.errf(prefix, CodeInputInvalid, eventsPath, "%v", err)
		return
	}

	if materialPath != "" {
		if matRaw, ok := files[materialPath]; ok {
			_, matLines, err := bundle.ParseEventsJSONL(matRaw) // reuse line splitting only
			if err != nil {
				v.errf(prefix, CodeInputInvalid, materialPath, "%v", err)
			} else if len(matLines) != len(lines) {
				v.errf(prefix, CodePayloadHashMismatch, materialPath, "projection has %d lines, events has %d", len(matLines), len(lines))
			} else {
				for i, ev := range events {
					want, err := bundle.PayloadMaterialLine(ev)
					if err != nil {
						continue
					}
					if string(want) != strings.TrimSpace(string(matLines[i])) {
						v.errf(prefix, CodePayloadHashMismatch, materialPath, "event %d: payload projection does not match events.jsonl", i)
					}
				}
			}
		} else {
			v.errf(prefix, CodeMissingFile, materialPath, "%s is required", materialPath)
		}
	}

	var checker eventchain.RevocationChecker = eventchain.NoRevocations
	if revocations != nil {
		checker = revocationAdapter{revocations, timeProof, v.trust.TimeAuthorities}
	}
	result := eventchain.VerifyChain(events, trusted, checker, keyInfo)
	for _, e := range result.Errors {
		v.errf(prefix, mapChainCode(e.Code), eventsPath, "event %d (%s): %s", e.Index, e.EventID, e.Message)
	}
	for _, e := range result.Warnings {
		v.warnf(prefix, mapChainCode(e.Code), eventsPath, "event %d (%s): %s", e.Index, e.EventID, e.Message)
	}
}

// revocationAdapter bridges governance.RevocationList's verified-lookup
// into eventchain.RevocationChecker.
type revocationAdapter struct {
	list            *governance.RevocationList
	timeProof       *governance.TimeProof
	timeAuthorities keys.TrustedKeySet
}

func (r revocationAdapter) IsRevoked(keyID string) (bool, bool) {
	return r.list.IsRevokedVerified(keyID, r.timeProof, r.timeAuthorities)
}

func mapChainCode(c eventchain.ChainErrorCode) string {
	switch c {
	case eventchain.ChainErrBrokenLink:
		return CodePrevChainHashMismatch
	case eventchain.ChainErrHashMismatch:
		return CodeChainHashMismatch
	case eventchain.ChainErrBadSignature:
		return CodeSignatureInvalid
	case eventchain.ChainErrUnknownSigner:
		return CodeKeyUnknown
	case eventchain.ChainErrRevokedSigner:
		return CodeKeyRevoked
	case eventchain.ChainErrPayloadMismatch:
		return CodePayloadHashMismatch
	case eventchain.ChainErrGovernancePolicy:
		return CodePurposeMismatch
	default:
		return CodeInputInvalid
	}
}

func (v *vctx) verifySnapshot(files map[string][]byte, kind bundle.Kind, prefix string) {
	path := bundle.StreamLabel(kind) + "/snapshot.json"
	snapRaw, ok := files[path]
	if !ok {
		v.errf(prefix, CodeMissingFile, path, "snapshot is required")
		return
	}
	snap, err := bundle.ParseSnapshot(snapRaw)
	if err != nil {
		v.errf(prefix, CodeInputInvalid, path, "%v", err)
		return
	}
	evRaw, ok := files["events/events.jsonl"]
	if !ok {
		return
	}
	events, _, err := bundle.ParseEventsJSONL(evRaw)
	if err != nil || len(events) == 0 {
		if snap.LastChainHash != "" || snap.LastEventID != "" {
			v.errf(prefix, CodeInputInvalid, path, "snapshot refers to an event but the stream is empty")
		}
		return
	}
	last := events[len(events)-1]
	if snap.LastChainHash != last.ChainHash {
		v.errf(prefix, CodeInputInvalid, path, "snapshot.lastChainHash %q does not match chain head %q", snap.LastChainHash, last.ChainHash)
	}
	if snap.LastEventID != last.ID {
		v.errf(prefix, CodeInputInvalid, path, "snapshot.lastEventId %q does not match chain head %q", snap.LastEventID, last.ID)
	}
}

func (v *vctx) loadPolicy(raw []byte, prefix string) *governance.PolicyV2 {
	var p governance.PolicyV2
	if err := json.Unmarshal(raw, &p); err != nil {
		v.errf(prefix, CodeInputInvalid, "governance/policy.json", "%v", err)
		return nil
	}
	if err := p.Verify(v.trust.GovernanceRoots); err != nil {
		if _, found := v.trust.GovernanceRoots.Lookup(p.GovernanceRootKeyID); !found {
			v.errf(prefix, CodePolicyRootUntrusted, "governance/policy.json", "%v", err)
		} else {
			v.errf(prefix, CodePolicySignatureInvalid, "governance/policy.json", "%v", err)
		}
		return nil
	}
	return &p
}

func (v *vctx) checkPolicyAdmission(p *governance.PolicyV2, kind bundle.Kind, files map[string][]byte, signerKeyID string, isAttestation bool, prefix string) {
	ctx := v.signerContext(files, signerKeyID)
	gk := bundle.GovernanceBundleKind(kind)
	var err error
	if isAttestation {
		err = p.AdmitHeadAttestationSigner(gk, ctx)
	} else {
		err = p.AdmitVerificationReportSigner(gk, ctx)
	}
	if err != nil {
		v.errf(prefix, CodePolicySignerUnauthorized, "attestation/bundle_head_attestation.json", "%v", err)
	}
}

func (v *vctx) checkReportAdmission(p *governance.PolicyV2, kind bundle.Kind, signerKeyID string, prefix string) {
	ctx := v.signerContext(nil, signerKeyID)
	if err := p.AdmitVerificationReportSigner(bundle.GovernanceBundleKind(kind), ctx); err != nil {
		v.errf(prefix, CodeReportSignerUnauthorized, "verify/verification_report.json", "%v", err)
	}
}

func (v *vctx) signerContext(files map[string][]byte, keyID string) governance.SignerContext {
	ctx := governance.SignerContext{KeyID: keyID}
	if files == nil {
		return ctx
	}
	if raw, ok := files["keys/public_keys.json"]; ok {
		records, err := bundle.ParsePublicKeysFile(raw)
		if err == nil {
			for _, r := range records {
				if r.KeyID == keyID {
					ctx.Scope = r.TenantID
					ctx.Purpose = r.Purpose
					ctx.Governed = r.ServerGoverned
					break
				}
			}
		}
	}
	return ctx
}

func (v *vctx) checkRevocationFor(revocations *governance.RevocationList, timeProof *governance.TimeProof, keyID string, at time.Time, path, prefix string) {
	if revocations == nil {
		return
	}
	revoked, hasTimeProof := revocations.IsRevokedVerified(keyID, timeProof, v.trust.TimeAuthorities)
	if !revoked {
		return
	}
	if hasTimeProof {
		for _, e := range revocations.Entries {
			if e.KeyID == keyID && timeProof.Timestamp.Before(e.RevokedAt) {
				return
			}
		}
	}
	v.errf(prefix, CodeRevokedWithoutTimeproof, path, "signer %q is revoked and no valid time-authority proof places this event before revocation", keyID)
}

func (v *vctx) verifyAttestation(raw []byte, manifestHash string, trusted keys.TrustedKeySet, prefix string) *bundle.HeadAttestation {
	att, err := bundle.ParseHeadAttestation(raw)
	if err != nil {
		v.errf(prefix, CodeInputInvalid, "attestation/bundle_head_attestation.json", "%v", err)
		return nil
	}
	if err := bundle.VerifyHeadAttestation(att, manifestHash, trusted); err != nil {
		v.errf(prefix, attestationCode(err), "attestation/bundle_head_attestation.json", "%v", err)
		return nil
	}
	return att
}

func attestationCode(err error) string {
	switch {
	case errors.Is(err, bundle.ErrHashMismatch):
		return CodeAttestationHashMismatch
	case errors.Is(err, bundle.ErrBindingMismatch):
		return CodeAttestationManifestBindingMismatch
	default:
		return CodeAttestationSignatureInvalid
	}
}

func (v *vctx) verifyReport(raw []byte, manifestHash, attestationHash string, trusted keys.TrustedKeySet, prefix string) *bundle.VerificationReport {
	report, err := bundle.ParseVerificationReport(raw)
	if err != nil {
		v.errf(prefix, CodeInputInvalid, "verify/verification_report.json", "%v", err)
		return nil
	}
	if err := bundle.VerifyVerificationReport(report, manifestHash, attestationHash, trusted); err != nil {
		v.errf(prefix, reportCode(err), "verify/verification_report.json", "%v", err)
		return nil
	}
	if report.Tool.Version == "" {
		v.warnf(prefix, CodeToolVersionUnknown, "verify/verification_report.json", "report does not declare a tool version")
	}
	if report.Tool.Commit == "" {
		v.warnf(prefix, CodeToolCommitUnknown, "verify/verification_report.json", "report does not declare a tool commit")
	}
	return report
}

func reportCode(err error) string {
	switch {
	case errors.Is(err, bundle.ErrHashMismatch):
		return CodeReportSignatureInvalid
	case errors.Is(err, bundle.ErrBindingMismatch):
		return CodeReportBindingMismatch
	default:
		return CodeReportSignatureInvalid
	}
}

func (v *vctx) verifyArtifacts(files map[string][]byte, prefix string) {
	names := make([]string, 0)
	for name := range files {
		if strings.HasPrefix(name, "artifacts/") && strings.HasSuffix(name, ".json") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		rec, err := bundle.ParseArtifactRecord(files[name])
		if err != nil {
			v.errf(prefix, CodeInputInvalid, name, "%v", err)
			continue
		}
		if err := bundle.VerifyArtifactHash(rec); err != nil {
			v.errf(prefix, CodeArtifactHashMismatch, name, "%v", err)
		}
	}
}
