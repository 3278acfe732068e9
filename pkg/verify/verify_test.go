package verify

import (
	"context"
	"testing"
	"time"

	"github.com/ledgerspine/spine/pkg/bundle"
	"github.com/ledgerspine/spine/pkg/eventchain"
	"github.com/ledgerspine/spine/pkg/keys"
	"github.com/ledgerspine/spine/pkg/verifyreport"
)

func buildTestJobBundle(t *testing.T) (*bundle.BuildResult, *keys.KeyPair) {
	t.Helper()
	signer, err := keys.Generate()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	actor := eventchain.Actor{Type: eventchain.ActorServer, ID: "server-1"}
	signerKey := eventchain.SignerKey{KeyID: signer.KeyID, PrivateKey: signer.PrivateKey, Purpose: "server", ServerGoverned: true}
	ev, err := eventchain.CreateEvent("evt-1", "job-1", "JOB_CREATED", actor, map[string]string{"k": "v"}, now, eventchain.GenesisChainHash, signerKey)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	events := []eventchain.Event{*ev}

	pubPem, err := keys.EncodePublicKeyPEM(signer.PublicKey)
	if err != nil {
		t.Fatalf("EncodePublicKeyPEM: %v", err)
	}
	params := bundle.BuildParams{
		TenantID: "tenant-1",
		Scope:    "job-1",
		Events:   events,
		Snapshot: bundle.SnapshotFromChain("job-1", events),
		PublicKeys: []bundle.PublicKeyRecord{
			{TenantID: "tenant-1", KeyID: signer.KeyID, PublicKeyPem: pubPem, Purpose: "server", ServerGoverned: true},
		},
		ManifestSigner:         bundle.ManifestSigner{KeyPair: signer, Purpose: "server", Governed: true},
		RequireHeadAttestation: true,
		ToolVersion:            "1.0.0",
		ToolCommit:             "abc123",
		GeneratedAt:            now,
	}
	result, err := bundle.BuildJobProofBundleV1(params)
	if err != nil {
		t.Fatalf("build job bundle: %v", err)
	}
	return result, signer
}

func TestVerify_NonStrictOK(t *testing.T) {
	result, signer := buildTestJobBundle(t)
	trust := TrustInputs{PricingSigners: keys.TrustedKeySet{signer.KeyID: signer.PublicKey}}

	out := Verify(context.Background(), Params{
		Files:           result.Files,
		Kind:            bundle.KindJobProofBundleV1,
		Mode:            verifyreport.ModeNonStrict,
		Trust:           trust,
		HashConcurrency: 2,
		Tool:            verifyreport.Tool{Name: "test"},
		Target:          verifyreport.Target{Kind: verifyreport.TargetDir, Path: "job-bundle"},
	})

	if !out.OK {
		t.Fatalf("expected ok, got errors=%v warnings=%v", out.Errors, out.Warnings)
	}
}

func TestVerify_TamperedFileFailsHash(t *testing.T) {
	result, signer := buildTestJobBundle(t)
	trust := TrustInputs{PricingSigners: keys.TrustedKeySet{signer.KeyID: signer.PublicKey}}

	tampered := make(map[string][]byte, len(result.Files))
	for k, v := range result.Files {
		tampered[k] = v
	}
	tampered["events/events.jsonl"] = append([]byte{}, result.Files["events/events.jsonl"]...)
	tampered["events/events.jsonl"] = append(tampered["events/events.jsonl"], '\n')

	out := Verify(context.Background(), Params{
		Files:  tampered,
		Kind:   bundle.KindJobProofBundleV1,
		Mode:   verifyreport.ModeNonStrict,
		Trust:  trust,
		Tool:   verifyreport.Tool{Name: "test"},
		Target: verifyreport.Target{Kind: verifyreport.TargetDir, Path: "job-bundle"},
	})

	if out.OK {
		t.Fatal("expected tampered bundle to fail verification")
	}
	found := false
	for _, e := range out.Errors {
		if e.Code == CodeFileHashMismatch && e.Path == "events/events.jsonl" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected FILE_HASH_MISMATCH at events/events.jsonl, got %+v", out.Errors)
	}
}

func TestVerify_MissingReportIsErrorUnderStrict(t *testing.T) {
	result, signer := buildTestJobBundle(t)
	trust := TrustInputs{PricingSigners: keys.TrustedKeySet{signer.KeyID: signer.PublicKey}}

	out := Verify(context.Background(), Params{
		Files:  result.Files,
		Kind:   bundle.KindJobProofBundleV1,
		Mode:   verifyreport.ModeStrict,
		Trust:  trust,
		Tool:   verifyreport.Tool{Name: "test"},
		Target: verifyreport.Target{Kind: verifyreport.TargetDir, Path: "job-bundle"},
	})

	if out.OK {
		t.Fatal("expected strict verification without a report to fail")
	}
	found := false
	for _, e := range out.Errors {
		if e.Code == CodeReportMissing {
			found = true
		}
	}
	if !found {
		t.Errorf("expected REPORT_MISSING, got %+v", out.Errors)
	}
}
