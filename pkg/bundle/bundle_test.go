package bundle

import (
	"testing"
	"time"

	"github.com/ledgerspine/spine/pkg/eventchain"
	"github.com/ledgerspine/spine/pkg/governance"
	"github.com/ledgerspine/spine/pkg/keys"
)

func mustKeyPair(t *testing.T) *keys.KeyPair {
	t.Helper()
	kp, err := keys.Generate()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	return kp
}

func mustEvent(t *testing.T, signer *keys.KeyPair, prev string, occurredAt time.Time) *eventchain.Event {
	t.Helper()
	actor := eventchain.Actor{Type: eventchain.ActorServer, ID: "server-1"}
	signerKey := eventchain.SignerKey{KeyID: signer.KeyID, PrivateKey: signer.PrivateKey, Purpose: "server", ServerGoverned: true}
	ev, err := eventchain.CreateEvent("evt-"+signer.KeyID[:8], "job-1", "JOB_CREATED", actor, map[string]string{"hello": "world"}, occurredAt, prev, signerKey)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return ev
}

func TestBuildJobProofBundleV1_RoundTrip(t *testing.T) {
	signer := mustKeyPair(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ev := mustEvent(t, signer, eventchain.GenesisChainHash, now)
	events := []eventchain.Event{*ev}

	params := BuildParams{
		TenantID: "tenant-1",
		Scope:    "job-1",
		Events:   events,
		Snapshot: SnapshotFromChain("job-1", events),
		PublicKeys: []PublicKeyRecord{
			{TenantID: "tenant-1", KeyID: signer.KeyID, PublicKeyPem: pemPub(t, signer), Purpose: "server", ServerGoverned: true},
		},
		ManifestSigner:         ManifestSigner{KeyPair: signer, Scope: "tenant-1", Purpose: "server", Governed: true},
		RequireHeadAttestation: true,
		ToolVersion:            "1.0.0",
		ToolCommit:             "abc123",
		GeneratedAt:            now,
	}

	result, err := BuildJobProofBundleV1(params)
	if err != nil {
		t.Fatalf("build job proof bundle: %v", err)
	}
	if result.Manifest.Kind != KindJobProofBundleV1 {
		t.Errorf("manifest kind = %q, want %q", result.Manifest.Kind, KindJobProofBundleV1)
	}
	if err := VerifyManifestHash(result.Manifest); err != nil {
		t.Errorf("manifest hash does not verify: %v", err)
	}
	if result.Attestation == nil {
		t.Fatal("expected a head attestation to be produced")
	}
	trusted := keys.TrustedKeySet{signer.KeyID: signer.PublicKey}
	if err := VerifyHeadAttestation(result.Attestation, result.Manifest.ManifestHash, trusted); err != nil {
		t.Errorf("head attestation does not verify: %v", err)
	}

	if _, ok := result.Files["manifest.json"]; !ok {
		t.Error("expected manifest.json in the output file set")
	}
	if _, ok := result.Files["events/events.jsonl"]; !ok {
		t.Error("expected events/events.jsonl in the output file set")
	}
}

func TestBuildJobProofBundleV1_Determinism(t *testing.T) {
	signer := mustKeyPair(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ev := mustEvent(t, signer, eventchain.GenesisChainHash, now)
	events := []eventchain.Event{*ev}

	build := func() *BuildResult {
		params := BuildParams{
			TenantID:    "tenant-1",
			Scope:       "job-1",
			Events:      events,
			Snapshot:    SnapshotFromChain("job-1", events),
			GeneratedAt: now,
			ManifestSigner: ManifestSigner{KeyPair: signer},
		}
		r, err := BuildJobProofBundleV1(params)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		return r
	}

	a := build()
	b := build()
	if a.Manifest.ManifestHash != b.Manifest.ManifestHash {
		t.Errorf("manifest hash not deterministic: %q vs %q", a.Manifest.ManifestHash, b.Manifest.ManifestHash)
	}
}

func TestEmbeddedSubBundleBinding(t *testing.T) {
	signer := mustKeyPair(t)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	jobEvents := []eventchain.Event{*mustEvent(t, signer, eventchain.GenesisChainHash, now)}

	jobParams := BuildParams{
		TenantID:    "tenant-1",
		Scope:       "job-1",
		Events:      jobEvents,
		Snapshot:    SnapshotFromChain("job-1", jobEvents),
		GeneratedAt: now,
	}
	jobResult, err := BuildJobProofBundleV1(jobParams)
	if err != nil {
		t.Fatalf("build job bundle: %v", err)
	}

	invoiceEvents := []eventchain.Event{*mustEvent(t, signer, eventchain.GenesisChainHash, now)}
	invoiceParams := InvoiceParams{
		BuildParams: BuildParams{
			TenantID:    "tenant-1",
			Scope:       "invoice-1",
			Events:      invoiceEvents,
			Snapshot:    SnapshotFromChain("invoice-1", invoiceEvents),
			GeneratedAt: now,
		},
		JobBundle: jobResult,
	}
	invoiceResult, err := BuildInvoiceBundleV1(invoiceParams)
	if err != nil {
		t.Fatalf("build invoice bundle: %v", err)
	}

	if len(invoiceResult.Manifest.EmbeddedBindings) != 1 {
		t.Fatalf("expected 1 embedded binding, got %d", len(invoiceResult.Manifest.EmbeddedBindings))
	}
	binding := invoiceResult.Manifest.EmbeddedBindings[0]
	if binding.ManifestHash != jobResult.Manifest.ManifestHash {
		t.Errorf("embedded binding hash = %q, want %q", binding.ManifestHash, jobResult.Manifest.ManifestHash)
	}
	if _, ok := invoiceResult.Files["payload/job_proof_bundle/manifest.json"]; !ok {
		t.Error("expected the embedded job bundle's manifest.json under the wrapper prefix")
	}
}

func TestSignTimeProof(t *testing.T) {
	authority := mustKeyPair(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tp, err := governance.SignTimeProof(now, authority)
	if err != nil {
		t.Fatalf("sign time proof: %v", err)
	}
	trusted := keys.TrustedKeySet{authority.KeyID: authority.PublicKey}
	if err := tp.Verify(trusted); err != nil {
		t.Errorf("time proof does not verify: %v", err)
	}
}

func pemPub(t *testing.T, kp *keys.KeyPair) string {
	t.Helper()
	pemStr, err := keys.EncodePublicKeyPEM(kp.PublicKey)
	if err != nil {
		t.Fatalf("EncodePublicKeyPEM: %v", err)
	}
	return pemStr
}
