package translog

import (
	"testing"
	"time"

	"github.com/ledgerspine/spine/pkg/canonjson"
	"github.com/ledgerspine/spine/pkg/keys"
)

func mustKeyPair(t *testing.T) *keys.KeyPair {
	t.Helper()
	kp, err := keys.Generate()
	if err != nil {
		t.Fatalf("keys.Generate: %v", err)
	}
	return kp
}

func TestInclusionProofRoundTrip(t *testing.T) {
	tree := NewTree()
	for i := 0; i < 5; i++ {
		tree.AddLeaf([]byte{byte(i)})
	}
	proof, err := tree.InclusionProof(2)
	if err != nil {
		t.Fatalf("InclusionProof: %v", err)
	}
	if err := VerifyInclusionProof(proof, nil, nil); err != nil {
		t.Fatalf("VerifyInclusionProof: %v", err)
	}
}

func TestInclusionProofSingleLeaf(t *testing.T) {
	tree := NewTree()
	tree.AddLeaf([]byte("only"))
	proof, err := tree.InclusionProof(0)
	if err != nil {
		t.Fatalf("InclusionProof: %v", err)
	}
	if len(proof.Path) != 0 {
		t.Fatalf("expected empty path for single-leaf tree, got %d entries", len(proof.Path))
	}
	if err := VerifyInclusionProof(proof, nil, nil); err != nil {
		t.Fatalf("VerifyInclusionProof: %v", err)
	}
}

func TestInclusionProofDetectsTamperedSibling(t *testing.T) {
	tree := NewTree()
	for i := 0; i < 4; i++ {
		tree.AddLeaf([]byte{byte(i)})
	}
	proof, err := tree.InclusionProof(1)
	if err != nil {
		t.Fatalf("InclusionProof: %v", err)
	}
	proof.Path[0].Sibling = "00" + proof.Path[0].Sibling[2:]
	if err := VerifyInclusionProof(proof, nil, nil); err == nil {
		t.Fatal("expected tampered sibling to fail verification")
	}
}

func TestCheckpointSignAndVerify(t *testing.T) {
	kp := mustKeyPair(t)
	tree := NewTree()
	tree.AddLeaf([]byte("a"))
	tree.AddLeaf([]byte("b"))
	cp := &Checkpoint{TreeSize: tree.Size(), RootHash: tree.Root(), IssuedAt: time.Now().UTC(), SignerKeyID: kp.KeyID}
	if err := cp.Sign(kp); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	trusted := keys.TrustedKeySet{kp.KeyID: kp.PublicKey}
	if err := cp.Verify(trusted); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	proof, err := tree.InclusionProof(0)
	if err != nil {
		t.Fatalf("InclusionProof: %v", err)
	}
	if err := VerifyInclusionProof(proof, cp, trusted); err != nil {
		t.Fatalf("VerifyInclusionProof with checkpoint: %v", err)
	}
}

func TestCheckpointVerifyRejectsUntrustedSigner(t *testing.T) {
	kp := mustKeyPair(t)
	other := mustKeyPair(t)
	cp := &Checkpoint{TreeSize: 1, RootHash: "deadbeef", SignerKeyID: kp.KeyID}
	if err := cp.Sign(kp); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	trusted := keys.TrustedKeySet{other.KeyID: other.PublicKey}
	if err := cp.Verify(trusted); err == nil {
		t.Fatal("expected verification to fail for untrusted signer")
	}
}

func TestVerifyEntryInclusionDetectsPayloadMismatch(t *testing.T) {
	tree := NewTree()
	payload := map[string]any{"identityId": "id-1"}
	_, canonical, err := canonjson.MarshalHash(payload)
	if err != nil {
		t.Fatalf("MarshalHash: %v", err)
	}
	idx := tree.AddLeaf(canonical)
	proof, err := tree.InclusionProof(idx)
	if err != nil {
		t.Fatalf("InclusionProof: %v", err)
	}
	err = VerifyEntryInclusion("id-1", map[string]any{"identityId": "id-2"}, proof, nil, nil)
	if err == nil {
		t.Fatal("expected mismatch for different payload")
	}
}
