package eventchain

import (
	"testing"
	"time"

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

func trustedSet(kps ...*keys.KeyPair) keys.TrustedKeySet {
	set := make(keys.TrustedKeySet)
	for _, kp := range kps {
		set[kp.KeyID] = kp.PublicKey
	}
	return set
}

type fakeKeyInfo struct {
	purpose        map[string]string
	serverGoverned map[string]bool
}

func (f fakeKeyInfo) ResolveKeyInfo(keyID string) (string, bool, bool) {
	return f.purpose[keyID], f.serverGoverned[keyID], true
}

func systemSigner(kp *keys.KeyPair) SignerKey {
	return SignerKey{KeyID: kp.KeyID, PrivateKey: kp.PrivateKey}
}

func buildChain(t *testing.T, n int, kp *keys.KeyPair) []Event {
	t.Helper()
	actor := Actor{Type: ActorSystem, ID: "system-1"}
	prev := GenesisChainHash
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		ev, err := CreateEvent("evt-"+string(rune('a'+i)), "stream-1", "test.event", actor,
			map[string]any{"i": i}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), prev, systemSigner(kp))
		if err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
		events = append(events, *ev)
		prev = ev.ChainHash
	}
	return events
}

var noKeyInfo = fakeKeyInfo{purpose: map[string]string{}, serverGoverned: map[string]bool{}}

func TestVerifyChainValid(t *testing.T) {
	kp := mustKeyPair(t)
	events := buildChain(t, 3, kp)
	result := VerifyChain(events, trustedSet(kp), NoRevocations, noKeyInfo)
	if !result.Valid {
		t.Fatalf("expected valid chain, errors: %+v", result.Errors)
	}
}

func TestVerifyChainDetectsBrokenLink(t *testing.T) {
	kp := mustKeyPair(t)
	events := buildChain(t, 3, kp)
	events[2].PrevChainHash = "tampered"
	result := VerifyChain(events, trustedSet(kp), NoRevocations, noKeyInfo)
	if result.Valid {
		t.Fatal("expected invalid chain due to broken link")
	}
	foundBroken := false
	for _, e := range result.Errors {
		if e.Code == ChainErrBrokenLink {
			foundBroken = true
		}
	}
	if !foundBroken {
		t.Fatalf("expected a %s error, got %+v", ChainErrBrokenLink, result.Errors)
	}
}

func TestVerifyChainDetectsUnknownSigner(t *testing.T) {
	kp := mustKeyPair(t)
	other := mustKeyPair(t)
	events := buildChain(t, 1, kp)
	result := VerifyChain(events, trustedSet(other), NoRevocations, noKeyInfo)
	if result.Valid {
		t.Fatal("expected invalid chain for untrusted signer")
	}
}

func TestVerifyChainAcceptsBundleWithoutSeq(t *testing.T) {
	kp := mustKeyPair(t)
	events := buildChain(t, 3, kp)
	// Ordering is established purely by prevChainHash linkage: a
	// conformant peer's bundle carries no seq field at all, so it must
	// never surface as a verification failure.
	result := VerifyChain(events, trustedSet(kp), NoRevocations, noKeyInfo)
	if !result.Valid {
		t.Fatalf("expected valid chain with no sequence field involved, errors: %+v", result.Errors)
	}
}

type fakeRevocations struct {
	revoked     map[string]bool
	timeProofed map[string]bool
}

func (f fakeRevocations) IsRevoked(keyID string) (bool, bool) {
	return f.revoked[keyID], f.timeProofed[keyID]
}

func TestGovernedActorRequiresServerPurpose(t *testing.T) {
	kp := mustKeyPair(t)
	actor := Actor{Type: ActorServer, ID: "svc-1"}
	signer := SignerKey{KeyID: kp.KeyID, PrivateKey: kp.PrivateKey, ServerGoverned: true}
	_, err := CreateEvent("evt-1", "stream-1", "test.event", actor, map[string]any{}, time.Now().UTC(), GenesisChainHash, signer)
	if err == nil {
		t.Fatal("expected error creating a server event without purpose=server")
	}
}

func TestGovernedActorHardFailsOnRevocation(t *testing.T) {
	kp := mustKeyPair(t)
	actor := Actor{Type: ActorServer, ID: "svc-1"}
	signer := SignerKey{KeyID: kp.KeyID, PrivateKey: kp.PrivateKey, Purpose: "server", ServerGoverned: true}
	ev, err := CreateEvent("evt-1", "stream-1", "test.event", actor, map[string]any{}, time.Now().UTC(), GenesisChainHash, signer)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	revs := fakeRevocations{revoked: map[string]bool{kp.KeyID: true}}
	keyInfo := fakeKeyInfo{purpose: map[string]string{kp.KeyID: "server"}, serverGoverned: map[string]bool{kp.KeyID: true}}
	result := VerifyChain([]Event{*ev}, trustedSet(kp), revs, keyInfo)
	if result.Valid {
		t.Fatal("expected governed actor with revoked key to fail verification")
	}
}

func TestUngovernedActorTreatsRevocationAsInformational(t *testing.T) {
	kp := mustKeyPair(t)
	events := buildChain(t, 1, kp)
	revs := fakeRevocations{revoked: map[string]bool{kp.KeyID: true}}
	result := VerifyChain(events, trustedSet(kp), revs, noKeyInfo)
	if !result.Valid {
		t.Fatalf("expected ungoverned actor's revoked key to only warn, got errors: %+v", result.Errors)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a warning recorded for the revoked key")
	}
}
