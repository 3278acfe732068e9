// Package translog implements the identity transparency log: an
// append-only Merkle tree of identity entries, inclusion proofs against
// that tree, and signed checkpoints over its root. The tree construction
// and proof generation use a level-by-level pairwise SHA-256 build,
// duplicating the odd node at each level, with constant-time root
// comparison on verify; checkpoints sign over the root the same way
// other signed artifacts in this module sign over a digest.
package translog

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ledgerspine/spine/pkg/canonjson"
	"github.com/ledgerspine/spine/pkg/keys"
)

// Direction is which side of a hash-pair a proof's sibling sits on.
type Direction string

const (
	DirLeft  Direction = "left"
	DirRight Direction = "right"
)

// ProofNode is one step of a Merkle inclusion proof.
type ProofNode struct {
	Sibling   string    `json:"sibling"`
	Direction Direction `json:"direction"`
}

// InclusionProof proves that a leaf at LeafIndex with hash LeafHash is
// included in the tree of size TreeSize whose root is RootHash.
type InclusionProof struct {
	LeafHash  string      `json:"leafHash"`
	LeafIndex int         `json:"leafIndex"`
	TreeSize  int         `json:"treeSize"`
	Path      []ProofNode `json:"path"`
	RootHash  string      `json:"rootHash"`
}

// Tree is an append-only Merkle tree over 32-byte leaf hashes.
type Tree struct {
	leaves [][]byte
}

// NewTree returns an empty tree.
func NewTree() *Tree { return &Tree{} }

func leafHash(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

func nodeHash(left, right []byte) []byte {
	buf := make([]byte, 0, len(left)+len(right))
	buf = append(buf, left...)
	buf = append(buf, right...)
	h := sha256.Sum256(buf)
	return h[:]
}

// AddLeaf appends data's leaf hash to the tree and returns its index.
func (t *Tree) AddLeaf(data []byte) int {
	t.leaves = append(t.leaves, leafHash(data))
	return len(t.leaves) - 1
}

// Size returns the number of leaves currently in the tree.
func (t *Tree) Size() int { return len(t.leaves) }

func (t *Tree) levels() [][][]byte {
	if len(t.leaves) == 0 {
		return nil
	}
	levels := [][][]byte{t.leaves}
	cur := t.leaves
	for len(cur) > 1 {
		next := make([][]byte, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			if i+1 < len(cur) {
				next = append(next, nodeHash(cur[i], cur[i+1]))
			} else {
				next = append(next, nodeHash(cur[i], cur[i])) // duplicate odd trailing node
			}
		}
		levels = append(levels, next)
		cur = next
	}
	return levels
}

// Root returns the current root hash, hex-encoded. Empty tree hashes to
// the SHA-256 of the empty string, same convention as an empty-input
// canonical hash elsewhere in this module.
func (t *Tree) Root() string {
	levels := t.levels()
	if len(levels) == 0 {
		empty := sha256.Sum256(nil)
		return hex.EncodeToString(empty[:])
	}
	top := levels[len(levels)-1]
	return hex.EncodeToString(top[0])
}

// InclusionProof builds a proof that the leaf at index is included in
// the tree's current state.
func (t *Tree) InclusionProof(index int) (*InclusionProof, error) {
	if index < 0 || index >= len(t.leaves) {
		return nil, fmt.Errorf("translog: leaf index %d out of range [0,%d)", index, len(t.leaves))
	}
	levels := t.levels()
	var path []ProofNode
	idx := index
	for level := 0; level < len(levels)-1; level++ {
		nodes := levels[level]
		var siblingIdx int
		var dir Direction
		if idx%2 == 0 {
			siblingIdx = idx + 1
			dir = DirRight
			if siblingIdx >= len(nodes) {
				siblingIdx = idx // duplicated trailing node
			}
		} else {
			siblingIdx = idx - 1
			dir = DirLeft
		}
		path = append(path, ProofNode{Sibling: hex.EncodeToString(nodes[siblingIdx]), Direction: dir})
		idx /= 2
	}
	return &InclusionProof{
		LeafHash:  hex.EncodeToString(t.leaves[index]),
		LeafIndex: index,
		TreeSize:  len(t.leaves),
		Path:      path,
		RootHash:  t.Root(),
	}, nil
}

// FailureKind enumerates the closed set of reasons an inclusion proof or
// checkpoint can fail verification.
type FailureKind string

const (
	FailureProofMalformed          FailureKind = "PROOF_MALFORMED"
	FailureLeafHashMismatch        FailureKind = "LEAF_HASH_MISMATCH"
	FailureRootHashMismatch        FailureKind = "ROOT_HASH_MISMATCH"
	FailureCheckpointSigInvalid    FailureKind = "CHECKPOINT_SIGNATURE_INVALID"
	FailureEntryIDMismatch         FailureKind = "ENTRY_ID_MISMATCH"
)

// VerifyError reports why inclusion verification failed.
type VerifyError struct {
	Kind    FailureKind
	Message string
}

func (e *VerifyError) Error() string { return fmt.Sprintf("translog: %s: %s", e.Kind, e.Message) }

// VerifyInclusionProof recomputes the root from proof.LeafHash and
// proof.Path and compares it, in constant time, against both
// proof.RootHash and the checkpoint's RootHash (which must agree).
func VerifyInclusionProof(proof *InclusionProof, checkpoint *Checkpoint, trusted keys.TrustedKeySet) error {
	if proof == nil || len(proof.LeafHash) != 64 || proof.RootHash == "" {
		return &VerifyError{Kind: FailureProofMalformed, Message: "missing leaf hash or root hash"}
	}
	cur, err := hex.DecodeString(proof.LeafHash)
	if err != nil || len(cur) != 32 {
		return &VerifyError{Kind: FailureProofMalformed, Message: "leaf hash is not 32 bytes of hex"}
	}
	for _, step := range proof.Path {
		sib, err := hex.DecodeString(step.Sibling)
		if err != nil || len(sib) != 32 {
			return &VerifyError{Kind: FailureProofMalformed, Message: "malformed sibling hash in path"}
		}
		switch step.Direction {
		case DirLeft:
			cur = nodeHash(sib, cur)
		case DirRight:
			cur = nodeHash(cur, sib)
		default:
			return &VerifyError{Kind: FailureProofMalformed, Message: "unknown path direction"}
		}
	}
	gotRoot := hex.EncodeToString(cur)
	if subtle.ConstantTimeCompare([]byte(gotRoot), []byte(proof.RootHash)) != 1 {
		return &VerifyError{Kind: FailureRootHashMismatch, Message: "recomputed root does not match proof root"}
	}
	if checkpoint != nil {
		if subtle.ConstantTimeCompare([]byte(gotRoot), []byte(checkpoint.RootHash)) != 1 {
			return &VerifyError{Kind: FailureRootHashMismatch, Message: "recomputed root does not match checkpoint root"}
		}
		if err := checkpoint.Verify(trusted); err != nil {
			return &VerifyError{Kind: FailureCheckpointSigInvalid, Message: err.Error()}
		}
	}
	return nil
}

// VerifyEntryInclusion additionally checks that the leaf being proven
// corresponds to entryID's canonical hash, closing the gap between "some
// leaf is included" and "this specific entry is included."
func VerifyEntryInclusion(entryID string, entryPayload any, proof *InclusionProof, checkpoint *Checkpoint, trusted keys.TrustedKeySet) error {
	canonical, err := canonjson.Marshal(entryPayload)
	if err != nil {
		return &VerifyError{Kind: FailureProofMalformed, Message: fmt.Sprintf("cannot canonicalize entry payload: %v", err)}
	}
	wantHash := hex.EncodeToString(leafHash(canonical))
	if wantHash != proof.LeafHash {
		return &VerifyError{Kind: FailureLeafHashMismatch, Message: fmt.Sprintf("entry %q hash does not match proof leaf hash", entryID)}
	}
	return VerifyInclusionProof(proof, checkpoint, trusted)
}

// Checkpoint is a signed commitment to the tree's state at a point in
// time: "this log, at this size, has this root."
type Checkpoint struct {
	TreeSize       int       `json:"treeSize"`
	RootHash       string    `json:"rootHash"`
	IssuedAt       time.Time `json:"issuedAt"`
	CheckpointHash string    `json:"checkpointHash"`
	SignerKeyID    string    `json:"signerKeyId"`
	Signature      string    `json:"signature"`
}

func (c Checkpoint) unsigned() Checkpoint {
	cp := c
	cp.CheckpointHash = ""
	cp.Signature = ""
	return cp
}

// Sign computes the checkpoint hash and signs it with signer, whose key
// ID must match c.SignerKeyID.
func (c *Checkpoint) Sign(signer *keys.KeyPair) error {
	if signer.KeyID != c.SignerKeyID {
		return fmt.Errorf("translog: signer key ID %q does not match declared checkpoint signer %q", signer.KeyID, c.SignerKeyID)
	}
	hash, _, err := canonjson.MarshalHash(c.unsigned())
	if err != nil {
		return fmt.Errorf("translog: hash checkpoint: %w", err)
	}
	sig, err := keys.SignDigest(signer.PrivateKey, hash)
	if err != nil {
		return fmt.Errorf("translog: sign checkpoint: %w", err)
	}
	c.CheckpointHash = hash
	c.Signature = sig
	return nil
}

// Verify recomputes CheckpointHash and checks both it and the signature
// against a trusted key set.
func (c *Checkpoint) Verify(trusted keys.TrustedKeySet) error {
	hash, _, err := canonjson.MarshalHash(c.unsigned())
	if err != nil {
		return fmt.Errorf("translog: hash checkpoint: %w", err)
	}
	if hash != c.CheckpointHash {
		return fmt.Errorf("translog: checkpoint hash mismatch: recomputed %q, stored %q", hash, c.CheckpointHash)
	}
	pub, ok := trusted.Lookup(c.SignerKeyID)
	if !ok {
		return fmt.Errorf("translog: checkpoint signer %q is not trusted", c.SignerKeyID)
	}
	if !keys.VerifyDigest(pub, hash, c.Signature) {
		return fmt.Errorf("translog: checkpoint signature does not verify")
	}
	return nil
}
