// Copyright 2026 The Exocore Authors
// This file is part of Exocore.
//
// Exocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Exocore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Exocore. If not, see <http://www.gnu.org/licenses/>.

// Package identity wraps the secp256k1 keypair every node and cell uses to
// sign operations and block commitments. A NodeId is derived from a public
// key the same way an account address is derived in an account-based chain:
// a fixed-width digest of the compressed public key.
package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// NodeId is the fixed-width identifier of a cell member, derived from its
// public key. It is what operations and cell membership lists key on.
type NodeId [20]byte

func (n NodeId) String() string { return hex.EncodeToString(n[:]) }

func (n NodeId) IsZero() bool { return n == NodeId{} }

// ParseNodeId decodes a NodeId from its String() hex form.
func ParseNodeId(s string) (NodeId, error) {
	var n NodeId
	b, err := hex.DecodeString(s)
	if err != nil {
		return n, fmt.Errorf("identity: parse node id: %w", err)
	}
	if len(b) != len(n) {
		return n, fmt.Errorf("identity: parse node id: wrong length %d", len(b))
	}
	copy(n[:], b)
	return n, nil
}

// NodeIdFromPublicKey derives a NodeId from a public key the way an
// account-based chain derives an address: the low 20 bytes of a SHA-256
// digest of the compressed public key encoding.
func NodeIdFromPublicKey(pub *secp256k1.PublicKey) NodeId {
	sum := sha256.Sum256(pub.SerializeCompressed())
	var id NodeId
	copy(id[:], sum[len(sum)-20:])
	return id
}

// KeyPair is a node's persistent signing identity.
type KeyPair struct {
	private *secp256k1.PrivateKey
	public  *secp256k1.PublicKey
	nodeID  NodeId
}

// GenerateKeyPair creates a fresh random keypair, used for new node
// enrollment and in tests.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKeyFromRand(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return newKeyPair(priv), nil
}

// KeyPairFromSeed deterministically derives a keypair from a 32-byte seed,
// used by tests that need reproducible node identities (e.g. the
// divergence-recovery scenario, which seeds two chains from fixed seeds).
func KeyPairFromSeed(seed [32]byte) *KeyPair {
	priv := secp256k1.PrivKeyFromBytes(seed[:])
	return newKeyPair(priv)
}

func newKeyPair(priv *secp256k1.PrivateKey) *KeyPair {
	pub := priv.PubKey()
	return &KeyPair{private: priv, public: pub, nodeID: NodeIdFromPublicKey(pub)}
}

func (k *KeyPair) NodeId() NodeId { return k.nodeID }

// Sign produces a detached signature covering digest, which callers compute
// as the multihash of the payload being signed (operations, block headers).
func (k *KeyPair) Sign(digest []byte) []byte {
	sig := ecdsa.Sign(k.private, digest)
	return sig.Serialize()
}

// Verify checks a detached signature against digest for the public key
// recorded in pub.
func Verify(pub *secp256k1.PublicKey, digest, sig []byte) bool {
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(digest, pub)
}

// PublicKey exposes the public key for embedding in membership lists.
func (k *KeyPair) PublicKey() *secp256k1.PublicKey { return k.public }

// ParsePublicKey decodes a compressed public key, as stored in a cell's
// membership list.
func ParsePublicKey(b []byte) (*secp256k1.PublicKey, error) {
	if len(b) == 0 {
		return nil, errors.New("identity: empty public key")
	}
	return secp256k1.ParsePubKey(b)
}
