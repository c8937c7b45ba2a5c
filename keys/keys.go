// Package keys implements peer and record-owner keypairs and the
// signature scheme used by Quote, Pointer, Scratchpad, and GraphEntry
// records.
package keys

import (
	"crypto/rand"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/hashing"
)

// ErrInvalidSignature is returned by Verify when the signature does not
// match the message under the given public key.
var ErrInvalidSignature = errors.New("keys: invalid signature")

// KeyPair is a secp256k1 keypair. Peer identities and record owners are
// both PublicKey values; an entity's Address is H(PublicKey.Bytes()).
type KeyPair struct {
	Private *secp256k1.PrivateKey
	Public  *PublicKey
}

// PublicKey wraps a compressed secp256k1 public key.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// Generate creates a new random keypair.
func Generate() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKeyFromRand(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		Private: priv,
		Public:  &PublicKey{key: priv.PubKey()},
	}, nil
}

// Bytes returns the compressed 33-byte public key encoding.
func (p *PublicKey) Bytes() []byte {
	return p.key.SerializeCompressed()
}

// Address returns H(PublicKey), this entity's address in the name space
// (PeerId's address, or a GraphEntry/Pointer/Scratchpad's storage address).
func (p *PublicKey) Address() addr.Address {
	return hashing.H(p.Bytes())
}

// PublicKeyFromBytes parses a compressed public key.
func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	k, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, err
	}
	return &PublicKey{key: k}, nil
}

// Sign hashes msg with hashing.H, signs the resulting digest, and
// returns a DER-encoded ECDSA signature.
func Sign(priv *secp256k1.PrivateKey, msg []byte) []byte {
	digest := hashing.H(msg)
	sig := ecdsa.Sign(priv, digest[:])
	return sig.Serialize()
}

// Verify checks a DER-encoded ECDSA signature against msg under pub.
func Verify(pub *PublicKey, msg, sig []byte) bool {
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	digest := hashing.H(msg)
	return parsed.Verify(digest[:], pub.key)
}
