// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package identity holds the node identities, addresses and session tags
// shared by every component in this module (spec.md §3.1).
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// NodeID is the 256-bit hash of a node's public key — the "short id" form
// used to address a node on the wire.
type NodeID [32]byte

func (n NodeID) String() string { return fmt.Sprintf("%x", n[:8]) }

// IsZero reports whether n is the zero value.
func (n NodeID) IsZero() bool { return n == NodeID{} }

// MarshalYAML renders the id as a hex string.
func (n NodeID) MarshalYAML() (any, error) {
	return hex.EncodeToString(n[:]), nil
}

// UnmarshalYAML decodes a hex string into the id.
func (n *NodeID) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("identity: decode node id: %w", err)
	}
	if len(b) != len(n) {
		return fmt.Errorf("identity: node id must be %d bytes, got %d", len(n), len(b))
	}
	copy(n[:], b)
	return nil
}

// SessionID names one catchain+consensus run.
type SessionID [32]byte

func (s SessionID) String() string { return fmt.Sprintf("%x", s[:8]) }

// MarshalYAML renders the id as a hex string.
func (s SessionID) MarshalYAML() (any, error) {
	return hex.EncodeToString(s[:]), nil
}

// UnmarshalYAML decodes a hex string into the id.
func (s *SessionID) UnmarshalYAML(unmarshal func(any) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	b, err := hex.DecodeString(str)
	if err != nil {
		return fmt.Errorf("identity: decode session id: %w", err)
	}
	if len(b) != len(s) {
		return fmt.Errorf("identity: session id must be %d bytes, got %d", len(s), len(b))
	}
	copy(s[:], b)
	return nil
}

// FullKey is a node's long-term public key, in its full (not hashed) form.
type FullKey struct {
	Ed25519 ed25519.PublicKey
}

// ShortID hashes a FullKey down to its NodeID.
func (k FullKey) ShortID() NodeID {
	return sha256.Sum256(k.Ed25519)
}

// Keypair is a node's signing identity.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeypair creates a fresh Ed25519 identity. SHA-256 and Ed25519 are
// assumed-available primitives per spec.md's non-goals; no third-party
// primitive library is warranted for stdlib-equivalent operations (see
// DESIGN.md).
func GenerateKeypair() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{Public: pub, Private: priv}, nil
}

// LoadOrCreateKeypair reads a hex-encoded ed25519 seed from path, or
// generates one and writes it there (mode 0600) if path doesn't exist yet,
// mirroring the pack's usual key-bootstrap shape (generate once, persist,
// reload on every subsequent start).
func LoadOrCreateKeypair(path string) (Keypair, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		seed, decodeErr := hex.DecodeString(strings.TrimSpace(string(data)))
		if decodeErr != nil {
			return Keypair{}, fmt.Errorf("identity: decode seed at %s: %w", path, decodeErr)
		}
		if len(seed) != ed25519.SeedSize {
			return Keypair{}, fmt.Errorf("identity: seed at %s must be %d bytes, got %d", path, ed25519.SeedSize, len(seed))
		}
		priv := ed25519.NewKeyFromSeed(seed)
		return Keypair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
	}
	if !os.IsNotExist(err) {
		return Keypair{}, fmt.Errorf("identity: read seed at %s: %w", path, err)
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return Keypair{}, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(seed)), 0o600); err != nil {
		return Keypair{}, fmt.Errorf("identity: persist seed at %s: %w", path, err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return Keypair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

// Sign signs data with the keypair's private key.
func (k Keypair) Sign(data []byte) []byte {
	return ed25519.Sign(k.Private, data)
}

// NodeID returns the short id derived from the keypair's public key.
func (k Keypair) NodeID() NodeID {
	return sha256.Sum256(k.Public)
}

// Verify checks an Ed25519 signature against a public key.
func Verify(pub ed25519.PublicKey, data, sig []byte) bool {
	return ed25519.Verify(pub, data, sig)
}

// PeerAddress is a versioned list of network addresses for one node,
// spec.md §3.1.
type PeerAddress struct {
	Addrs      []net.UDPAddr
	Version    int32
	ReinitDate time.Time
}

// Effective returns the address list entry to dial, or false if the list
// has never been populated.
func (p PeerAddress) Effective() (net.UDPAddr, bool) {
	if len(p.Addrs) == 0 {
		return net.UDPAddr{}, false
	}
	return p.Addrs[0], true
}
