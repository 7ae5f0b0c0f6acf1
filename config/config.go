// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config is the YAML-driven ambient configuration layer every
// runnable component in this module reads from (SPEC_FULL.md §6
// expansion). It is deliberately thin: the underlying CLI flags /
// subcommands / on-disk layout remain the external Non-goal spec.md names;
// this package only decodes the session parameters those tools would
// eventually hand to the core.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ton-blockchain/catchain-consensus/identity"
)

// Source describes one validator participating in a catchain session
// (spec.md §3.2's Source, minus the runtime-only fields the receiver
// tracks itself).
type Source struct {
	Idx    int             `yaml:"idx"`
	NodeID identity.NodeID `yaml:"node_id"`
	AdnlID identity.NodeID `yaml:"adnl_id"`
}

// Session is the full configuration for one catchain+consensus run.
type Session struct {
	SessionID identity.SessionID `yaml:"session_id"`
	Sources   []Source           `yaml:"sources"`
	MaxDeps   int                `yaml:"max_deps"`

	// SelfIdx is this process's own index into Sources.
	SelfIdx int `yaml:"self_idx"`
	// KeyPath names a file holding this validator's persisted ed25519
	// seed. If empty, or the file doesn't exist yet, the node generates a
	// fresh keypair and writes it there for the next restart.
	KeyPath string `yaml:"key_path"`

	IsMasterchain bool `yaml:"is_masterchain"`

	TargetRateMS uint64 `yaml:"target_rate_ms"`

	// AllowUnsafeSelfBlocksResync controls whether, after replay, the
	// local validator may rewrite its own latest block (an intentional
	// fork). Operator-gated; MUST default to false (spec.md §9).
	AllowUnsafeSelfBlocksResync bool `yaml:"allow_unsafe_self_blocks_resync"`

	CatchainDBPath string `yaml:"catchain_db_path"`
	DHTDBPath      string `yaml:"dht_db_path"`
	FinalizerDBPath string `yaml:"finalizer_db_path"`

	DHTBootstrapPeers []string `yaml:"dht_bootstrap_peers"`

	DefaultMTU int `yaml:"default_mtu"`
}

// Default returns a Session with every documented default applied; callers
// overlay file/flag values on top of it.
func Default() Session {
	return Session{
		MaxDeps:                     4,
		TargetRateMS:                1000,
		AllowUnsafeSelfBlocksResync: false,
		DefaultMTU:                  1280,
	}
}

// Load reads and decodes a Session from a YAML file at path, starting from
// Default() so unset fields keep their documented defaults.
func Load(path string) (Session, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Session{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Session{}, err
	}
	return cfg, nil
}
