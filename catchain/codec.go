// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package catchain

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"
)

// persistedBlock is the durable record stored at blockKey(hash) — spec.md
// §6.1's "serialized TL record with payload and deps". The TL schema
// itself is external (spec.md §1 Non-goals); this core only needs a
// concrete, internal-only round-trip format for its own KV rows, so it
// uses encoding/gob directly rather than sourcing a schema/codec library
// for a format nothing outside this process ever reads (see DESIGN.md).
type persistedBlock struct {
	Hash         [32]byte
	SourceIdx    int
	Height       uint32
	ForkID       ForkID
	PayloadBytes []byte
	Signature    []byte
	Prev         BlockRef
	Deps         []BlockRef
	VT           map[ForkID]uint32
	InDB         bool
	State        BlockState
}

func encodeBlock(b *ReceivedBlock) ([]byte, error) {
	rec := persistedBlock{
		Hash: b.Hash, SourceIdx: b.SourceIdx, Height: b.Height, ForkID: b.ForkID,
		PayloadBytes: b.PayloadBytes, Signature: b.Signature, Prev: b.Prev,
		Deps: b.Deps, VT: b.VT, InDB: b.InDB, State: b.State,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&rec); err != nil {
		return nil, errors.WithMessage(err, "catchain: encode block record")
	}
	return buf.Bytes(), nil
}

func decodeBlock(data []byte) (*ReceivedBlock, error) {
	var rec persistedBlock
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, errors.WithMessage(err, "catchain: decode block record")
	}
	return &ReceivedBlock{
		Hash: rec.Hash, SourceIdx: rec.SourceIdx, Height: rec.Height, ForkID: rec.ForkID,
		PayloadBytes: rec.PayloadBytes, Signature: rec.Signature, Prev: rec.Prev,
		Deps: rec.Deps, VT: rec.VT, InDB: rec.InDB, State: rec.State,
	}, nil
}
