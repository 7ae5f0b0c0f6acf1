// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package adnl

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"github.com/ton-blockchain/catchain-consensus/fec"
	"github.com/ton-blockchain/catchain-consensus/identity"
)

// headerSize is the fixed-width prefix every FEC-coded wire message
// carries ahead of its symbol payload: run id, the run's encoding
// params, and this symbol's own id (spec.md §4.7's send_fec_broadcast,
// grounded on catchain-receiver-interface.h). The TL framing of this
// header is external to this core; only a stable internal layout is
// needed to drive fec.Encoder/fec.Decoder, so it is a plain
// encoding/binary struct rather than the external wire format.
const headerSize = 8 + 4 + 4 + 4 + 4

type fragmentHeader struct {
	runID      uint64
	symbolsCount uint32
	symbolSize   uint32
	dataSize     uint32
	symbolID     uint32
}

func encodeHeader(h fragmentHeader) []byte {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint64(buf[0:8], h.runID)
	binary.BigEndian.PutUint32(buf[8:12], h.symbolsCount)
	binary.BigEndian.PutUint32(buf[12:16], h.symbolSize)
	binary.BigEndian.PutUint32(buf[16:20], h.dataSize)
	binary.BigEndian.PutUint32(buf[20:24], h.symbolID)
	return buf
}

func decodeHeader(wire []byte) (fragmentHeader, []byte, error) {
	if len(wire) < headerSize {
		return fragmentHeader{}, nil, errors.New("adnl: fragment wire message shorter than header")
	}
	h := fragmentHeader{
		runID:        binary.BigEndian.Uint64(wire[0:8]),
		symbolsCount: binary.BigEndian.Uint32(wire[8:12]),
		symbolSize:   binary.BigEndian.Uint32(wire[12:16]),
		dataSize:     binary.BigEndian.Uint32(wire[16:20]),
		symbolID:     binary.BigEndian.Uint32(wire[20:24]),
	}
	return h, wire[headerSize:], nil
}

// Fragmenter splits a broadcast payload too large for a peer's effective
// MTU into FEC-coded wire messages (spec.md §4.7). The actual
// RaptorQ/OnlineCode math is external; Fragmenter only drives whatever
// fec.Encoder the caller's codec constructs for the chosen params.
type Fragmenter struct {
	mtu        *MTURegistry
	newEncoder func(fec.Params) fec.Encoder

	mu        sync.Mutex
	nextRunID uint64
}

// NewFragmenter builds a Fragmenter over mtu, using newEncoder to build a
// fresh external encoder for each broadcast run.
func NewFragmenter(mtu *MTURegistry, newEncoder func(fec.Params) fec.Encoder) *Fragmenter {
	return &Fragmenter{mtu: mtu, newEncoder: newEncoder}
}

// Fragment encodes data into one wire message per symbol, sized to fit
// local's effective MTU toward peer. The returned slice is ready to pass
// to Sender.SendMessage, one call per element.
func (f *Fragmenter) Fragment(local, peer identity.NodeID, data []byte) ([][]byte, error) {
	symbolSize := f.mtu.Effective(local, peer) - headerSize
	if symbolSize <= 0 {
		return nil, errors.New("adnl: effective mtu too small to fragment")
	}
	symbolsCount := (len(data) + symbolSize - 1) / symbolSize
	if symbolsCount == 0 {
		symbolsCount = 1
	}
	params := fec.Params{SymbolsCount: symbolsCount, SymbolSize: symbolSize, DataSize: len(data)}

	enc := f.newEncoder(params)
	enc.PrepareMoreSymbols()

	f.mu.Lock()
	runID := f.nextRunID
	f.nextRunID++
	f.mu.Unlock()

	wire := make([][]byte, symbolsCount)
	for i := 0; i < symbolsCount; i++ {
		sym := make([]byte, symbolSize)
		if err := enc.GenSymbol(uint32(i), sym); err != nil {
			return nil, errors.WithMessage(err, "adnl: gen symbol")
		}
		hdr := encodeHeader(fragmentHeader{
			runID: runID, symbolsCount: uint32(symbolsCount), symbolSize: uint32(symbolSize),
			dataSize: uint32(len(data)), symbolID: uint32(i),
		})
		wire[i] = append(hdr, sym...)
	}
	return wire, nil
}

type runKey struct {
	peer  identity.NodeID
	runID uint64
}

// Reassembler accumulates inbound FEC symbols per (peer, run) and
// reconstructs the original broadcast payload once enough have arrived
// (spec.md §4.7's receiving side of send_fec_broadcast).
type Reassembler struct {
	newDecoder func(fec.Params) fec.Decoder

	mu   sync.Mutex
	runs map[runKey]fec.Decoder
}

// NewReassembler builds a Reassembler using newDecoder to build a fresh
// external decoder the first time a run is seen.
func NewReassembler(newDecoder func(fec.Params) fec.Decoder) *Reassembler {
	return &Reassembler{newDecoder: newDecoder, runs: make(map[runKey]fec.Decoder)}
}

// Add feeds one inbound wire message from peer into its run. It returns
// the reconstructed payload and true once the run's decoder reports
// Ready; otherwise it returns false while more symbols are awaited.
func (r *Reassembler) Add(peer identity.NodeID, wire []byte) ([]byte, bool, error) {
	hdr, symData, err := decodeHeader(wire)
	if err != nil {
		return nil, false, err
	}
	key := runKey{peer: peer, runID: hdr.runID}

	r.mu.Lock()
	dec, ok := r.runs[key]
	if !ok {
		dec = r.newDecoder(fec.Params{
			SymbolsCount: int(hdr.symbolsCount), SymbolSize: int(hdr.symbolSize), DataSize: int(hdr.dataSize),
		})
		r.runs[key] = dec
	}
	r.mu.Unlock()

	if err := dec.AddSymbol(fec.Symbol{ID: hdr.symbolID, Data: symData}); err != nil {
		return nil, false, errors.WithMessage(err, "adnl: add symbol")
	}
	if !dec.MayTryDecode() {
		return nil, false, nil
	}
	status, payload, err := dec.TryDecode(false)
	if err != nil {
		return nil, false, errors.WithMessage(err, "adnl: try decode")
	}
	if status != fec.Ready {
		return nil, false, nil
	}

	r.mu.Lock()
	delete(r.runs, key)
	r.mu.Unlock()
	return payload, true, nil
}
