// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fec defines the encoder/decoder contract this core consumes
// from the (externally specified) FEC codec layer — RaptorQ/OnlineCode
// mathematics are out of scope; only "encoder produces symbols; decoder
// reconstructs" is used (spec.md §1, §4.7).
package fec

// Params describes one encoding run.
type Params struct {
	SymbolsCount int
	SymbolSize   int
	DataSize     int
}

// Symbol is one FEC-coded fragment, addressed by its id within the run.
type Symbol struct {
	ID   uint32
	Data []byte
}

// Encoder fragments payloads too large for a peer's effective MTU
// (spec.md §4.7; driven by adnl.Fragmenter — see adnl/fragment.go).
type Encoder interface {
	Params() Params
	// PrepareMoreSymbols is an idempotent precomputation step; callers
	// may call it repeatedly without side effects beyond the first call.
	PrepareMoreSymbols()
	// GenSymbol writes symbol id into out, which must be at least
	// Params().SymbolSize bytes.
	GenSymbol(id uint32, out []byte) error
}

// DecodeStatus reports whether Decoder.TryDecode produced the original
// payload or needs more symbols.
type DecodeStatus int

const (
	NeedMore DecodeStatus = iota
	Ready
)

// Decoder accumulates symbols and attempts reconstruction.
type Decoder interface {
	Params() Params
	AddSymbol(sym Symbol) error
	// MayTryDecode predicts whether enough symbols have accumulated to
	// attempt rank-recovery; a true result is a hint, not a guarantee.
	MayTryDecode() bool
	// TryDecode attempts reconstruction. With strict=true, a failed
	// attempt is an error rather than NeedMore.
	TryDecode(strict bool) (DecodeStatus, []byte, error)
}
