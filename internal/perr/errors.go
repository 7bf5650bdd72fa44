// Package perr defines the typed error kinds decoders return. The
// playback engine's realtime methods never return these, or any
// error — they degrade silently instead (dropped event, emitted silence,
// square-wave fallback).
package perr

import "fmt"

// ParseError reports a structural problem in an SMF, GF1 PATCH, or
// config file.
type ParseError struct {
	FileKind string // "smf", "patch", "config"
	Offset   int
	Detail   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse error at offset %d: %s", e.FileKind, e.Offset, e.Detail)
}

// UnsupportedFeature reports a structurally valid file that uses a
// feature this decoder deliberately does not implement: SMPTE
// division, 8-bit samples, reverse playback.
type UnsupportedFeature struct {
	What string
}

func (e *UnsupportedFeature) Error() string {
	return fmt.Sprintf("unsupported feature: %s", e.What)
}

// IoError wraps a failure to read a named file.
type IoError struct {
	Path  string
	Cause error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("io error reading %s: %v", e.Path, e.Cause)
}

func (e *IoError) Unwrap() error {
	return e.Cause
}

// BankSlotEmpty reports that a (bank, program) pair has no assigned
// patch. This is non-fatal: the engine resolves it as "no patch,
// square-wave fallback" and never surfaces it through the realtime API.
type BankSlotEmpty struct {
	Bank    int
	Program int
}

func (e *BankSlotEmpty) Error() string {
	return fmt.Sprintf("bank %d program %d: no patch assigned", e.Bank, e.Program)
}
