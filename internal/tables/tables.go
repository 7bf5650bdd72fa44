// Package tables holds the synthesizer's read-only lookup tables:
// a one-octave frequency table, a perceptual volume curve, a sine
// table, and an envelope exponential table. They are computed once
// with ordinary floating-point math and frozen into fixed-point
// values that the render path only ever reads, built together behind
// a sync.Once on first use.
package tables

import (
	"math"
	"sync"

	"gf1synth/internal/events"
)

// octaveSpan is one octave expressed in 16:16 note units (12
// semitones, each worth 0x10000).
const octaveSpan = uint32(12) << 16

// Freqs holds the absolute frequency, in 16:16 Hz, of MIDI note
// numbers 0 through 12 at FreqsSize-step resolution. Because every
// octave doubles frequency, Freq reconstructs any note's frequency by
// indexing this one-octave table and left-shifting by the octave
// count — no need to tabulate the full note range.
var Freqs [events.FreqsSize]uint32

// Vols maps a 7-bit MIDI volume/velocity/expression value to a 16-bit
// linear gain, using TiMidity's perceptual exponent of 1.66096404744.
var Vols [events.VolsSize]uint16

// Sines holds one full sine period scaled to ±32767, so tremolo and
// vibrato LFOs stay in the same fixed-point idiom as the rest of the
// render path instead of crossing into floating point mid-pipeline.
var Sines [events.SinesSize]int32

// Pows holds 2^x for x in [-6, 0] scaled to a 16-bit linear gain,
// used to convert the envelope's logarithmic value into amplitude.
var Pows [events.EnvsSize]uint32

var once sync.Once

// Init builds all tables. It is idempotent and safe to call from
// multiple goroutines; the first call does the work and all callers
// block until it completes.
func Init() {
	once.Do(func() {
		initFreqs()
		initVols()
		initSines()
		initPows()
	})
}

func initFreqs() {
	for i := 0; i < events.FreqsSize; i++ {
		note := float64(i) * 12.0 / float64(events.FreqsSize)
		hz := 440.0 * math.Pow(2.0, (note-69.0)/12.0)
		Freqs[i] = uint32(hz * 65536.0)
	}
}

func initVols() {
	for i := 0; i < events.VolsSize; i++ {
		Vols[i] = uint16(65535 * math.Pow(float64(i)/127.0, 1.66096404744))
	}
}

func initSines() {
	for i := 0; i < events.SinesSize; i++ {
		Sines[i] = int32(math.Round(math.Sin(2*math.Pi*float64(i)/float64(events.SinesSize)) * 32767))
	}
}

func initPows() {
	for i := 0; i < events.EnvsSize; i++ {
		x := float64(i)/float64(events.EnvsSize-1) - 1
		Pows[i] = uint32(65535 * math.Pow(2.0, x*6))
	}
}

// Freq converts a 16:16 fixed-point note number into a frequency in
// 16:16 Hz, folding full octaves into a left shift of the one-octave
// table instead of tabulating the full note range.
func Freq(noteQ uint32) uint32 {
	octave := noteQ / octaveSpan
	within := noteQ % octaveSpan
	idx := uint64(within) * uint64(events.FreqsSize) / uint64(octaveSpan)
	if idx >= events.FreqsSize {
		idx = events.FreqsSize - 1
	}
	return Freqs[idx] << octave
}

// Sine samples the sine table at an 8:24 fixed-point phase, indexing
// by the top bits and ignoring the fractional remainder.
func Sine(phase uint32) int32 {
	idx := (phase >> 14) % events.SinesSize
	return Sines[idx]
}

// Pow2 samples the envelope exponential table at an index in
// [0, EnvsSize).
func Pow2(idx uint32) uint32 {
	if idx >= events.EnvsSize {
		idx = events.EnvsSize - 1
	}
	return Pows[idx]
}
