// Package patch decodes Gravis/TiMidity "GF1 PATCH" instrument files
// into ready-to-mix Patch/Sample values with precomputed fixed-point
// fields.
package patch

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"gf1synth/internal/events"
	"gf1synth/internal/perr"
)

const (
	sampleRate = events.SampleRate

	bitsModeBits16          = 0x01
	bitsModeUnsigned        = 0x02
	bitsModeLooping         = 0x04
	bitsModePingpong        = 0x08
	bitsModeReverse         = 0x10
	bitsModeSustain         = 0x20
	bitsModeEnvelope        = 0x40
	bitsModeClampedRelease  = 0x80

	tremoloVibratoScale = 38
)

// Sample is one wavetable belonging to a Patch, with every field
// precomputed into the fixed-point representation the player consumes
// directly.
type Sample struct {
	LowFreq  uint32 // 16:16 Hz
	HighFreq uint32 // 16:16 Hz
	RootFreq uint32 // 16:16 Hz

	LoopStart uint64 // 32:32 sample index
	LoopEnd   uint64 // 32:32 sample index

	SampleInc uint64 // 32:32, base delta per output frame at root freq

	EnvelopeRates   [6]uint32 // 15:15
	EnvelopeOffsets [6]uint32 // 15:15

	TremoloSweepInc  uint32 // 8:24
	TremoloPhaseInc  uint32 // 8:24
	TremoloDepth     int16
	VibratoSweepInc  uint32 // 8:24
	VibratoPhaseInc  uint32 // 8:24
	VibratoDepth     int16

	Pan uint8

	// ScaleFactor and ScaleNote support a per-sample detune applied on
	// top of the voice's note at note-on time; every patch decodes them
	// unconditionally even when ScaleFactor is the unity value.
	ScaleFactor uint16 // 1024 = unity
	ScaleNote   uint16 // MIDI note number

	Loop     bool
	Pingpong bool
	Sustain  bool
	ClampedRelease bool

	// Name is the wave's 7-byte label, decoded as Windows-1252.
	Name string

	// Data holds the sample payload plus one trailing guard sample
	// equal to the last, so linear interpolation can always read
	// Data[i] and Data[i+1] without a bounds check.
	Data []int16
}

// Patch is one GF1 PATCH instrument: a set of velocity/frequency
// layered samples plus a base volume and optional overrides applied
// at config-load time.
type Patch struct {
	// Description is the patch author's free-text field, decoded as
	// Windows-1252 (the GF1 format predates UTF-8 and stores raw
	// high-byte bytes that are only meaningful under that code page).
	Description string

	Volume uint16

	// Note, when >= 0, overrides the MIDI note used for pitch
	// calculation (config `note=` option). -1 means "use the
	// sounding MIDI note".
	Note int8

	KeepLoop     bool
	KeepEnvelope bool

	Samples []Sample
}

// SelectSample returns the sample whose HighFreq is the first to
// exceed targetFreq (16:16 Hz), falling back to the last sample if
// none qualifies.
func (p *Patch) SelectSample(targetFreq uint32) *Sample {
	if len(p.Samples) == 0 {
		return nil
	}
	for i := range p.Samples {
		if p.Samples[i].HighFreq > targetFreq {
			return &p.Samples[i]
		}
	}
	return &p.Samples[len(p.Samples)-1]
}

type reader struct {
	r      io.Reader
	offset int
}

func (rd *reader) u8() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(rd.r, b[:]); err != nil {
		return 0, rd.ioErr(err)
	}
	rd.offset++
	return b[0], nil
}

func (rd *reader) u16() (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(rd.r, b[:]); err != nil {
		return 0, rd.ioErr(err)
	}
	rd.offset += 2
	return binary.LittleEndian.Uint16(b[:]), nil
}

func (rd *reader) u32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(rd.r, b[:]); err != nil {
		return 0, rd.ioErr(err)
	}
	rd.offset += 4
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (rd *reader) skip(n int) error {
	if _, err := io.CopyN(io.Discard, rd.r, int64(n)); err != nil {
		return rd.ioErr(err)
	}
	rd.offset += n
	return nil
}

func (rd *reader) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rd.r, buf); err != nil {
		return nil, rd.ioErr(err)
	}
	rd.offset += n
	return buf, nil
}

func (rd *reader) require(want string) error {
	got, err := rd.readN(len(want))
	if err != nil {
		return err
	}
	if string(got) != want {
		return rd.parseErr(fmt.Sprintf("expected %q, got %q", want, got))
	}
	return nil
}

func (rd *reader) ioErr(cause error) error {
	return &perr.ParseError{FileKind: "patch", Offset: rd.offset, Detail: cause.Error()}
}

func (rd *reader) parseErr(detail string) error {
	return &perr.ParseError{FileKind: "patch", Offset: rd.offset, Detail: detail}
}

// decodeLatin1 converts a fixed-width, NUL-padded GF1 text field from
// Windows-1252 to UTF-8 and trims the padding. charmap.Windows1252 is a
// 1:1 byte decoder here, so this can never fail.
func decodeLatin1(b []byte) string {
	decoded, _ := charmap.Windows1252.NewDecoder().Bytes(b)
	return strings.TrimRight(string(decoded), "\x00")
}

// Decode parses a GF1 PATCH file from r into a Patch.
func Decode(r io.Reader) (*Patch, error) {
	rd := &reader{r: r}

	if err := rd.require("GF1PATCH1"); err != nil {
		return nil, err
	}
	if err := rd.skip(1); err != nil {
		return nil, err
	}
	if err := rd.require("0\x00ID#000002\x00"); err != nil {
		return nil, err
	}
	descBytes, err := rd.readN(60)
	if err != nil {
		return nil, err
	}

	nInstruments, err := rd.u8()
	if err != nil {
		return nil, err
	}
	if nInstruments > 1 {
		return nil, rd.parseErr("too many instruments")
	}
	if err := rd.skip(1 + 1 + 2); err != nil { // voices, channels, waveforms
		return nil, err
	}

	pat := &Patch{Note: -1, Description: decodeLatin1(descBytes)}
	vol, err := rd.u16()
	if err != nil {
		return nil, err
	}
	pat.Volume = vol

	if err := rd.skip(4 + 36); err != nil { // data size, reserved
		return nil, err
	}

	instrumentID, err := rd.u16()
	if err != nil {
		return nil, err
	}
	if instrumentID != 0 {
		return nil, rd.parseErr("instrument ID was not 0")
	}
	if err := rd.skip(16 + 4); err != nil { // name, size
		return nil, err
	}

	nLayers, err := rd.u8()
	if err != nil {
		return nil, err
	}
	if nLayers != 1 {
		return nil, rd.parseErr("instrument has more than one layer")
	}
	if err := rd.skip(40); err != nil {
		return nil, err
	}

	layerDup, err := rd.u8()
	if err != nil {
		return nil, err
	}
	if layerDup != 0 {
		return nil, rd.parseErr("layer duplicate field was not 0")
	}
	layerID, err := rd.u8()
	if err != nil {
		return nil, err
	}
	if layerID != 0 {
		return nil, rd.parseErr("layer ID field was not 0")
	}
	if err := rd.skip(4); err != nil { // layer size
		return nil, err
	}

	nSamples, err := rd.u8()
	if err != nil {
		return nil, err
	}
	if err := rd.skip(40); err != nil {
		return nil, err
	}

	pat.Samples = make([]Sample, nSamples)
	for i := range pat.Samples {
		s, err := decodeSample(rd)
		if err != nil {
			return nil, err
		}
		pat.Samples[i] = s
	}
	return pat, nil
}

func decodeSample(rd *reader) (Sample, error) {
	var s Sample

	nameBytes, err := rd.readN(7)
	if err != nil {
		return s, err
	}
	s.Name = decodeLatin1(nameBytes)
	fractions, err := rd.u8()
	if err != nil {
		return s, err
	}

	dataSizeBytes, err := rd.u32()
	if err != nil {
		return s, err
	}
	dataSize := dataSizeBytes / 2

	loopStartBytes, err := rd.u32()
	if err != nil {
		return s, err
	}
	loopEndBytes, err := rd.u32()
	if err != nil {
		return s, err
	}
	s.LoopStart = (uint64(loopStartBytes)<<32 + uint64(fractions&0xF)<<28) / 2
	s.LoopEnd = (uint64(loopEndBytes)<<32 + uint64((fractions>>4)&0xF)<<28) / 2

	nativeRate, err := rd.u16()
	if err != nil {
		return s, err
	}
	s.SampleInc = uint64(nativeRate) << 32 / sampleRate

	lowFreqMilli, err := rd.u32()
	if err != nil {
		return s, err
	}
	highFreqMilli, err := rd.u32()
	if err != nil {
		return s, err
	}
	rootFreqMilli, err := rd.u32()
	if err != nil {
		return s, err
	}
	s.LowFreq = uint32(uint64(lowFreqMilli) << 16 / 1000)
	s.HighFreq = uint32(uint64(highFreqMilli) << 16 / 1000)
	s.RootFreq = uint32(uint64(rootFreqMilli) << 16 / 1000)

	if err := rd.skip(2); err != nil { // tune
		return s, err
	}
	pan, err := rd.u8()
	if err != nil {
		return s, err
	}
	s.Pan = pan

	// Envelope rate byte packs a 2-bit exponent and 6-bit mantissa
	// into a 15:15 fixed-point ramp rate, per the TiMidity patch format.
	for j := 0; j < 6; j++ {
		b, err := rd.u8()
		if err != nil {
			return s, err
		}
		val := uint32(b&0x3F) << (3 * (3 - ((b >> 6) & 3)))
		s.EnvelopeRates[j] = (val * 44100 / sampleRate) << 9
	}
	for j := 0; j < 6; j++ {
		b, err := rd.u8()
		if err != nil {
			return s, err
		}
		s.EnvelopeOffsets[j] = uint32(b) << 22
	}

	trSweep, err := rd.u8()
	if err != nil {
		return s, err
	}
	s.TremoloSweepInc = sweepInc(trSweep)
	trPhase, err := rd.u8()
	if err != nil {
		return s, err
	}
	s.TremoloPhaseInc = phaseInc(trPhase)
	trDepth, err := rd.u8()
	if err != nil {
		return s, err
	}
	s.TremoloDepth = int16(trDepth)

	vbSweep, err := rd.u8()
	if err != nil {
		return s, err
	}
	s.VibratoSweepInc = sweepInc(vbSweep)
	vbPhase, err := rd.u8()
	if err != nil {
		return s, err
	}
	s.VibratoPhaseInc = phaseInc(vbPhase)
	vbDepth, err := rd.u8()
	if err != nil {
		return s, err
	}
	s.VibratoDepth = int16(vbDepth)

	modeBits, err := rd.u8()
	if err != nil {
		return s, err
	}
	scaleFreq, err := rd.u16()
	if err != nil {
		return s, err
	}
	scaleFactor, err := rd.u16()
	if err != nil {
		return s, err
	}
	s.ScaleNote = scaleFreq
	s.ScaleFactor = scaleFactor
	if err := rd.skip(36); err != nil { // reserved
		return s, err
	}

	raw, err := rd.readN(int(dataSize) * 2)
	if err != nil {
		return s, err
	}
	if modeBits&bitsModeBits16 == 0 {
		return s, &perr.UnsupportedFeature{What: "8-bit samples"}
	}
	if modeBits&bitsModeReverse != 0 {
		return s, &perr.UnsupportedFeature{What: "reverse-playback samples"}
	}

	data := make([]int16, dataSize+1)
	for i := 0; i < int(dataSize); i++ {
		v := binary.LittleEndian.Uint16(raw[i*2 : i*2+2])
		if modeBits&bitsModeUnsigned != 0 {
			v ^= 0x8000
		}
		data[i] = int16(v)
	}
	if dataSize > 0 {
		data[dataSize] = data[dataSize-1] // interpolation guard
	}
	s.Data = data

	s.Loop = modeBits&bitsModeLooping != 0
	s.Pingpong = modeBits&bitsModePingpong != 0
	s.Sustain = modeBits&bitsModeSustain != 0
	s.ClampedRelease = modeBits&bitsModeClampedRelease != 0

	return s, nil
}

// sweepInc converts a raw sweep-rate byte into an 8:24 fixed-point
// per-control-tick increment. A zero rate means "no sweep"; the 38
// factor is TiMidity's conventional scaling constant.
func sweepInc(rate byte) uint32 {
	if rate == 0 {
		return 0
	}
	return tremoloVibratoScale * (1 << 24) / (sampleRate * uint32(rate))
}

func phaseInc(rate byte) uint32 {
	return uint32(rate) * (1 << 24) / (tremoloVibratoScale * sampleRate)
}
