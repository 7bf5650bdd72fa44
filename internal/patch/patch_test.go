package patch

import (
	"bytes"
	"encoding/binary"
	"testing"

	"gf1synth/internal/perr"
)

// patchBuilder assembles a synthetic GF1 PATCH byte stream field by
// field, mirroring decodeSample's read order exactly.
type patchBuilder struct {
	buf bytes.Buffer
}

func newPatchBuilder() *patchBuilder { return &patchBuilder{} }

func (b *patchBuilder) u8(v byte)     { b.buf.WriteByte(v) }
func (b *patchBuilder) u16(v uint16)  { binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *patchBuilder) u32(v uint32)  { binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *patchBuilder) raw(p []byte)  { b.buf.Write(p) }
func (b *patchBuilder) zeros(n int)   { b.buf.Write(make([]byte, n)) }
func (b *patchBuilder) str(s string)  { b.buf.WriteString(s) }

// sampleSpec describes one decodeSample record with only the fields a
// test cares about; everything else defaults to zero.
type sampleSpec struct {
	dataSize   uint32 // sample count, not bytes
	nativeRate uint16
	lowFreq, highFreq, rootFreq uint32 // milli-Hz
	modeBits   byte
	data       []int16
}

func (b *patchBuilder) writeSample(s sampleSpec) {
	b.str("waveabc")      // 7-byte name, already 7 chars
	b.u8(0)                // fractions
	b.u32(s.dataSize * 2)  // data size in bytes
	b.u32(0)                // loop start bytes
	b.u32(s.dataSize * 2)  // loop end bytes (end of data)
	b.u16(s.nativeRate)
	b.u32(s.lowFreq)
	b.u32(s.highFreq)
	b.u32(s.rootFreq)
	b.zeros(2) // tune
	b.u8(64)   // pan
	for i := 0; i < 6; i++ {
		b.u8(0) // envelope rates
	}
	for i := 0; i < 6; i++ {
		b.u8(0) // envelope offsets
	}
	b.u8(0) // tremolo sweep
	b.u8(0) // tremolo phase
	b.u8(0) // tremolo depth
	b.u8(0) // vibrato sweep
	b.u8(0) // vibrato phase
	b.u8(0) // vibrato depth
	b.u8(s.modeBits)
	b.u16(0) // scale frequency
	b.u16(1024) // scale factor (unity)
	b.zeros(36)  // reserved

	for _, v := range s.data {
		b.u16(uint16(v))
	}
}

// buildPatchFile assembles a full single-instrument, single-layer GF1
// PATCH file with the given samples.
func buildPatchFile(samples []sampleSpec) []byte {
	b := newPatchBuilder()
	b.str("GF1PATCH1")
	b.u8(0)
	b.str("0\x00ID#000002\x00")
	b.zeros(60)   // description
	b.u8(1)       // nInstruments
	b.zeros(1 + 1 + 2)
	b.u16(256) // volume
	b.zeros(4 + 36)
	b.u16(0) // instrument ID
	b.zeros(16 + 4)
	b.u8(1) // nLayers
	b.zeros(40)
	b.u8(0) // layer dup
	b.u8(0) // layer ID
	b.zeros(4)
	b.u8(byte(len(samples)))
	b.zeros(40)
	for _, s := range samples {
		b.writeSample(s)
	}
	return b.buf.Bytes()
}

func TestDecodeSingleSample(t *testing.T) {
	data := buildPatchFile([]sampleSpec{
		{
			dataSize:   4,
			nativeRate: 44100,
			lowFreq:    0,
			highFreq:   20000000,
			rootFreq:   440000,
			modeBits:   bitsModeBits16,
			data:       []int16{100, 200, -300, 400},
		},
	})

	p, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p.Volume != 256 {
		t.Fatalf("Volume = %d, want 256", p.Volume)
	}
	if len(p.Samples) != 1 {
		t.Fatalf("len(Samples) = %d, want 1", len(p.Samples))
	}
	s := &p.Samples[0]
	if len(s.Data) != 5 {
		t.Fatalf("len(Data) = %d, want 5 (4 samples + guard)", len(s.Data))
	}
	if s.Data[4] != s.Data[3] {
		t.Fatalf("guard sample = %d, want %d (copy of last)", s.Data[4], s.Data[3])
	}
	if s.Data[0] != 100 || s.Data[2] != -300 {
		t.Fatalf("sample data mismatch: got %v", s.Data[:4])
	}
	if s.Name != "waveabc" {
		t.Fatalf("Name = %q, want %q", s.Name, "waveabc")
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	data := []byte("NOTAGF1PATCHFILE")
	if _, err := Decode(bytes.NewReader(data)); err == nil {
		t.Fatalf("expected error for bad magic")
	} else if _, ok := err.(*perr.ParseError); !ok {
		t.Fatalf("expected *perr.ParseError, got %T", err)
	}
}

func TestDecodeRejects8BitSamples(t *testing.T) {
	data := buildPatchFile([]sampleSpec{
		{dataSize: 2, nativeRate: 22050, data: []int16{1, 2}, modeBits: 0},
	})
	_, err := Decode(bytes.NewReader(data))
	if err == nil {
		t.Fatalf("expected error for 8-bit sample")
	}
}

func TestDecodeRejectsReverseSamples(t *testing.T) {
	data := buildPatchFile([]sampleSpec{
		{dataSize: 2, nativeRate: 22050, data: []int16{1, 2}, modeBits: bitsModeBits16 | bitsModeReverse},
	})
	_, err := Decode(bytes.NewReader(data))
	if _, ok := err.(*perr.UnsupportedFeature); !ok {
		t.Fatalf("expected *perr.UnsupportedFeature, got %v (%T)", err, err)
	}
}

func TestDecodeUnsignedSamplesConvertedToSigned(t *testing.T) {
	// Unsigned 0x8000 (mid-scale) should decode to signed 0.
	data := buildPatchFile([]sampleSpec{
		{
			dataSize:   1,
			nativeRate: 44100,
			modeBits:   bitsModeBits16 | bitsModeUnsigned,
			data:       []int16{-0x8000}, // raw bits 0x8000
		},
	})
	p, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p.Samples[0].Data[0] != 0 {
		t.Fatalf("unsigned 0x8000 decoded to %d, want 0", p.Samples[0].Data[0])
	}
}

func TestSelectSampleFallsBackToLast(t *testing.T) {
	p := &Patch{Samples: []Sample{
		{HighFreq: 1 << 16},
		{HighFreq: 2 << 16},
	}}
	got := p.SelectSample(10 << 16)
	if got != &p.Samples[1] {
		t.Fatalf("SelectSample should fall back to the last sample when none qualify")
	}
}

func TestSelectSampleFirstQualifying(t *testing.T) {
	p := &Patch{Samples: []Sample{
		{HighFreq: 1 << 16},
		{HighFreq: 5 << 16},
		{HighFreq: 10 << 16},
	}}
	got := p.SelectSample(3 << 16)
	if got != &p.Samples[1] {
		t.Fatalf("SelectSample should pick the first sample whose HighFreq exceeds target")
	}
}

func TestSelectSampleEmptyPatch(t *testing.T) {
	p := &Patch{}
	if got := p.SelectSample(0); got != nil {
		t.Fatalf("SelectSample on empty patch = %v, want nil", got)
	}
}
