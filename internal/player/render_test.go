package player

import (
	"encoding/binary"
	"testing"

	"gf1synth/internal/events"
	"gf1synth/internal/patch"
	"gf1synth/internal/smf"
)

func TestGetAudioSilentWithNoSequence(t *testing.T) {
	e := New(nil)
	buf := make([]byte, 64*4)
	for i := range buf {
		buf[i] = 0xAA
	}
	e.GetAudio(buf)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0 (silence)", i, b)
		}
	}
}

func TestGetAudioProducesNonZeroOutputForSoundingVoice(t *testing.T) {
	e := New(nil)
	e.PlaySequence(&smf.Sequence{TicksPerBeat: 480, Events: []events.TimedEvent{
		{Time: 0, Event: events.Event{Type: events.NoteOn, Channel: 0, Param1: 60, Param2: 100}},
	}})
	e.FastForwardToNote()

	buf := make([]byte, events.MaxChunkLength*4*4)
	e.GetAudio(buf)

	nonZero := false
	for i := 0; i+1 < len(buf); i += 2 {
		if binary.LittleEndian.Uint16(buf[i:i+2]) != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Fatalf("expected non-silent output from the square-wave fallback after a note-on")
	}
}

func TestSaturate16ClampsToInt16Range(t *testing.T) {
	cases := []struct {
		in   int64
		want int16
	}{
		{0, 0},
		{32767, 32767},
		{32768, 32767},
		{1 << 40, 32767},
		{-32768, -32768},
		{-32769, -32768},
		{-(1 << 40), -32768},
	}
	for _, c := range cases {
		if got := saturate16(c.in); got != c.want {
			t.Fatalf("saturate16(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestAdvanceSampleNonLoopingTerminatesAtEnd(t *testing.T) {
	v := &voice{samplePos: 0, sampleInc: 1100, doLoop: true}
	s := samplePatchFixture(false, false)
	res := advanceSample(v, &s)
	if res != stepDelete {
		t.Fatalf("non-looping sample should delete the voice once past loop end")
	}
}

func TestAdvanceSampleLoopsForward(t *testing.T) {
	v := &voice{samplePos: 0, sampleInc: 1100, doLoop: true}
	s := samplePatchFixture(true, false)
	res := advanceSample(v, &s)
	if res != stepContinue {
		t.Fatalf("looping sample should continue past loop end")
	}
	if v.samplePos < int64(s.LoopStart) || v.samplePos >= int64(s.LoopEnd) {
		t.Fatalf("looped samplePos %d should stay within [%d, %d)", v.samplePos, s.LoopStart, s.LoopEnd)
	}
}

func TestAdvanceSamplePingpongReflects(t *testing.T) {
	v := &voice{samplePos: 0, sampleInc: 1100, doLoop: true}
	s := samplePatchFixture(true, true)
	res := advanceSample(v, &s)
	if res != stepContinue {
		t.Fatalf("pingpong sample should continue past loop end")
	}
	if !v.backwards {
		t.Fatalf("pingpong sample should reverse direction at loop end")
	}
	if v.samplePos < int64(s.LoopStart) || v.samplePos >= int64(s.LoopEnd) {
		t.Fatalf("reflected samplePos %d should stay within [%d, %d)", v.samplePos, s.LoopStart, s.LoopEnd)
	}
}

// samplePatchFixture returns a minimal sample spanning a short loop
// region at the origin, for advanceSample tests.
func samplePatchFixture(loop, pingpong bool) patch.Sample {
	return patch.Sample{
		LoopStart: 0,
		LoopEnd:   1000,
		Loop:      loop,
		Pingpong:  pingpong,
	}
}
