package player

import (
	"testing"

	"gf1synth/internal/events"
	"gf1synth/internal/smf"
)

func TestNewEngineStartsSilent(t *testing.T) {
	e := New(nil)
	if e.CurrentlyPlaying() {
		t.Fatalf("a fresh engine with no sequence should not be playing")
	}
	for ch := 0; ch < events.MaxChannels; ch++ {
		if e.channels[ch].voices != voiceTerminator {
			t.Fatalf("channel %d should have no active voices on a fresh engine", ch)
		}
	}
	if !e.ChannelIsDrums(events.DrumChannelDefault) {
		t.Fatalf("channel %d should default to drums", events.DrumChannelDefault)
	}
}

func TestResetClearsVoicesAndSequence(t *testing.T) {
	e := New(nil)
	e.noteOn(0, 60, 100)
	e.PlaySequence(&smf.Sequence{TicksPerBeat: 480, Events: []events.TimedEvent{
		{Time: 0, Event: events.Event{Type: events.NoteOn, Channel: 0, Param1: 60, Param2: 100}},
	}})

	e.Reset()

	if e.channels[0].voices != voiceTerminator {
		t.Fatalf("Reset should free all voices")
	}
	if e.CurrentlyPlaying() {
		t.Fatalf("Reset should stop playback")
	}
}

func TestPlaySequenceEmptySequenceIsImmediatelyDone(t *testing.T) {
	e := New(nil)
	e.PlaySequence(&smf.Sequence{TicksPerBeat: 480})
	if e.CurrentlyPlaying() {
		t.Fatalf("an empty sequence should report not playing")
	}
}

func TestCurrentlyPlayingWhileVoicesStillSound(t *testing.T) {
	e := New(nil)
	e.PlaySequence(&smf.Sequence{TicksPerBeat: 480, Events: []events.TimedEvent{
		{Time: 0, Event: events.Event{Type: events.NoteOn, Channel: 0, Param1: 60, Param2: 100}},
	}})
	// Drain the one event so the sequence itself is "done".
	e.advanceTimeline()
	if !e.done {
		t.Fatalf("sequence should be done after its only event is consumed")
	}
	e.noteOn(0, 60, 100) // simulate a voice that's still sounding independently
	if !e.CurrentlyPlaying() {
		t.Fatalf("CurrentlyPlaying should stay true while a voice is still active")
	}
}

func TestFastForwardToNoteStopsAtFirstNoteOn(t *testing.T) {
	e := New(nil)
	e.PlaySequence(&smf.Sequence{TicksPerBeat: 480, Events: []events.TimedEvent{
		{Time: 0, Event: events.Event{Type: events.Controller, Channel: 0, Param1: events.CCVolume, Param2: 100}},
		{Time: 10, Event: events.Event{Type: events.NoteOn, Channel: 0, Param1: 60, Param2: 100}},
	}})
	e.FastForwardToNote()

	if e.channels[0].volume != 100 {
		t.Fatalf("controller event before the first note-on should have been applied, volume=%d", e.channels[0].volume)
	}
	if e.seqPos != 1 {
		t.Fatalf("seqPos = %d, want 1 (stopped at the note-on)", e.seqPos)
	}
	if e.clock.TicksToEvent() != 0 {
		t.Fatalf("clock should be armed to fire immediately after fast-forward")
	}
}

func TestSetBankClearsChannelPatchCache(t *testing.T) {
	e := New(nil)
	e.channels[0].patch = nil
	e.SetPatch(0, nil)
	e.SetBank(nil)
	if e.channels[0].patch != nil {
		t.Fatalf("SetBank should clear every channel's cached patch")
	}
}
