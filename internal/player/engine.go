// Package player is the playback engine: tick clock, event dispatch,
// channel and voice state machines, wavetable resampling, envelopes,
// LFOs, and mixing.
package player

import (
	"gf1synth/internal/config"
	"gf1synth/internal/diag"
	"gf1synth/internal/events"
	"gf1synth/internal/patch"
	"gf1synth/internal/smf"
	"gf1synth/internal/tables"
	"gf1synth/internal/tick"
)

// Engine is a single-threaded, single-owner MIDI synthesizer instance.
// All mutable state lives inside the value; the only shared global
// state is the one-shot, memoized lookup-table initialization in
// package tables. Callers must not invoke GetAudio concurrently with
// any other method on the same Engine.
type Engine struct {
	bank     *config.Bank
	channels [events.MaxChannels]channel
	pool     pool

	seq      *smf.Sequence
	seqPos   int
	clock    *tick.Clock
	done     bool

	log *diag.Logger
}

// New returns an initialized engine with no sequence and an empty
// bank. Lookup-table initialization is idempotent, so constructing
// many engines is cheap after the first.
func New(log *diag.Logger) *Engine {
	tables.Init()
	e := &Engine{bank: &config.Bank{}, log: log}
	e.Reset()
	return e
}

// Reset returns the engine to a freshly constructed state: every
// channel's controllers at GM defaults, the voice pool fully
// deallocated, and playback stopped. It is equivalent to replaying a
// synthetic COMMON/RESET event.
func (e *Engine) Reset() {
	e.pool.reset()
	for i := range e.channels {
		e.channels[i].reset(i == events.DrumChannelDefault)
	}
	e.seq = nil
	e.seqPos = 0
	e.clock = nil
	e.done = true
	e.log.Logf(diag.ComponentPlayer, diag.LogLevelInfo, "engine reset")
}

// SetBank replaces the active patch bank. Doing so issues an
// ALL_SOUND_OFF equivalent first so no voice can hold a reference
// into patches about to be replaced.
func (e *Engine) SetBank(b *config.Bank) {
	e.allSoundOff()
	e.bank = b
	for i := range e.channels {
		e.channels[i].patch = nil
	}
}

// SetPatch installs a single melodic patch at the given program slot.
func (e *Engine) SetPatch(program int, p *patch.Patch) {
	if program < 0 || program > 127 {
		return
	}
	e.allSoundOff()
	e.bank.Patches[program] = p
	for i := range e.channels {
		e.channels[i].patch = nil
	}
}

// SetDrum installs a single percussion patch at the given note slot.
func (e *Engine) SetDrum(note int, p *patch.Patch) {
	if note < 0 || note > 127 {
		return
	}
	e.allSoundOff()
	e.bank.Drums[note] = p
}

// ChannelSetDrums overrides channel ch's drum flag.
func (e *Engine) ChannelSetDrums(ch int, isDrums bool) {
	if ch < 0 || ch >= events.MaxChannels {
		return
	}
	e.channels[ch].isDrums = isDrums
}

// ChannelIsDrums reports channel ch's current drum flag.
func (e *Engine) ChannelIsDrums(ch int) bool {
	if ch < 0 || ch >= events.MaxChannels {
		return false
	}
	return e.channels[ch].isDrums
}

// PlaySequence installs seq and starts playback from tick 0.
func (e *Engine) PlaySequence(seq *smf.Sequence) {
	e.seq = seq
	e.seqPos = 0
	e.done = len(seq.Events) == 0
	e.clock = tick.New(uint32(seq.TicksPerBeat))
	if !e.done {
		e.clock.Start(seq.Events[0].Time)
	}
	e.log.Logf(diag.ComponentPlayer, diag.LogLevelDebug, "sequence installed: %d events, tpb=%d", len(seq.Events), seq.TicksPerBeat)
}

// CurrentlyPlaying is true while events remain in the installed
// sequence or at least one voice is still sounding.
func (e *Engine) CurrentlyPlaying() bool {
	if e.seq == nil {
		return false
	}
	if !e.done {
		return true
	}
	for i := range e.channels {
		if e.channels[i].voices != voiceTerminator {
			return true
		}
	}
	return false
}

// FastForwardToNote dispatches events until the next NOTE_ON is
// encountered, then zeros the ticks remaining until that event so the
// following GetAudio call dispatches it at its first tick boundary
// (one tick length into the buffer) instead of waiting out the ticks
// before it: useful for skipping preamble setup events with no
// audible effect.
func (e *Engine) FastForwardToNote() {
	if e.seq == nil {
		return
	}
	for !e.done && e.seq.Events[e.seqPos].Event.Type != events.NoteOn {
		e.PlayEvent(e.seq.Events[e.seqPos].Event)
		e.advanceSeqPos()
	}
	if e.clock != nil {
		e.clock.SetTicksToNextEvent(0)
	}
}

func (e *Engine) advanceSeqPos() {
	e.seqPos++
	if e.seqPos >= len(e.seq.Events) {
		e.done = true
	}
}

func (e *Engine) allSoundOff() {
	for i := range e.channels {
		e.pool.freeAll(&e.channels[i].voices)
	}
}
