package player

import (
	"gf1synth/internal/diag"
	"gf1synth/internal/events"
	"gf1synth/internal/tables"
)

// PlayEvent injects a single event for immediate, out-of-band
// dispatch. It is infallible: malformed or unrecognized events are
// silently ignored rather than surfaced as an error.
func (e *Engine) PlayEvent(ev events.Event) {
	switch ev.Type {
	case events.NoteOff:
		e.noteOff(ev.Channel, ev.Param1)
	case events.NoteOn:
		if ev.Param2 == 0 {
			e.noteOff(ev.Channel, ev.Param1)
		} else {
			e.noteOn(ev.Channel, ev.Param1, ev.Param2)
		}
	case events.Controller:
		e.controller(ev.Channel, ev.Param1, ev.Param2)
	case events.ProgramChange:
		e.programChange(ev.Channel, ev.Param1)
	case events.PitchBend:
		e.pitchBend(ev.Channel, ev.Param1, ev.Param2)
	case events.Common:
		e.common(ev.Channel)
	case events.SetTempo:
		e.setTempo(ev.Channel, ev.Param1, ev.Param2)
	default:
		// PolyAftertouch, ChannelAftertouch, and any other nibble: no-op.
	}
}

// noteOff releases the first voice on the channel whose note matches
// and is not already releasing. Only the first match is released —
// deliberate: a chord with repeated identical notes releases
// most-recently-struck first (new voices are pushed onto the list
// head), one per NOTE_OFF.
func (e *Engine) noteOff(ch, note byte) {
	if int(ch) >= events.MaxChannels || e.channels[ch].isDrums {
		return
	}
	for i := e.channels[ch].voices; i != voiceTerminator; i = e.pool.voices[i].next {
		v := &e.pool.voices[i]
		if v.note == note && v.envelopePhase < 3 {
			v.envelopePhase = 3
			return
		}
	}
}

func (e *Engine) noteOn(chIdx, note, velocity byte) {
	if int(chIdx) >= events.MaxChannels {
		return
	}
	idx, ok := e.pool.allocate()
	if !ok {
		e.log.Logf(diag.ComponentPlayer, diag.LogLevelWarning, "voice pool exhausted, dropping note-on ch=%d note=%d", chIdx, note)
		return
	}
	ch := &e.channels[chIdx]
	e.pool.pushFront(&ch.voices, idx)

	v := &e.pool.voices[idx]
	*v = voice{next: v.next}
	v.note = note
	v.velocity = velocity

	if ch.isDrums {
		v.patch = e.bank.Drums[note]
	} else {
		v.patch = ch.patch
	}
	v.doEnvelope = true
	v.doLoop = true
	if ch.isDrums && v.patch != nil {
		v.doEnvelope = v.patch.KeepEnvelope
		v.doLoop = v.patch.KeepLoop
	}

	if v.patch != nil {
		if v.patch.Note >= 0 {
			v.note = byte(v.patch.Note)
		}
		freq := tables.Freq(uint32(v.note) << 16)
		v.sample = v.patch.SelectSample(freq)
		if v.sample != nil && v.sample.ScaleFactor != 0 {
			detune := (int32(v.note) - int32(v.sample.ScaleNote)) * (int32(v.sample.ScaleFactor) - 1024) / 1024
			v.detunedNote = int32(v.note) + detune
		} else {
			v.detunedNote = int32(v.note)
		}
	} else {
		v.detunedNote = int32(v.note)
	}
}

func (e *Engine) controller(ch, number, value byte) {
	if int(ch) >= events.MaxChannels {
		return
	}
	c := &e.channels[ch]
	switch number {
	case events.CCBankSelect:
		c.bank = value
	case events.CCVolume:
		c.volume = value
	case events.CCExpression:
		c.expression = value
	case events.CCPan:
		c.pan = int8(value) - 64
	case events.CCDataEntryMSB:
		if c.rpnSelector() == events.RPNPitchBendRange {
			c.pitchBendSensitivity = uint32(value)<<16 | c.pitchBendSensitivity&0xFFFF
		}
	case events.CCDataEntryLSB:
		if c.rpnSelector() == events.RPNPitchBendRange {
			cents := value
			if cents > 99 {
				cents = 99
			}
			c.pitchBendSensitivity = c.pitchBendSensitivity&0xFFFF0000 | uint32(cents)<<16/100
		}
	case events.CCRPNLSB:
		c.rpnLSB = value
	case events.CCRPNMSB:
		c.rpnMSB = value
	case events.CCAllSoundOff:
		e.pool.freeAll(&c.voices)
	case events.CCAllControllersOff:
		drums := c.isDrums
		patchCache := c.patch
		program, bank, voices := c.program, c.bank, c.voices
		c.reset(drums)
		c.patch = patchCache
		c.program, c.bank, c.voices = program, bank, voices
	case events.CCAllNotesOff:
		for i := c.voices; i != voiceTerminator; i = e.pool.voices[i].next {
			if e.pool.voices[i].envelopePhase < 3 {
				e.pool.voices[i].envelopePhase = 3
			}
		}
	default:
		// Modulation, balance, NRPN select, and unlisted controllers: ignored.
	}
}

// programChange resolves the channel's cached patch. Currently
// sounding voices are not silenced — patch replacement takes effect
// only for notes struck afterward; pinned by dispatch_test.go.
func (e *Engine) programChange(ch, program byte) {
	if int(ch) >= events.MaxChannels {
		return
	}
	c := &e.channels[ch]
	c.program = program
	if int(program) < len(e.bank.Patches) {
		c.patch = e.bank.Patches[program]
	}
}

func (e *Engine) pitchBend(ch, lsb, msb byte) {
	if int(ch) >= events.MaxChannels {
		return
	}
	e.channels[ch].pitchBend = int16(uint16(msb)<<7|uint16(lsb)) - 0x2000
}

// common handles the flattened COMMON event family, whose sub-type
// byte rides in Channel. The SMF decoder emits none of these; they
// reach the engine only through PlayEvent.
func (e *Engine) common(subType byte) {
	switch subType {
	case events.CommonReset:
		e.Reset()
	case events.CommonAllSoundOff:
		e.allSoundOff()
	case events.CommonAllControllersOff:
		for i := range e.channels {
			e.controller(byte(i), events.CCAllControllersOff, 0)
		}
	case events.CommonAllNotesOff:
		for i := range e.channels {
			e.controller(byte(i), events.CCAllNotesOff, 0)
		}
	}
}

func (e *Engine) setTempo(channel, param1, param2 byte) {
	if e.seq == nil || e.clock == nil {
		return
	}
	usPerBeat := uint32(channel)<<16 | uint32(param1)<<8 | uint32(param2)
	e.clock.SetTempo(usPerBeat)
}
