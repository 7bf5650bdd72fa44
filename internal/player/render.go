package player

import (
	"encoding/binary"

	"gf1synth/internal/events"
	"gf1synth/internal/patch"
	"gf1synth/internal/tables"
)

const (
	sweepMax   = uint32(0x1000000) // 8:24, one full sweep
	phaseWrap  = uint32(0x1000000) // 8:24, one full LFO cycle
	envelopeReleasePhase = 3
	envelopeLastPhase    = 5
	sustainPhase         = 2
)

// GetAudio fills buf (len(buf) must be a multiple of 4: interleaved
// stereo i16 LE) with rendered audio, or silence if there is no
// installed sequence or playback has finished. It never blocks or allocates on the hot path beyond the
// MaxChunkLength-bounded accumulator.
func (e *Engine) GetAudio(buf []byte) {
	frames := len(buf) / 4
	if e.seq == nil || e.clock == nil {
		zeroFill(buf[:frames*4])
		return
	}

	bufPos := 0
	var accum [events.MaxChunkLength][2]int64

	for bufPos < frames {
		if e.clock.AtTickBoundary() {
			e.advanceTimeline()
		}

		chunk := int(e.clock.ChunkLimit(uint32(frames - bufPos)))
		if chunk == 0 {
			zeroFill(buf[bufPos*4:])
			break
		}
		e.clock.ConsumeSamples(uint32(chunk))

		for i := 0; i < chunk; i++ {
			accum[i][0] = 0
			accum[i][1] = 0
		}
		for ci := range e.channels {
			e.renderChannelVoices(&e.channels[ci], chunk, accum[:chunk])
		}

		for i := 0; i < chunk; i++ {
			writeFrame(buf[(bufPos+i)*4:], accum[i][0], accum[i][1])
		}
		bufPos += chunk
	}
}

func zeroFill(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}

func writeFrame(dst []byte, left, right int64) {
	binary.LittleEndian.PutUint16(dst[0:2], uint16(saturate16(left)))
	binary.LittleEndian.PutUint16(dst[2:4], uint16(saturate16(right)))
}

func saturate16(v int64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// advanceTimeline dispatches every event due at the current tick, then
// arms the clock for the delta to the next pending event.
func (e *Engine) advanceTimeline() {
	for !e.done && e.clock.AtEvent() {
		ev := e.seq.Events[e.seqPos]
		e.PlayEvent(ev.Event)
		oldTime := ev.Time
		e.advanceSeqPos()
		if !e.done {
			e.clock.SetTicksToNextEvent(e.seq.Events[e.seqPos].Time - oldTime)
		}
	}
	e.clock.AdvanceTick()
}

// renderChannelVoices walks one channel's active-voice list, mixing
// each voice into accum and splicing deleted voices back to the
// inactive list in place — the Go equivalent of the source's
// mutating-predecessor-pointer list walk.
func (e *Engine) renderChannelVoices(ch *channel, chunk int, accum [][2]int64) {
	prevNext := &ch.voices
	idx := *prevNext
	for idx != voiceTerminator {
		v := &e.pool.voices[idx]
		next := v.next

		result := e.stepVoice(ch, v, chunk, accum)
		if result == stepDelete {
			*prevNext = next
			e.pool.free(idx)
		} else {
			prevNext = &v.next
		}
		idx = next
	}
}

func (e *Engine) stepVoice(ch *channel, v *voice, chunk int, accum [][2]int64) stepResult {
	if v.patch == nil || v.sample == nil {
		return stepSquareWave(ch, v, chunk, accum)
	}
	sample := v.sample
	for i := 0; i < chunk; i++ {
		if v.controlTimer == 0 {
			v.controlTimer = events.ControlUpdateInterval
			if updateControls(ch, v, sample) == stepDelete {
				return stepDelete
			}
		}
		v.controlTimer--

		high := uint32(v.samplePos >> 32)
		low := uint64(v.samplePos) & 0xFFFFFFFF
		if int(high)+1 >= len(sample.Data) {
			return stepDelete
		}
		samp := int64(sample.Data[high])*int64(0x100000000-low) + int64(sample.Data[high+1])*int64(low)
		val := samp / 0x100000000 * int64(v.volume) / 0x10000

		pan := int64(ch.pan)
		accum[i][0] += val * (64 + pan) / 64
		accum[i][1] += val * (64 - pan) / 64

		if res := advanceSample(v, sample); res == stepDelete {
			return stepDelete
		}
	}
	return stepContinue
}

// updateControls runs the once-per-ControlUpdateInterval envelope,
// tremolo, vibrato, and composite-volume/pitch recomputation.
func updateControls(ch *channel, v *voice, sample *patch.Sample) stepResult {
	if !v.doEnvelope {
		v.envelopeValue = 0x3FF00000
	} else if res := stepEnvelope(v, sample); res == stepDelete {
		return stepDelete
	}

	v.tremoloSweep += sample.TremoloSweepInc * events.ControlUpdateInterval
	if v.tremoloSweep > sweepMax {
		v.tremoloSweep = sweepMax
	}
	v.tremoloPhase += sample.TremoloPhaseInc * events.ControlUpdateInterval
	if v.tremoloPhase >= phaseWrap {
		v.tremoloPhase -= phaseWrap
	}
	tremolo := lfoValue(sample.TremoloDepth, v.tremoloSweep, v.tremoloPhase)

	if v.envelopePhase < envelopeReleasePhase {
		v.channelVolume = uint32(tables.Vols[ch.volume]) * uint32(tables.Vols[ch.expression]) / 0x10000
	}

	v.volume = uint32(
		uint64(v.patch.Volume) * 0x100 *
			uint64(v.channelVolume) / 0x10000 *
			uint64(tables.Vols[v.velocity]) / 0x10000 *
			uint64(tables.Pow2(v.envelopeValue/0x100000)) / 0x10000 *
			uint64(int64(0x10000)+tremolo) / 0x10000,
	)

	v.vibratoSweep += sample.VibratoSweepInc * events.ControlUpdateInterval
	if v.vibratoSweep > sweepMax {
		v.vibratoSweep = sweepMax
	}
	v.vibratoPhase += sample.VibratoPhaseInc * events.ControlUpdateInterval
	if v.vibratoPhase >= phaseWrap {
		v.vibratoPhase -= phaseWrap
	}
	vibrato := lfoValue(sample.VibratoDepth, v.vibratoSweep, v.vibratoPhase)

	noteQ := uint32(int64(v.detunedNote)<<16 + int64(ch.pitchBend)*int64(ch.pitchBendSensitivity)/0x2000 + vibrato*4)
	v.sampleInc = int64(sample.SampleInc) * int64(tables.Freq(noteQ)) / int64(sample.RootFreq)

	return stepContinue
}

// stepEnvelope advances the six-segment amplitude envelope by one
// control tick.
func stepEnvelope(v *voice, sample *patch.Sample) stepResult {
	rate := sample.EnvelopeRates[v.envelopePhase] * events.ControlUpdateInterval
	target := sample.EnvelopeOffsets[v.envelopePhase]

	advancePhase := func() {
		if v.envelopePhase == sustainPhase && sample.Sustain {
			return
		}
		v.envelopePhase++
	}

	switch {
	case target > v.envelopeValue:
		if v.envelopeValue+rate < target {
			v.envelopeValue += rate
		} else if v.envelopePhase == envelopeLastPhase {
			return stepDelete
		} else {
			v.envelopeValue = target
			advancePhase()
		}
	case target < v.envelopeValue:
		if target+rate < v.envelopeValue {
			v.envelopeValue -= rate
		} else if v.envelopePhase == envelopeLastPhase || target == 0 {
			return stepDelete
		} else {
			v.envelopeValue = target
			advancePhase()
		}
	}
	return stepContinue
}

// lfoValue computes the tremolo/vibrato modulation amount: a signed
// offset scaled so that (0x10000 + result) is the multiplier the
// caller applies.
func lfoValue(depth int16, sweep, phase uint32) int64 {
	sine := int64(tables.Sine(phase))
	return int64(depth) * int64(sweep) / int64(sweepMax/0x80) * sine / 0x8000
}

// advanceSample moves sample_pos forward or backward by sample_inc
// and applies loop/ping-pong/termination semantics.
func advanceSample(v *voice, sample *patch.Sample) stepResult {
	loopStart := int64(sample.LoopStart)
	loopEnd := int64(sample.LoopEnd)

	if v.backwards {
		v.samplePos -= v.sampleInc
		if v.samplePos <= loopStart {
			if v.doLoop {
				v.backwards = false
				v.samplePos = 2*loopStart - v.samplePos
			} else {
				return stepDelete
			}
		}
	} else {
		v.samplePos += v.sampleInc
		if v.samplePos >= loopEnd {
			if !v.doLoop || !sample.Loop {
				return stepDelete
			}
			if sample.Pingpong {
				v.backwards = true
				v.samplePos = 2*loopEnd - v.samplePos
			} else {
				v.samplePos -= loopEnd - loopStart
			}
		}
	}
	return stepContinue
}

// stepSquareWave renders the patch-absent fallback: a plain square
// wave at the voice's note frequency, still scaled by velocity and
// channel volume/expression.
func stepSquareWave(ch *channel, v *voice, chunk int, accum [][2]int64) stepResult {
	freq := tables.Freq(uint32(v.note) << 16)
	inc := int64(freq) << 16 / events.SampleRate

	for i := 0; i < chunk; i++ {
		v.samplePos %= 1 << 32
		sign := int64(-1)
		if v.samplePos >= 1<<31 {
			sign = 1
		}
		val := sign * int64(v.velocity) * int64(ch.volume) * int64(ch.expression) / (32 * 127)
		accum[i][0] += val
		accum[i][1] += val
		v.samplePos += inc
	}
	return stepContinue
}
