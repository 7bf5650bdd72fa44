// Package tick schedules MIDI ticks against the output sample stream:
// a single Clock tracks how many output samples remain until the next
// tick and how many ticks remain until the next scheduled event.
package tick

import "gf1synth/internal/events"

// Clock tracks tick-to-sample conversion for one sequence.
type Clock struct {
	tpb uint32 // ticks per quarter note

	tickLength    uint32 // output frames per tick, recomputed on every tempo event
	samplesToTick uint32 // frames remaining until the next tick
	ticksToEvent  uint32 // ticks remaining until the next scheduled event
}

// New creates a clock for a sequence with the given ticks-per-beat,
// defaulting to 120 BPM (500000 µs/beat) until a SET_TEMPO event says
// otherwise.
func New(tpb uint32) *Clock {
	c := &Clock{tpb: tpb}
	c.SetTempo(500000)
	return c
}

// SetTempo recomputes tick length from microseconds per quarter note.
func (c *Clock) SetTempo(usPerBeat uint32) {
	if c.tpb == 0 {
		c.tickLength = events.SampleRate / 2
		return
	}
	c.tickLength = uint32(uint64(events.SampleRate) * uint64(usPerBeat) / 1_000_000 / uint64(c.tpb))
	if c.tickLength == 0 {
		c.tickLength = 1
	}
}

// Start arms the clock for playback of a sequence whose first event is
// at the given absolute tick.
func (c *Clock) Start(firstEventTick uint32) {
	c.samplesToTick = c.tickLength
	c.ticksToEvent = firstEventTick
}

// SamplesToTick reports how many output frames remain until the next
// tick boundary.
func (c *Clock) SamplesToTick() uint32 { return c.samplesToTick }

// TicksToEvent reports how many ticks remain until the next scheduled
// event fires.
func (c *Clock) TicksToEvent() uint32 { return c.ticksToEvent }

// AtTickBoundary reports whether the clock has reached a tick boundary
// (samples_to_tick == 0), meaning events due at this tick should be
// dispatched before rendering further.
func (c *Clock) AtTickBoundary() bool { return c.samplesToTick == 0 }

// AtEvent reports whether the current tick has an event due.
func (c *Clock) AtEvent() bool { return c.ticksToEvent == 0 }

// AdvanceTick consumes one tick: decrements ticks_to_event (never
// below 0) and resets samples_to_tick to a full tick length.
func (c *Clock) AdvanceTick() {
	if c.ticksToEvent > 0 {
		c.ticksToEvent--
	}
	c.samplesToTick = c.tickLength
}

// SetTicksToNextEvent records the tick delta to the next event still
// pending in the sequence, called once the dispatch loop has consumed
// every event due at the current tick.
func (c *Clock) SetTicksToNextEvent(delta uint32) {
	c.ticksToEvent = delta
}

// ConsumeSamples advances by n output frames within the current tick,
// clamping at zero.
func (c *Clock) ConsumeSamples(n uint32) {
	if n >= c.samplesToTick {
		c.samplesToTick = 0
		return
	}
	c.samplesToTick -= n
}

// ChunkLimit returns the largest number of frames that can be rendered
// in one pass without crossing a tick boundary, a buffer boundary, or
// MaxChunkLength — the three limits the render loop takes the min of.
func (c *Clock) ChunkLimit(remainingInBuffer uint32) uint32 {
	chunk := c.samplesToTick
	if remainingInBuffer < chunk {
		chunk = remainingInBuffer
	}
	if events.MaxChunkLength < chunk {
		chunk = events.MaxChunkLength
	}
	return chunk
}
