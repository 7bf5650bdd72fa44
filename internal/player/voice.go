package player

import "gf1synth/internal/patch"

// voiceTerminator is the sentinel "no next voice" index, reused both
// as an empty per-channel list head and as the tail of the inactive
// free list, so the whole pool lives in one fixed array with u8-sized
// links instead of a heap-allocated linked list.
const voiceTerminator = 255

// stepResult tells the render loop's list walk what to do with the
// voice it just stepped.
type stepResult int

const (
	stepContinue stepResult = iota
	stepDelete
)

// voice is one slot in the fixed 255-voice pool.
type voice struct {
	next uint8

	note     uint8
	velocity uint8
	sample   *patch.Sample
	patch    *patch.Patch

	// detunedNote is the note number used for pitch (tables.Freq),
	// after applying a sample's scale_factor/scale_note detune on top
	// of note. Equal to int32(note) when no detune applies.
	detunedNote int32

	samplePos int64 // 32:32, signed
	sampleInc int64 // 32:32, signed
	backwards bool

	envelopePhase int
	envelopeValue uint32 // 15:15

	tremoloSweep uint32 // 8:24
	tremoloPhase uint32 // 8:24
	vibratoSweep uint32 // 8:24
	vibratoPhase uint32 // 8:24

	channelVolume uint32 // cached, frozen once envelopePhase reaches release
	volume        uint32 // composite volume used by the sample step

	doEnvelope bool
	doLoop     bool

	controlTimer uint8
}

// pool is the fixed arena of 255 voices plus the inactive free-list
// head, shared by all 16 channel lists.
type pool struct {
	voices   [voiceTerminator]voice
	inactive uint8
}

// reset rebuilds the free-list 0→1→…→254→terminator, releasing every
// voice back to the pool.
func (p *pool) reset() {
	for i := range p.voices {
		p.voices[i] = voice{}
		p.voices[i].next = uint8(i + 1)
	}
	p.inactive = 0
}

// allocate pops a voice off the inactive list and returns its index,
// or (0, false) if the pool is exhausted, in which case the caller
// drops the new note until an existing voice frees up.
func (p *pool) allocate() (uint8, bool) {
	if p.inactive == voiceTerminator {
		return 0, false
	}
	idx := p.inactive
	p.inactive = p.voices[idx].next
	return idx, true
}

// free returns a voice to the inactive list.
func (p *pool) free(idx uint8) {
	p.voices[idx] = voice{}
	p.voices[idx].next = p.inactive
	p.inactive = idx
}

// pushFront links voice idx onto the head of a channel's active list.
func (p *pool) pushFront(head *uint8, idx uint8) {
	p.voices[idx].next = *head
	*head = idx
}

// freeAll walks a channel's active list and returns every voice to
// the inactive list, used by ALL_SOUND_OFF and by bank/patch
// replacement.
func (p *pool) freeAll(head *uint8) {
	for *head != voiceTerminator {
		idx := *head
		*head = p.voices[idx].next
		p.free(idx)
	}
}

// assertPartition verifies the pool invariant that every slot appears
// in exactly one list: the union of the 16 channel lists and the
// inactive list is {0..254} with no duplicates. It is used by tests,
// not by the render path.
func (p *pool) assertPartition(channelHeads [16]uint8) bool {
	var seen [voiceTerminator]bool
	walk := func(head uint8) bool {
		for head != voiceTerminator {
			if seen[head] {
				return false
			}
			seen[head] = true
			head = p.voices[head].next
		}
		return true
	}
	if !walk(p.inactive) {
		return false
	}
	for _, h := range channelHeads {
		if !walk(h) {
			return false
		}
	}
	for _, s := range seen {
		if !s {
			return false
		}
	}
	return true
}
