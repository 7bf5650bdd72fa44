// Package smf parses Standard MIDI Files into an absolute-time,
// globally sorted event array.
package smf

import (
	"encoding/binary"
	"sort"

	"gf1synth/internal/events"
	"gf1synth/internal/perr"
)

// Sequence is a decoded MIDI file: ticks-per-beat plus a time-sorted
// event array.
type Sequence struct {
	TicksPerBeat uint16
	Events       []events.TimedEvent

	// ChannelsUsed flags which of the 16 channels carry at least one
	// channel-voice event, letting a host skip silent channels when
	// building a UI or a per-track mute list without re-scanning
	// Events.
	ChannelsUsed [16]bool
}

type decoder struct {
	data   []byte
	pos    int
	status byte
}

func (d *decoder) eof() bool { return d.pos >= len(d.data) }

func (d *decoder) remaining() int { return len(d.data) - d.pos }

func (d *decoder) parseErr(detail string) error {
	return &perr.ParseError{FileKind: "smf", Offset: d.pos, Detail: detail}
}

func (d *decoder) u8() (byte, error) {
	if d.eof() {
		return 0, d.parseErr("premature end of file")
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) u16() (uint16, error) {
	if d.remaining() < 2 {
		return 0, d.parseErr("premature end of file")
	}
	v := binary.BigEndian.Uint16(d.data[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *decoder) u32() (uint32, error) {
	if d.remaining() < 4 {
		return 0, d.parseErr("premature end of file")
	}
	v := binary.BigEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) skip(n int) error {
	if d.remaining() < n {
		return d.parseErr("premature end of file")
	}
	d.pos += n
	return nil
}

// varLen reads a MIDI variable-length quantity: 7 bits per byte,
// big-endian, continuation indicated by the high bit.
func (d *decoder) varLen() (uint32, error) {
	var r uint32
	for {
		b, err := d.u8()
		if err != nil {
			return 0, d.parseErr("premature end of track during variable-length number")
		}
		r = r<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return r, nil
		}
	}
}

// parametersUsed returns how many data bytes follow a channel-voice
// status of the given upper nibble.
func parametersUsed(typ events.Type) int {
	switch typ {
	case events.ProgramChange, events.ChannelAftertouch:
		return 1
	default:
		return 2
	}
}

// Decode parses a complete SMF byte slice into a Sequence.
func Decode(data []byte) (*Sequence, error) {
	d := &decoder{data: data}

	if len(data) < 22 {
		return nil, d.parseErr("file too short to be a MIDI file")
	}
	magic, err := d.u32()
	if err != nil {
		return nil, err
	}
	if magic != binary.BigEndian.Uint32([]byte("MThd")) {
		return nil, d.parseErr("missing MThd magic")
	}
	if err := d.skip(6); err != nil { // header length, format, n_tracks overlap below
		return nil, err
	}
	nTracks, err := d.u16()
	if err != nil {
		return nil, err
	}
	tpb, err := d.u16()
	if err != nil {
		return nil, err
	}
	if tpb&0x8000 != 0 {
		return nil, &perr.UnsupportedFeature{What: "SMPTE time division"}
	}

	seq := &Sequence{TicksPerBeat: tpb}

	for i := uint16(0); i < nTracks; i++ {
		if err := decodeTrack(d, seq); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(seq.Events, func(i, j int) bool {
		return seq.Events[i].Time < seq.Events[j].Time
	})

	return seq, nil
}

func decodeTrack(d *decoder, seq *Sequence) error {
	chunkID, err := d.u32()
	if err != nil {
		return err
	}
	if chunkID != binary.BigEndian.Uint32([]byte("MTrk")) {
		return d.parseErr("expected MTrk chunk")
	}
	chunkSize, err := d.u32()
	if err != nil {
		return err
	}
	if d.remaining() < int(chunkSize) {
		return d.parseErr("premature end of file during track")
	}
	trackEnd := d.pos + int(chunkSize)

	var time uint32
	status := byte(0x80)

	for d.pos != trackEnd {
		delta, err := d.varLen()
		if err != nil {
			return err
		}
		time += delta

		if d.pos >= trackEnd {
			return d.parseErr("premature end of track while parsing event")
		}
		peek := d.data[d.pos]
		var typ events.Type
		var channel byte
		if peek&0x80 != 0 {
			typ = events.Type(peek >> 4)
			channel = peek & 0x0F
			status = peek
			d.pos++
		} else {
			typ = events.Type(status >> 4)
			channel = status & 0x0F
		}

		if typ == events.Common {
			if channel == 0x0F {
				if err := decodeMeta(d, trackEnd, time, seq); err != nil {
					return err
				}
			} else {
				// SysEx (0xF0/0xF7): read length, skip body.
				size, err := d.varLen()
				if err != nil {
					return err
				}
				if trackEnd-d.pos < int(size) {
					return d.parseErr("premature end of track during sysex")
				}
				if err := d.skip(int(size)); err != nil {
					return err
				}
			}
			continue
		}

		nParams := parametersUsed(typ)
		if trackEnd-d.pos < nParams {
			return d.parseErr("premature end of track while parsing event")
		}
		param1, err := d.u8()
		if err != nil {
			return err
		}
		var param2 byte
		if nParams == 2 {
			param2, err = d.u8()
			if err != nil {
				return err
			}
		}
		seq.Events = append(seq.Events, events.TimedEvent{
			Time: time,
			Event: events.Event{Type: typ, Channel: channel, Param1: param1, Param2: param2},
		})
		if channel < 16 {
			seq.ChannelsUsed[channel] = true
		}
	}
	return nil
}

func decodeMeta(d *decoder, trackEnd int, time uint32, seq *Sequence) error {
	if d.pos >= trackEnd {
		return d.parseErr("premature end of track during meta event")
	}
	metaType, err := d.u8()
	if err != nil {
		return err
	}
	size, err := d.varLen()
	if err != nil {
		return err
	}
	if trackEnd-d.pos < int(size) {
		return d.parseErr("premature end of track during meta event body")
	}

	if metaType == 0x51 { // Set Tempo
		if size != 3 {
			return d.parseErr("tempo event was of incorrect size")
		}
		b0, _ := d.u8()
		b1, _ := d.u8()
		b2, _ := d.u8()
		seq.Events = append(seq.Events, events.TimedEvent{
			Time:  time,
			Event: events.Event{Type: events.SetTempo, Channel: b0, Param1: b1, Param2: b2},
		})
		return nil
	}

	return d.skip(int(size))
}
