// Command midiplay is a minimal example host: it loads a patch bank
// and a Standard MIDI File, pulls rendered audio from the playback
// engine in MaxChunkLength-sized chunks, and writes the result as a
// WAV file in place of a real-time audio device.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gf1synth/internal/config"
	"gf1synth/internal/diag"
	"gf1synth/internal/events"
	"gf1synth/internal/player"
	"gf1synth/internal/smf"
)

func main() {
	cfgPath := flag.String("cfg", "", "Path to a .cfg patch bank (optional; empty bank renders square waves)")
	midiPath := flag.String("midi", "", "Path to a Standard MIDI File")
	outPath := flag.String("out", "out.wav", "Path to write rendered WAV audio")
	seconds := flag.Int("max-seconds", 120, "Stop rendering after this many seconds even if the sequence has not finished")
	logLevel := flag.String("log-level", "none", "Log level: none, error, warning, info, debug")
	flag.Parse()

	if *midiPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: midiplay -midi <path-to-mid> [-cfg <path-to-cfg>] [-out <path-to-wav>]")
		os.Exit(1)
	}

	logger := diag.NewLogger(10000)
	logger.SetComponentEnabled(diag.ComponentPlayer, true)
	logger.SetComponentEnabled(diag.ComponentSequence, true)
	logger.SetComponentEnabled(diag.ComponentPatch, true)
	logger.SetComponentEnabled(diag.ComponentConfig, true)
	logger.SetMinLevel(parseLogLevel(*logLevel))
	defer logger.Close()

	midiData, err := os.ReadFile(*midiPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading MIDI file: %v\n", err)
		os.Exit(1)
	}
	seq, err := smf.Decode(midiData)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding MIDI file: %v\n", err)
		os.Exit(1)
	}

	eng := player.New(logger)

	if *cfgPath != "" {
		bank, err := loadBank(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading bank: %v\n", err)
			os.Exit(1)
		}
		eng.SetBank(bank)
	}

	eng.PlaySequence(seq)
	eng.FastForwardToNote()

	out, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	maxFrames := *seconds * events.SampleRate
	if err := render(eng, out, maxFrames); err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering audio: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %s\n", *outPath)
}

func loadBank(cfgPath string) (*config.Bank, error) {
	f, err := os.Open(cfgPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dir := filepath.Dir(cfgPath)
	open := func(name string) (io.ReadCloser, error) { return os.Open(name) }
	return config.LoadBank(f, dir, open)
}

func parseLogLevel(s string) diag.LogLevel {
	switch s {
	case "error":
		return diag.LogLevelError
	case "warning":
		return diag.LogLevelWarning
	case "info":
		return diag.LogLevelInfo
	case "debug":
		return diag.LogLevelDebug
	default:
		return diag.LogLevelNone
	}
}

const chunkFrames = events.MaxChunkLength

// render pulls audio from the engine in MaxChunkLength-frame chunks —
// the same granularity the engine renders internally — and streams it
// into a WAV file, stopping early once playback is exhausted or
// maxFrames is reached.
func render(eng *player.Engine, out *os.File, maxFrames int) error {
	buf := make([]byte, chunkFrames*4)

	// Reserve the 44-byte WAV header; it is patched in after the
	// frame count is known, since get_audio is the only source of
	// truth for how long the sequence actually runs.
	header := make([]byte, 44)
	if _, err := out.Write(header); err != nil {
		return err
	}

	totalFrames := 0
	for totalFrames < maxFrames {
		remaining := maxFrames - totalFrames
		n := chunkFrames
		if remaining < n {
			n = remaining
		}
		eng.GetAudio(buf[:n*4])
		if _, err := out.Write(buf[:n*4]); err != nil {
			return err
		}
		totalFrames += n
		if !eng.CurrentlyPlaying() {
			break
		}
	}

	writeWavHeader(header, totalFrames)
	if _, err := out.WriteAt(header, 0); err != nil {
		return err
	}
	return nil
}

func writeWavHeader(h []byte, frames int) {
	const (
		channels   = 2
		bitsPerSample = 16
	)
	dataSize := frames * channels * bitsPerSample / 8
	byteRate := events.SampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataSize))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], channels)
	binary.LittleEndian.PutUint32(h[24:28], events.SampleRate)
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataSize))
}
