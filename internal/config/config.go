// Package config parses the ".cfg" bank text grammar that maps
// (bank, program) pairs to patch filenames. File opening is injected
// so the loader never touches a real filesystem path itself.
package config

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"gf1synth/internal/patch"
	"gf1synth/internal/perr"
)

// Bank holds the 128-entry melodic and percussion patch tables.
type Bank struct {
	Patches [128]*patch.Patch
	Drums   [128]*patch.Patch
}

// Opener resolves a patch filename (already joined to the config's
// directory) to a readable stream. Bank loading never touches the
// filesystem directly; callers inject this, typically backed by
// os.Open.
type Opener func(name string) (io.ReadCloser, error)

// LoadBank parses the config text read from r, whose entries are
// resolved relative to dir using open. Only bank 0 entries are loaded;
// higher banks are parsed (for line-shape validation) but skipped.
func LoadBank(r io.Reader, dir string, open Opener) (*Bank, error) {
	bank := &Bank{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	bankNum := 0
	drumset := false

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "bank":
			n, err := parseNum(fields, lineNo)
			if err != nil {
				return nil, err
			}
			bankNum, drumset = n, false
		case "drumset":
			n, err := parseNum(fields, lineNo)
			if err != nil {
				return nil, err
			}
			bankNum, drumset = n, true
		default:
			program, err := strconv.Atoi(fields[0])
			if err != nil || program < 0 || program > 127 {
				return nil, &perr.ParseError{
					FileKind: "config", Offset: lineNo,
					Detail: fmt.Sprintf("invalid program number %q", fields[0]),
				}
			}
			if bankNum != 0 {
				continue // higher banks are tolerated but skipped
			}
			if len(fields) < 2 {
				return nil, &perr.ParseError{FileKind: "config", Offset: lineNo, Detail: "missing patch filename"}
			}
			stem, opts := fields[1], fields[2:]
			if err := loadSlot(bank, program, drumset, dir, stem, opts, open); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &perr.IoError{Path: dir, Cause: err}
	}
	return bank, nil
}

func parseNum(fields []string, lineNo int) (int, error) {
	if len(fields) < 2 {
		return 0, &perr.ParseError{FileKind: "config", Offset: lineNo, Detail: "missing bank number"}
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, &perr.ParseError{FileKind: "config", Offset: lineNo, Detail: "invalid bank number"}
	}
	return n, nil
}

func loadSlot(bank *Bank, program int, drumset bool, dir, stem string, opts []string, open Opener) error {
	filename := path.Join(dir, stem+".pat")
	f, err := open(filename)
	if err != nil {
		return &perr.IoError{Path: filename, Cause: err}
	}
	defer f.Close()

	p, err := patch.Decode(f)
	if err != nil {
		return err
	}

	for _, opt := range opts {
		key, val, ok := strings.Cut(opt, "=")
		if !ok {
			continue
		}
		switch key {
		case "amp":
			percent, err := strconv.Atoi(val)
			if err == nil {
				p.Volume = uint16(int(p.Volume) * percent / 100)
			}
		case "note":
			note, err := strconv.Atoi(val)
			if err == nil && note >= 0 && note <= 127 {
				p.Note = int8(note)
			}
		case "keep":
			switch val {
			case "loop":
				p.KeepLoop = true
			case "env":
				p.KeepEnvelope = true
			}
		}
	}

	if drumset {
		bank.Drums[program] = p
	} else {
		bank.Patches[program] = p
	}
	return nil
}
