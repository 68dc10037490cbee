package silence

import (
	"bufio"
	"bytes"
	"io"
	"iter"
	"strconv"
	"strings"
)

// Marker prefixes every silencedetect diagnostic payload.
const Marker = "[silencedetect"

const (
	keyStart    = "silence_start"
	keyEnd      = "silence_end"
	keyDuration = "silence_duration"
)

const maxLineBytes = 1 << 20

// Event is one detected silence interval in seconds. End and Duration are
// absent when the report was cut short, typically because the silence ran
// to the end of the input.
type Event struct {
	Start       float64
	End         float64
	Duration    float64
	HasEnd      bool
	HasDuration bool
}

// Complete reports whether all three fields were parsed.
func (e Event) Complete() bool {
	return e.HasEnd && e.HasDuration
}

// Parse yields silence events from r in encounter order. The sequence is
// single-use: it consumes r. Unknown keys, unparsable values and pairs that
// arrive before any silence_start are dropped. Read errors end the sequence.
func Parse(r io.Reader) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		scanner.Split(scanLinesOrReturns)

		var (
			current Event
			open    bool
		)
		for scanner.Scan() {
			for _, pair := range payloadPairs(scanner.Text()) {
				key, value, ok := splitPair(pair)
				if !ok {
					continue
				}
				switch key {
				case keyStart:
					if open && !yield(current) {
						return
					}
					current, open = Event{Start: value}, true
				case keyEnd:
					if open {
						current.End, current.HasEnd = value, true
					}
				case keyDuration:
					if open {
						current.Duration, current.HasDuration = value, true
						open = false
						if !yield(current) {
							return
						}
					}
				}
			}
		}
		if open {
			yield(current)
		}
	}
}

// ParseString is a convenience over Parse for an in-memory report.
func ParseString(report string) iter.Seq[Event] {
	return Parse(strings.NewReader(report))
}

// payloadPairs returns the " | "-separated fragments following every marker on a line.
func payloadPairs(line string) []string {
	var pairs []string
	for {
		idx := strings.Index(line, Marker)
		if idx < 0 {
			return pairs
		}
		line = line[idx+len(Marker):]
		segment := line
		if next := strings.Index(line, Marker); next >= 0 {
			segment = line[:next]
		}
		if _, payload, ok := strings.Cut(segment, "] "); ok {
			pairs = append(pairs, strings.Split(payload, " | ")...)
		}
	}
}

func splitPair(pair string) (string, float64, bool) {
	key, raw, ok := strings.Cut(pair, ": ")
	if !ok {
		return "", 0, false
	}
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", 0, false
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return "", 0, false
	}
	return strings.TrimSpace(key), value, true
}

// scanLinesOrReturns splits on \n or \r so progress lines rewritten with
// carriage returns are still seen individually.
func scanLinesOrReturns(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
