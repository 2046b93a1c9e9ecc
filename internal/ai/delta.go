package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/iago/studyhub-back/internal/metrics"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const defaultMaxPendingBytes = 4 << 20

var (
	ErrStreamBufferExceeded = errors.New("provider stream line exceeds buffer limit")
	ErrStreamIncomplete     = errors.New("provider stream ended inside an unfinished object")
)

type lineState int

const (
	lineDecoded lineState = iota
	// lineIncomplete is not yet valid JSON; more bytes may complete it.
	lineIncomplete
	// lineUnexpected is valid JSON that is not a generation response.
	lineUnexpected
)

// DeltaChunk carries only the text produced since the previous chunk.
type DeltaChunk struct {
	Content string
}

type DeltaTranslatorOptions struct {
	// Incremental treats each line's text as new output instead of the
	// cumulative text so far.
	Incremental     bool
	MaxPendingBytes int
	Logger          *zerolog.Logger
}

// DeltaTranslator turns a newline delimited stream of provider JSON objects
// into deltas. A translator holds the state of exactly one response and must
// not be reused.
type DeltaTranslator struct {
	buf         []byte
	pending     []byte
	lastText    string
	incremental bool
	maxPending  int
	skipped     int
	logger      *zerolog.Logger
}

func NewDeltaTranslator(options DeltaTranslatorOptions) *DeltaTranslator {
	if options.MaxPendingBytes <= 0 {
		options.MaxPendingBytes = defaultMaxPendingBytes
	}
	if options.Logger == nil {
		nop := zerolog.Nop()
		options.Logger = &nop
	}
	return &DeltaTranslator{
		incremental: options.Incremental,
		maxPending:  options.MaxPendingBytes,
		logger:      options.Logger,
	}
}

// Text is the cumulative text observed so far.
func (t *DeltaTranslator) Text() string {
	return t.lastText
}

// Skipped counts complete JSON lines that did not decode as a response.
func (t *DeltaTranslator) Skipped() int {
	return t.skipped
}

// Feed appends raw bytes and returns the deltas of every line that became
// decodable. Bytes after the last newline stay buffered, so multi-byte
// runes and JSON objects split across reads are completed by later calls.
func (t *DeltaTranslator) Feed(p []byte) ([]DeltaChunk, error) {
	t.buf = append(t.buf, p...)

	var chunks []DeltaChunk
	for {
		index := bytes.IndexByte(t.buf, '\n')
		if index < 0 {
			break
		}
		line := t.buf[:index]
		if chunk, ok := t.consumeLine(line); ok {
			chunks = append(chunks, chunk)
		}
		t.buf = t.buf[index+1:]
	}

	if len(t.buf)+len(t.pending) > t.maxPending {
		return chunks, ErrStreamBufferExceeded
	}
	return chunks, nil
}

// Finish treats any unterminated trailing bytes as a final line. Data that
// still does not decode is dropped and its size returned.
func (t *DeltaTranslator) Finish() ([]DeltaChunk, int) {
	var chunks []DeltaChunk
	if len(bytes.TrimSpace(t.buf)) > 0 {
		if chunk, ok := t.consumeLine(t.buf); ok {
			chunks = append(chunks, chunk)
		}
	}
	t.buf = nil
	dropped := len(t.pending)
	t.pending = nil
	return chunks, dropped
}

func (t *DeltaTranslator) consumeLine(line []byte) (DeltaChunk, bool) {
	fragment := bytes.TrimSpace(line)
	if len(t.pending) == 0 {
		// Array framing around streamed objects: "[{", ",", "]".
		fragment = bytes.TrimSpace(bytes.TrimLeft(fragment, "[,"))
		if len(fragment) == 0 || bytes.Equal(fragment, []byte("]")) {
			return DeltaChunk{}, false
		}
	}

	candidate := make([]byte, 0, len(t.pending)+len(fragment))
	candidate = append(candidate, t.pending...)
	candidate = append(candidate, fragment...)

	text, state := decodeStreamLine(candidate)
	if state == lineIncomplete {
		trimmed := bytes.TrimSpace(bytes.TrimRight(candidate, "],"))
		text, state = decodeStreamLine(trimmed)
	}
	switch state {
	case lineIncomplete:
		t.pending = append(candidate, '\n')
		return DeltaChunk{}, false
	case lineUnexpected:
		t.pending = t.pending[:0]
		t.skipped++
		t.logger.Warn().
			Int("bytes", len(candidate)).
			Int("skipped", t.skipped).
			Msg("skipping provider stream line with unexpected shape")
		return DeltaChunk{}, false
	}
	t.pending = t.pending[:0]
	return t.advance(text)
}

func (t *DeltaTranslator) advance(text string) (DeltaChunk, bool) {
	if t.incremental {
		if text == "" {
			return DeltaChunk{}, false
		}
		t.lastText += text
		return DeltaChunk{Content: text}, true
	}

	if len(text) <= len(t.lastText) {
		return DeltaChunk{}, false
	}
	prefix := commonPrefixLength(t.lastText, text)
	t.lastText = text
	return DeltaChunk{Content: text[prefix:]}, true
}

func decodeStreamLine(line []byte) (string, lineState) {
	if !json.Valid(line) {
		return "", lineIncomplete
	}
	if line[0] != '{' {
		return "", lineUnexpected
	}
	var decoded genai.GenerateContentResponse
	if err := json.Unmarshal(line, &decoded); err != nil {
		return "", lineUnexpected
	}
	return firstCandidateText(&decoded), lineDecoded
}

// commonPrefixLength is the byte length of the shared prefix, backed off to a
// rune boundary of b.
func commonPrefixLength(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	for n > 0 && n < len(b) && !utf8.RuneStart(b[n]) {
		n--
	}
	return n
}

// DeltaSink receives translated output.
type DeltaSink interface {
	WriteDelta(chunk DeltaChunk) error
	WriteDone() error
}

// Relay copies a provider stream into sink and returns the full text.
// The done marker is written only after the body reached EOF with every
// line decoded; read errors and a truncated final object are returned
// without writing it.
func Relay(ctx context.Context, body io.Reader, translator *DeltaTranslator, sink DeltaSink) (string, error) {
	buffer := make([]byte, 32*1024)
	forwarded := 0
	defer func() { metrics.StreamDeltas(forwarded) }()

	for {
		if err := ctx.Err(); err != nil {
			return translator.Text(), err
		}

		n, readErr := body.Read(buffer)
		if n > 0 {
			chunks, err := translator.Feed(buffer[:n])
			for _, chunk := range chunks {
				if writeErr := sink.WriteDelta(chunk); writeErr != nil {
					return translator.Text(), fmt.Errorf("write delta: %w", writeErr)
				}
				forwarded++
			}
			if err != nil {
				return translator.Text(), err
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return translator.Text(), fmt.Errorf("read provider stream: %w", readErr)
		}
	}

	chunks, dropped := translator.Finish()
	for _, chunk := range chunks {
		if err := sink.WriteDelta(chunk); err != nil {
			return translator.Text(), fmt.Errorf("write delta: %w", err)
		}
		forwarded++
	}
	if dropped > 0 {
		return translator.Text(), fmt.Errorf("%w: %d bytes undecoded", ErrStreamIncomplete, dropped)
	}
	if err := sink.WriteDone(); err != nil {
		return translator.Text(), fmt.Errorf("write done: %w", err)
	}
	return translator.Text(), nil
}
