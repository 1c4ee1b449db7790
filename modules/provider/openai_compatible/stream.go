package openaicompat

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// LineKind classifies one line of an upstream event stream.
type LineKind int

// LineKind values.
const (
	// LineIgnorable is a blank line, comment, or any non-data field.
	LineIgnorable LineKind = iota
	// LineSentinel is the "[DONE]" marker. It does not end the stream; EOF does.
	LineSentinel
	// LineData is a well-formed data record. Its fragment may be empty.
	LineData
	// LineMalformed is a data record whose payload is not valid JSON.
	LineMalformed
)

// String returns the lowercase name of the kind.
func (k LineKind) String() string {
	switch k {
	case LineIgnorable:
		return "ignorable"
	case LineSentinel:
		return "sentinel"
	case LineData:
		return "data"
	case LineMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("LineKind(%d)", int(k))
	}
}

// doneSentinel marks the end of content in OpenAI-style streams.
const doneSentinel = "[DONE]"

// oaiStreamChunk represents a single SSE chunk from the OpenAI streaming API.
type oaiStreamChunk struct {
	Choices []oaiStreamChoice `json:"choices"`
}

type oaiStreamChoice struct {
	Delta oaiStreamDelta `json:"delta"`
}

type oaiStreamDelta struct {
	Content string `json:"content"`
}

// Line is one classified stream line.
type Line struct {
	Kind     LineKind
	Fragment string
	// Err is the parse error of a LineMalformed record.
	Err error
}

// ClassifyLine decodes a single raw line (without its terminator).
func ClassifyLine(raw string) Line {
	// Accept both "data: " and "data:"; some compatible servers omit the space.
	payload, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return Line{Kind: LineIgnorable}
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Line{Kind: LineIgnorable}
	}
	if payload == doneSentinel {
		return Line{Kind: LineSentinel}
	}

	var chunk oaiStreamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return Line{Kind: LineMalformed, Err: fmt.Errorf("parse SSE chunk: %w", err)}
	}
	line := Line{Kind: LineData}
	if len(chunk.Choices) > 0 {
		line.Fragment = chunk.Choices[0].Delta.Content
	}
	return line
}

// maxLineSize bounds a single SSE line.
const maxLineSize = 1024 * 1024

// Decoder reads an upstream event stream line by line.
type Decoder struct {
	scanner *bufio.Scanner
	line    Line
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Decoder{scanner: scanner}
}

// Next advances to the next line. It returns false at EOF or on a read
// error; Err distinguishes the two.
func (d *Decoder) Next() bool {
	if !d.scanner.Scan() {
		return false
	}
	d.line = ClassifyLine(d.scanner.Text())
	return true
}

// Line returns the line most recently read by Next.
func (d *Decoder) Line() Line {
	return d.line
}

// Err returns the first non-EOF read error.
func (d *Decoder) Err() error {
	return d.scanner.Err()
}
