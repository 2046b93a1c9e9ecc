package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

var doneLine = []byte("data: [DONE]\n\n")

type deltaEnvelope struct {
	Choices []deltaChoice `json:"choices"`
}

type deltaChoice struct {
	Delta deltaContent `json:"delta"`
}

type deltaContent struct {
	Content string `json:"content"`
}

// SSEWriter encodes deltas as `data: {"choices":[{"delta":{"content":...}}]}`
// events and flushes after each one when the writer supports it.
type SSEWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func NewSSEWriter(w io.Writer) *SSEWriter {
	flusher, _ := w.(http.Flusher)
	return &SSEWriter{w: w, flusher: flusher}
}

func (s *SSEWriter) WriteDelta(chunk DeltaChunk) error {
	buffer := bytes.NewBuffer(make([]byte, 0, len(chunk.Content)+64))
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	envelope := deltaEnvelope{Choices: []deltaChoice{{Delta: deltaContent{Content: chunk.Content}}}}
	if err := encoder.Encode(envelope); err != nil {
		return fmt.Errorf("encode delta: %w", err)
	}
	payload := bytes.TrimRight(buffer.Bytes(), "\n")

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *SSEWriter) WriteDone() error {
	if _, err := s.w.Write(doneLine); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *SSEWriter) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
