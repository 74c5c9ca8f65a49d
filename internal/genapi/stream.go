package genapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const dataPrefix = "data:"

// FrameReader yields frames from a streamed generation response in arrival
// order. Lines that are blank, SSE comments, or carry a field other than
// data are skipped. Lines may be split across network reads; the reader
// buffers until a full line is available.
type FrameReader struct {
	body io.ReadCloser
	br   *bufio.Reader
	done bool
}

func newFrameReader(body io.ReadCloser) *FrameReader {
	return &FrameReader{body: body, br: bufio.NewReader(body)}
}

// NewFrameReader wraps an arbitrary stream body. Exposed for callers that
// obtain the body themselves.
func NewFrameReader(body io.ReadCloser) *FrameReader {
	return newFrameReader(body)
}

// Next returns the next frame. It returns io.EOF once the stream has ended,
// a *DecodeError for a malformed data payload, and a *TransportError when
// reading fails.
func (r *FrameReader) Next() (*Frame, error) {
	for {
		if r.done {
			return nil, io.EOF
		}

		line, err := r.br.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, &TransportError{Op: "read stream", Err: err}
			}
			// Final line without a trailing newline still counts.
			r.done = true
			if line == "" {
				return nil, io.EOF
			}
		}

		payload, ok := dataPayload(line)
		if !ok {
			continue
		}

		var frame Frame
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			return nil, &DecodeError{What: "stream frame", Raw: payload, Err: err}
		}
		return &frame, nil
	}
}

// Close releases the underlying connection.
func (r *FrameReader) Close() error {
	return r.body.Close()
}

// dataPayload returns the JSON payload of a `data:` line.
func dataPayload(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	payload := strings.TrimSpace(line[len(dataPrefix):])
	return payload, payload != ""
}
