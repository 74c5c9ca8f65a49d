package genapi

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// chunkedReader returns at most n bytes per Read to split lines across reads.
type chunkedReader struct {
	r io.Reader
	n int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.r.Read(p)
}

func readAll(t *testing.T, body string, chunk int) ([]*Frame, error) {
	t.Helper()
	r := NewFrameReader(io.NopCloser(&chunkedReader{r: strings.NewReader(body), n: chunk}))
	var frames []*Frame
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

func TestFrameReaderSplitsAcrossReads(t *testing.T) {
	body := "data: {\"progress\": 25}\n\n: keep-alive\n\ndata:{\"progress\":50}\r\n\r\nevent: ping\ndata: {\"image_path\": \"out/1.png\"}"

	for _, chunk := range []int{1, 3, 7, 4096} {
		frames, err := readAll(t, body, chunk)
		if err != nil {
			t.Fatalf("chunk %d: unexpected error: %v", chunk, err)
		}
		if len(frames) != 3 {
			t.Fatalf("chunk %d: expected 3 frames, got %d", chunk, len(frames))
		}
		if *frames[0].Progress != 25 || *frames[1].Progress != 50 {
			t.Errorf("chunk %d: progress frames out of order", chunk)
		}
		if frames[2].ImagePath != "out/1.png" {
			t.Errorf("chunk %d: expected trailing image frame without newline, got %+v", chunk, frames[2])
		}
	}
}

func TestFrameReaderZeroProgress(t *testing.T) {
	frames, err := readAll(t, "data: {\"progress\": 0}\n", 4096)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 || frames[0].Progress == nil || *frames[0].Progress != 0 {
		t.Errorf("expected a zero progress frame, got %+v", frames)
	}
}

func TestFrameReaderMalformed(t *testing.T) {
	frames, err := readAll(t, "data: {\"progress\": 10}\ndata: {not json}\ndata: {\"progress\": 20}\n", 4096)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %T %v", err, err)
	}
	if len(frames) != 1 {
		t.Errorf("expected frames before the bad one to be delivered, got %d", len(frames))
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestFrameReaderTransportError(t *testing.T) {
	r := NewFrameReader(io.NopCloser(failingReader{}))
	_, err := r.Next()
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %T %v", err, err)
	}
}
