package progress

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mando222/ai-image-gen/internal/form"
	"github.com/mando222/ai-image-gen/internal/genapi"
)

func newForm(prompt string) *form.Form {
	f := form.New()
	f.SetPrompt(prompt)
	return f
}

// collect runs src to completion and returns every event it sent.
func collect(t *testing.T, ctx context.Context, src Source, sub Submission) []Event {
	t.Helper()
	events := make(chan Event, 64)
	done := make(chan struct{})
	go func() {
		src.Run(ctx, sub, events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("source did not return")
	}
	close(events)

	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func kinds(events []Event) string {
	s := ""
	for i, ev := range events {
		if i > 0 {
			s += ","
		}
		s += ev.Kind.String()
	}
	return s
}

func streamServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestStreamSourceScenario(t *testing.T) {
	server := streamServer(t, "data: {\"progress\":50}\n\ndata: {\"image_path\":\"out/1.png\"}\n\n")
	src := &StreamSource{
		Client:        genapi.NewClient(server.URL, genapi.WithHTTPClient(server.Client())),
		ResultBaseURL: "http://192.168.56.1:5000",
	}

	events := collect(t, context.Background(), src, Submission{Form: newForm("a cat")})
	if got := kinds(events); got != "started,progress,completed" {
		t.Fatalf("unexpected events: %s", got)
	}
	if events[1].Percent != 50 {
		t.Errorf("expected 50%%, got %v", events[1].Percent)
	}
	if events[2].ImageURL != "http://192.168.56.1:5000/out/1.png" {
		t.Errorf("unexpected image URL %q", events[2].ImageURL)
	}
}

func TestStreamSourceFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		check   func(error) bool
		wantSeq string
	}{
		{
			name: "error frame",
			body: "data: {\"progress\":10}\n\ndata: {\"error\":\"CUDA out of memory\"}\n\ndata: {\"image_path\":\"never.png\"}\n\n",
			check: func(err error) bool {
				var e *genapi.ServiceError
				return errors.As(err, &e) && e.Message == "CUDA out of memory"
			},
			wantSeq: "started,progress,failed",
		},
		{
			name:    "malformed frame",
			body:    "data: {\"progress\":10\n\n",
			check:   func(err error) bool { var e *genapi.DecodeError; return errors.As(err, &e) },
			wantSeq: "started,failed",
		},
		{
			name: "stream ends early",
			body: "data: {\"progress\":10}\n\n",
			check: func(err error) bool {
				var e *genapi.TransportError
				return errors.As(err, &e) && errors.Is(err, errStreamEnded)
			},
			wantSeq: "started,progress,failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := streamServer(t, tt.body)
			src := &StreamSource{Client: genapi.NewClient(server.URL, genapi.WithHTTPClient(server.Client())), ResultBaseURL: server.URL}

			events := collect(t, context.Background(), src, Submission{Form: newForm("a cat")})
			if got := kinds(events); got != tt.wantSeq {
				t.Fatalf("unexpected events: %s", got)
			}
			last := events[len(events)-1]
			if !tt.check(last.Err) {
				t.Errorf("unexpected error %T %v", last.Err, last.Err)
			}
			if last.ImageURL != "" {
				t.Error("failed generation must not carry an image")
			}
		})
	}
}

func TestStreamSourceInlineImage(t *testing.T) {
	server := streamServer(t, "data: {\"image\":\"iVBORw0KGgo=\"}\n\n")
	src := &StreamSource{Client: genapi.NewClient(server.URL, genapi.WithHTTPClient(server.Client())), ResultBaseURL: server.URL}

	events := collect(t, context.Background(), src, Submission{Form: newForm("a cat")})
	last := events[len(events)-1]
	if last.Kind != EventCompleted || last.ImageURL != "data:image/png;base64,iVBORw0KGgo=" {
		t.Errorf("unexpected terminal event %+v", last)
	}
}

func TestStreamSourceValidation(t *testing.T) {
	src := &StreamSource{Client: genapi.NewClient("http://127.0.0.1:1")}
	events := collect(t, context.Background(), src, Submission{Form: newForm("   ")})
	if len(events) != 1 || events[0].Kind != EventFailed {
		t.Fatalf("expected a single failure, got %s", kinds(events))
	}
	var vErr *form.ValidationError
	if !errors.As(events[0].Err, &vErr) {
		t.Errorf("expected ValidationError, got %T", events[0].Err)
	}
}

func TestStreamSourceCancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"progress\":10}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	src := &StreamSource{Client: genapi.NewClient(server.URL, genapi.WithHTTPClient(server.Client())), ResultBaseURL: server.URL}

	events := make(chan Event, 16)
	done := make(chan struct{})
	go func() {
		src.Run(ctx, Submission{Form: newForm("a cat")}, events)
		close(done)
	}()

	for ev := range events {
		if ev.Kind == EventProgress {
			break
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("source did not stop after cancel")
	}
	close(events)
	for ev := range events {
		if ev.Terminal() {
			t.Errorf("cancelled source must not send a terminal event, got %s", ev.Kind)
		}
	}
}

// statusServer answers POST /api/generate with job-1 and replays statuses in
// order on each GET /api/status/job-1, repeating the last one.
func statusServer(t *testing.T, statuses []string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			fmt.Fprint(w, `{"jobId":"job-1"}`)
		case "/api/status/job-1":
			n := int(atomic.AddInt32(&calls, 1)) - 1
			if n >= len(statuses) {
				n = len(statuses) - 1
			}
			if statuses[n] == "500" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, statuses[n])
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestPollSourceCompletes(t *testing.T) {
	server, calls := statusServer(t, []string{
		`{"progress":10,"status":"pending"}`,
		"500",
		`{"progress":60,"status":"pending"}`,
		`{"progress":100,"status":"completed"}`,
		`{"progress":100,"status":"completed","imageUrl":"/images/job-1.png"}`,
	})
	src := &PollSource{
		Client:        genapi.NewClient(server.URL, genapi.WithHTTPClient(server.Client())),
		ResultBaseURL: "http://results.local",
		Interval:      10 * time.Millisecond,
	}

	events := collect(t, context.Background(), src, Submission{Form: newForm("a cat")})
	if got := kinds(events); got != "started,progress,tick_error,progress,progress,progress,completed" {
		t.Fatalf("unexpected events: %s", got)
	}
	if events[0].JobID != "job-1" {
		t.Errorf("expected job-1, got %q", events[0].JobID)
	}
	last := events[len(events)-1]
	if last.ImageURL != "http://results.local/images/job-1.png" {
		t.Errorf("unexpected image URL %q", last.ImageURL)
	}

	// The ticker must be gone once the job is terminal.
	seen := atomic.LoadInt32(calls)
	time.Sleep(60 * time.Millisecond)
	if after := atomic.LoadInt32(calls); after != seen {
		t.Errorf("polling continued after completion: %d -> %d status calls", seen, after)
	}
}

func TestPollSourceFailed(t *testing.T) {
	server, _ := statusServer(t, []string{`{"progress":30,"status":"failed"}`})
	src := &PollSource{Client: genapi.NewClient(server.URL, genapi.WithHTTPClient(server.Client())), Interval: 5 * time.Millisecond}

	events := collect(t, context.Background(), src, Submission{Form: newForm("a cat")})
	last := events[len(events)-1]
	var svcErr *genapi.ServiceError
	if last.Kind != EventFailed || !errors.As(last.Err, &svcErr) || svcErr.Message != failedMessage {
		t.Errorf("unexpected terminal event %+v", last)
	}
}

func TestPollSourceSubmitError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"queue full"}`)
	}))
	defer server.Close()

	src := &PollSource{Client: genapi.NewClient(server.URL, genapi.WithHTTPClient(server.Client())), Interval: 5 * time.Millisecond}
	events := collect(t, context.Background(), src, Submission{Form: newForm("a cat")})
	if got := kinds(events); got != "failed" {
		t.Fatalf("unexpected events: %s", got)
	}
	if events[0].Err.Error() != "queue full" {
		t.Errorf("expected service message, got %v", events[0].Err)
	}
}

// countingPoller counts status queries as Run issues them.
type countingPoller struct {
	Poller
	statuses atomic.Int32
}

func (c *countingPoller) Status(ctx context.Context, jobID string) (*genapi.JobStatus, error) {
	c.statuses.Add(1)
	return c.Poller.Status(ctx, jobID)
}

func TestPollSourceCancelStopsTicker(t *testing.T) {
	server, _ := statusServer(t, []string{`{"progress":5,"status":"pending"}`})
	client := &countingPoller{Poller: genapi.NewClient(server.URL, genapi.WithHTTPClient(server.Client()))}
	src := &PollSource{Client: client, Interval: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event, 256)
	done := make(chan struct{})
	go func() {
		src.Run(ctx, Submission{Form: newForm("a cat")}, events)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop after cancel")
	}

	seen := client.statuses.Load()
	if seen == 0 {
		t.Fatal("expected status queries before cancel")
	}
	time.Sleep(30 * time.Millisecond)
	if after := client.statuses.Load(); after != seen {
		t.Errorf("polling continued after cancel: %d -> %d", seen, after)
	}
}
