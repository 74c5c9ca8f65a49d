// Package session owns the state of one user's generation workflow: the
// current job, its progress, the last error, the gallery of result images,
// and the cached LoRA catalog.
//
// A Controller runs at most one generation at a time. Each generation gets a
// runner goroutine (a progress.Source) and an observer goroutine that applies
// the runner's events to the state machine in arrival order:
//
//	idle -> generating -> completed | failed
//
// completed and failed return to generating on the next Submit. Events from a
// superseded runner are ignored.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mando222/ai-image-gen/internal/form"
	"github.com/mando222/ai-image-gen/internal/genapi"
	"github.com/mando222/ai-image-gen/internal/metrics"
	"github.com/mando222/ai-image-gen/internal/progress"
	"github.com/rs/zerolog/log"
)

// ErrBusy is returned by Submit while a generation is running.
var ErrBusy = errors.New("a generation is already running")

// ErrUnknownRun is returned by WaitRun for a run the controller no longer
// remembers.
var ErrUnknownRun = errors.New("unknown generation run")

// DefaultLoraCacheTTL is how long a fetched LoRA catalog is reused.
const DefaultLoraCacheTTL = 5 * time.Minute

// loraKey is the only key in the LoRA cache; the catalog is fetched whole.
const loraKey = "loras"

// eventBuffer lets a runner get a few events ahead of the observer.
const eventBuffer = 16

// runHistory is how many recent runs keep their outcome for WaitRun.
const runHistory = 32

// State is a stage of the generation state machine.
type State int

const (
	StateIdle State = iota
	StateGenerating
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGenerating:
		return "generating"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Catalog lists what the service already has. *genapi.Client satisfies it.
type Catalog interface {
	Loras(ctx context.Context) (*genapi.LoraGroups, error)
	Images(ctx context.Context) ([]string, error)
}

// Snapshot is a copy of the controller state at one moment.
type Snapshot struct {
	State    State
	Mode     string
	JobID    string
	Progress float64
	ImageURL string
	// Err is the failure behind a failed state, or nil.
	Err error
	// Error is Err as the message shown to the user.
	Error string
	// PollErrors counts tolerated status-query failures for the current job.
	PollErrors int
	Gallery    []string
}

// Generating reports whether a job is in flight.
func (s Snapshot) Generating() bool {
	return s.State == StateGenerating
}

// run is one generation started by Start. final is set, under the controller
// mutex, before done is closed.
type run struct {
	done     chan struct{}
	final    Snapshot
	finished bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithResultBaseURL sets the base used to resolve relative gallery image
// references.
func WithResultBaseURL(base string) Option {
	return func(c *Controller) { c.resultBase = base }
}

// WithLoraCacheTTL sets how long a fetched LoRA catalog stays valid.
func WithLoraCacheTTL(ttl time.Duration) Option {
	return func(c *Controller) { c.loraTTL = ttl }
}

// WithMetrics makes the controller write one metrics line per finished
// generation to w.
func WithMetrics(w io.Writer) Option {
	return func(c *Controller) { c.metricsOut = w }
}

// Controller is the single session object shared by every front end.
type Controller struct {
	catalog    Catalog
	source     progress.Source
	resultBase string
	loraTTL    time.Duration
	metricsOut io.Writer
	loras      *expirable.LRU[string, *genapi.LoraGroups]

	mu         sync.Mutex
	state      State
	jobID      string
	progress   float64
	imageURL   string
	err        error
	pollErrors int
	generated  []string // most recent first
	loaded     []string // service order
	runID      uint64
	cancel     context.CancelFunc
	done       chan struct{}
	rec        *metrics.Recorder
	subs       map[chan Snapshot]struct{}
	runs       map[uint64]*run
}

// New creates an idle controller that runs generations through source and
// reads the LoRA and image catalogs from catalog.
func New(catalog Catalog, source progress.Source, opts ...Option) *Controller {
	c := &Controller{
		catalog: catalog,
		source:  source,
		loraTTL: DefaultLoraCacheTTL,
		subs:    make(map[chan Snapshot]struct{}),
		runs:    make(map[uint64]*run),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.loras = expirable.NewLRU[string, *genapi.LoraGroups](1, nil, c.loraTTL)
	return c
}

// Submit validates f and starts a generation. It returns the validation error
// for an unusable form and ErrBusy while another generation is running; in
// both cases the state is unchanged. The generation stops when ctx is
// cancelled.
//
// The form is read by the runner after Submit returns; callers must not
// modify it until the generation finishes.
func (c *Controller) Submit(ctx context.Context, f *form.Form) error {
	_, err := c.Start(ctx, f)
	return err
}

// Start is Submit that also returns the id of the new run, for use with
// WaitRun and CancelRun.
func (c *Controller) Start(ctx context.Context, f *form.Form) (uint64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}

	// Peek only: filtering uses whatever catalog is already loaded.
	groups, _ := c.loras.Get(loraKey)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateGenerating {
		return 0, ErrBusy
	}
	if c.cancel != nil {
		c.cancel()
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.runID++
	id := c.runID
	c.cancel = cancel
	c.done = make(chan struct{})
	c.runs[id] = &run{done: c.done}
	for old := range c.runs {
		if old+runHistory <= id {
			delete(c.runs, old)
		}
	}
	c.state = StateGenerating
	c.jobID = ""
	c.progress = 0
	c.imageURL = ""
	c.err = nil
	c.pollErrors = 0
	c.rec = metrics.New(metrics.Namespace).Dimension("Mode", c.source.Name())

	events := make(chan progress.Event, eventBuffer)
	sub := progress.Submission{Form: f, Loras: groups}
	go func() {
		c.source.Run(runCtx, sub, events)
		close(events)
	}()
	go c.observe(id, events, c.done)

	log.Info().Str("mode", c.source.Name()).Uint64("run", id).Msg("Generation submitted")
	c.notifyLocked()
	return id, nil
}

// observe applies one runner's events until the runner returns.
func (c *Controller) observe(id uint64, events <-chan progress.Event, done chan struct{}) {
	defer close(done)
	for ev := range events {
		c.apply(id, ev)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runID != id || c.state != StateGenerating {
		return
	}
	// The runner gave up without a terminal event: its context was cancelled.
	log.Info().Str("jobId", c.jobID).Msg("Generation cancelled")
	c.resetLocked()
	c.notifyLocked()
}

func (c *Controller) apply(id uint64, ev progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id != c.runID || c.state != StateGenerating {
		log.Debug().Str("event", ev.Kind.String()).Uint64("run", id).Msg("Ignoring event from superseded run")
		return
	}

	switch ev.Kind {
	case progress.EventStarted:
		c.jobID = ev.JobID
		c.rec.Property("jobId", ev.JobID)

	case progress.EventProgress:
		c.progress = ev.Percent
		c.rec.Count("ProgressUpdates")
		log.Debug().Str("jobId", c.jobID).Float64("progress", ev.Percent).Msg("Generation progress")

	case progress.EventTickError:
		c.pollErrors++
		c.rec.Count("PollErrors")

	case progress.EventCompleted:
		c.state = StateCompleted
		c.imageURL = ev.ImageURL
		c.generated = prependUnique(c.generated, ev.ImageURL)
		log.Info().Str("jobId", c.jobID).Str("imageUrl", logURL(ev.ImageURL)).Msg("Generation completed")
		c.finishLocked("completed")
		c.finalizeRunLocked()

	case progress.EventFailed:
		c.state = StateFailed
		c.err = ev.Err
		log.Error().Err(ev.Err).Str("jobId", c.jobID).Msg("Generation failed")
		c.finishLocked("failed")
		c.finalizeRunLocked()
	}
	c.notifyLocked()
}

// finishLocked releases the runner context and writes the job's metrics.
func (c *Controller) finishLocked(outcome string) {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.rec == nil {
		return
	}
	rec := c.rec
	c.rec = nil
	if c.metricsOut == nil {
		return
	}
	rec.Dimension("Outcome", outcome).
		Metric("LatencyMs", float64(rec.Elapsed().Milliseconds()), metrics.UnitMilliseconds).
		Metric("FinalProgress", c.progress, metrics.UnitPercent)
	if err := rec.Flush(c.metricsOut); err != nil {
		log.Warn().Err(err).Msg("Failed to write generation metrics")
	}
}

// finalizeRunLocked records the current state as the outcome of the current
// run and wakes its WaitRun callers once the observer exits.
func (c *Controller) finalizeRunLocked() {
	r := c.runs[c.runID]
	if r == nil || r.finished {
		return
	}
	r.final = c.snapshotLocked()
	r.finished = true
}

// Cancel stops the running generation, if any, and returns to idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateGenerating {
		return
	}
	log.Info().Str("jobId", c.jobID).Msg("Cancelling generation")
	c.resetLocked()
	c.notifyLocked()
}

func (c *Controller) resetLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.rec = nil
	c.state = StateIdle
	c.jobID = ""
	c.progress = 0
	c.err = nil
	c.finalizeRunLocked()
}

// CancelRun cancels run id if it is still the one generating. Other runs are
// left alone.
func (c *Controller) CancelRun(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runID != id || c.state != StateGenerating {
		return
	}
	log.Info().Str("jobId", c.jobID).Uint64("run", id).Msg("Cancelling generation")
	c.resetLocked()
	c.notifyLocked()
}

// Wait blocks until no generation is running, then returns the state. The
// error is the generation failure for a failed state, or ctx.Err() when ctx
// ends first.
func (c *Controller) Wait(ctx context.Context) (Snapshot, error) {
	for {
		c.mu.Lock()
		if c.state != StateGenerating {
			snap := c.snapshotLocked()
			c.mu.Unlock()
			return snap, snap.Err
		}
		done := c.done
		c.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
}

// WaitRun blocks until run id finishes and returns its final state, however
// many runs have started since. A cancelled run reports the idle state. The
// error is the generation failure for a failed run, or ctx.Err() when ctx
// ends first.
func (c *Controller) WaitRun(ctx context.Context, id uint64) (Snapshot, error) {
	c.mu.Lock()
	r, ok := c.runs[id]
	c.mu.Unlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("run %d: %w", id, ErrUnknownRun)
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		return Snapshot{State: StateGenerating, Mode: c.source.Name()}, ctx.Err()
	}

	c.mu.Lock()
	snap := r.final
	c.mu.Unlock()
	return snap, snap.Err
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:      c.state,
		Mode:       c.source.Name(),
		JobID:      c.jobID,
		Progress:   c.progress,
		ImageURL:   c.imageURL,
		Err:        c.err,
		PollErrors: c.pollErrors,
		Gallery:    c.galleryLocked(),
	}
	if c.err != nil {
		snap.Error = c.err.Error()
	}
	return snap
}

// Subscribe returns a channel that receives a snapshot after every state
// change, and a func that stops delivery and closes the channel. A slow reader
// only misses intermediate snapshots; the latest one is always delivered.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			close(ch)
			c.mu.Unlock()
		})
	}
}

func (c *Controller) notifyLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Dismiss clears the user-visible error. A failed session returns to idle.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return
	}
	c.err = nil
	if c.state == StateFailed {
		c.state = StateIdle
	}
	c.notifyLocked()
}

// LoadLoras returns the LoRA catalog, fetching it when the cached copy is
// missing or expired.
func (c *Controller) LoadLoras(ctx context.Context) (*genapi.LoraGroups, error) {
	if groups, ok := c.loras.Get(loraKey); ok {
		log.Debug().Msg("LoRA catalog served from cache")
		return groups, nil
	}
	groups, err := c.catalog.Loras(ctx)
	if err != nil {
		return nil, fmt.Errorf("load loras: %w", err)
	}
	c.loras.Add(loraKey, groups)
	log.Info().Int("fast", len(groups.Fast)).Int("slow", len(groups.Slow)).Msg("LoRA catalog loaded")
	return groups, nil
}

// LoadGallery fetches the images the service already holds and replaces the
// previously loaded ones. Images generated in this session stay on top.
// Loading twice without new generations yields the same gallery.
func (c *Controller) LoadGallery(ctx context.Context) ([]string, error) {
	refs, err := c.catalog.Images(ctx)
	if err != nil {
		return nil, fmt.Errorf("load gallery: %w", err)
	}

	loaded := make([]string, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		u, err := genapi.ResolveImageURL(c.resultBase, ref)
		if err != nil {
			log.Warn().Err(err).Str("ref", ref).Msg("Skipping unusable gallery entry")
			continue
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		loaded = append(loaded, u)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = loaded
	log.Info().Int("images", len(loaded)).Msg("Gallery loaded")
	c.notifyLocked()
	return c.galleryLocked(), nil
}

// Gallery returns generated images, most recent first, followed by the
// loaded images in service order.
func (c *Controller) Gallery() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.galleryLocked()
}

func (c *Controller) galleryLocked() []string {
	out := make([]string, 0, len(c.generated)+len(c.loaded))
	out = append(out, c.generated...)
	for _, u := range c.loaded {
		if !slices.Contains(c.generated, u) {
			out = append(out, u)
		}
	}
	return out
}

func prependUnique(list []string, s string) []string {
	out := make([]string, 0, len(list)+1)
	out = append(out, s)
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// logURL keeps inline data URLs out of the log.
func logURL(u string) string {
	if strings.HasPrefix(u, "data:") {
		return "data:(inline)"
	}
	return u
}
