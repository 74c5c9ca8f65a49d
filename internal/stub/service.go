// Package stub is a local stand-in for the remote generation service. It
// implements the streaming and polling contracts plus the LoRA and image
// catalogs with deterministic progress, so the client can be developed and
// tested without a GPU.
//
// A prompt containing "fail" makes the job fail halfway through.
package stub

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"github.com/mando222/ai-image-gen/internal/genapi"
	"github.com/rs/zerolog/log"
)

const (
	defaultSteps = 4

	failTrigger = "fail"
	failMessage = "Generation failed: simulated error"
)

// placeholderPNG is a 1x1 transparent PNG served for every result image.
var placeholderPNG, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==")

// DefaultLoras is the catalog served unless WithLoras replaces it.
var DefaultLoras = genapi.LoraGroups{
	Fast: []genapi.Lora{
		{ID: "fast-detail", Name: "Detail Tweaker (fast)"},
		{ID: "fast-anime", Name: "Anime Style (fast)"},
	},
	Slow: []genapi.Lora{
		{ID: "slow-photoreal", Name: "Photoreal (slow)"},
		{ID: "slow-watercolor", Name: "Watercolor (slow)"},
	},
}

type job struct {
	prompt   string
	polls    int
	imageURL string
}

// Service holds the stub's jobs and gallery. Use New.
type Service struct {
	steps int
	delay time.Duration
	loras genapi.LoraGroups

	mu     sync.Mutex
	jobs   map[string]*job
	images []string
}

// Option configures a Service.
type Option func(*Service)

// WithSteps sets how many progress frames a stream sends, and how many
// status polls a job takes to complete.
func WithSteps(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.steps = n
		}
	}
}

// WithFrameDelay sets the pause between streamed progress frames.
func WithFrameDelay(d time.Duration) Option {
	return func(s *Service) { s.delay = d }
}

// WithLoras replaces the LoRA catalog.
func WithLoras(groups genapi.LoraGroups) Option {
	return func(s *Service) { s.loras = groups }
}

// WithImages seeds the gallery with existing image paths.
func WithImages(paths ...string) Option {
	return func(s *Service) { s.images = append(s.images, paths...) }
}

// New creates a stub service with an empty job table.
func New(opts ...Option) *Service {
	s := &Service{
		steps: defaultSteps,
		loras: DefaultLoras,
		jobs:  make(map[string]*job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the service routes. JSON responses are gzip-compressed when
// the client accepts it; event streams never are.
func (s *Service) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.HEAD("/", s.health)
	r.GET("/", s.health)
	r.POST("/generate", s.handleStream)
	r.POST("/api/generate", s.handleSubmit)
	r.GET("/api/status/:jobId", s.handleStatus)
	r.GET("/api/loras", s.handleLoras)
	r.GET("/api/images", s.handleImages)
	r.GET("/out/:name", s.handleImage)
	r.GET("/images/:name", s.handleImage)

	wrap, err := gzhttp.NewWrapper(gzhttp.ExceptContentTypes([]string{"text/event-stream"}))
	if err != nil {
		log.Warn().Err(err).Msg("Gzip wrapper unavailable, serving uncompressed")
		return r
	}
	return wrap(r)
}

// Images returns the gallery paths in service order.
func (s *Service) Images() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.images...)
}

func (s *Service) health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// handleStream implements POST /generate.
func (s *Service) handleStream(c *gin.Context) {
	var req genapi.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prompt is required"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id := uuid.NewString()
	fails := shouldFail(req.Prompt)
	log.Info().Str("jobId", id).Int("steps", req.Steps).Bool("initImage", req.InitImage != "").Msg("Stub stream started")

	fmt.Fprint(c.Writer, ": connected\n\n")
	flusher.Flush()

	done := c.Request.Context().Done()
	for i := 1; i <= s.steps; i++ {
		pct := i * 100 / s.steps
		if fails && pct > 50 {
			fmt.Fprintf(c.Writer, "data: {\"error\":%q}\n\n", failMessage)
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "data: {\"progress\":%d}\n\n", pct)
		flusher.Flush()

		if s.delay > 0 {
			select {
			case <-done:
				log.Info().Str("jobId", id).Msg("Stub stream abandoned by client")
				return
			case <-time.After(s.delay):
			}
		}
	}

	path := "out/" + id + ".png"
	s.addImage(path)
	fmt.Fprintf(c.Writer, "data: {\"image_path\":%q}\n\n", path)
	flusher.Flush()
}

// handleSubmit implements POST /api/generate.
func (s *Service) handleSubmit(c *gin.Context) {
	var req genapi.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prompt is required"})
		return
	}
	for _, id := range req.Loras {
		if !s.loras.Contains(req.ModelType, id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown LoRA for %s model: %s", req.ModelType, id)})
			return
		}
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.jobs[id] = &job{prompt: req.Prompt}
	s.mu.Unlock()

	log.Info().Str("jobId", id).Str("modelType", req.ModelType).Str("aspectRatio", req.AspectRatio).Strs("loras", req.Loras).Msg("Stub job queued")
	c.JSON(http.StatusOK, gin.H{"jobId": id})
}

// handleStatus implements GET /api/status/:jobId. Each query advances the
// job by one step.
func (s *Service) handleStatus(c *gin.Context) {
	id := c.Param("jobId")

	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if j.polls < s.steps {
		j.polls++
	}
	pct := j.polls * 100 / s.steps
	status := genapi.JobStatus{Progress: float64(pct), Status: genapi.StatusPending}
	switch {
	case shouldFail(j.prompt) && pct > 50:
		status.Status = genapi.StatusFailed
		status.Error = failMessage
	case pct >= 100:
		if j.imageURL == "" {
			j.imageURL = "/images/" + id + ".png"
			s.images = append(s.images, j.imageURL)
		}
		status.Status = genapi.StatusCompleted
		status.ImageURL = j.imageURL
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, status)
}

func (s *Service) handleLoras(c *gin.Context) {
	c.JSON(http.StatusOK, s.loras)
}

func (s *Service) handleImages(c *gin.Context) {
	c.JSON(http.StatusOK, s.Images())
}

func (s *Service) handleImage(c *gin.Context) {
	if !strings.HasSuffix(c.Param("name"), ".png") {
		c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
		return
	}
	c.Data(http.StatusOK, "image/png", placeholderPNG)
}

func (s *Service) addImage(path string) {
	s.mu.Lock()
	s.images = append(s.images, path)
	s.mu.Unlock()
}

func shouldFail(prompt string) bool {
	return strings.Contains(strings.ToLower(prompt), failTrigger)
}

// requestLogger logs one line per request through zerolog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Stub request")
	}
}
