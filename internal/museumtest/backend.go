// Package museumtest provides an in-memory stand-in for the remote artifact
// service. Status progressions are scripted per artifact, so polling and
// view-state behaviour can be exercised deterministically over real HTTP.
package museumtest

import (
	"log/slog"
	"net/http/httptest"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/necronet/pkg/necronet"
)

// Step is one scripted answer to GET /api/artifacts/{id}. Status,
// NarrationURL and ErrorMessage are applied to the stored artifact before it
// is returned; zero values leave the field unchanged.
type Step struct {
	Status       necronet.Status
	NarrationURL string
	ErrorMessage string

	FailStatus int           // answer with this HTTP status and FailDetail instead
	FailDetail string        // detail of the error body, omitted when empty
	Drop       bool          // close the connection without answering
	Delay      time.Duration // wait before answering
}

// Backend is an in-memory artifact service.
type Backend struct {
	mu        sync.Mutex
	artifacts map[string]*necronet.Artifact
	blobs     map[string][]byte
	order     []string
	scripts   map[string][]Step
	gets      map[string]int
	uploads   int

	uploadDelay   time.Duration
	uploadFailure *Step
	listFailure   *Step
	afterUpload   func(a necronet.Artifact) []Step
	now           func() time.Time
	newID         func() string
	logger        *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithUploadDelay delays every upload answer by d.
func WithUploadDelay(d time.Duration) Option {
	return func(b *Backend) { b.uploadDelay = d }
}

// WithAfterUpload sets the script installed for every newly uploaded
// artifact. Returning nil leaves the artifact at "uploaded".
func WithAfterUpload(fn func(a necronet.Artifact) []Step) Option {
	return func(b *Backend) { b.afterUpload = fn }
}

// WithClock sets the source of created_at timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithIDFunc sets the artifact id generator.
func WithIDFunc(fn func() string) Option {
	return func(b *Backend) { b.newID = fn }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) { b.logger = logger }
}

// DefaultMigration mirrors the real service: the artifact migrates for a
// while and ends ready with a narration.
func DefaultMigration(a necronet.Artifact) []Step {
	return []Step{
		{Status: necronet.StatusMigrating},
		{Status: necronet.StatusMigrating},
		{Status: necronet.StatusReady, NarrationURL: "https://narrations.necronet.test/" + a.ID + ".mp3"},
	}
}

// New creates an empty backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		artifacts: make(map[string]*necronet.Artifact),
		blobs:     make(map[string][]byte),
		scripts:   make(map[string][]Step),
		gets:      make(map[string]int),
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewServer starts an httptest server for b. The caller closes it.
func NewServer(b *Backend) *httptest.Server {
	return httptest.NewServer(b.Routes())
}

// Seed stores a copy of a, replacing any artifact with the same id.
func (b *Backend) Seed(a necronet.Artifact) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = necronet.Timestamp{Time: b.now().UTC()}
	}
	if _, exists := b.artifacts[a.ID]; !exists {
		b.order = append(b.order, a.ID)
	}
	artifactCopy := a
	b.artifacts[a.ID] = &artifactCopy
}

// Script queues answers for GET /api/artifacts/{id}. Each GET consumes one
// step; the last step repeats forever.
func (b *Backend) Script(id string, steps ...Step) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts[id] = append([]Step(nil), steps...)
}

// FailUploads makes every upload answer according to step.
func (b *Backend) FailUploads(step Step) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploadFailure = &step
}

// FailList makes every list request answer according to step.
func (b *Backend) FailList(step Step) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listFailure = &step
}

// Artifact returns a copy of the stored artifact.
func (b *Backend) Artifact(id string) (necronet.Artifact, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.artifacts[id]
	if !ok {
		return necronet.Artifact{}, false
	}
	return *a, true
}

// Blob returns the uploaded bytes stored under key.
func (b *Backend) Blob(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[key]
	return data, ok
}

// Gets returns how many times GET /api/artifacts/{id} was served for id.
func (b *Backend) Gets(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gets[id]
}

// Uploads returns how many upload requests reached the backend.
func (b *Backend) Uploads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uploads
}

// nextStep pops the next scripted answer for id. ok is false when id has no script.
func (b *Backend) nextStep(id string) (Step, bool) {
	steps := b.scripts[id]
	if len(steps) == 0 {
		return Step{}, false
	}
	step := steps[0]
	if len(steps) > 1 {
		b.scripts[id] = steps[1:]
	}
	return step, true
}

// page returns artifacts newest first.
func (b *Backend) page(limit, offset int) ([]necronet.Artifact, int) {
	all := make([]necronet.Artifact, 0, len(b.order))
	for i := len(b.order) - 1; i >= 0; i-- {
		all = append(all, *b.artifacts[b.order[i]])
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt.Time)
	})

	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total
}
