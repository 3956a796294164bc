// Package upload orchestrates validate, upload and progress reporting for a
// single file at a time.
package upload

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tendant/necronet/pkg/necronet"
	"github.com/tendant/necronet/pkg/necronet/client"
	"github.com/tendant/necronet/pkg/necronet/validation"
)

// MessageFailed is shown when an upload error carries no detail.
const MessageFailed = "Upload failed. Please try again."

// Uploader sends a file to the service. *client.Client satisfies it.
type Uploader interface {
	UploadArtifact(ctx context.Context, file *necronet.File, onProgress client.ProgressFunc) (*necronet.Artifact, error)
}

// Listener receives every progress state the controller publishes.
type Listener func(necronet.UploadProgress)

// Controller holds the progress and result of the most recent upload.
// It is safe for concurrent use; a Reset or a newer Upload makes updates
// from an older upload stale, and stale updates are dropped.
type Controller struct {
	uploader Uploader
	validate func(*necronet.File) necronet.ValidationResult
	logger   *slog.Logger

	mu         sync.Mutex
	generation  uint64
	progressGen uint64
	progress    necronet.UploadProgress
	artifact    *necronet.Artifact
	listeners   map[int]Listener
	nextID      int
}

// Option configures a Controller.
type Option func(*Controller)

// WithValidator replaces validation.Validate.
func WithValidator(fn func(*necronet.File) necronet.ValidationResult) Option {
	return func(c *Controller) {
		if fn != nil {
			c.validate = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewController creates an idle controller.
func NewController(u Uploader, opts ...Option) *Controller {
	c := &Controller{
		uploader:  u,
		validate:  validation.Validate,
		logger:    slog.Default(),
		progress:  necronet.IdleProgress(),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload validates file and, if it passes, uploads it. It returns the
// created artifact, or nil on any failure; the reason is in Progress().Error.
// A file failing validation never reaches the Uploader.
func (c *Controller) Upload(ctx context.Context, file *necronet.File) *necronet.Artifact {
	if result := c.validate(file); !result.Valid {
		c.mu.Lock()
		c.generation++
		gen := c.generation
		c.mu.Unlock()
		c.publish(gen, necronet.UploadProgress{Percent: 0, Status: necronet.ProgressError, Error: result.Error}, nil, false)
		return nil
	}

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.artifact = nil
	c.mu.Unlock()
	c.publish(gen, necronet.UploadProgress{Percent: 0, Status: necronet.ProgressUploading}, nil, false)

	artifact, err := c.uploader.UploadArtifact(ctx, file, func(percent int) {
		c.publish(gen, necronet.UploadProgress{Percent: percent, Status: necronet.ProgressUploading}, nil, false)
	})
	if err != nil {
		c.logger.Debug("upload failed", "name", file.Name, "err", err)
		c.publish(gen, necronet.UploadProgress{
			Percent: 0,
			Status:  necronet.ProgressError,
			Error:   necronet.DisplayMessage(err, MessageFailed),
		}, nil, false)
		return nil
	}

	c.logger.Debug("upload finished", "name", file.Name, "artifact_id", artifact.ID)
	c.publish(gen, necronet.UploadProgress{Percent: 100, Status: necronet.ProgressSuccess}, artifact, true)
	return artifact
}

// Progress returns the current progress state.
func (c *Controller) Progress() necronet.UploadProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Artifact returns the result of the last successful upload, or nil.
func (c *Controller) Artifact() *necronet.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifact
}

// Reset returns to idle and forgets the last result. It may be called at
// any time; an upload still in flight no longer affects the state.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.artifact = nil
	c.mu.Unlock()
	c.publish(gen, necronet.IdleProgress(), nil, false)
}

// Subscribe registers fn for future progress states and returns a function
// that removes it.
func (c *Controller) Subscribe(fn Listener) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// publish applies p (and, with setArtifact, the result) if gen is still
// current, then notifies listeners outside the lock.
func (c *Controller) publish(gen uint64, p necronet.UploadProgress, artifact *necronet.Artifact, setArtifact bool) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	if c.progressGen == gen && !advances(c.progress, p) {
		c.mu.Unlock()
		return
	}
	c.progress = p
	c.progressGen = gen
	if setArtifact {
		c.artifact = artifact
	}
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(p)
	}
}

// advances reports whether next may follow cur within one upload: percent
// never moves backwards or repeats, and nothing follows success or error.
func advances(cur, next necronet.UploadProgress) bool {
	switch cur.Status {
	case necronet.ProgressSuccess, necronet.ProgressError:
		return false
	case necronet.ProgressUploading:
		return next.Status != necronet.ProgressUploading || next.Percent > cur.Percent
	}
	return true
}
