// Package viewstate adapts the client and poller into observable view
// objects: a single artifact that follows its migration, and a paginated
// artifact list. Views never return errors; failures become a display
// string in the state.
package viewstate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tendant/necronet/pkg/necronet"
	"github.com/tendant/necronet/pkg/necronet/poller"
)

// MessageArtifactFailed is shown when loading an artifact fails without a detail.
const MessageArtifactFailed = "Failed to load artifact."

// Poller follows an artifact until it is terminal. *poller.Poller satisfies it.
type Poller interface {
	Poll(ctx context.Context, id string, onStatusChange poller.StatusFunc) (*necronet.Artifact, error)
}

// ArtifactState is what an ArtifactView exposes.
type ArtifactState struct {
	Artifact *necronet.Artifact
	Loading  bool   // the initial fetch of a run is in flight
	Polling  bool   // the artifact is migrating and being followed
	Error    string // display message of the last failed fetch
}

// ArtifactView follows one artifact. Each Refetch starts a run: one fetch,
// then, if the artifact is migrating, a poll until it is terminal. Only the
// latest run affects the state, and runs never overlap.
type ArtifactView struct {
	id      string
	fetcher poller.Fetcher
	poller  Poller
	logger  *slog.Logger
	store   *store[ArtifactState]

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewArtifactView creates a view for id. Nothing is fetched until Refetch.
// Without WithPoller, a poller.Poller with the default policy is used.
func NewArtifactView(f poller.Fetcher, id string, opts ...Option) *ArtifactView {
	o := newOptions(opts)
	p := o.poller
	if p == nil {
		p = poller.New(f, poller.WithLogger(o.logger))
	}
	return &ArtifactView{
		id:      id,
		fetcher: f,
		poller:  p,
		logger:  o.logger,
		store:   newStore(ArtifactState{}, nil),
	}
}

// ID returns the artifact id the view follows.
func (v *ArtifactView) ID() string {
	return v.id
}

// State returns the current state.
func (v *ArtifactView) State() ArtifactState {
	return v.store.get()
}

// Subscribe registers fn for every future state and returns a function that
// removes it. fn must not call Refetch or Close.
func (v *ArtifactView) Subscribe(fn func(ArtifactState)) (unsubscribe func()) {
	return v.store.subscribe(fn)
}

// Refetch starts a new run in the background and returns immediately. A
// run already in progress is cancelled and its later results are ignored;
// the new run starts fetching once the old one has returned. Refetch after
// Close does nothing.
func (v *ArtifactView) Refetch(ctx context.Context) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	if v.cancel != nil {
		v.cancel()
	}
	prev := v.done
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	v.cancel, v.done = cancel, done
	gen := v.store.next()
	v.mu.Unlock()

	v.store.apply(gen, func(s *ArtifactState) bool {
		s.Loading = true
		s.Polling = false
		s.Error = ""
		return true
	})

	go func() {
		defer close(done)
		defer cancel()
		if prev != nil {
			<-prev
		}
		v.run(runCtx, gen)
	}()
}

// Wait blocks until the most recently started run has finished.
func (v *ArtifactView) Wait() {
	v.mu.Lock()
	done := v.done
	v.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close cancels any run, waits for it to return and stops all further
// state changes.
func (v *ArtifactView) Close() {
	v.mu.Lock()
	v.closed = true
	v.store.next()
	if v.cancel != nil {
		v.cancel()
	}
	done := v.done
	v.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (v *ArtifactView) run(ctx context.Context, gen uint64) {
	if ctx.Err() != nil {
		return
	}

	artifact, err := v.fetcher.GetArtifact(ctx, v.id)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		v.store.apply(gen, func(s *ArtifactState) bool {
			s.Loading = false
			s.Error = necronet.DisplayMessage(err, MessageArtifactFailed)
			return true
		})
		return
	}

	migrating := artifact.Status == necronet.StatusMigrating
	applied := v.store.apply(gen, func(s *ArtifactState) bool {
		s.Artifact = artifact
		s.Loading = false
		s.Polling = migrating
		return true
	})
	if !applied || !migrating {
		return
	}

	_, err = v.poller.Poll(ctx, v.id, func(a *necronet.Artifact) {
		if ctx.Err() != nil {
			return
		}
		v.store.apply(gen, func(s *ArtifactState) bool {
			s.Artifact = a
			return true
		})
	})
	if err != nil && ctx.Err() == nil {
		v.logger.Warn("artifact polling ended", "artifact_id", v.id, "err", err)
	}
	v.store.apply(gen, func(s *ArtifactState) bool {
		s.Polling = false
		return true
	})
}
