package viewstate

import (
	"context"
	"slices"

	"github.com/tendant/necronet/pkg/necronet"
)

// MessageListFailed is shown when loading a page fails without a detail.
const MessageListFailed = "Failed to load artifacts."

// Lister loads one page of artifacts. *client.Client satisfies it.
type Lister interface {
	ListArtifacts(ctx context.Context, limit, offset int) (*necronet.ArtifactList, error)
}

// ListState is what an ArtifactListView exposes.
type ListState struct {
	Artifacts []necronet.Artifact
	Total     int
	Offset    int // offset of the next page
	Loading   bool
	Error     string
}

// HasMore reports whether fewer artifacts are held than the service has.
func (s ListState) HasMore() bool {
	return len(s.Artifacts) < s.Total
}

// ArtifactListView accumulates pages of artifacts.
type ArtifactListView struct {
	lister   Lister
	pageSize int
	store    *store[ListState]
}

// NewArtifactListView creates an empty list view. Nothing is fetched until Refetch.
func NewArtifactListView(l Lister, opts ...Option) *ArtifactListView {
	o := newOptions(opts)
	return &ArtifactListView{
		lister:   l,
		pageSize: o.pageSize,
		store: newStore(ListState{}, func(s ListState) ListState {
			s.Artifacts = slices.Clone(s.Artifacts)
			return s
		}),
	}
}

// PageSize returns the number of artifacts requested per page.
func (v *ArtifactListView) PageSize() int {
	return v.pageSize
}

// State returns the current state.
func (v *ArtifactListView) State() ListState {
	return v.store.get()
}

// HasMore reports whether LoadMore would fetch another page.
func (v *ArtifactListView) HasMore() bool {
	return v.store.get().HasMore()
}

// Subscribe registers fn for every future state and returns a function that
// removes it. fn must not call Refetch or LoadMore.
func (v *ArtifactListView) Subscribe(fn func(ListState)) (unsubscribe func()) {
	return v.store.subscribe(fn)
}

// Refetch discards everything held and loads the first page. A LoadMore
// still in flight is ignored when it returns.
func (v *ArtifactListView) Refetch(ctx context.Context) {
	gen := v.store.next()
	v.store.apply(gen, func(s *ListState) bool {
		*s = ListState{Loading: true}
		return true
	})
	v.load(ctx, gen, 0)
}

// LoadMore appends the next page. It does nothing and returns false while
// another load is in flight or when everything has been loaded.
func (v *ArtifactListView) LoadMore(ctx context.Context) bool {
	var offset int
	gen, ok := v.store.applyCurrent(func(s *ListState) bool {
		if s.Loading || !s.HasMore() {
			return false
		}
		s.Loading = true
		s.Error = ""
		offset = s.Offset
		return true
	})
	if !ok {
		return false
	}
	v.load(ctx, gen, offset)
	return true
}

func (v *ArtifactListView) load(ctx context.Context, gen uint64, offset int) {
	page, err := v.lister.ListArtifacts(ctx, v.pageSize, offset)
	if err != nil {
		v.store.apply(gen, func(s *ListState) bool {
			s.Loading = false
			s.Error = necronet.DisplayMessage(err, MessageListFailed)
			return true
		})
		return
	}
	v.store.apply(gen, func(s *ListState) bool {
		s.Artifacts = append(s.Artifacts, page.Artifacts...)
		s.Total = page.Total
		s.Offset = offset + v.pageSize
		s.Loading = false
		return true
	})
}
