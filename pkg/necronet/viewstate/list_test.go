package viewstate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/necronet/internal/museumtest"
	"github.com/tendant/necronet/pkg/necronet"
	"github.com/tendant/necronet/pkg/necronet/client"
)

func seededList(t *testing.T, n int) (*museumtest.Backend, *client.Client) {
	t.Helper()
	backend := museumtest.New()
	base := time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		backend.Seed(necronet.Artifact{
			ID:        fmt.Sprintf("a%d", i),
			Name:      fmt.Sprintf("relic-%d.gif", i),
			Type:      necronet.ArtifactTypeImage,
			Status:    necronet.StatusReady,
			CreatedAt: necronet.Timestamp{Time: base.Add(time.Duration(i) * time.Minute)},
		})
	}
	srv := museumtest.NewServer(backend)
	t.Cleanup(srv.Close)
	return backend, client.New(client.WithBaseURL(srv.URL))
}

func ids(artifacts []necronet.Artifact) []string {
	out := make([]string, len(artifacts))
	for i, a := range artifacts {
		out[i] = a.ID
	}
	return out
}

func TestListViewPagination(t *testing.T) {
	_, c := seededList(t, 5)
	v := NewArtifactListView(c, WithPageSize(2))
	ctx := context.Background()

	assert.False(t, v.HasMore())
	assert.False(t, v.LoadMore(ctx))

	v.Refetch(ctx)
	state := v.State()
	assert.Equal(t, []string{"a4", "a3"}, ids(state.Artifacts))
	assert.Equal(t, 5, state.Total)
	assert.Equal(t, 2, state.Offset)
	assert.False(t, state.Loading)
	assert.True(t, v.HasMore())

	require.True(t, v.LoadMore(ctx))
	assert.Equal(t, []string{"a4", "a3", "a2", "a1"}, ids(v.State().Artifacts))

	require.True(t, v.LoadMore(ctx))
	state = v.State()
	assert.Equal(t, []string{"a4", "a3", "a2", "a1", "a0"}, ids(state.Artifacts))
	assert.False(t, state.HasMore())

	assert.False(t, v.LoadMore(ctx))
	assert.Len(t, v.State().Artifacts, 5)

	v.Refetch(ctx)
	state = v.State()
	assert.Equal(t, []string{"a4", "a3"}, ids(state.Artifacts))
	assert.Equal(t, 2, state.Offset)
}

func TestListViewDefaultPageSize(t *testing.T) {
	_, c := seededList(t, 25)
	v := NewArtifactListView(c)
	assert.Equal(t, client.DefaultPageSize, v.PageSize())

	v.Refetch(context.Background())
	assert.Len(t, v.State().Artifacts, client.DefaultPageSize)
	assert.Equal(t, 25, v.State().Total)
}

func TestListViewEmpty(t *testing.T) {
	_, c := seededList(t, 0)
	v := NewArtifactListView(c)

	v.Refetch(context.Background())
	state := v.State()
	assert.Empty(t, state.Artifacts)
	assert.Equal(t, 0, state.Total)
	assert.Empty(t, state.Error)
	assert.False(t, v.HasMore())
}

func TestListViewError(t *testing.T) {
	backend, c := seededList(t, 3)
	v := NewArtifactListView(c, WithPageSize(2))
	ctx := context.Background()
	v.Refetch(ctx)

	backend.FailList(museumtest.Step{FailStatus: http.StatusServiceUnavailable, FailDetail: "The archive is sealed"})
	require.True(t, v.LoadMore(ctx))

	state := v.State()
	assert.Equal(t, "The archive is sealed", state.Error)
	assert.False(t, state.Loading)
	assert.Len(t, state.Artifacts, 2)

	v.Refetch(ctx)
	state = v.State()
	assert.Empty(t, state.Artifacts)
	assert.Equal(t, "The archive is sealed", state.Error)
}

type failingLister struct{}

func (failingLister) ListArtifacts(ctx context.Context, limit, offset int) (*necronet.ArtifactList, error) {
	return nil, errors.New("boom")
}

func TestListViewFallbackMessage(t *testing.T) {
	v := NewArtifactListView(failingLister{})
	v.Refetch(context.Background())
	assert.Equal(t, MessageListFailed, v.State().Error)
}

// gatedLister serves the first page immediately and holds later pages
// until released.
type gatedLister struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (l *gatedLister) ListArtifacts(ctx context.Context, limit, offset int) (*necronet.ArtifactList, error) {
	l.mu.Lock()
	l.calls++
	call := l.calls
	l.mu.Unlock()

	if call > 1 {
		l.entered <- struct{}{}
		<-l.release
	}
	page := make([]necronet.Artifact, limit)
	for i := range page {
		page[i] = necronet.Artifact{ID: fmt.Sprintf("p%d-%d", call, i)}
	}
	return &necronet.ArtifactList{Artifacts: page, Total: 10}, nil
}

func TestListViewLoadMoreWhileLoading(t *testing.T) {
	lister := &gatedLister{entered: make(chan struct{}), release: make(chan struct{})}
	v := NewArtifactListView(lister, WithPageSize(2))
	ctx := context.Background()
	v.Refetch(ctx)

	done := make(chan bool)
	go func() { done <- v.LoadMore(ctx) }()
	<-lister.entered

	assert.True(t, v.State().Loading)
	assert.False(t, v.LoadMore(ctx))

	close(lister.release)
	assert.True(t, <-done)
	assert.Len(t, v.State().Artifacts, 4)
}

func TestListViewRefetchDiscardsLoadMore(t *testing.T) {
	lister := &gatedLister{entered: make(chan struct{}, 1), release: make(chan struct{})}
	v := NewArtifactListView(lister, WithPageSize(2))
	ctx := context.Background()
	v.Refetch(ctx)

	done := make(chan bool)
	go func() { done <- v.LoadMore(ctx) }()
	<-lister.entered

	go func() {
		// The refetch blocks on the gate too; release both.
		<-lister.entered
		close(lister.release)
	}()
	v.Refetch(ctx)
	<-done

	state := v.State()
	require.Len(t, state.Artifacts, 2)
	assert.Equal(t, "p3-0", state.Artifacts[0].ID)
	assert.Equal(t, 2, state.Offset)
}

func TestListViewStateIsCopied(t *testing.T) {
	_, c := seededList(t, 2)
	v := NewArtifactListView(c)
	v.Refetch(context.Background())

	state := v.State()
	state.Artifacts[0].Name = "tampered"
	assert.NotEqual(t, "tampered", v.State().Artifacts[0].Name)
}
