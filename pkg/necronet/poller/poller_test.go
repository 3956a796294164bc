package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/necronet/internal/museumtest"
	"github.com/tendant/necronet/pkg/necronet"
	"github.com/tendant/necronet/pkg/necronet/client"
)

type result struct {
	status necronet.Status
	err    error
}

// scriptedFetcher answers fetches from a fixed script; the last entry repeats.
type scriptedFetcher struct {
	mu      sync.Mutex
	results []result
	calls   int
	hook    func(call int)
}

func (f *scriptedFetcher) GetArtifact(ctx context.Context, id string) (*necronet.Artifact, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	r := f.results[len(f.results)-1]
	if call <= len(f.results) {
		r = f.results[call-1]
	}
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if r.err != nil {
		return nil, r.err
	}
	return &necronet.Artifact{ID: id, Name: "ghost.swf", Status: r.status}, nil
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func statuses(ss ...necronet.Status) []result {
	out := make([]result, len(ss))
	for i, s := range ss {
		out[i] = result{status: s}
	}
	return out
}

func TestPollReachesReady(t *testing.T) {
	fetcher := &scriptedFetcher{results: statuses(
		necronet.StatusMigrating, necronet.StatusMigrating, necronet.StatusMigrating, necronet.StatusReady,
	)}
	sleeper := &sleepRecorder{}

	var seen []necronet.Status
	artifact, err := New(fetcher, WithSleep(sleeper.Sleep)).Poll(context.Background(), "a1", func(a *necronet.Artifact) {
		seen = append(seen, a.Status)
	})
	require.NoError(t, err)

	assert.Equal(t, necronet.StatusReady, artifact.Status)
	assert.Equal(t, []necronet.Status{
		necronet.StatusMigrating, necronet.StatusMigrating, necronet.StatusMigrating, necronet.StatusReady,
	}, seen)
	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second, 4500 * time.Millisecond}, sleeper.Delays())
	assert.Equal(t, 4, fetcher.Calls())
}

func TestPollTerminalOnFirstFetch(t *testing.T) {
	for _, status := range []necronet.Status{necronet.StatusReady, necronet.StatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			fetcher := &scriptedFetcher{results: statuses(status)}
			sleeper := &sleepRecorder{}

			calls := 0
			artifact, err := Poll(context.Background(), fetcher, "a1", func(*necronet.Artifact) { calls++ }, WithSleep(sleeper.Sleep))
			require.NoError(t, err)
			assert.Equal(t, status, artifact.Status)
			assert.Equal(t, 1, calls)
			assert.Empty(t, sleeper.Delays())
		})
	}
}

func TestPollExhaustsAttempts(t *testing.T) {
	fetcher := &scriptedFetcher{results: statuses(necronet.StatusMigrating)}
	sleeper := &sleepRecorder{}

	calls := 0
	artifact, err := New(fetcher, WithMaxAttempts(3), WithSleep(sleeper.Sleep)).Poll(context.Background(), "a1", func(*necronet.Artifact) {
		calls++
	})

	assert.Nil(t, artifact)
	assert.ErrorIs(t, err, necronet.ErrTimeout)
	assert.Equal(t, necronet.MessageTimeout, necronet.AsAPIError(err).Detail)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, fetcher.Calls())
	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second}, sleeper.Delays())
}

func TestPollIntervalIsCapped(t *testing.T) {
	fetcher := &scriptedFetcher{results: statuses(necronet.StatusMigrating)}
	sleeper := &sleepRecorder{}

	_, err := New(fetcher, WithMaxAttempts(8), WithSleep(sleeper.Sleep)).Poll(context.Background(), "a1", nil)
	assert.ErrorIs(t, err, necronet.ErrTimeout)

	assert.Equal(t, []time.Duration{
		2000 * time.Millisecond,
		3000 * time.Millisecond,
		4500 * time.Millisecond,
		6750 * time.Millisecond,
		10000 * time.Millisecond,
		10000 * time.Millisecond,
		10000 * time.Millisecond,
	}, sleeper.Delays())
}

func TestPollStopsOnFetchError(t *testing.T) {
	fetcher := &scriptedFetcher{results: []result{
		{status: necronet.StatusMigrating},
		{err: necronet.NewNetworkError(errors.New("connection reset"))},
		{status: necronet.StatusReady},
	}}
	sleeper := &sleepRecorder{}

	calls := 0
	artifact, err := New(fetcher, WithSleep(sleeper.Sleep)).Poll(context.Background(), "a1", func(*necronet.Artifact) {
		calls++
	})

	assert.Nil(t, artifact)
	assert.ErrorIs(t, err, necronet.ErrNetwork)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, fetcher.Calls())
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeper.Delays())
}

func TestPollNormalizesForeignErrors(t *testing.T) {
	fetcher := &scriptedFetcher{results: []result{{err: errors.New("boom")}}}

	_, err := New(fetcher, WithSleep((&sleepRecorder{}).Sleep)).Poll(context.Background(), "a1", nil)

	var apiErr *necronet.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.ErrorIs(t, err, necronet.ErrServer)
}

func TestPollCancelledInCallback(t *testing.T) {
	fetcher := &scriptedFetcher{results: statuses(necronet.StatusMigrating)}
	sleeper := &sleepRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	_, err := New(fetcher, WithSleep(sleeper.Sleep)).Poll(ctx, "a1", func(*necronet.Artifact) {
		calls++
		if calls == 2 {
			cancel()
		}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, fetcher.Calls())
}

func TestPollCancelledDuringFetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := &scriptedFetcher{
		results: statuses(necronet.StatusMigrating),
		hook: func(call int) {
			if call == 2 {
				cancel()
			}
		},
	}

	calls := 0
	_, err := New(fetcher, WithSleep((&sleepRecorder{}).Sleep)).Poll(ctx, "a1", func(*necronet.Artifact) {
		calls++
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, necronet.ErrNetwork)
	assert.Equal(t, 1, calls)
}

func TestPollAlreadyCancelled(t *testing.T) {
	fetcher := &scriptedFetcher{results: statuses(necronet.StatusReady)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(fetcher).Poll(ctx, "a1", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fetcher.Calls())
}

func TestPollAgainstService(t *testing.T) {
	backend := museumtest.New()
	backend.Seed(necronet.Artifact{ID: "a1", Name: "ghost.swf", Type: necronet.ArtifactTypeFlash, Status: necronet.StatusUploaded})
	backend.Script("a1",
		museumtest.Step{Status: necronet.StatusMigrating},
		museumtest.Step{Status: necronet.StatusMigrating},
		museumtest.Step{Status: necronet.StatusReady, NarrationURL: "https://narrations.example/a1.mp3"},
	)
	srv := museumtest.NewServer(backend)
	defer srv.Close()

	c := client.New(client.WithBaseURL(srv.URL))
	sleeper := &sleepRecorder{}

	var seen []necronet.Status
	artifact, err := New(c, WithSleep(sleeper.Sleep)).Poll(context.Background(), "a1", func(a *necronet.Artifact) {
		seen = append(seen, a.Status)
	})
	require.NoError(t, err)

	assert.True(t, artifact.HasNarration())
	assert.Equal(t, []necronet.Status{necronet.StatusMigrating, necronet.StatusMigrating, necronet.StatusReady}, seen)
	assert.Equal(t, 3, backend.Gets("a1"))
}

func TestPollMissingArtifact(t *testing.T) {
	srv := museumtest.NewServer(museumtest.New())
	defer srv.Close()

	_, err := New(client.New(client.WithBaseURL(srv.URL))).Poll(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, necronet.ErrNotFound)
}
