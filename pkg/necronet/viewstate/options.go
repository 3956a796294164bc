package viewstate

import (
	"log/slog"

	"github.com/tendant/necronet/pkg/necronet/client"
)

type options struct {
	logger   *slog.Logger
	poller   Poller
	pageSize int
}

// Option configures a view.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPoller sets the poller an ArtifactView uses for migrating artifacts.
func WithPoller(p Poller) Option {
	return func(o *options) {
		if p != nil {
			o.poller = p
		}
	}
}

// WithPageSize sets how many artifacts an ArtifactListView requests per page.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:   slog.Default(),
		pageSize: client.DefaultPageSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
