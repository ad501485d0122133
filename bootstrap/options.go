package bootstrap

import (
	"github.com/kbukum/voicescribe/logger"
	"github.com/kbukum/voicescribe/store"
)

type options struct {
	logger *logger.Logger
	store  store.Store
}

// Option customizes App construction.
type Option func(*options)

// WithLogger supplies a pre-built logger instead of one derived from the
// logging settings.
func WithLogger(log *logger.Logger) Option {
	return func(o *options) { o.logger = log }
}

// WithStore supplies a pre-built store, bypassing the database settings.
// Used by tests and by deployments that share one store across apps.
func WithStore(st store.Store) Option {
	return func(o *options) { o.store = st }
}

func resolveOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
