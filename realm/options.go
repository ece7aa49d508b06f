package realm

import (
	"time"

	"github.com/kbukum/realmauth/logger"
	"github.com/kbukum/realmauth/observability"
)

// Option configures a Coordinator or Realm.
type Option func(*options)

type options struct {
	log     *logger.Logger
	metrics *observability.AuthMetrics
	now     func() time.Time
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records logins and directory calls on m.
func WithMetrics(m *observability.AuthMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces time.Now for ledgers and caches, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = logger.OrNop(o.log)
	return o
}
