package interndir

import (
	"log/slog"

	"github.com/hupe1980/interndir/internal/hash"
	"github.com/hupe1980/interndir/internal/resource"
)

// DefaultPromotionThreshold is the weight above which a durable local entry
// is promoted regardless of the shared tail's weight.
const DefaultPromotionThreshold = 100

type options struct {
	metricsCollector   MetricsCollector
	logger             *Logger
	hash               hash.Func
	defaultOwner       Owner
	hasDefaultOwner    bool
	sharedWriteGate    func() bool
	memory             *resource.Controller
	promotionThreshold uint16
}

// Option configures a Cache or a SharedDirectory.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &interndir.BasicMetricsCollector{}
//	c, _ := interndir.New(cfg, interndir.WithMetricsCollector(metrics))
//	// ... use c ...
//	stats := metrics.GetStats()
//	fmt.Printf("Lookups: %d, hit rate: %.2f\n", stats.LookupCount, stats.HitRate)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := interndir.NewJSONLogger(slog.LevelDebug)
//	c, _ := interndir.New(cfg, interndir.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithHashFunc sets the byte-string hash of a shared directory. Every
// process attaching to one directory must pass the same function.
// Defaults to xxHash64; HashCRC32C is the alternative.
func WithHashFunc(fn func(data []byte) uint64) Option {
	return func(o *options) {
		if fn != nil {
			o.hash = fn
		}
	}
}

// HashCRC32C is a hash function for WithHashFunc based on CRC32-Castagnoli.
var HashCRC32C = hash.CRC32C64

// WithDefaultOwner sets the owner whose local entries serve a lookup that
// misses under its own owner.
func WithDefaultOwner(owner Owner) Option {
	return func(o *options) {
		o.defaultOwner = owner
		o.hasDefaultOwner = true
	}
}

// WithSharedWriteGate installs a predicate consulted before every shared
// tier mutation. When it returns false the shared tier is read-only: no
// direct inserts, no promotions, no weight updates. The host uses it to
// signal whether it currently holds write exclusivity over the region.
func WithSharedWriteGate(gate func() bool) Option {
	return func(o *options) {
		o.sharedWriteGate = gate
	}
}

// WithMemoryLimit bounds the process memory the local tier may hold for
// keys and entries. Entries denied by the budget are not cached.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memory = resource.NewController(resource.Config{MemoryLimitBytes: bytes})
	}
}

// WithPromotionThreshold overrides DefaultPromotionThreshold.
func WithPromotionThreshold(weight uint16) Option {
	return func(o *options) {
		o.promotionThreshold = weight
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector:   NoopMetricsCollector{},
		logger:             NoopLogger(),
		hash:               hash.Default,
		promotionThreshold: DefaultPromotionThreshold,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
