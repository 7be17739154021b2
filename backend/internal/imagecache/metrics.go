package imagecache

// EvictReason explains why an entry left the cache
type EvictReason int

const (
	// EvictCapacity is a removal to get the cache back under its capacity
	EvictCapacity EvictReason = iota
	// EvictShrink is a removal requested because of memory pressure
	EvictShrink
	// EvictClear is a removal caused by clearing the whole cache
	EvictClear
)

func (s EvictReason) String() string {
	switch s {
	case EvictCapacity:
		return "capacity"
	case EvictShrink:
		return "shrink"
	case EvictClear:
		return "clear"
	}
	return "unknown"
}

type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason, count int)
	Size(entries int, byteSize int64)
}

// NoopMetrics is used when no metrics backend has been configured
type NoopMetrics struct{}

func (NoopMetrics) Hit()                   {}
func (NoopMetrics) Miss()                  {}
func (NoopMetrics) Evict(EvictReason, int) {}
func (NoopMetrics) Size(int, int64)        {}

var _ Metrics = NoopMetrics{}
