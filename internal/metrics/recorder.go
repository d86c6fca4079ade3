package metrics

// Recorder receives counters from the cache, pagination and feed layers.
// Implementations must be safe for concurrent use.
type Recorder interface {
	CacheHit(layer string)
	CacheMiss(layer string)
	CacheError(layer, op string)
	CacheWriteFailure(layer string)
	FanOutAppend(stream string)
	FanOutFailure(stream string)
	FeedTrimmed(removed int64)
}

// Noop discards every observation.
type Noop struct{}

func (Noop) CacheHit(string)           {}
func (Noop) CacheMiss(string)          {}
func (Noop) CacheError(string, string) {}
func (Noop) CacheWriteFailure(string)  {}
func (Noop) FanOutAppend(string)       {}
func (Noop) FanOutFailure(string)      {}
func (Noop) FeedTrimmed(int64)         {}

// OrNoop returns r, or Noop when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return Noop{}
	}
	return r
}
