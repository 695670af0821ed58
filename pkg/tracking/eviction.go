package tracking

// EvictionPolicy decides when a track that stopped appearing is dropped
// from the store.
type EvictionPolicy interface {
	// Evict reports whether a track last seen at lastSeen should be removed
	// when the store reaches frame.
	Evict(lastSeen, frame int) bool
}

// NeverEvict keeps every track for the whole session. Memory grows with the
// number of distinct ids seen, which is bounded by the length of the video.
type NeverEvict struct{}

// Evict implements EvictionPolicy.
func (NeverEvict) Evict(lastSeen, frame int) bool { return false }

// IdleEviction drops tracks not seen for more than MaxIdleFrames frames.
// An id that reappears after eviction starts a fresh track.
type IdleEviction struct {
	MaxIdleFrames int
}

// Evict implements EvictionPolicy.
func (p IdleEviction) Evict(lastSeen, frame int) bool {
	return frame-lastSeen > p.MaxIdleFrames
}
