package tracking

import (
	"sort"
	"sync"
)

// Track is the history of one tracked person.
type Track struct {
	ID        TrackID
	FirstSeen int
	LastSeen  int

	// pixels holds at most the store's pixel cap, oldest first.
	pixels []PixelSample
	// world holds only samples that passed the zone test, oldest first.
	world []WorldSample
}

// TrackInfo is a read-only summary of a track.
type TrackInfo struct {
	ID        TrackID `json:"id"`
	FirstSeen int     `json:"first_seen"`
	LastSeen  int     `json:"last_seen"`
	PixelLen  int     `json:"pixel_len"`
	WorldLen  int     `json:"world_len"`
}

// Store keeps the history of every track seen in a session, keyed by id.
// Tracks are created on first sighting and removed only by the eviction
// policy. Safe for concurrent use.
type Store struct {
	pixelCap int
	worldCap int
	policy   EvictionPolicy

	tracks map[TrackID]*Track
	mu     sync.RWMutex
}

// NewStore creates an empty store.
func NewStore(cfg Config) *Store {
	if cfg.PixelHistoryCap <= 0 {
		cfg.PixelHistoryCap = DefaultConfig().PixelHistoryCap
	}
	return &Store{
		pixelCap: cfg.PixelHistoryCap,
		worldCap: cfg.WorldHistoryCap,
		policy:   cfg.Policy(),
		tracks:   make(map[TrackID]*Track),
	}
}

// track returns the track for id, creating it if needed. Caller holds the lock.
func (s *Store) track(id TrackID, frame int) *Track {
	t, ok := s.tracks[id]
	if !ok {
		t = &Track{ID: id, FirstSeen: frame, LastSeen: frame}
		s.tracks[id] = t
	}
	if frame > t.LastSeen {
		t.LastSeen = frame
	}
	return t
}

// AppendPixel records a pixel sample, dropping the oldest once the cap is exceeded.
func (s *Store) AppendPixel(id TrackID, frame int, pos PixelPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.track(id, frame)
	t.pixels = append(t.pixels, PixelSample{Frame: frame, Pos: pos})
	if len(t.pixels) > s.pixelCap {
		t.pixels = t.pixels[len(t.pixels)-s.pixelCap:]
	}
}

// AppendWorld records a ground sample. The world history is unbounded
// unless a world cap is configured.
func (s *Store) AppendWorld(id TrackID, frame int, pos WorldPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.track(id, frame)
	t.world = append(t.world, WorldSample{Frame: frame, Pos: pos})
	if s.worldCap > 0 && len(t.world) > s.worldCap {
		t.world = t.world[len(t.world)-s.worldCap:]
	}
}

// TailPixel returns a copy of the last n pixel samples of a track, or fewer
// if the track is shorter. Unknown ids yield nil.
func (s *Store) TailPixel(id TrackID, n int) []PixelSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tracks[id]
	if !ok || n <= 0 {
		return nil
	}
	return tail(t.pixels, n)
}

// TailWorld returns a copy of the last n ground samples of a track.
func (s *Store) TailWorld(id TrackID, n int) []WorldSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tracks[id]
	if !ok || n <= 0 {
		return nil
	}
	return tail(t.world, n)
}

func tail[T any](samples []T, n int) []T {
	if n > len(samples) {
		n = len(samples)
	}
	out := make([]T, n)
	copy(out, samples[len(samples)-n:])
	return out
}

// PixelLen returns the number of pixel samples held for a track.
func (s *Store) PixelLen(id TrackID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tracks[id]; ok {
		return len(t.pixels)
	}
	return 0
}

// WorldLen returns the number of ground samples held for a track.
func (s *Store) WorldLen(id TrackID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tracks[id]; ok {
		return len(t.world)
	}
	return 0
}

// ActiveAt returns the ground position of every track recorded for exactly
// the given frame.
func (s *Store) ActiveAt(frame int) Positions {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make(Positions)
	for id, t := range s.tracks {
		i := sort.Search(len(t.world), func(i int) bool { return t.world[i].Frame >= frame })
		if i < len(t.world) && t.world[i].Frame == frame {
			active[id] = t.world[i].Pos
		}
	}
	return active
}

// IDs returns every known track id in ascending order.
func (s *Store) IDs() []TrackID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]TrackID, 0, len(s.tracks))
	for id := range s.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of tracks held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

// Info returns a summary of one track.
func (s *Store) Info(id TrackID) (TrackInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tracks[id]
	if !ok {
		return TrackInfo{}, false
	}
	return TrackInfo{
		ID:        t.ID,
		FirstSeen: t.FirstSeen,
		LastSeen:  t.LastSeen,
		PixelLen:  len(t.pixels),
		WorldLen:  len(t.world),
	}, true
}

// TrackSnapshot is a copy of a track's full history.
type TrackSnapshot struct {
	TrackInfo
	Pixels []PixelSample `json:"pixels"`
	World  []WorldSample `json:"world"`
}

// Snapshot copies the whole history of one track.
func (s *Store) Snapshot(id TrackID) (TrackSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tracks[id]
	if !ok {
		return TrackSnapshot{}, false
	}
	return TrackSnapshot{
		TrackInfo: TrackInfo{
			ID:        t.ID,
			FirstSeen: t.FirstSeen,
			LastSeen:  t.LastSeen,
			PixelLen:  len(t.pixels),
			WorldLen:  len(t.world),
		},
		Pixels: tail(t.pixels, len(t.pixels)),
		World:  tail(t.world, len(t.world)),
	}, true
}

// Sweep applies the eviction policy at frame and returns how many tracks
// were removed.
func (s *Store) Sweep(frame int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, t := range s.tracks {
		if s.policy.Evict(t.LastSeen, frame) {
			delete(s.tracks, id)
			removed++
		}
	}
	return removed
}

