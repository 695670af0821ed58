package detection

import "sort"

// Tracked is a box with a persistent identity.
type Tracked struct {
	ID  int64
	Box Box
}

// IoUTrackerConfig holds tracker configuration.
type IoUTrackerConfig struct {
	// MinIoU is the overlap required to continue a track.
	MinIoU float64 `yaml:"min_iou" validate:"gte=0,lte=1"`
	// MaxMisses is how many frames a track may go unmatched before it is dropped.
	MaxMisses int `yaml:"max_misses" validate:"gte=0"`
}

// DefaultIoUTrackerConfig returns tracker defaults tuned for walking people
// at video frame rate.
func DefaultIoUTrackerConfig() IoUTrackerConfig {
	return IoUTrackerConfig{
		MinIoU:    0.3,
		MaxMisses: 30,
	}
}

type iouTrack struct {
	id     int64
	box    Box
	misses int
}

// IoUTracker assigns persistent ids to boxes across frames by greedy
// highest-overlap matching. Ids are never reused.
type IoUTracker struct {
	cfg    IoUTrackerConfig
	tracks []*iouTrack
	nextID int64
}

// NewIoUTracker creates a tracker. Ids start at 1.
func NewIoUTracker(cfg IoUTrackerConfig) *IoUTracker {
	return &IoUTracker{cfg: cfg, nextID: 1}
}

type iouPair struct {
	track, box int
	iou        float64
}

// Update matches this frame's boxes to existing tracks and returns every
// box with its id, in the order given.
func (t *IoUTracker) Update(boxes []Box) []Tracked {
	var pairs []iouPair
	for ti, tr := range t.tracks {
		for bi, b := range boxes {
			if v := IoU(tr.box.Rect, b.Rect); v >= t.cfg.MinIoU && v > 0 {
				pairs = append(pairs, iouPair{track: ti, box: bi, iou: v})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].iou > pairs[j].iou })

	trackUsed := make([]bool, len(t.tracks))
	assigned := make([]int64, len(boxes))
	for _, p := range pairs {
		if trackUsed[p.track] || assigned[p.box] != 0 {
			continue
		}
		trackUsed[p.track] = true
		tr := t.tracks[p.track]
		tr.box = boxes[p.box]
		tr.misses = 0
		assigned[p.box] = tr.id
	}

	kept := t.tracks[:0]
	for i, tr := range t.tracks {
		if !trackUsed[i] {
			tr.misses++
			if tr.misses > t.cfg.MaxMisses {
				continue
			}
		}
		kept = append(kept, tr)
	}
	t.tracks = kept

	out := make([]Tracked, len(boxes))
	for i, b := range boxes {
		if assigned[i] == 0 {
			assigned[i] = t.nextID
			t.tracks = append(t.tracks, &iouTrack{id: t.nextID, box: b})
			t.nextID++
		}
		out[i] = Tracked{ID: assigned[i], Box: b}
	}
	return out
}

// Active returns the number of tracks currently held.
func (t *IoUTracker) Active() int {
	return len(t.tracks)
}
