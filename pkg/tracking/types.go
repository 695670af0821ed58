// Package tracking keeps per-person position history in pixel and ground
// coordinates and turns each frame's detections into ground positions.
package tracking

import (
	"image"
	"strconv"
)

// TrackID is the persistent identifier assigned by the detector's tracker.
type TrackID int64

// String implements fmt.Stringer.
func (id TrackID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// PixelPosition is a point in image space.
type PixelPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WorldPosition is a point on the ground plane, in meters.
type WorldPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PixelSample is a pixel position observed at a frame.
type PixelSample struct {
	Frame int           `json:"frame"`
	Pos   PixelPosition `json:"pos"`
}

// WorldSample is a ground position observed at a frame.
type WorldSample struct {
	Frame int           `json:"frame"`
	Pos   WorldPosition `json:"pos"`
}

// Detection is one tracked object in one frame, as reported by the
// detector/tracker collaborator.
type Detection struct {
	ID     TrackID
	Center PixelPosition
	Box    image.Rectangle
}

// Positions maps each active track to its ground position for one frame.
type Positions map[TrackID]WorldPosition

// Config holds history limits and the eviction policy.
type Config struct {
	PixelHistoryCap int    `yaml:"pixel_history_cap" json:"pixel_history_cap" validate:"gt=0"`
	WorldHistoryCap int    `yaml:"world_history_cap" json:"world_history_cap" validate:"gte=0"` // 0 = unbounded
	Eviction        string `yaml:"eviction" json:"eviction" validate:"omitempty,oneof=never idle"`
	IdleFrames      int    `yaml:"idle_frames" json:"idle_frames" validate:"gte=0"`
}

// DefaultConfig keeps the last 90 pixel samples, every world sample and
// never forgets a track.
func DefaultConfig() Config {
	return Config{
		PixelHistoryCap: 90,
		WorldHistoryCap: 0,
		Eviction:        "never",
		IdleFrames:      300,
	}
}

// Policy builds the eviction policy named by the config.
func (c Config) Policy() EvictionPolicy {
	if c.Eviction == "idle" && c.IdleFrames > 0 {
		return IdleEviction{MaxIdleFrames: c.IdleFrames}
	}
	return NeverEvict{}
}
