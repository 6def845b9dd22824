package castprotocol

import (
	"context"
	"math"
	"time"
)

// Player states reported by the default media receiver. Anything else
// the receiver sends is passed through untouched.
const (
	StateIdle      = "IDLE"
	StateBuffering = "BUFFERING"
	StatePaused    = "PAUSED"
	StatePlaying   = "PLAYING"
)

// IdleReasonFinished is the idle reason sent when media played to the end.
const IdleReasonFinished = "FINISHED"

// PositionStep is how far CurrentTime has to move, in seconds, before a
// status that differs only in position is reported again.
const PositionStep = 5

// CastStatus represents current Chromecast playback state.
type CastStatus struct {
	PlayerState string  // "PLAYING", "PAUSED", "IDLE", "BUFFERING"
	IdleReason  string  // "FINISHED", "CANCELLED", "INTERRUPTED", "ERROR"
	CurrentTime float32 // Current position in seconds
	Duration    float32 // Total duration in seconds
	Volume      float32 // Volume level (0.0 to 1.0)
	Muted       bool
	MediaTitle  string
	ContentID   string
	ContentType string
	AppName     string
}

// sameObservable compares everything but the playback position, which
// moves on every poll, and then requires the position to be within
// PositionStep of o.
func (s CastStatus) sameObservable(o CastStatus) bool {
	if math.Abs(float64(s.CurrentTime-o.CurrentTime)) >= PositionStep {
		return false
	}
	s.CurrentTime, o.CurrentTime = 0, 0
	return s == o
}

// StatusSource is anything that can report a CastStatus on demand.
type StatusSource interface {
	GetStatus() (*CastStatus, error)
}

// WatchStatus polls src every interval and calls fn with each status that
// differs from the last reported one. Position alone counts as a change
// only once it has moved by PositionStep seconds, so CurrentTime in a
// report can lag playback by up to that much. The first successful poll
// is always reported. It returns when ctx is done.
func WatchStatus(ctx context.Context, src StatusSource, interval time.Duration, fn func(CastStatus)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		last    CastStatus
		started bool
	)
	for {
		status, err := src.GetStatus()
		if err == nil && status != nil && (!started || !status.sameObservable(last)) {
			started = true
			last = *status
			fn(*status)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
