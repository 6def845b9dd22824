package main

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"go2tv.app/castbridge/castprotocol"
	"go2tv.app/castbridge/devices"
	"go2tv.app/castbridge/session"
)

type recordingTarget struct {
	loads []string
}

func (r *recordingTarget) Load(_ context.Context, url string) {
	r.loads = append(r.loads, url)
}

func launched(name string) session.Event {
	return session.Event{Type: session.EventLaunched, Record: devices.DeviceRecord{Info: map[string]string{"fn": name}}}
}

func status(state, reason string) session.Event {
	return session.Event{Type: session.EventStatus, Status: castprotocol.CastStatus{PlayerState: state, IdleReason: reason}}
}

func TestCastRelayLoadsOnReplacementDevice(t *testing.T) {
	const url = "http://192.168.1.10:8080/movie.mp4"
	target := &recordingTarget{}
	relay := &castRelay{target: target, url: url, log: zerolog.Nop()}
	ctx := context.Background()

	steps := []struct {
		name     string
		ev       session.Event
		loads    int
		finished bool
	}{
		{"first device launched", launched("Living Room TV"), 1, false},
		{"first device plays", status(castprotocol.StatePlaying, ""), 1, false},
		{"second device replaces it", launched("Kitchen"), 2, false},
		{"fresh receiver idles", status(castprotocol.StateIdle, castprotocol.IdleReasonFinished), 2, false},
		{"second device buffers", status(castprotocol.StateBuffering, ""), 2, false},
		{"second device finishes", status(castprotocol.StateIdle, castprotocol.IdleReasonFinished), 2, true},
	}
	for _, s := range steps {
		finished := relay.handle(ctx, s.ev)
		if finished != s.finished {
			t.Fatalf("%s: finished = %v, want %v", s.name, finished, s.finished)
		}
		if len(target.loads) != s.loads {
			t.Fatalf("%s: loads = %d, want %d", s.name, len(target.loads), s.loads)
		}
	}
	for i, u := range target.loads {
		if u != url {
			t.Fatalf("load %d = %q, want %q", i, u, url)
		}
	}
}

func TestCastRelayRunStopsWhenFinished(t *testing.T) {
	target := &recordingTarget{}
	relay := &castRelay{target: target, url: "http://x/a.mp4", log: zerolog.Nop()}

	events := make(chan session.Event, 8)
	events <- launched("Living Room TV")
	events <- status(castprotocol.StatePlaying, "")
	events <- session.Event{Type: session.EventClosed}
	events <- status(castprotocol.StateIdle, castprotocol.IdleReasonFinished)
	events <- launched("Kitchen")
	events <- status(castprotocol.StatePlaying, "")
	events <- status(castprotocol.StateIdle, castprotocol.IdleReasonFinished)

	done := make(chan struct{})
	go func() {
		relay.run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return after playback finished")
	}
	if len(target.loads) != 2 {
		t.Fatalf("loads = %d, want 2", len(target.loads))
	}
}
