package session

import (
	"context"

	"go2tv.app/castbridge/castprotocol"
	"go2tv.app/castbridge/devices"
)

// Dialer opens control sessions to discovered devices.
type Dialer interface {
	Dial(ctx context.Context, rec devices.DeviceRecord) (Conn, error)
}

// Conn is an open control session to one device.
type Conn interface {
	Launch(ctx context.Context, appID string) (Player, error)
	Close(stopMedia bool) error
}

// Player drives the receiver application launched on a Conn.
type Player interface {
	Load(ctx context.Context, media castprotocol.MediaItem, autoplay bool) error
	Play() error
	Pause() error
	Stop() error
	Status() (*castprotocol.CastStatus, error)
	// Watch calls fn for every status update until ctx is done.
	Watch(ctx context.Context, fn func(castprotocol.CastStatus))
	DisplayName() string
}

// Prober resolves the content type of a media URL without fetching its body.
type Prober interface {
	ContentType(ctx context.Context, url string) (string, error)
}
