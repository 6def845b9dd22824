package session

import (
	"context"
	"io"
	"time"

	"go2tv.app/castbridge/castprotocol"
	"go2tv.app/castbridge/devices"
)

const defaultStatusInterval = time.Second

// CastDialer dials real cast devices with castprotocol.
type CastDialer struct {
	Retries        int
	LaunchTimeout  time.Duration
	StatusInterval time.Duration
	LogOutput      io.Writer
}

// Dial connects to rec. If ctx ends first the connection attempt is
// abandoned and closed once it completes.
func (d CastDialer) Dial(ctx context.Context, rec devices.DeviceRecord) (Conn, error) {
	client := castprotocol.NewCastClient(rec.Address(), rec.Port, d.Retries)
	if d.LaunchTimeout > 0 {
		client.LaunchTimeout = d.LaunchTimeout
	}
	client.LogOutput = d.LogOutput

	errc := make(chan error, 1)
	go func() { errc <- client.Connect() }()

	select {
	case err := <-errc:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		go func() {
			if <-errc == nil {
				_ = client.Close(false)
			}
		}()
		return nil, ctx.Err()
	}

	interval := d.StatusInterval
	if interval <= 0 {
		interval = defaultStatusInterval
	}
	return &castConn{client: client, statusInterval: interval}, nil
}

type castConn struct {
	client         *castprotocol.CastClient
	statusInterval time.Duration
}

func (c *castConn) Launch(ctx context.Context, appID string) (Player, error) {
	if err := c.client.Launch(ctx, appID); err != nil {
		return nil, err
	}
	return &castPlayer{client: c.client, statusInterval: c.statusInterval}, nil
}

func (c *castConn) Close(stopMedia bool) error {
	return c.client.Close(stopMedia)
}

type castPlayer struct {
	client         *castprotocol.CastClient
	statusInterval time.Duration
}

func (p *castPlayer) Load(ctx context.Context, media castprotocol.MediaItem, autoplay bool) error {
	return p.client.Load(ctx, media, autoplay)
}

func (p *castPlayer) Play() error  { return p.client.Play() }
func (p *castPlayer) Pause() error { return p.client.Pause() }
func (p *castPlayer) Stop() error  { return p.client.Stop() }

func (p *castPlayer) Status() (*castprotocol.CastStatus, error) {
	return p.client.GetStatus()
}

func (p *castPlayer) Watch(ctx context.Context, fn func(castprotocol.CastStatus)) {
	castprotocol.WatchStatus(ctx, p.client, p.statusInterval, fn)
}

func (p *castPlayer) DisplayName() string {
	return p.client.DisplayName()
}
