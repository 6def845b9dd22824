package castprotocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vishen/go-chromecast/application"
	"github.com/vishen/go-chromecast/cast"
)

const (
	defaultConnectionRetries = 5
	defaultLaunchTimeout     = 15 * time.Second
	launchPollStep           = 250 * time.Millisecond
)

var (
	ErrNotConnected = errors.New("chromecast: not connected")
	ErrNoTransport  = errors.New("chromecast: receiver application not launched")
)

// castApp is the part of go-chromecast's Application we drive.
type castApp interface {
	Start(addr string, port int) error
	Update() error
	App() *cast.Application
	Status() (*cast.Application, *cast.Media, *cast.Volume)
	Pause() error
	Unpause() error
	Stop() error
	Close(stopMedia bool) error
}

// CastClient wraps go-chromecast Application for simplified API
type CastClient struct {
	app           castApp
	conn          payloadSender // keep reference to connection for custom commands
	mu            sync.RWMutex
	host          string
	port          int
	connected     bool
	transportId   string
	LaunchTimeout time.Duration
	Logger        zerolog.Logger
	LogOutput     io.Writer
	initLogOnce   sync.Once
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (c *CastClient) Log() *zerolog.Logger {
	if c.LogOutput != nil {
		c.initLogOnce.Do(func() {
			c.Logger = zerolog.New(c.LogOutput).With().Timestamp().Logger()
		})
	}
	return &c.Logger
}

// NewCastClient prepares a client for the device at host:port. Nothing is
// dialled until Connect. retries <= 0 uses the default.
func NewCastClient(host string, port int, retries int) *CastClient {
	if port == 0 {
		port = 8009 // default Chromecast port
	}
	if retries <= 0 {
		retries = defaultConnectionRetries
	}

	// Create our own connection that we can use for custom commands
	conn := cast.NewConnection()

	app := application.NewApplication(
		application.WithConnection(conn),
		application.WithConnectionRetries(retries), // slow TVs need time to wake
	)

	return &CastClient{
		app:           app,
		conn:          conn,
		host:          host,
		port:          port,
		LaunchTimeout: defaultLaunchTimeout,
		Logger:        zerolog.Nop(),
	}
}

// Connect establishes connection to the Chromecast device.
// The library handles retries internally.
func (c *CastClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.app == nil {
		return fmt.Errorf("chromecast connect: app is nil")
	}

	c.Log().Debug().Str("Method", "Connect").Str("Host", c.host).Int("Port", c.port).Msg("connecting")
	if err := c.app.Start(c.host, c.port); err != nil {
		c.Log().Error().Str("Method", "Connect").Err(err).Msg("connection failed")
		return fmt.Errorf("chromecast connect: %w", err)
	}
	c.connected = true
	c.Log().Debug().Str("Method", "Connect").Msg("connected successfully")
	return nil
}

// Launch starts appID on the device, unless it is already running, and
// waits until the receiver reports a transport to talk to.
func (c *CastClient) Launch(ctx context.Context, appID string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.Log().Debug().Str("Method", "Launch").Str("AppID", appID).Msg("launching receiver")

	if err := c.app.Update(); err != nil {
		c.Log().Debug().Str("Method", "Launch").Err(err).Msg("app.Update before launch failed")
	}
	if id, ok := c.runningTransport(appID); ok {
		c.setTransport(id)
		c.Log().Debug().Str("Method", "Launch").Str("TransportId", id).Msg("receiver already running")
		return nil
	}

	if err := sendLaunch(c.conn, appID); err != nil {
		c.Log().Error().Str("Method", "Launch").Err(err).Msg("launch failed")
		return fmt.Errorf("launch receiver: %w", err)
	}

	timeout := c.LaunchTimeout
	if timeout <= 0 {
		timeout = defaultLaunchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Back off a little more on every attempt, TVs waking from standby are slow.
	for i := 1; ; i++ {
		select {
		case <-ctx.Done():
			c.Log().Error().Str("Method", "Launch").Err(ctx.Err()).Msg("no transport ID")
			return fmt.Errorf("launch receiver: %w", ctx.Err())
		case <-time.After(time.Duration(i) * launchPollStep):
		}

		if err := c.app.Update(); err != nil {
			c.Log().Debug().Str("Method", "Launch").Int("Attempt", i).Err(err).Msg("app.Update retry")
			continue
		}
		if id, ok := c.runningTransport(appID); ok {
			c.setTransport(id)
			c.Log().Debug().Str("Method", "Launch").Str("TransportId", id).Msg("got transport ID")
			return nil
		}
	}
}

func (c *CastClient) runningTransport(appID string) (string, bool) {
	app := c.app.App()
	if app == nil || app.AppId != appID || app.TransportId == "" {
		return "", false
	}
	return app.TransportId, true
}

func (c *CastClient) setTransport(id string) {
	c.mu.Lock()
	c.transportId = id
	c.mu.Unlock()
}

// DisplayName returns the name of the running receiver application.
func (c *CastClient) DisplayName() string {
	app := c.app.App()
	if app == nil {
		return ""
	}
	return app.DisplayName
}

// Load sends a LOAD for media to the launched receiver.
func (c *CastClient) Load(ctx context.Context, media MediaItem, autoplay bool) error {
	c.Log().Debug().Str("Method", "Load").Str("URL", media.ContentId).Str("ContentType", media.ContentType).Str("StreamType", media.StreamType).Bool("Autoplay", autoplay).Msg("loading media")

	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.RLock()
	transportId := c.transportId
	c.mu.RUnlock()
	if transportId == "" {
		return ErrNoTransport
	}

	if err := sendLoad(c.conn, transportId, media, autoplay); err != nil {
		c.Log().Error().Str("Method", "Load").Err(err).Msg("failed")
		return err
	}

	// Pick up the new media session so Play/Pause address it.
	if err := c.app.Update(); err != nil {
		c.Log().Debug().Str("Method", "Load").Err(err).Msg("app.Update after load failed")
	}
	c.Log().Debug().Str("Method", "Load").Msg("success")
	return nil
}

// ensureMedia refreshes the cached media session when there is none yet.
func (c *CastClient) ensureMedia() {
	if _, media, _ := c.app.Status(); media == nil {
		_ = c.app.Update()
	}
}

// Play resumes playback.
func (c *CastClient) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Log().Debug().Str("Method", "Play").Msg("resuming playback")
	c.ensureMedia()
	err := c.app.Unpause()
	if err != nil {
		c.Log().Error().Str("Method", "Play").Err(err).Msg("failed")
	}
	return err
}

// Pause pauses playback.
func (c *CastClient) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Log().Debug().Str("Method", "Pause").Msg("pausing playback")
	c.ensureMedia()
	err := c.app.Pause()
	if err != nil {
		c.Log().Error().Str("Method", "Pause").Err(err).Msg("failed")
	}
	return err
}

// Stop stops playback and closes the media session.
func (c *CastClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Log().Debug().Str("Method", "Stop").Msg("stopping playback")
	c.ensureMedia()
	err := c.app.Stop()
	if err != nil {
		c.Log().Error().Str("Method", "Stop").Err(err).Msg("failed")
	}
	return err
}

// GetStatus returns current playback status.
// No mutex needed - only reads from underlying library which has its own sync.
func (c *CastClient) GetStatus() (*CastStatus, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	// Request fresh status from device (Update refreshes the cached status)
	if err := c.app.Update(); err != nil {
		c.Log().Debug().Str("Method", "GetStatus").Err(err).Msg("app.Update failed")
		return nil, err
	}
	app, media, vol := c.app.Status()
	status := &CastStatus{}
	if app != nil {
		status.AppName = app.DisplayName
	}
	if vol != nil {
		status.Volume = float32(vol.Level)
		status.Muted = vol.Muted
	}
	if media != nil {
		status.PlayerState = media.PlayerState
		status.IdleReason = media.IdleReason
		status.CurrentTime = media.CurrentTime
		if media.Media.Duration > 0 {
			status.Duration = media.Media.Duration
		}
		status.ContentID = media.Media.ContentId
		status.ContentType = media.Media.ContentType
		status.MediaTitle = media.Media.Metadata.Title
	} else {
		status.PlayerState = StateIdle
	}
	return status, nil
}

// Close disconnects from the Chromecast device.
func (c *CastClient) Close(stopMedia bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Log().Debug().Str("Method", "Close").Bool("StopMedia", stopMedia).Msg("closing connection")
	c.connected = false
	c.transportId = ""
	err := c.app.Close(stopMedia)
	if err != nil {
		c.Log().Error().Str("Method", "Close").Err(err).Msg("failed")
	}
	return err
}

// IsConnected returns whether client is connected.
func (c *CastClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
