package main

import (
	"context"
	"fmt"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"go2tv.app/castbridge/castprotocol"
	"go2tv.app/castbridge/session"
)

const shutdownTimeout = 5 * time.Second

var castDevice string

var castCmd = &cobra.Command{
	Use:   "cast <url>",
	Short: "Cast a media URL to the first matching device",
	Long: `Browse for Cast devices, connect to the selected one and load the URL
on the default media receiver once it is launched. Without --device the most
recently discovered device is used. Press Ctrl+C to stop.`,
	Example: `  castbridge cast http://192.168.1.10:8080/movie.mp4
  castbridge cast https://example.com/live.m3u8 --device "Living Room TV"`,
	Args: cobra.ExactArgs(1),
	RunE: runCast,
}

func init() {
	castCmd.Flags().StringVar(&castDevice, "device", "", "Friendly name of the device to cast to")
}

func runCast(cmd *cobra.Command, args []string) error {
	mediaURL := args[0]
	if _, err := url.ParseRequestURI(mediaURL); err != nil {
		return fmt.Errorf("invalid media url: %w", err)
	}

	conf, err := loadConfig()
	if err != nil {
		return err
	}
	logOutput, err := newLogOutput(conf.LogLevel)
	if err != nil {
		return err
	}
	log := zerolog.New(logOutput).With().Timestamp().Str("Method", "cast").Logger()

	facade, err := newFacade(conf, castDevice, logOutput)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	events, unsubscribe := facade.Events().Subscribe(16)

	facade.Browse()
	log.Info().Msg("browsing for devices, press Ctrl+C to stop")

	relay := &castRelay{target: facade, url: mediaURL, log: log}
	relay.run(ctx, events)
	unsubscribe()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	return facade.Close(shutdownCtx)
}

// castTarget is the part of the facade the cast command drives.
type castTarget interface {
	Load(ctx context.Context, url string)
}

// castRelay logs facade events and loads the media URL on every player that
// gets launched, so a replacement device picks up the stream.
type castRelay struct {
	target castTarget
	url    string
	log    zerolog.Logger

	// started is set once the current player reported playback.
	started bool
}

// run handles events until playback on the current player finishes, ctx is
// done or the channel is closed.
func (r *castRelay) run(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if r.handle(ctx, ev) {
				return
			}
		}
	}
}

// handle reports whether playback has finished.
func (r *castRelay) handle(ctx context.Context, ev session.Event) bool {
	switch ev.Type {
	case session.EventService:
		r.log.Info().Str("Device", ev.Record.FriendlyName()).Str("Address", ev.Record.HostPort()).Msg("device found")
	case session.EventLaunched:
		r.log.Info().Str("Device", ev.Record.FriendlyName()).Msg("receiver launched, loading media")
		r.started = false
		r.target.Load(ctx, r.url)
	case session.EventStatus:
		st := ev.Status
		r.log.Info().Str("State", st.PlayerState).Str("IdleReason", st.IdleReason).
			Float32("CurrentTime", st.CurrentTime).Float32("Duration", st.Duration).Msg("status")
		switch st.PlayerState {
		case castprotocol.StatePlaying, castprotocol.StateBuffering:
			r.started = true
		case castprotocol.StateIdle:
			if r.started && st.IdleReason == castprotocol.IdleReasonFinished {
				r.log.Info().Msg("playback finished")
				return true
			}
		}
	case session.EventLoaded:
		r.log.Info().Str("URL", ev.Media.ContentId).Str("ContentType", ev.Media.ContentType).Msg("media loaded")
	case session.EventClosed:
		r.log.Info().Msg("session closed")
		r.started = false
	}
	return false
}
