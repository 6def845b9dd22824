package devices

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	// GoogleCastService is the DNS-SD service type Cast devices advertise.
	GoogleCastService = "_googlecast._tcp"
	// DefaultDomain is the mDNS browse domain.
	DefaultDomain = "local."

	BackendMDNS     = "mdns"
	BackendZeroconf = "zeroconf"
)

var (
	ErrBrowserRunning = errors.New("browse: discovery is already running")
	ErrUnknownBackend = errors.New("browse: unknown discovery backend")
)

// Browser reports devices of one service type as they appear on the network.
//
// Browse returns immediately; serviceUp is called from a background
// goroutine once per device appearance until ctx is done. Calling Browse
// while a previous call is still running returns ErrBrowserRunning and
// leaves the running browse untouched.
//
// Wait blocks until the goroutines of the last successful Browse have
// returned. serviceUp is never called after Wait returns. Wait returns at
// once if Browse was never called.
type Browser interface {
	Browse(ctx context.Context, serviceUp func(DeviceRecord)) error
	Wait()
}

// Options configure a Browser.
type Options struct {
	Service          string
	Domain           string
	Interface        string
	QueryTimeout     time.Duration
	PollInterval     time.Duration
	QueriesPerSecond float64
	LogOutput        io.Writer
}

func (o Options) withDefaults() Options {
	if o.Service == "" {
		o.Service = GoogleCastService
	}
	if o.Domain == "" {
		o.Domain = DefaultDomain
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = chromecastQueryTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = chromecastPollIntervalSlow
	}
	if o.QueriesPerSecond <= 0 {
		o.QueriesPerSecond = defaultQueriesPerSecond
	}
	return o
}

// NewBrowser returns the Browser for the named backend.
func NewBrowser(backend string, o Options) (Browser, error) {
	switch backend {
	case "", BackendMDNS:
		return NewMDNSBrowser(o), nil
	case BackendZeroconf:
		return NewZeroconfBrowser(o), nil
	default:
		return nil, errors.Wrapf(ErrUnknownBackend, "%q", backend)
	}
}

// Discover browses for the given window and returns every device seen,
// in the order they appeared.
func Discover(ctx context.Context, b Browser, window time.Duration) ([]DeviceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	var (
		mu    sync.Mutex
		found []DeviceRecord
	)
	err := b.Browse(ctx, func(r DeviceRecord) {
		mu.Lock()
		found = append(found, r)
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}

	<-ctx.Done()
	b.Wait()

	mu.Lock()
	defer mu.Unlock()
	out := make([]DeviceRecord, len(found))
	copy(out, found)
	return out, nil
}

// browseState is shared by the backends: it guards against concurrent
// browses and filters repeated reports of the same appearance.
type browseState struct {
	mu      sync.Mutex
	running bool
	seen    map[string]struct{}
	done    chan struct{}
}

func (s *browseState) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrBrowserRunning
	}
	s.running = true
	s.seen = make(map[string]struct{})
	s.done = make(chan struct{})
	return nil
}

func (s *browseState) end() {
	s.mu.Lock()
	s.running = false
	close(s.done)
	s.mu.Unlock()
}

// wait blocks until the browse started by the last begin has ended.
func (s *browseState) wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// firstSighting reports whether r has not been reported during this browse.
func (s *browseState) firstSighting(r DeviceRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := r.key()
	if _, ok := s.seen[k]; ok {
		return false
	}
	s.seen[k] = struct{}{}
	return true
}

func (s *browseState) found() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

type logged struct {
	LogOutput   io.Writer
	logger      zerolog.Logger
	initLogOnce sync.Once
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (l *logged) Log() *zerolog.Logger {
	l.initLogOnce.Do(func() {
		if l.LogOutput != nil {
			l.logger = zerolog.New(l.LogOutput).With().Timestamp().Logger()
			return
		}
		l.logger = zerolog.Nop()
	})
	return &l.logger
}

// interfaceByName resolves a configured interface name. An empty name
// means all active interfaces.
func interfaceByName(name string) ([]net.Interface, error) {
	if name == "" {
		return getActiveNetworkInterfaces(), nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, errors.Wrapf(err, "interface %q", name)
	}
	return []net.Interface{*iface}, nil
}
