package session

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"go2tv.app/castbridge/castprotocol"
	"go2tv.app/castbridge/devices"
)

var (
	ErrNoPlayer = errors.New("session: no receiver application launched")
	ErrClosed   = errors.New("session: facade closed")
)

const commandQueueSize = 32

// MediaDefaults is what every MediaItem built by Load carries besides the
// URL and its content type.
type MediaDefaults struct {
	Title      string
	ImageURL   string
	StreamType string
}

// Options wires a Facade to its collaborators. Browser, Dialer and Prober
// are required.
type Options struct {
	Browser devices.Browser
	Dialer  Dialer
	Prober  Prober

	AppID string
	Media MediaDefaults
	// DeviceName, when set, restricts connecting to devices whose friendly
	// name matches, ignoring case.
	DeviceName       string
	StopMediaOnClose bool
	LogOutput        io.Writer
}

type pendingLoad struct {
	seq uint64
	url string
	ctx context.Context
}

// Facade owns at most one control session and player at a time and relays
// their events to subscribers of its Bus.
type Facade struct {
	opts Options
	bus  *Bus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	cmds   chan func()
	cmdsWG sync.WaitGroup

	// cmdsMu guards sending on cmds and closing it.
	cmdsMu     sync.Mutex
	cmdsClosed bool

	// launchMu keeps EventLaunched in the order players are swapped in.
	launchMu sync.Mutex

	mu           sync.Mutex
	records      map[string]devices.DeviceRecord
	order        []string
	conn         Conn
	player       Player
	stopWatch    context.CancelFunc
	connectSeq   uint64
	loadSeq      uint64
	pending      *pendingLoad
	browsing     bool
	shuttingDown bool

	logger      zerolog.Logger
	initLogOnce sync.Once
}

// New returns a Facade ready to Browse.
func New(o Options) (*Facade, error) {
	switch {
	case o.Browser == nil:
		return nil, errors.New("session: Options.Browser is nil")
	case o.Dialer == nil:
		return nil, errors.New("session: Options.Dialer is nil")
	case o.Prober == nil:
		return nil, errors.New("session: Options.Prober is nil")
	}
	if o.AppID == "" {
		o.AppID = castprotocol.DefaultMediaReceiverAppID
	}
	if o.Media.StreamType == "" {
		o.Media.StreamType = castprotocol.StreamTypeBuffered
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &Facade{
		opts:    o,
		bus:     NewBus(),
		ctx:     ctx,
		cancel:  cancel,
		cmds:    make(chan func(), commandQueueSize),
		records: make(map[string]devices.DeviceRecord),
		logger:  zerolog.Nop(),
	}

	f.cmdsWG.Add(1)
	go f.runCommands()

	return f, nil
}

// Log returns the facade logger.
func (f *Facade) Log() *zerolog.Logger {
	if f.opts.LogOutput != nil {
		f.initLogOnce.Do(func() {
			f.logger = zerolog.New(f.opts.LogOutput).With().Timestamp().Logger()
		})
	}
	return &f.logger
}

// Events returns the bus the facade publishes to.
func (f *Facade) Events() *Bus {
	return f.bus
}

// Browse starts device discovery in the background. Discovery runs until
// Close. Failing to start is logged and otherwise ignored, and a later
// Browse may try again.
func (f *Facade) Browse() {
	f.mu.Lock()
	if f.shuttingDown || f.browsing {
		f.mu.Unlock()
		f.Log().Warn().Str("Method", "Browse").Msg("discovery already running")
		return
	}
	f.browsing = true
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()

		err := f.opts.Browser.Browse(f.ctx, f.onDeviceFound)
		if err != nil {
			f.mu.Lock()
			f.browsing = false
			f.mu.Unlock()
			if !errors.Is(err, context.Canceled) {
				f.Log().Error().Str("Method", "Browse").Err(err).Msg("discovery failed to start")
			}
			return
		}

		<-f.ctx.Done()
		f.opts.Browser.Wait()
		f.Log().Debug().Str("Method", "Browse").Msg("discovery stopped")
	}()
}

func (f *Facade) onDeviceFound(rec devices.DeviceRecord) {
	addr := rec.Address()

	f.mu.Lock()
	if f.shuttingDown {
		f.mu.Unlock()
		return
	}
	if _, ok := f.records[addr]; !ok {
		f.order = append(f.order, addr)
	}
	f.records[addr] = rec

	var seq uint64
	selected := f.selects(rec)
	if selected {
		f.connectSeq++
		seq = f.connectSeq
		f.wg.Add(1)
	}
	f.mu.Unlock()

	f.Log().Info().Str("Method", "onDeviceFound").Str("Device", rec.FriendlyName()).
		Str("Address", rec.HostPort()).Bool("Selected", selected).Msg("found device")

	f.bus.Publish(Event{Type: EventService, Record: rec})

	if selected {
		go func() {
			defer f.wg.Done()
			f.connectAndLaunch(seq, rec)
		}()
	}
}

func (f *Facade) selects(rec devices.DeviceRecord) bool {
	if f.opts.DeviceName == "" {
		return true
	}
	return strings.EqualFold(rec.FriendlyName(), f.opts.DeviceName)
}

// currentConnect reports whether seq is still the newest connect attempt.
func (f *Facade) currentConnect(seq uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return seq == f.connectSeq && !f.shuttingDown
}

func (f *Facade) connectAndLaunch(seq uint64, rec devices.DeviceRecord) {
	log := f.Log().With().Str("Method", "connectAndLaunch").Str("Address", rec.HostPort()).Uint64("Seq", seq).Logger()

	conn, err := f.opts.Dialer.Dial(f.ctx, rec)
	if err != nil {
		log.Error().Err(err).Msg("connect failed")
		return
	}
	if !f.currentConnect(seq) {
		log.Debug().Msg("connect superseded")
		f.closeConn(conn, false)
		return
	}

	log.Info().Msg("connected, launching receiver")
	player, err := conn.Launch(f.ctx, f.opts.AppID)
	if err != nil {
		log.Error().Err(err).Msg("launch failed")
		f.closeConn(conn, false)
		return
	}

	f.onLaunched(seq, rec, conn, player)
}

func (f *Facade) onLaunched(seq uint64, rec devices.DeviceRecord, conn Conn, player Player) {
	f.launchMu.Lock()
	defer f.launchMu.Unlock()

	f.mu.Lock()
	if seq != f.connectSeq || f.shuttingDown {
		f.mu.Unlock()
		f.Log().Debug().Str("Method", "onLaunched").Uint64("Seq", seq).Msg("launch superseded")
		f.closeConn(conn, false)
		return
	}

	oldConn, oldStop := f.conn, f.stopWatch
	watchCtx, stopWatch := context.WithCancel(f.ctx)
	f.conn, f.player, f.stopWatch = conn, player, stopWatch
	f.mu.Unlock()

	if oldStop != nil {
		oldStop()
	}
	if oldConn != nil {
		f.closeConn(oldConn, false)
	}

	f.Log().Info().Str("Method", "onLaunched").Str("Device", rec.FriendlyName()).
		Str("App", player.DisplayName()).Msg("receiver launched")

	f.bus.Publish(Event{Type: EventLaunched, Record: rec})

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		player.Watch(watchCtx, f.onStatusUpdate)
	}()
}

func (f *Facade) onStatusUpdate(status castprotocol.CastStatus) {
	f.Log().Debug().Str("Method", "onStatusUpdate").Str("State", status.PlayerState).Msg("status")
	f.bus.Publish(Event{Type: EventStatus, Status: status})
}

func (f *Facade) closeConn(conn Conn, stopMedia bool) {
	if err := conn.Close(stopMedia); err != nil {
		f.Log().Warn().Str("Method", "closeConn").Err(err).Msg("close failed")
	}
}

// Load probes url for its content type and then tells the current player
// to load and play it. A later Load supersedes any earlier one whose probe
// has not finished. Failures are logged, never returned.
func (f *Facade) Load(ctx context.Context, url string) {
	if ctx == nil {
		ctx = context.Background()
	}

	f.mu.Lock()
	if f.shuttingDown {
		f.mu.Unlock()
		f.Log().Error().Str("Method", "Load").Err(ErrClosed).Send()
		return
	}
	f.loadSeq++
	p := &pendingLoad{seq: f.loadSeq, url: url, ctx: ctx}
	f.pending = p
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()

		probeCtx, cancel := mergeDone(p.ctx, f.ctx)
		defer cancel()

		contentType, err := f.opts.Prober.ContentType(probeCtx, p.url)
		if err != nil {
			f.Log().Error().Str("Method", "Load").Str("URL", p.url).Err(err).Msg("probe failed")
			f.clearPending(p.seq)
			return
		}
		f.onHeaders(p, contentType)
	}()
}

func (f *Facade) clearPending(seq uint64) {
	f.mu.Lock()
	if f.pending != nil && f.pending.seq == seq {
		f.pending = nil
	}
	f.mu.Unlock()
}

func (f *Facade) onHeaders(p *pendingLoad, contentType string) {
	f.mu.Lock()
	if f.pending == nil || f.pending.seq != p.seq {
		f.mu.Unlock()
		f.Log().Debug().Str("Method", "onHeaders").Str("URL", p.url).Msg("load superseded")
		return
	}
	f.pending = nil
	player := f.player
	f.mu.Unlock()

	media := castprotocol.NewMediaItem(p.url, contentType, f.opts.Media.StreamType, f.opts.Media.Title, f.opts.Media.ImageURL)

	if player == nil {
		f.Log().Error().Str("Method", "onHeaders").Str("URL", p.url).Err(ErrNoPlayer).Msg("load dropped")
		return
	}

	f.enqueue("Load", func() {
		f.Log().Info().Str("Method", "Load").Str("App", player.DisplayName()).
			Str("URL", media.ContentId).Str("ContentType", media.ContentType).Msg("loading media")
		if err := player.Load(f.ctx, media, true); err != nil {
			f.Log().Error().Str("Method", "Load").Err(err).Msg("load failed")
			return
		}
		if status, err := player.Status(); err == nil && status != nil {
			f.Log().Info().Str("Method", "Load").Str("State", status.PlayerState).Msg("media loaded")
		}
		f.bus.Publish(Event{Type: EventLoaded, Media: media})
	})
}

// Play resumes playback. It does nothing without a player.
func (f *Facade) Play() { f.command("Play", Player.Play) }

// Pause pauses playback. It does nothing without a player.
func (f *Facade) Pause() { f.command("Pause", Player.Pause) }

// Stop stops playback. It does nothing without a player.
func (f *Facade) Stop() { f.command("Stop", Player.Stop) }

func (f *Facade) command(name string, op func(Player) error) {
	f.mu.Lock()
	player := f.player
	f.mu.Unlock()
	if player == nil {
		return
	}

	f.enqueue(name, func() {
		if err := op(player); err != nil {
			f.Log().Error().Str("Method", name).Err(err).Msg("command failed")
			return
		}
		f.Log().Debug().Str("Method", name).Msg("done")
	})
}

// enqueue runs fn on the command goroutine, keeping commands in call order.
// Commands issued once Close has started are dropped.
func (f *Facade) enqueue(name string, fn func()) {
	f.cmdsMu.Lock()
	defer f.cmdsMu.Unlock()
	if f.cmdsClosed {
		f.Log().Debug().Str("Method", name).Err(ErrClosed).Msg("command dropped")
		return
	}
	f.wg.Add(1)
	f.cmds <- func() {
		defer f.wg.Done()
		fn()
	}
}

// closeCommands stops accepting commands. runCommands returns once the
// queued ones have run.
func (f *Facade) closeCommands() {
	f.cmdsMu.Lock()
	defer f.cmdsMu.Unlock()
	if !f.cmdsClosed {
		f.cmdsClosed = true
		close(f.cmds)
	}
}

func (f *Facade) runCommands() {
	defer f.cmdsWG.Done()
	for job := range f.cmds {
		job()
	}
}

// Disconnect closes the active session, if any, and publishes EventClosed.
// Discovery keeps running, so the next device found connects again.
func (f *Facade) Disconnect() {
	conn := f.detach()
	if conn == nil {
		return
	}
	f.enqueue("Disconnect", func() {
		f.closeConn(conn, f.opts.StopMediaOnClose)
		f.bus.Publish(Event{Type: EventClosed})
	})
}

// detach forgets the active session and invalidates in-flight connects and
// loads. It returns the detached connection.
func (f *Facade) detach() Conn {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connectSeq++
	f.loadSeq++
	f.pending = nil

	conn := f.conn
	if f.stopWatch != nil {
		f.stopWatch()
	}
	f.conn, f.player, f.stopWatch = nil, nil, nil
	return conn
}

// Close stops discovery, closes the active session if there is one and
// waits for background work, discovery workers included, to finish or ctx
// to be done. Subscriber
// channels are closed afterwards. Close without a session publishes
// nothing.
func (f *Facade) Close(ctx context.Context) error {
	f.mu.Lock()
	if f.shuttingDown {
		f.mu.Unlock()
		return nil
	}
	f.shuttingDown = true
	f.mu.Unlock()

	conn := f.detach()
	f.cancel()

	done := make(chan struct{})
	go func() {
		f.closeCommands()
		f.cmdsWG.Wait()
		if conn != nil {
			f.closeConn(conn, f.opts.StopMediaOnClose)
			f.bus.Publish(Event{Type: EventClosed})
		}
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		f.bus.Close()
		return nil
	case <-ctx.Done():
		f.bus.Close()
		return ctx.Err()
	}
}

// Devices returns every discovered device in discovery order.
func (f *Facade) Devices() []devices.DeviceRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]devices.DeviceRecord, 0, len(f.order))
	for _, addr := range f.order {
		out = append(out, f.records[addr])
	}
	return out
}

// Connected reports whether a receiver application is launched.
func (f *Facade) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.player != nil
}

// mergeDone returns a context cancelled when either parent is done. Values
// come from a.
func mergeDone(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
