package devices

import (
	"context"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"golang.org/x/time/rate"
)

const (
	// mDNS query timeout per request
	chromecastQueryTimeout = 750 * time.Millisecond
	// Faster polling while nothing has been found for quick first discovery
	chromecastPollIntervalFast = 1 * time.Second
	// Slower polling once at least one device is known to reduce network load
	chromecastPollIntervalSlow = 4 * time.Second
	// Interface refresh cadence for add/remove changes
	chromecastIfaceRefreshInterval = 20 * time.Second

	defaultQueriesPerSecond = 4
)

// Swapped in tests.
var (
	mdnsQuery       = mdns.Query
	activeIfaceList = interfaceByName
)

// MDNSBrowser polls for devices with hashicorp/mdns on every active
// multicast interface.
type MDNSBrowser struct {
	logged
	opts   Options
	state  browseState
	query  func(*mdns.QueryParam) error
	ifaces func(name string) ([]net.Interface, error)
}

// NewMDNSBrowser creates a polling mDNS browser.
func NewMDNSBrowser(o Options) *MDNSBrowser {
	b := &MDNSBrowser{
		opts:   o.withDefaults(),
		query:  mdnsQuery,
		ifaces: activeIfaceList,
	}
	b.LogOutput = o.LogOutput
	return b
}

// Browse implements Browser.
func (b *MDNSBrowser) Browse(ctx context.Context, serviceUp func(DeviceRecord)) error {
	if err := b.state.begin(); err != nil {
		return err
	}

	b.Log().Debug().Str("Method", "Browse").Str("Service", b.opts.Service).Msg("starting mdns discovery")

	limiter := rate.NewLimiter(rate.Limit(b.opts.QueriesPerSecond), 1)
	go func() {
		defer b.state.end()
		b.discover(ctx, limiter, serviceUp)
		b.Log().Debug().Str("Method", "Browse").Msg("mdns discovery stopped")
	}()

	return nil
}

// Wait implements Browser.
func (b *MDNSBrowser) Wait() {
	b.state.wait()
}

// discover keeps one polling worker per interface and refreshes the set
// periodically so adapters that come and go (VPN, Docker) are followed.
func (b *MDNSBrowser) discover(ctx context.Context, limiter *rate.Limiter, serviceUp func(DeviceRecord)) {
	var wg sync.WaitGroup
	workers := make(map[int]context.CancelFunc)

	start := func(iface *net.Interface, idx int) {
		workerCtx, cancel := context.WithCancel(ctx)
		workers[idx] = cancel
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.pollWorker(workerCtx, iface, limiter, serviceUp)
		}()
	}

	refresh := func() {
		interfaces, err := b.ifaces(b.opts.Interface)
		if err != nil {
			b.Log().Error().Str("Method", "Browse").Err(err).Msg("interface lookup failed")
		}

		active := make(map[int]struct{}, len(interfaces))
		for _, iface := range interfaces {
			active[iface.Index] = struct{}{}
			if _, ok := workers[iface.Index]; ok {
				continue
			}
			pollIface := iface
			start(&pollIface, iface.Index)
		}

		for idx, cancel := range workers {
			if idx == -1 {
				continue
			}
			if _, ok := active[idx]; !ok {
				cancel()
				delete(workers, idx)
			}
		}

		// Let the OS pick when no usable interface is up.
		if len(interfaces) == 0 {
			if _, ok := workers[-1]; !ok {
				start(nil, -1)
			}
		} else if cancel, ok := workers[-1]; ok {
			cancel()
			delete(workers, -1)
		}
	}

	refresh()

	refreshTicker := time.NewTicker(chromecastIfaceRefreshInterval)
	defer refreshTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, cancel := range workers {
				cancel()
			}
			wg.Wait()
			return
		case <-refreshTicker.C:
			refresh()
		}
	}
}

func (b *MDNSBrowser) pollWorker(ctx context.Context, iface *net.Interface, limiter *rate.Limiter, serviceUp func(DeviceRecord)) {
	entriesCh := make(chan *mdns.ServiceEntry, 256)

	readerDone := make(chan struct{})
	defer func() { <-readerDone }()
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case entry := <-entriesCh:
				r, ok := recordFromMDNSEntry(entry, b.opts.Service)
				if !ok || !b.state.firstSighting(r) {
					continue
				}
				b.Log().Debug().Str("Method", "Browse").Str("Device", r.String()).Msg("device up")
				serviceUp(r)
			}
		}
	}()

	pollTimer := time.NewTimer(0)
	defer pollTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTimer.C:
		}

		if err := limiter.Wait(ctx); err != nil {
			return
		}

		params := mdns.DefaultParams(b.opts.Service)
		params.Domain = strings.TrimSuffix(b.opts.Domain, ".")
		params.Entries = entriesCh
		params.Timeout = b.opts.QueryTimeout
		params.DisableIPv6 = true
		params.WantUnicastResponse = true
		params.Logger = log.New(io.Discard, "", 0)
		if iface != nil {
			params.Interface = iface
		}
		if err := b.query(params); err != nil {
			b.Log().Debug().Str("Method", "Browse").Err(err).Msg("mdns query failed")
		}

		pollTimer.Reset(b.pollInterval())
	}
}

func (b *MDNSBrowser) pollInterval() time.Duration {
	if b.state.found() > 0 {
		return b.opts.PollInterval
	}
	return chromecastPollIntervalFast
}

func recordFromMDNSEntry(entry *mdns.ServiceEntry, service string) (DeviceRecord, bool) {
	if entry == nil || entry.AddrV4 == nil {
		return DeviceRecord{}, false
	}
	label, _, _ := strings.Cut(service, ".")
	if !strings.Contains(entry.Name, label) {
		return DeviceRecord{}, false
	}

	addrs := []string{entry.AddrV4.String()}
	if entry.AddrV6 != nil {
		addrs = append(addrs, entry.AddrV6.String())
	}

	return DeviceRecord{
		Name:         entry.Name,
		Host:         entry.Host,
		Addresses:    addrs,
		Port:         entry.Port,
		Info:         parseTXT(entry.InfoFields),
		DiscoveredAt: time.Now(),
	}, true
}

// getActiveNetworkInterfaces returns all network interfaces that are up,
// multicast-capable, not loopback, and have an IPv4 address.
func getActiveNetworkInterfaces() []net.Interface {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var active []net.Interface
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 ||
			iface.Flags&net.FlagLoopback != 0 ||
			iface.Flags&net.FlagMulticast == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				active = append(active, iface)
				break
			}
		}
	}

	return active
}
