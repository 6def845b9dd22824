package devices

import (
	"context"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pkg/errors"
)

// ZeroconfBrowser streams service announcements with grandcat/zeroconf
// instead of polling.
type ZeroconfBrowser struct {
	logged
	opts  Options
	state browseState
}

// NewZeroconfBrowser creates a streaming DNS-SD browser.
func NewZeroconfBrowser(o Options) *ZeroconfBrowser {
	b := &ZeroconfBrowser{opts: o.withDefaults()}
	b.LogOutput = o.LogOutput
	return b
}

// Browse implements Browser.
func (b *ZeroconfBrowser) Browse(ctx context.Context, serviceUp func(DeviceRecord)) error {
	if err := b.state.begin(); err != nil {
		return err
	}

	var opts []zeroconf.ClientOption
	if b.opts.Interface != "" {
		ifaces, err := interfaceByName(b.opts.Interface)
		if err != nil {
			b.state.end()
			return err
		}
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}
	opts = append(opts, zeroconf.SelectIPTraffic(zeroconf.IPv4))

	resolver, err := zeroconf.NewResolver(opts...)
	if err != nil {
		b.state.end()
		return errors.Wrap(err, "browse: failed to create mDNS resolver")
	}

	entries := make(chan *zeroconf.ServiceEntry, 64)
	if err := resolver.Browse(ctx, b.opts.Service, b.opts.Domain, entries); err != nil {
		b.state.end()
		return errors.Wrap(err, "browse: failed to browse for mDNS services")
	}

	b.Log().Debug().Str("Method", "Browse").Str("Service", b.opts.Service).Msg("starting zeroconf discovery")

	go func() {
		defer b.state.end()
		for {
			select {
			case <-ctx.Done():
				b.Log().Debug().Str("Method", "Browse").Msg("zeroconf discovery stopped")
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				r, valid := recordFromZeroconfEntry(entry)
				if !valid || !b.state.firstSighting(r) {
					continue
				}
				b.Log().Debug().Str("Method", "Browse").Str("Device", r.String()).Msg("device up")
				serviceUp(r)
			}
		}
	}()

	return nil
}

// Wait implements Browser.
func (b *ZeroconfBrowser) Wait() {
	b.state.wait()
}

func recordFromZeroconfEntry(entry *zeroconf.ServiceEntry) (DeviceRecord, bool) {
	if entry == nil {
		return DeviceRecord{}, false
	}

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	if len(addrs) == 0 {
		return DeviceRecord{}, false
	}

	return DeviceRecord{
		Name:         entry.Instance,
		Host:         entry.HostName,
		Addresses:    addrs,
		Port:         entry.Port,
		Info:         parseTXT(entry.Text),
		DiscoveredAt: time.Now(),
	}, true
}
