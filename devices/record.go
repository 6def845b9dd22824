package devices

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

const (
	// CapabilityVideoOut is the bitmask for video output capability (bit 0)
	CapabilityVideoOut = 1
	// DefaultCastPort is the CASTV2 control port.
	DefaultCastPort = 8009
)

// DeviceRecord is a device reported by a Browser.
// Records are never mutated after they have been handed to a listener.
type DeviceRecord struct {
	Name         string
	Host         string
	Addresses    []string
	Port         int
	Info         map[string]string
	DiscoveredAt time.Time
}

// Address returns the first reported network address, or an empty string.
func (r DeviceRecord) Address() string {
	if len(r.Addresses) == 0 {
		return ""
	}
	return r.Addresses[0]
}

// HostPort returns the address joined with the control port.
func (r DeviceRecord) HostPort() string {
	port := r.Port
	if port == 0 {
		port = DefaultCastPort
	}
	return net.JoinHostPort(r.Address(), strconv.Itoa(port))
}

// FriendlyName prefers the "fn" TXT field over the mDNS instance name.
func (r DeviceRecord) FriendlyName() string {
	if fn := r.Info["fn"]; fn != "" {
		return fn
	}
	name := r.Name
	if idx := strings.Index(name, "._googlecast"); idx > 0 {
		name = name[:idx]
	}
	return name
}

func (r DeviceRecord) String() string {
	return fmt.Sprintf("%q at %s", r.FriendlyName(), r.HostPort())
}

// key identifies one appearance of a device. A device that comes back
// under a different name or port is a new appearance.
func (r DeviceRecord) key() string {
	return r.Name + "|" + r.HostPort()
}

// CastInfo holds the well known _googlecast TXT fields.
type CastInfo struct {
	ID           string `mapstructure:"id"`
	FriendlyName string `mapstructure:"fn"`
	Model        string `mapstructure:"md"`
	Capabilities string `mapstructure:"ca"`
	Status       string `mapstructure:"rs"`
}

// IsAudioOnly reports whether the "ca" capability bitmask lacks video out.
func (c CastInfo) IsAudioOnly() bool {
	return isChromecastAudioOnly(c.Capabilities)
}

// CastInfo decodes the record's TXT fields.
func (r DeviceRecord) CastInfo() (CastInfo, error) {
	return decodeCastInfo(r.Info)
}

func decodeCastInfo(fields map[string]string) (CastInfo, error) {
	var info CastInfo
	if len(fields) == 0 {
		return info, nil
	}
	if err := mapstructure.Decode(fields, &info); err != nil {
		return CastInfo{}, fmt.Errorf("decode cast info: %w", err)
	}
	return info, nil
}

// parseTXT turns "key=value" TXT strings into a map. Keys without a value
// map to the empty string.
func parseTXT(txt []string) map[string]string {
	fields := make(map[string]string, len(txt))
	for _, t := range txt {
		k, v, _ := strings.Cut(t, "=")
		if k == "" {
			continue
		}
		fields[k] = v
	}
	return fields
}

// isChromecastAudioOnly checks if a device is audio-only based on the "ca" capability field.
// If bit 0 is NOT set, the device is considered audio-only (e.g. Chromecast Audio, Google Home speakers).
// Returns false if parsing fails, so standard video devices are never restricted by mistake.
func isChromecastAudioOnly(caField string) bool {
	ca, err := strconv.Atoi(caField)
	if err != nil {
		return false
	}
	return (ca & CapabilityVideoOut) == 0
}
