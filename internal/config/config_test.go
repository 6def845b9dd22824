package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	conf, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if conf.Discovery.Backend != "mdns" || conf.Control.AppID != "CC1AD845" {
		t.Fatalf("unexpected defaults: %+v", conf)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("second Load() err = %v", err)
	}
	if again.Media.Title != conf.Media.Title || again.Discovery.PollInterval != conf.Discovery.PollInterval {
		t.Fatalf("round trip mismatch: %+v vs %+v", again, conf)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("discovery:\n  backend: zeroconf\n  poll_interval: 10s\nselection:\n  device_name: Living Room TV\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	conf, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if conf.Discovery.Backend != "zeroconf" || conf.Discovery.PollInterval != 10*time.Second {
		t.Fatalf("file values not applied: %+v", conf.Discovery)
	}
	if conf.Discovery.QueryTimeout != 750*time.Millisecond || conf.Media.StreamType != "BUFFERED" {
		t.Fatalf("defaults lost: %+v", conf)
	}
	if conf.Selection.DeviceName != "Living Room TV" {
		t.Fatalf("DeviceName = %q", conf.Selection.DeviceName)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown backend", "discovery:\n  backend: ssdp\n"},
		{"unknown stream type", "media:\n  stream_type: PROGRESSIVE\n"},
		{"zero status interval", "control:\n  status_interval: 0s\n"},
		{"negative retries", "probe:\n  retries: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); !errors.Is(err, ErrInvalid) {
				t.Fatalf("Load() err = %v, want %v", err, ErrInvalid)
			}
		})
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("discovery: [oops"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
