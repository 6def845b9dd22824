package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"go2tv.app/castbridge/devices"
)

func TestPrintDevices(t *testing.T) {
	var buf bytes.Buffer
	printDevices(&buf, []devices.DeviceRecord{
		{
			Name:      "Chromecast-Audio-1234._googlecast._tcp.local.",
			Addresses: []string{"192.168.1.30"},
			Port:      8009,
			Info:      map[string]string{"fn": "Kitchen speaker", "md": "Chromecast Audio", "ca": "2052"},
		},
		{
			Name:      "Living-Room._googlecast._tcp.local.",
			Addresses: []string{"192.168.1.20"},
		},
	})

	out := buf.String()
	for _, want := range []string{
		"Device 1", "Kitchen speaker", "Chromecast Audio", "192.168.1.30:8009", "Audio only",
		"Device 2", "Living-Room", "192.168.1.20:8009",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "Audio only") != 1 {
		t.Fatalf("only the audio device should be marked:\n%s", out)
	}
}

func TestNewLogOutput(t *testing.T) {
	old := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(old) })

	if _, err := newLogOutput("DEBUG"); err != nil {
		t.Fatalf("newLogOutput(DEBUG) err = %v", err)
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("global level = %v", zerolog.GlobalLevel())
	}
	if _, err := newLogOutput("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestLoadConfigFlags(t *testing.T) {
	oldPath, oldLevel := configPath, logLevel
	t.Cleanup(func() { configPath, logLevel = oldPath, oldLevel })

	configPath = filepath.Join(t.TempDir(), "config.yaml")
	logLevel = "debug"

	conf, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() err = %v", err)
	}
	if conf.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want debug", conf.LogLevel)
	}

	f, err := newFacade(conf, "Kitchen", nil)
	if err != nil {
		t.Fatalf("newFacade() err = %v", err)
	}
	if f.Connected() {
		t.Fatalf("fresh facade is connected")
	}
	if err := f.Close(context.Background()); err != nil {
		t.Fatalf("Close() err = %v", err)
	}
}
