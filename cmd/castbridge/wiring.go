package main

import (
	"io"

	"go2tv.app/castbridge/devices"
	"go2tv.app/castbridge/internal/config"
	"go2tv.app/castbridge/session"
	"go2tv.app/castbridge/utils"
)

func newBrowser(conf *config.Config, logOutput io.Writer) (devices.Browser, error) {
	return devices.NewBrowser(conf.Discovery.Backend, devices.Options{
		Service:          conf.Discovery.Service,
		Domain:           conf.Discovery.Domain,
		Interface:        conf.Discovery.Interface,
		QueryTimeout:     conf.Discovery.QueryTimeout,
		PollInterval:     conf.Discovery.PollInterval,
		QueriesPerSecond: conf.Discovery.QueriesPerSecond,
		LogOutput:        logOutput,
	})
}

func newFacade(conf *config.Config, deviceName string, logOutput io.Writer) (*session.Facade, error) {
	browser, err := newBrowser(conf, logOutput)
	if err != nil {
		return nil, err
	}

	if deviceName == "" {
		deviceName = conf.Selection.DeviceName
	}

	return session.New(session.Options{
		Browser: browser,
		Dialer: session.CastDialer{
			Retries:        conf.Control.ConnectRetries,
			LaunchTimeout:  conf.Control.LaunchTimeout,
			StatusInterval: conf.Control.StatusInterval,
			LogOutput:      logOutput,
		},
		Prober: utils.NewProber(utils.ProbeOptions{
			Timeout:   conf.Probe.Timeout,
			Retries:   conf.Probe.Retries,
			Sniff:     conf.Probe.SniffFallback,
			LogOutput: logOutput,
		}),
		AppID: conf.Control.AppID,
		Media: session.MediaDefaults{
			Title:      conf.Media.Title,
			ImageURL:   conf.Media.ImageURL,
			StreamType: conf.Media.StreamType,
		},
		DeviceName:       deviceName,
		StopMediaOnClose: conf.Control.StopMediaOnClose,
		LogOutput:        logOutput,
	})
}
