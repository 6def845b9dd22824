package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go2tv.app/castbridge/devices"
)

var ErrNoDevices = errors.New("no cast devices found")

var listTimeout time.Duration

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List Cast devices on the local network",
	Example: `  castbridge list
  castbridge list --timeout 10s --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().DurationVar(&listTimeout, "timeout", 5*time.Second, "How long to browse for devices")
}

func runList(cmd *cobra.Command, _ []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	logOutput, err := newLogOutput(conf.LogLevel)
	if err != nil {
		return err
	}

	browser, err := newBrowser(conf, logOutput)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	found, err := devices.Discover(ctx, browser, listTimeout)
	if err != nil {
		return err
	}
	if len(found) == 0 && !errors.Is(ctx.Err(), context.Canceled) {
		return ErrNoDevices
	}

	printDevices(cmd.OutOrStdout(), found)
	return nil
}

func printDevices(w io.Writer, found []devices.DeviceRecord) {
	boldStart := ""
	boldEnd := ""
	if runtime.GOOS == "linux" && w == io.Writer(os.Stdout) {
		boldStart = "\033[1m"
		boldEnd = "\033[0m"
	}

	fmt.Fprintln(w)
	for i, rec := range found {
		model := ""
		audioOnly := false
		if info, err := rec.CastInfo(); err == nil {
			model = info.Model
			audioOnly = info.IsAudioOnly()
		}

		fmt.Fprintf(w, "%sDevice %v%s\n", boldStart, i+1, boldEnd)
		fmt.Fprintf(w, "%s--------%s\n", boldStart, boldEnd)
		fmt.Fprintf(w, "%sName:%s    %s\n", boldStart, boldEnd, rec.FriendlyName())
		fmt.Fprintf(w, "%sModel:%s   %s\n", boldStart, boldEnd, model)
		fmt.Fprintf(w, "%sAddress:%s %s\n", boldStart, boldEnd, rec.HostPort())
		if audioOnly {
			fmt.Fprintf(w, "%sAudio only%s\n", boldStart, boldEnd)
		}
		fmt.Fprintln(w)
	}
}
