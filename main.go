/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anima-rhi/engine"
	"github.com/spaghettifunk/anima-rhi/engine/config"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/platform/window"
	"github.com/spaghettifunk/anima-rhi/testbed"
)

var (
	configPath = flag.String("config", "config.toml", "path of the TOML configuration")
	frames     = flag.Int("frames", 120, "frames to render without a window, 0 renders until interrupted")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	tb := testbed.NewTestGame(cfg, openWindow, *frames)

	e, err := engine.New(tb.Game)
	if err != nil {
		panic(err)
	}

	if err := e.Initialize(); err != nil {
		core.LogError("initialization failed: %s", err)
		_ = e.Shutdown()
		os.Exit(1)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// stop the frame loop, the main goroutine shuts down
	go func() {
		<-sigCh
		e.Stop()
	}()

	runErr := e.Run()
	if runErr == nil && cfg.Output.Snapshot != "" {
		runErr = e.Snapshot(cfg.Output.Snapshot)
	}
	if err := errors.Join(runErr, e.Shutdown()); err != nil {
		core.LogError("%s", err)
		os.Exit(1)
	}
}

// loadConfig falls back to the defaults when path does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func openWindow(title string, width, height int, events *core.EventSystem) (engine.Window, error) {
	w, err := window.New(title, width, height, events)
	if err != nil {
		return nil, err
	}
	return w, nil
}
