package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/chase3718/glowsync/internal/audio"
	"github.com/chase3718/glowsync/internal/button"
	"github.com/chase3718/glowsync/internal/config"
	"github.com/chase3718/glowsync/internal/display"
	"github.com/chase3718/glowsync/internal/loop"
	"github.com/chase3718/glowsync/internal/output"
	"github.com/chase3718/glowsync/internal/syncproto"
)

// -------------------- Logger --------------------

// logger is the package-wide structured logger. Safe to use before initLogger
// is called; defaults to slog.Default().
var logger = slog.Default()

// initLogger configures the shared slog logger and calls slog.SetDefault so
// the stdlib log package also routes through the same handler.
func initLogger(debug bool, w io.Writer) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug, // include file:line in debug mode
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

// -------------------- Main --------------------

func main() {
	defaultCfg, _ := config.Path()
	cfgPath := flag.String("config", defaultCfg, "path to YAML config")
	debug := flag.Bool("debug", false, "enable debug logging (adds source location)")
	headless := flag.Bool("headless", false, "log status instead of drawing the terminal UI")
	logPath := flag.String("log", filepath.Join(os.TempDir(), "glowsync.log"), "log file used while the terminal UI is up")
	listPorts := flag.Bool("list-ports", false, "list serial ports and exit")
	flag.Parse()

	if *listPorts {
		ports, err := output.Ports()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	var logOut io.Writer = os.Stderr
	if !*headless {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log %q: %v\n", *logPath, err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	initLogger(*debug, logOut)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}
	logger.Info("glowsync starting",
		"config", *cfgPath,
		"leds", cfg.LEDs,
		"serial", cfg.Serial.Device,
		"sync", cfg.Sync.Enabled,
		"midi", cfg.MIDI.Enabled,
		"debug", *debug,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *headless); err != nil {
		logger.Error("exit", "err", err)
		os.Exit(1)
	}
	logger.Info("glowsync stopped")
}

func run(ctx context.Context, cfg *config.Config, headless bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	var sink output.Sink = output.Discard{}
	if cfg.Serial.Enabled {
		var sinks output.Multi
		for _, dev := range append([]string{cfg.Serial.Device}, cfg.Serial.Mirrors...) {
			sp, err := output.OpenSerial(dev, cfg.Serial.Baud, logger)
			if err != nil {
				return err
			}
			defer sp.Close()
			sinks = append(sinks, sp)
		}
		sink = sinks
		if len(sinks) == 1 {
			sink = sinks[0]
		}
	}

	var src audio.Source = audio.SilenceSource{}
	if cfg.Audio.WAV != "" {
		wav, err := audio.OpenWAV(cfg.Audio.WAV, cfg.Audio.SampleRate)
		if err != nil {
			return err
		}
		defer wav.Close()
		src = wav
		logger.Info("audio: looping wav", "path", cfg.Audio.WAV, "rate", cfg.Audio.SampleRate)
	}

	var transport syncproto.Transport
	if cfg.Sync.Enabled {
		tr, err := syncproto.ListenUDP(cfg.Sync.Listen, cfg.Sync.Broadcast, logger)
		if err != nil {
			logger.Warn("sync: transport unavailable, running standalone", "err", err)
		} else {
			defer tr.Close()
			transport = tr
			if cfg.Sync.Advertise {
				startDiscovery(ctx, &wg, tr)
			}
		}
	}

	edges := make(chan button.Edge, 16)
	presses := make(chan button.Event, 16)
	if cfg.MIDI.Enabled {
		if w, err := startMIDI(ctx, &wg, cfg, edges); err != nil {
			logger.Warn("midi: unavailable", "err", err)
		} else {
			defer w.Close()
		}
	}
	// Stop background workers before the deferred closes above run.
	defer func() {
		cancel()
		wg.Wait()
	}()

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	var disp display.Display = display.Headless{Logger: logger}
	var tui *display.TUI
	var ui quitter
	uiDone := make(chan struct{})
	if !headless {
		tui = display.NewTUI(presses)
		disp = tui
		ui = tui
	}

	ctrl := loop.New(loop.Options{
		LEDs:             cfg.LEDs,
		NormalBrightness: cfg.NormalBrightness,
		Rand:             rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		Audio:            src,
		AudioWindow:      cfg.Audio.Window,
		AudioParams:      cfg.AudioParams(),
		Sink:             sink,
		Transport:        transport,
		Display:          disp,
		Edges:            edges,
		Presses:          presses,
		OnStall:          stallHandler(ui, uiDone, os.Exit),
		Logger:           logger,
	})

	if tui == nil {
		return ctrl.Run(ctx)
	}

	errc := make(chan error, 1)
	go func() { errc <- ctrl.Run(ctx) }()
	go func() {
		<-ctx.Done()
		tui.Quit()
	}()
	err := tui.Run()
	close(uiDone)
	if err != nil {
		cancel()
		<-errc
		return fmt.Errorf("tui: %w", err)
	}
	cancel()
	return <-errc
}

type quitter interface {
	Quit()
}

// stallRestoreTimeout bounds how long a stalled process waits for the
// terminal UI to restore the screen before exiting.
const stallRestoreTimeout = 500 * time.Millisecond

// stallHandler logs the stall and exits with status 2. When a terminal UI
// is up it is asked to quit first so the terminal leaves raw mode; uiDone
// is closed once it has.
func stallHandler(ui quitter, uiDone <-chan struct{}, exit func(int)) func() {
	return func() {
		logger.Error("loop: watchdog expired, control loop stalled", "timeout", loop.WatchdogTimeout)
		if ui != nil {
			ui.Quit()
			select {
			case <-uiDone:
			case <-time.After(stallRestoreTimeout):
				logger.Warn("loop: terminal ui did not stop in time")
			}
		}
		exit(2)
	}
}

// startDiscovery advertises this unit over mDNS and logs peers as they
// appear. Failures only cost visibility.
func startDiscovery(ctx context.Context, wg *sync.WaitGroup, tr *syncproto.UDPTransport) {
	port := syncproto.DefaultPort
	if a, ok := tr.LocalAddr().(*net.UDPAddr); ok {
		port = a.Port
	}
	id := syncproto.NewInstanceID()
	adv, err := syncproto.Advertise(id, port, logger)
	if err != nil {
		logger.Warn("sync: advertise failed", "err", err)
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer adv.Shutdown()
		seen := map[string]bool{}
		var mu sync.Mutex
		err := syncproto.Browse(ctx, func(p syncproto.Peer) {
			mu.Lock()
			defer mu.Unlock()
			if p.Instance == "glowsync-"+id || seen[p.Instance] {
				return
			}
			seen[p.Instance] = true
			logger.Info("sync: peer online", "instance", p.Instance, "addr", p.Addr, "peers", len(seen))
		}, logger)
		if err != nil {
			logger.Warn("sync: peer discovery failed", "err", err)
			<-ctx.Done()
		}
	}()
}

// startMIDI opens the rtmidi driver and rescans for controllers once a
// second until ctx is done.
func startMIDI(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, edges chan<- button.Edge) (*button.MIDIWatcher, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	w := button.NewMIDIWatcher(drv, edges, cfg.MIDI.Preferred, cfg.MIDI.Excluded, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		w.Tick()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Tick()
			}
		}
	}()
	return w, nil
}
