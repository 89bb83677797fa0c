// command fuseplayctl is the internal tool for driving a fuse sequence
// playback engine from a terminal: load a score file, open an actuator
// bus, and issue transport commands either once (via flags) or
// interactively (via stdin) while logging ignitions.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/CR1337/rl-fuse-player/actuator"
	"github.com/CR1337/rl-fuse-player/driver/mcp23008"
	"github.com/CR1337/rl-fuse-player/driver/serialfuse"
	"github.com/CR1337/rl-fuse-player/fuseplayer"
)

var (
	scorePath      = flag.String("score", "", "path to a score file")
	bus            = flag.String("bus", "i2c", "actuator bus: i2c or serial")
	device         = flag.String("device", "", "bus device name (i2c bus name or serial port path)")
	fuseDurationMs = flag.Uint("fuse-ms", 500, "how long a fuse stays lit, in milliseconds")
	resolutionMs   = flag.Uint("resolution-ms", 10, "driver tick quantum, in milliseconds")
	requireSigned  = flag.Bool("require-signed", false, "reject unsigned or tampered score files")
	eventLogPath   = flag.String("event-log", "", "path to append a CBOR ignition log to")
	interactive    = flag.Bool("i", false, "read play/pause/stop/jump commands from stdin")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fuseplayctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if *scorePath == "" {
		return errors.New("specify -score")
	}
	scoreBytes, err := os.ReadFile(*scorePath)
	if err != nil {
		return fmt.Errorf("read score: %w", err)
	}

	opener, closeBus, err := openBus(*bus, *device)
	if err != nil {
		return fmt.Errorf("open bus: %w", err)
	}
	defer closeBus()

	var eventLog *os.File
	if *eventLogPath != "" {
		eventLog, err = os.OpenFile(*eventLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer eventLog.Close()
	}

	cfg := fuseplayer.Config{
		ScoreBytes:         scoreBytes,
		Opener:             opener,
		FuseDurationMs:     uint16(*fuseDurationMs),
		TimeResolutionMs:   uint32(*resolutionMs),
		RequireSignedScore: *requireSigned,
	}
	if eventLog != nil {
		cfg.EventLog = eventLog
	}

	engine, err := fuseplayer.New(cfg)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer engine.Close()

	if rec := engine.LastError(); rec.Kind != fuseplayer.NoError {
		fmt.Fprintf(os.Stderr, "fuseplayctl: init warning: %s\n", rec.String())
	}

	if !*interactive {
		if !engine.Play(nil) {
			return fmt.Errorf("play: %s", engine.LastError().String())
		}
		for engine.IsPlaying() {
			time.Sleep(10 * time.Millisecond)
		}
		return nil
	}
	return repl(engine)
}

func openBus(kind, device string) (actuator.Opener, func() error, error) {
	switch kind {
	case "i2c":
		opener, closeFn, err := mcp23008.OpenBus(device)
		if err != nil {
			return nil, nil, err
		}
		return opener, closeFn, nil
	case "serial":
		opener, err := serialfuse.OpenerForPort(device)
		if err != nil {
			return nil, nil, err
		}
		return opener, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown bus %q, want i2c or serial", kind)
	}
}

// repl drives the engine from newline-delimited stdin commands: play,
// pause, stop, or "jump <ms>". It exits when stdin closes.
func repl(engine *fuseplayer.Engine) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "play":
			engine.Play(nil)
		case "pause":
			engine.Pause(nil)
		case "stop":
			engine.Stop(nil)
		case "jump":
			if len(fields) != 2 {
				fmt.Fprintln(os.Stderr, "usage: jump <ms>")
				continue
			}
			ms, err := strconv.ParseUint(fields[1], 10, 32)
			if err != nil {
				fmt.Fprintf(os.Stderr, "bad jump target: %v\n", err)
				continue
			}
			engine.Jump(nil, uint32(ms))
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n", fields[0])
			continue
		}
		if rec := engine.LastError(); rec.Kind != fuseplayer.NoError {
			fmt.Fprintf(os.Stderr, "%s\n", rec.String())
		}
	}
	return scanner.Err()
}
