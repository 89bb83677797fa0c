// command dummyscore writes a small synthetic score file for bench
// testing, mirroring original_source/src/dummyDataCreation.c's eight
// evenly-spaced single-device events.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/CR1337/rl-fuse-player/score"
)

var (
	out         = flag.String("o", "fuses.bin", "output path")
	itemCount   = flag.Int("n", 8, "number of events, 1..128")
	waitTimeMs  = flag.Uint("wait-ms", 500, "spacing between consecutive event timestamps")
	deviceIndex = flag.Uint("device", 1, "device index stamped on every event, 0..15")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dummyscore: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if *itemCount < 1 || *itemCount > score.MaxEventCount {
		return fmt.Errorf("-n must be in 1..%d", score.MaxEventCount)
	}
	if *deviceIndex > score.MaxDeviceIndex {
		return fmt.Errorf("-device must be in 0..%d", score.MaxDeviceIndex)
	}

	events := make([]score.Event, *itemCount)
	for i := range events {
		events[i] = score.Event{
			TimestampMs: uint32(i) * uint32(*waitTimeMs),
			DeviceIndex: uint8(*deviceIndex),
			FuseIndex:   uint8(i % (score.MaxFuseIndex + 1)),
		}
	}
	sc := &score.Score{
		DeviceMask: 1 << *deviceIndex,
		Events:     events,
	}

	return os.WriteFile(*out, sc.Encode(), 0o644)
}
