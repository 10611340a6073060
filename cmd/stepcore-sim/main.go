// Command stepcore-sim drives the motion package's Controller through a
// single synthetic 100-step X block and prints the final X position, for
// exercising the trapezoid/Bresenham path without real hardware attached.
package main

import (
	"flag"
	"fmt"
	"os"

	"stepcore/internal/logging"
	"stepcore/motion"
)

var (
	configPath = flag.String("config", "", "Path to a TOML config overriding the defaults")
	verbose    = flag.Bool("verbose", false, "Enable debug-level logging")
)

func main() {
	flag.Parse()

	level := logging.InfoLevel
	if *verbose {
		level = logging.DebugLevel
	}
	log := logging.New(level, logging.FileOptions{})

	cfg := motion.DefaultConfig()
	if *configPath != "" {
		loaded, err := motion.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "stepcore-sim: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	planner, stepper := motion.NewBlockQueue()
	ctl := motion.New(cfg, nil, log)
	ctl.Attach(stepper)
	ctl.StInit()
	ctl.StWakeUp()

	b := motion.NewBlock()
	b.Steps[motion.AxisX] = 100
	b.StepEventCount = 100
	b.InitialRate = 1000
	b.NominalRate = 1000
	b.FinalRate = 1000
	b.AccelerateUntil = 0
	b.DecelerateAfter = 100
	if err := planner.Push(b); err != nil {
		fmt.Fprintf(os.Stderr, "stepcore-sim: enqueue: %v\n", err)
		os.Exit(1)
	}

	var now uint32
	for {
		next := ctl.Tick(now)
		now += uint32(next)
		stats := ctl.Stats()
		if !stats.BlockActive && stats.QueueDepth == 0 {
			break
		}
	}

	x, _ := ctl.StGetPosition(motion.AxisX)
	fmt.Printf("final X position: %d steps\n", x)
	log.Sync()
}
