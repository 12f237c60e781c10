package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"go-midifx/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	switch mode := os.Args[1]; mode {
	case "delay", "arp", "source":
		err = run(mode, os.Args[2:], cfg, logger)
	case "ports":
		err = listPorts()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("go-midifx - real-time MIDI effects")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  delay   - hold notes past their release")
	fmt.Println("  arp     - play patterns from a source instance on the held notes")
	fmt.Println("  source  - send the input as patterns to an arp instance")
	fmt.Println("  ports   - list MIDI ports")
	fmt.Println("")
	fmt.Println("Run 'go-midifx <command> -h' for flags.")
}

func newLogger(cfg *config.Config) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "midifx",
	})
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warn("unknown log level, using info", "level", cfg.LogLevel)
	}
	return logger
}
