package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"go-midifx/arp"
	"go-midifx/config"
	"go-midifx/debug"
	"go-midifx/host"
	"go-midifx/midi"
	"go-midifx/notedelay"
	"go-midifx/scheduler"
	"go-midifx/theme"
	"go-midifx/transport"
	"go-midifx/tui"
)

// workerQueue bounds every channel between the block clock and a worker.
const workerQueue = 1024

// sinkBuffer is how many diagnostic lines may wait for the writer.
const sinkBuffer = 4096

func run(mode string, args []string, cfg *config.Config, logger *log.Logger) error {
	fs := flag.NewFlagSet(mode, flag.ContinueOnError)
	monitor := fs.Bool("tui", false, "show the live monitor")
	in := fs.String("in", cfg.MIDI.InputPort, "MIDI input port")
	out := fs.String("out", cfg.MIDI.OutputPort, "MIDI output port")
	portIndex := fs.Uint("port", uint(cfg.Network.Port), "pattern port index")
	peer := fs.String("peer", cfg.Network.Peer, "host of the arp instance (source mode)")
	palette := fs.String("palette", "", "GIMP palette file for the monitor")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *portIndex > 255 {
		return fault.New("port index out of range")
	}
	udpPort := transport.Port(uint8(*portIndex))

	if err := config.LoadPreset(&cfg.Params); err != nil {
		logger.Warn("preset ignored", "err", err)
	}

	sink, closeSink, err := newSink(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Workers outlive the block clock so the final note-offs still go out.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	ports := midi.NewPortManager()
	ports.Scan()
	go ports.Run(workerCtx)

	var input <-chan midi.Stamped
	if *in != "" {
		port, err := ports.In(*in)
		if err != nil {
			return err
		}
		listener, err := midi.NewInput(port, 256)
		if err != nil {
			return err
		}
		defer listener.Close()
		input = listener.Events()
		logger.Info("listening", "port", *in)
	}

	midiOut := transport.NewMIDIOut(ports, *out, workerQueue, logger)
	go midiOut.Run(workerCtx)
	defer midiOut.Stop()

	var proc host.Processor
	var patterns host.PatternSource
	var sender *transport.Sender
	switch mode {
	case "delay":
		proc = notedelay.New(delayOptions(cfg.SampleRate, cfg.Params), sink)
	case "arp":
		recv, err := transport.Listen(net.JoinHostPort("", strconv.Itoa(udpPort)), 64, logger)
		if err != nil {
			return err
		}
		defer recv.Close()
		patterns = recv
		proc = arp.New(arpOptions(cfg.SampleRate, cfg.Params), sink)
	case "source":
		sender = transport.NewSender(net.JoinHostPort(*peer, strconv.Itoa(udpPort)), 64, logger)
		go sender.Run(workerCtx)
		defer sender.Stop()
		proc = arp.NewSource(sender)
	}

	mgr := host.NewManager(proc, host.Config{
		SampleRate: cfg.SampleRate,
		BlockSize:  cfg.BlockSize,
		Input:      input,
		Patterns:   patterns,
		Out:        host.NewDeviceOut(true, midiOut),
		Logger:     logger,
	})
	mgr.SetMIDIOut(midiOut, *out)

	done := make(chan struct{})
	go func() {
		mgr.Run(ctx)
		close(done)
	}()

	if *monitor {
		th, err := loadTheme(*palette)
		if err != nil {
			cancel()
			<-done
			return err
		}
		opts := tui.Options{
			Mode:     mode,
			Rate:     cfg.SampleRate,
			Params:   cfg.Params,
			Port:     uint8(*portIndex),
			Controls: controls(mgr, proc, sender, *peer, cfg.SampleRate),
		}
		p := tea.NewProgram(tui.NewModel(mgr, ports, th, opts), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			logger.Error("monitor failed", "err", err)
		}
		cancel()
	}
	<-done
	return nil
}

// controls lets the monitor retune the processor between blocks, save the
// parameters as a preset and move the source to another arp instance.
func controls(mgr *host.Manager, proc host.Processor, sender *transport.Sender, peer string, rate int) tui.Controls {
	c := tui.Controls{Save: config.SavePreset}
	switch p := proc.(type) {
	case *notedelay.Processor:
		c.Apply = func(params config.Params) bool {
			opts := delayOptions(rate, params)
			return mgr.Update(func() { p.SetOptions(opts) })
		}
	case *arp.Arpeggiator:
		c.Apply = func(params config.Params) bool {
			opts := arpOptions(rate, params)
			return mgr.Update(func() { p.SetOptions(opts) })
		}
	}
	if sender != nil {
		c.SetPort = func(index uint8) {
			sender.SetPeer(net.JoinHostPort(peer, strconv.Itoa(transport.Port(index))))
		}
	}
	return c
}

func loadTheme(path string) (*theme.Theme, error) {
	if path == "" {
		return theme.New(theme.Default()), nil
	}
	p, err := theme.LoadGPL(path)
	if err != nil {
		return nil, err
	}
	return theme.New(p), nil
}

// newSink builds the diagnostic sink for the real-time code from config.
func newSink(cfg *config.Config, logger *log.Logger) (debug.Sink, func(), error) {
	var sinks debug.Multi
	var closers []func() error

	if cfg.DebugLog {
		path, err := config.DebugLogPath()
		if err != nil {
			return nil, nil, err
		}
		fs, err := debug.OpenFileSink(path)
		if err != nil {
			return nil, nil, fault.Wrap(err, fmsg.With("open debug log"))
		}
		sinks = append(sinks, fs)
		closers = append(closers, fs.Close)
	}
	if cfg.DebugAddr != "" {
		us, err := debug.DialUDPSink(cfg.DebugAddr)
		if err != nil {
			return nil, nil, fault.Wrap(err, fmsg.With("dial debug sink"))
		}
		sinks = append(sinks, us)
		closers = append(closers, us.Close)
	}
	if logger.GetLevel() <= log.DebugLevel {
		sinks = append(sinks, debug.LoggerSink{Logger: logger})
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(sinks) == 0 {
		return nil, closeAll, nil
	}
	// the block clock only ever touches the buffer
	async := debug.NewAsync(sinks, sinkBuffer)
	return async, func() {
		async.Close()
		closeAll()
	}, nil
}

func maxNotes(p config.Params) scheduler.MaxNotes {
	if p.MaxNotes == 0 {
		return scheduler.Infinite()
	}
	return scheduler.Limited(int(p.MaxNotes))
}

func delayOptions(rate int, p config.Params) notedelay.Options {
	return notedelay.Options{
		Offset:              p.DelayOffsetSeconds(),
		Multiplier:          p.DelayMultiplierValue(),
		SampleRate:          float64(rate),
		MaxNotes:            maxNotes(p),
		MaxNotesDelayedOnly: p.MaxNotesDelayedOnly,
	}
}

func arpOptions(rate int, p config.Params) arp.Options {
	bend := arp.PitchbendMode{}
	switch p.PitchbendMode {
	case config.PitchbendImmediate:
		bend.Kind = arp.BendImmediate
	case config.PitchbendDuration:
		bend = arp.PitchbendMode{Kind: arp.BendDuration, Seconds: p.PitchbendSeconds()}
	}
	return arp.Options{
		HoldNotes:     p.HoldNotes,
		PatternLegato: p.PatternLegato,
		Pitchbend:     bend,
		MaxNotes:      maxNotes(p),
		SampleRate:    float64(rate),
	}
}
