package main

import (
	"testing"
	"time"

	"go-midifx/arp"
	"go-midifx/config"
	"go-midifx/debug"
	"go-midifx/host"
	"go-midifx/midi"
	"go-midifx/notedelay"
	"go-midifx/transport"
)

func TestOptionsFromParams(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Params = config.Params{
		DelayOffset:     64,
		MaxNotes:        3,
		HoldNotes:       true,
		PitchbendMode:   config.PitchbendDuration,
		PitchbendTime:   127,
		PatternLegato:   true,
		DelayMultiplier: 0,
	}

	d := delayOptions(cfg.SampleRate, cfg.Params)
	if !d.Active() || d.SampleRate != 48000 || d.Multiplier != 0 {
		t.Fatalf("delay options = %+v", d)
	}
	if n, ok := d.MaxNotes.Limit(); !ok || n != 3 {
		t.Fatalf("max notes = %d %v", n, ok)
	}

	a := arpOptions(cfg.SampleRate, cfg.Params)
	if !a.HoldNotes || !a.PatternLegato || a.Pitchbend.Kind != arp.BendDuration || a.Pitchbend.Seconds < 4.99 {
		t.Fatalf("arp options = %+v", a)
	}
}

func TestUnlimitedMaxNotes(t *testing.T) {
	if _, ok := maxNotes(config.Params{}).Limit(); ok {
		t.Fatal("0 should mean unlimited")
	}
}

func TestNewSinkWithoutTargets(t *testing.T) {
	cfg := config.DefaultConfig()
	sink, closeSink, err := newSink(cfg, newLogger(cfg))
	if err != nil {
		t.Fatal(err)
	}
	defer closeSink()
	if sink != nil {
		t.Fatalf("sink = %v", sink)
	}
}

func TestControlsApplyBeforeNextBlock(t *testing.T) {
	nd := notedelay.New(delayOptions(1000, config.Params{DelayOffset: 127}), nil)
	input := make(chan midi.Stamped, 2)
	mgr := host.NewManager(nd, host.Config{SampleRate: 1000, BlockSize: 64, Input: input})

	c := controls(mgr, nd, nil, "127.0.0.1", 1000)
	if c.Apply == nil || c.Save == nil || c.SetPort != nil {
		t.Fatalf("controls = %+v", c)
	}

	now := time.Unix(100, 0)
	start := now.Add(-64 * time.Millisecond)
	input <- midi.Stamped{Data: midi.NewNoteOn(0, 60, 100), At: start.Add(time.Millisecond)}
	input <- midi.Stamped{Data: midi.NewNoteOff(0, 60, 0), At: start.Add(2 * time.Millisecond)}

	// no delay: the release goes out in the same block
	if !c.Apply(config.Params{}) {
		t.Fatal("update refused")
	}
	out := mgr.Step(now)
	if len(out) != 2 || !out[1].Data.IsNoteOff() {
		t.Fatalf("out = %v", out)
	}
}

func TestControlsForSourceMovePeer(t *testing.T) {
	src := arp.NewSource(nil)
	mgr := host.NewManager(src, host.Config{SampleRate: 1000, BlockSize: 64})
	sender := transport.NewSender("127.0.0.1:1", 1, nil)

	c := controls(mgr, src, sender, "127.0.0.1", 1000)
	if c.Apply != nil || c.SetPort == nil {
		t.Fatalf("controls = %+v", c)
	}
}

func TestNewSinkIsAsync(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := config.DefaultConfig()
	cfg.DebugLog = true

	sink, closeSink, err := newSink(cfg, newLogger(cfg))
	if err != nil {
		t.Fatal(err)
	}
	defer closeSink()
	if _, ok := sink.(*debug.Async); !ok {
		t.Fatalf("sink = %T", sink)
	}
}
