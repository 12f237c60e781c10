package midi

import (
	"testing"
	"time"

	"github.com/Southclaws/fault/ftag"
	gomidi "gitlab.com/gomidi/midi/v2"
)

func TestInputReceive(t *testing.T) {
	in := &Input{events: make(chan Stamped, 1)}
	at := time.Unix(5, 0)

	in.receive(gomidi.NoteOn(0, 60, 100), at)
	in.receive(gomidi.Message{0xF8}, at) // clock
	in.receive(gomidi.NoteOff(0, 60), at)

	got := <-in.Events()
	if !got.Data.IsNoteOn() || !got.At.Equal(at) {
		t.Fatalf("got %+v", got)
	}
	if in.Dropped() != 1 {
		t.Fatalf("dropped = %d", in.Dropped())
	}
}

func TestInputReceiveAfterClose(t *testing.T) {
	in := &Input{events: make(chan Stamped, 1)}
	if err := in.Close(); err != nil {
		t.Fatal(err)
	}
	in.Close()

	in.receive(gomidi.NoteOn(0, 60, 100), time.Now())
	select {
	case ev := <-in.Events():
		t.Fatalf("event after close: %v", ev)
	default:
	}
}

func TestPortNotFound(t *testing.T) {
	pm := NewPortManager()
	if _, err := pm.In("nowhere"); ftag.Get(err) != ftag.NotFound {
		t.Fatalf("In: %v", err)
	}
	if _, err := pm.Sender("nowhere"); ftag.Get(err) != ftag.NotFound {
		t.Fatalf("Sender: %v", err)
	}
}
