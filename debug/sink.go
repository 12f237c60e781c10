package debug

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Sink receives diagnostic lines. Implementations must not block for long:
// real-time code emits through it.
type Sink interface {
	Emit(line string)
}

// Logf formats a category-tagged line and emits it. A nil sink is a no-op.
// An Async sink formats on its own goroutine.
func Logf(s Sink, category, format string, args ...any) {
	switch s := s.(type) {
	case nil:
	case *Async:
		s.enqueue(record{category: category, format: format, args: args})
	default:
		s.Emit(formatLine(category, format, args))
	}
}

func formatLine(category, format string, args []any) string {
	return fmt.Sprintf("%-10s %s", category, fmt.Sprintf(format, args...))
}

type record struct {
	line     string
	category string
	format   string
	args     []any
}

func (r record) String() string {
	if r.format == "" {
		return r.line
	}
	return formatLine(r.category, r.format, r.args)
}

// Async hands lines to a worker goroutine through a bounded buffer. Emit
// never blocks: lines that do not fit are counted and dropped.
type Async struct {
	next    Sink
	records chan record
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// NewAsync starts a worker writing to next.
func NewAsync(next Sink, buffer int) *Async {
	a := &Async{
		next:    next,
		records: make(chan record, buffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Emit(line string) {
	a.enqueue(record{line: line})
}

func (a *Async) enqueue(r record) {
	select {
	case <-a.quit:
		a.dropped.Add(1)
		return
	default:
	}
	select {
	case a.records <- r:
	default:
		a.dropped.Add(1)
	}
}

// Dropped is the number of lines lost to a full buffer.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

func (a *Async) run() {
	defer close(a.done)
	for {
		select {
		case r := <-a.records:
			a.next.Emit(r.String())
		case <-a.quit:
			for {
				select {
				case r := <-a.records:
					a.next.Emit(r.String())
				default:
					return
				}
			}
		}
	}
}

// Close writes what is buffered and stops the worker. Later lines are
// dropped.
func (a *Async) Close() error {
	a.once.Do(func() { close(a.quit) })
	<-a.done
	return nil
}

// Discard drops every line.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(string) {}

// FileSink writes timestamped lines to a file, flushing after each one so the
// log survives a crash.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// OpenFileSink truncates and opens path, creating its directory.
func OpenFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	s := &FileSink{file: f}
	Logf(s, "debug", "=== Debug logging started ===")
	return s, nil
}

func (s *FileSink) Emit(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return
	}
	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintf(s.file, "[%s] %s\n", ts, line)
	s.file.Sync()
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// LoggerSink forwards lines to a logger at debug level.
type LoggerSink struct {
	Logger *log.Logger
}

func (s LoggerSink) Emit(line string) {
	s.Logger.Debug(line)
}

// UDPSink sends one datagram per line to a diagnostic listener. Write errors
// are ignored.
type UDPSink struct {
	conn net.Conn
}

func DialUDPSink(addr string) (*UDPSink, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}
	return &UDPSink{conn: conn}, nil
}

func (s *UDPSink) Emit(line string) {
	s.conn.Write([]byte(line))
}

func (s *UDPSink) Close() error {
	return s.conn.Close()
}

// Multi fans a line out to several sinks.
type Multi []Sink

func (m Multi) Emit(line string) {
	for _, s := range m {
		if s != nil {
			s.Emit(line)
		}
	}
}
