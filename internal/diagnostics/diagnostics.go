// Package diagnostics carries the non-fatal conditions the engine reports
// while resolving methods: warnings the caller may surface but that never
// abort a lookup.
package diagnostics

import (
	"fmt"
	"log"
	"sync"
)

// Code identifies a diagnostic kind
type Code struct {
	Code        string
	Name        string
	Description string
}

var (
	W001 = Code{"W001", "unresolved-parent", "declared parent class does not exist"}
	W002 = Code{"W002", "ambiguous-ancestor", "method defined by more than one ancestor"}
	W003 = Code{"W003", "autoload-fallback", "method resolved through AUTOLOAD"}
)

type Severity int

const (
	SeverityWarning Severity = iota
	SeverityDebug
)

type Diagnostic struct {
	Code     Code
	Severity Severity
	Class    string
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s [%s] %s", d.Code.Code, d.Code.Name, d.Message)
}

// UnresolvedParent builds the W001 warning for a missing parent.
func UnresolvedParent(parent, class string) Diagnostic {
	return Diagnostic{
		Code:     W001,
		Severity: SeverityWarning,
		Class:    class,
		Message:  fmt.Sprintf("Can't locate package %s for @%s::ISA", parent, class),
	}
}

// AmbiguousAncestor builds the W002 debug note.
func AmbiguousAncestor(class, method, chosen, shadowed string) Diagnostic {
	return Diagnostic{
		Code:     W002,
		Severity: SeverityDebug,
		Class:    class,
		Message:  fmt.Sprintf("%s::%s resolved to %s, shadowing %s", class, method, chosen, shadowed),
	}
}

func AutoloadFallback(class, method, origin string) Diagnostic {
	return Diagnostic{
		Code:     W003,
		Severity: SeverityDebug,
		Class:    class,
		Message:  fmt.Sprintf("%s resolved through %s::AUTOLOAD", method, origin),
	}
}

// Sink receives diagnostics.
type Sink interface {
	Report(d Diagnostic)
}

// Discard drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Report(Diagnostic) {}

// LogSink writes warnings to a logger; debug diagnostics only when Verbose.
type LogSink struct {
	Logger  *log.Logger
	Verbose bool
}

func NewLogSink(l *log.Logger) *LogSink {
	return &LogSink{Logger: l}
}

func (s *LogSink) Report(d Diagnostic) {
	if d.Severity == SeverityDebug && !s.Verbose {
		return
	}
	if s.Logger == nil {
		log.Print(d.String())
		return
	}
	s.Logger.Print(d.String())
}

// Collector keeps diagnostics in memory.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic
}

func (c *Collector) Report(d Diagnostic) {
	c.mu.Lock()
	c.items = append(c.items, d)
	c.mu.Unlock()
}

// Diagnostics returns a copy of everything reported so far.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	return out
}

// Count returns how many diagnostics with code were reported.
func (c *Collector) Count(code Code) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, d := range c.items {
		if d.Code.Code == code.Code {
			n++
		}
	}
	return n
}

func (c *Collector) Reset() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

// Multi fans a diagnostic out to several sinks.
type Multi []Sink

func (m Multi) Report(d Diagnostic) {
	for _, s := range m {
		s.Report(d)
	}
}
