// Package tty provides the terminal bridge a guest uses to query and change
// the echo and line-discipline settings of its pseudo-console.
//
// A Bridge is shared by every session spawned from a runtime, so
// implementations serialize access internally. State is always read and
// written whole: callers wanting a partial update read, modify and write
// back, and own the race that implies.
package tty

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

// State is the terminal mode visible to a guest.
type State struct {
	Echo         bool `json:"echo"`
	LineBuffered bool `json:"line_buffered"`
	LineFeeds    bool `json:"line_feeds"`
}

// Bridge gives a guest access to its terminal mode.
type Bridge interface {
	// Reset clears every flag.
	Reset()
	// Get returns a consistent snapshot of the state.
	Get() State
	// Set replaces the whole state.
	Set(State)
}

// DefaultState is the state a Default bridge starts with.
var DefaultState = State{LineFeeds: true}

// Default is an in-memory Bridge with no backing device.
type Default struct {
	mu    sync.Mutex
	state State
}

// NewDefault returns a Default bridge initialised to DefaultState.
func NewDefault() *Default {
	return &Default{state: DefaultState}
}

func (d *Default) Reset() {
	d.mu.Lock()
	d.state = State{}
	d.mu.Unlock()
}

func (d *Default) Get() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Default) Set(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// SysOption configures a Sys bridge.
type SysOption func(*sysConfig)

type sysConfig struct {
	logger *log.Logger
}

// WithLogger sets the logger used to report device errors.
func WithLogger(l *log.Logger) SysOption {
	return func(c *sysConfig) {
		c.logger = l
	}
}

func defaultSysConfig() sysConfig {
	return sysConfig{
		logger: log.NewWithOptions(os.Stderr, log.Options{Prefix: "tty", Level: log.WarnLevel}),
	}
}
