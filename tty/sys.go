//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package tty

import (
	"fmt"
	"os"
	"sync"

	"github.com/caffeineduck/wasirt/capability"
	"github.com/charmbracelet/log"
	"github.com/creack/pty"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Sys is a Bridge backed by the termios settings of a real terminal device.
//
// Echo maps to ECHO, LineBuffered to ICANON and LineFeeds to OPOST|ONLCR.
type Sys struct {
	mu     sync.Mutex
	fd     int
	state  State
	logger *log.Logger
}

// NewSys wraps the terminal f and resets it. It fails with a
// capability-unavailable error when f is not a terminal.
func NewSys(f *os.File, opts ...SysOption) (*Sys, error) {
	cfg := defaultSysConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%s is not a terminal: %w", f.Name(), capability.Unavailable(capability.TTY, "open"))
	}

	s := &Sys{fd: fd, logger: cfg.logger}
	s.Reset()
	return s, nil
}

func (s *Sys) Reset() {
	s.Set(State{})
}

// Get reads the device state. If the device cannot be read the last state
// written through this bridge is returned.
func (s *Sys) Get() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := unix.IoctlGetTermios(s.fd, ioctlGetTermios)
	if err != nil {
		s.logger.Warn("read termios", "fd", s.fd, "err", err)
		return s.state
	}
	s.state = State{
		Echo:         t.Lflag&unix.ECHO != 0,
		LineBuffered: t.Lflag&unix.ICANON != 0,
		LineFeeds:    t.Oflag&unix.OPOST != 0 && t.Oflag&unix.ONLCR != 0,
	}
	return s.state
}

func (s *Sys) Set(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = st

	t, err := unix.IoctlGetTermios(s.fd, ioctlGetTermios)
	if err != nil {
		s.logger.Warn("read termios", "fd", s.fd, "err", err)
		return
	}

	if st.Echo {
		t.Lflag |= unix.ECHO
	} else {
		t.Lflag &^= unix.ECHO
	}
	if st.LineBuffered {
		t.Lflag |= unix.ICANON
	} else {
		t.Lflag &^= unix.ICANON
	}
	if st.LineFeeds {
		t.Oflag |= unix.OPOST | unix.ONLCR
	} else {
		t.Oflag &^= unix.ONLCR
	}

	if err := unix.IoctlSetTermios(s.fd, ioctlSetTermios, t); err != nil {
		s.logger.Warn("write termios", "fd", s.fd, "err", err)
	}
}

// PseudoConsole is a freshly allocated pty pair whose terminal side is
// exposed to the guest through a Sys bridge.
type PseudoConsole struct {
	*Sys
	master   *os.File
	terminal *os.File
}

// OpenPseudoConsole allocates a pty pair for a guest.
func OpenPseudoConsole(opts ...SysOption) (*PseudoConsole, error) {
	master, terminal, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("open pty: %w", err)
	}

	s, err := NewSys(terminal, opts...)
	if err != nil {
		master.Close()
		terminal.Close()
		return nil, err
	}

	return &PseudoConsole{Sys: s, master: master, terminal: terminal}, nil
}

// Master returns the controlling side of the pty, used by the host to
// feed input and collect output.
func (p *PseudoConsole) Master() *os.File { return p.master }

// Terminal returns the side handed to the guest as its console.
func (p *PseudoConsole) Terminal() *os.File { return p.terminal }

// Close releases both ends of the pty.
func (p *PseudoConsole) Close() error {
	err := p.terminal.Close()
	if merr := p.master.Close(); err == nil {
		err = merr
	}
	return err
}
