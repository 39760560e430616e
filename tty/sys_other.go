//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package tty

import (
	"os"

	"github.com/caffeineduck/wasirt/capability"
)

// Sys is unavailable on this platform.
type Sys struct{ Default }

// NewSys always fails on this platform.
func NewSys(f *os.File, opts ...SysOption) (*Sys, error) {
	return nil, capability.Unavailable(capability.TTY, "open")
}

// PseudoConsole is unavailable on this platform.
type PseudoConsole struct{ *Sys }

// OpenPseudoConsole always fails on this platform.
func OpenPseudoConsole(opts ...SysOption) (*PseudoConsole, error) {
	return nil, capability.Unavailable(capability.TTY, "open pty")
}

func (p *PseudoConsole) Master() *os.File   { return nil }
func (p *PseudoConsole) Terminal() *os.File { return nil }
func (p *PseudoConsole) Close() error       { return nil }
