//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package tty

import (
	"os"
	"testing"

	"github.com/caffeineduck/wasirt/capability"
	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func openPTY(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	master, terminal, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	t.Cleanup(func() {
		terminal.Close()
		master.Close()
	})
	return master, terminal
}

func TestSysResetsOnConstruction(t *testing.T) {
	_, terminal := openPTY(t)

	s, err := NewSys(terminal)
	require.NoError(t, err)
	assert.Equal(t, State{}, s.Get())
}

func TestSysRoundTripReachesDevice(t *testing.T) {
	_, terminal := openPTY(t)

	s, err := NewSys(terminal)
	require.NoError(t, err)

	for _, st := range allStates {
		s.Set(st)
		assert.Equal(t, st, s.Get())
	}

	s.Set(State{Echo: true, LineBuffered: true})
	tio, err := unix.IoctlGetTermios(int(terminal.Fd()), ioctlGetTermios)
	require.NoError(t, err)
	assert.NotZero(t, tio.Lflag&unix.ECHO)
	assert.NotZero(t, tio.Lflag&unix.ICANON)
	assert.Zero(t, tio.Oflag&unix.ONLCR)
}

func TestSysRejectsNonTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "not-a-tty")
	require.NoError(t, err)
	defer f.Close()

	_, err = NewSys(f)
	require.Error(t, err)
	assert.ErrorIs(t, err, capability.ErrUnavailable)
}

func TestPseudoConsole(t *testing.T) {
	pc, err := OpenPseudoConsole()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	defer pc.Close()

	assert.NotNil(t, pc.Master())
	assert.NotNil(t, pc.Terminal())

	pc.Set(State{Echo: true})
	assert.Equal(t, State{Echo: true}, pc.Get())
	pc.Reset()
	assert.Equal(t, State{}, pc.Get())
}
