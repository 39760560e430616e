package tty

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStates = func() []State {
	var out []State
	for i := 0; i < 8; i++ {
		out = append(out, State{Echo: i&1 != 0, LineBuffered: i&2 != 0, LineFeeds: i&4 != 0})
	}
	return out
}()

func TestDefaultInitialState(t *testing.T) {
	assert.Equal(t, DefaultState, NewDefault().Get())
}

func TestDefaultResetClearsEverything(t *testing.T) {
	for _, s := range allStates {
		d := NewDefault()
		d.Set(s)
		d.Reset()
		assert.Equal(t, State{}, d.Get())
		d.Reset()
		assert.Equal(t, State{}, d.Get(), "reset must be idempotent")
	}
}

func TestDefaultSetGetRoundTrip(t *testing.T) {
	d := NewDefault()
	for _, s := range allStates {
		d.Set(s)
		assert.Equal(t, s, d.Get())
	}
}

func TestDefaultConcurrentSetGetNeverTears(t *testing.T) {
	d := NewDefault()
	a := State{Echo: true, LineBuffered: false, LineFeeds: true}
	b := State{Echo: false, LineBuffered: true, LineFeeds: false}
	d.Set(a)

	const iterations = 20000
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			d.Set(a)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			d.Set(b)
		}
	}()

	torn := make(chan State, 1)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			if got := d.Get(); got != a && got != b {
				select {
				case torn <- got:
				default:
				}
				return
			}
		}
	}()

	wg.Wait()
	select {
	case got := <-torn:
		t.Fatalf("observed mixed state %+v", got)
	default:
	}
}

func TestDefaultImplementsBridge(t *testing.T) {
	var _ Bridge = NewDefault()
	var _ Bridge = (*Sys)(nil)
}
