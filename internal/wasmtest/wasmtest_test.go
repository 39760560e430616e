package wasmtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopEncoding(t *testing.T) {
	want := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
		0x03, 0x02, 0x01, 0x00,
		0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00,
		0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b,
	}
	assert.Equal(t, want, Noop())
}

func TestLEB(t *testing.T) {
	assert.Equal(t, []byte{0xe5, 0x8e, 0x26}, uleb(624485))
	assert.Equal(t, []byte{0x03}, sleb(3))
	assert.Equal(t, []byte{0xc0, 0x00}, sleb(64))
	assert.Equal(t, []byte{0x7f}, sleb(-1))
}
