// Package wasmtest assembles tiny WASI modules for tests.
package wasmtest

import (
	"encoding/binary"
)

const (
	secType     = 1
	secImport   = 2
	secFunction = 3
	secMemory   = 5
	secExport   = 7
	secCode     = 10
	secData     = 11

	i32 = 0x7f

	wasiModule = "wasi_snapshot_preview1"
)

var header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func uleb(n uint32) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

// sleb encodes small non-negative i32 constants.
func sleb(n int32) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if (n == 0 && b&0x40 == 0) || (n == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func vec(items ...[]byte) []byte {
	return cat(uleb(uint32(len(items))), cat(items...))
}

func name(s string) []byte {
	return cat(uleb(uint32(len(s))), []byte(s))
}

func section(id byte, payload []byte) []byte {
	return cat([]byte{id}, uleb(uint32(len(payload))), payload)
}

func funcType(params, results []byte) []byte {
	return cat([]byte{0x60}, vec(bytesOf(params)...), vec(bytesOf(results)...))
}

func bytesOf(b []byte) [][]byte {
	out := make([][]byte, len(b))
	for i := range b {
		out[i] = []byte{b[i]}
	}
	return out
}

func body(instrs ...[]byte) []byte {
	code := cat([]byte{0x00}, cat(instrs...), []byte{0x0b})
	return cat(uleb(uint32(len(code))), code)
}

func i32Const(n int32) []byte { return cat([]byte{0x41}, sleb(n)) }
func call(idx uint32) []byte  { return cat([]byte{0x10}, uleb(idx)) }

func startOnly(instrs ...[]byte) []byte {
	return cat(
		header,
		section(secType, vec(funcType(nil, nil))),
		section(secFunction, vec(uleb(0))),
		section(secExport, vec(cat(name("_start"), []byte{0x00}, uleb(0)))),
		section(secCode, vec(body(instrs...))),
	)
}

// Noop is a command module whose _start returns immediately.
func Noop() []byte {
	return startOnly()
}

// Trap is a command module whose _start executes unreachable.
func Trap() []byte {
	return startOnly([]byte{0x00})
}

// Spin is a command module whose _start never returns.
func Spin() []byte {
	return startOnly([]byte{0x03, 0x40, 0x0c, 0x00, 0x0b})
}

// Exit is a command module that calls proc_exit(code).
func Exit(code int32) []byte {
	return cat(
		header,
		section(secType, vec(funcType([]byte{i32}, nil), funcType(nil, nil))),
		section(secImport, vec(cat(name(wasiModule), name("proc_exit"), []byte{0x00}, uleb(0)))),
		section(secFunction, vec(uleb(1))),
		section(secExport, vec(cat(name("_start"), []byte{0x00}, uleb(1)))),
		section(secCode, vec(body(i32Const(code), call(0)))),
	)
}

// Write is a command module that writes msg to fd with fd_write and returns.
func Write(fd int32, msg string) []byte {
	const (
		iovOffset  = 0
		bufOffset  = 16
		nwrittenAt = 8
	)

	data := make([]byte, bufOffset+len(msg))
	binary.LittleEndian.PutUint32(data[iovOffset:], bufOffset)
	binary.LittleEndian.PutUint32(data[iovOffset+4:], uint32(len(msg)))
	copy(data[bufOffset:], msg)

	pages := uint32(len(data)/65536 + 1)

	return cat(
		header,
		section(secType, vec(
			funcType([]byte{i32, i32, i32, i32}, []byte{i32}),
			funcType(nil, nil),
		)),
		section(secImport, vec(cat(name(wasiModule), name("fd_write"), []byte{0x00}, uleb(0)))),
		section(secFunction, vec(uleb(1))),
		section(secMemory, vec(cat([]byte{0x00}, uleb(pages)))),
		section(secExport, vec(
			cat(name("_start"), []byte{0x00}, uleb(1)),
			cat(name("memory"), []byte{0x02}, uleb(0)),
		)),
		section(secCode, vec(body(
			i32Const(fd),
			i32Const(iovOffset),
			i32Const(1),
			i32Const(nwrittenAt),
			call(0),
			[]byte{0x1a},
		))),
		section(secData, vec(cat(
			[]byte{0x00},
			i32Const(0), []byte{0x0b},
			name(string(data)),
		))),
	)
}
