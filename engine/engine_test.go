package engine

import (
	"bytes"
	"context"
	"testing"

	"github.com/caffeineduck/wasirt/internal/wasmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
)

func TestStoreLifecycleTracksLiveStores(t *testing.T) {
	ctx := context.Background()
	e, err := New()
	require.NoError(t, err)
	defer e.Close(ctx)

	a := e.NewStore(ctx)
	b := e.NewStore(ctx)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, int64(2), e.LiveStores())

	require.NoError(t, a.Close(ctx))
	require.NoError(t, a.Close(ctx), "close must be idempotent")
	assert.Equal(t, int64(1), e.LiveStores())

	require.NoError(t, b.Close(ctx))
	assert.Zero(t, e.LiveStores())
}

func TestStoreCompileCachesByName(t *testing.T) {
	ctx := context.Background()
	s := Default().NewStore(ctx)
	defer s.Close(ctx)

	first, err := s.Compile(ctx, "noop", wasmtest.Noop())
	require.NoError(t, err)
	second, err := s.Compile(ctx, "noop", wasmtest.Noop())
	require.NoError(t, err)
	assert.Same(t, first, second)

	byDigest, err := s.Compile(ctx, "", wasmtest.Noop())
	require.NoError(t, err)
	again, err := s.Compile(ctx, "", wasmtest.Noop())
	require.NoError(t, err)
	assert.Same(t, byDigest, again)
}

func TestStoreCompileRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	s := Default().NewStore(ctx)
	defer s.Close(ctx)

	_, err := s.Compile(ctx, "bad", []byte("not wasm"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile bad")
}

func TestStoreInstantiateRunsStart(t *testing.T) {
	ctx := context.Background()
	s := Default().NewStore(ctx)
	defer s.Close(ctx)

	compiled, err := s.Compile(ctx, "hello", wasmtest.Write(1, "hello\n"))
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = s.Instantiate(ctx, compiled, wazero.NewModuleConfig().WithStdout(&out).WithName(""))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out.String())
}

func TestClosedStoreRefusesWork(t *testing.T) {
	ctx := context.Background()
	s := Default().NewStore(ctx)
	compiled, err := s.Compile(ctx, "noop", wasmtest.Noop())
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	_, err = s.Compile(ctx, "noop", wasmtest.Noop())
	assert.ErrorIs(t, err, ErrStoreClosed)

	_, err = s.Instantiate(ctx, compiled, wazero.NewModuleConfig())
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestStoresAreIsolated(t *testing.T) {
	ctx := context.Background()
	a := Default().NewStore(ctx)
	defer a.Close(ctx)
	b := Default().NewStore(ctx)
	defer b.Close(ctx)

	compiled, err := a.Compile(ctx, "noop", wasmtest.Noop())
	require.NoError(t, err)
	_, err = a.Instantiate(ctx, compiled, wazero.NewModuleConfig().WithName("guest"))
	require.NoError(t, err)

	assert.NotNil(t, a.Runtime().Module("guest"))
	assert.Nil(t, b.Runtime().Module("guest"))
}

func TestMemoryLimitValidation(t *testing.T) {
	_, err := New(WithMemoryLimit(MaxMemoryPages + 1))
	require.Error(t, err)

	e, err := New(WithMemoryLimit(MemoryLimit16MB), WithDiskCache(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, e.Close(context.Background()))
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}
