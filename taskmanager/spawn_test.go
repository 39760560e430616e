package taskmanager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpawnTypeClassification(t *testing.T) {
	tests := []struct {
		typ      SpawnType
		blocking bool
		shared   bool
		name     string
	}{
		{BlockingDedicated, true, false, "blocking/dedicated"},
		{BlockingShared, true, true, "blocking/shared"},
		{CooperativeDedicated, false, false, "cooperative/dedicated"},
		{CooperativeShared, false, true, "cooperative/shared"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.typ.Valid())
			assert.Equal(t, tt.blocking, tt.typ.Blocking())
			assert.Equal(t, tt.shared, tt.typ.Shared())
			assert.Equal(t, tt.name, tt.typ.String())
		})
	}

	assert.False(t, SpawnType(9).Valid())
	assert.Equal(t, "SpawnType(9)", SpawnType(9).String())
}

func TestErrorMessages(t *testing.T) {
	se := &SchedulingError{Name: "worker", Err: ErrCapacityExhausted}
	assert.Equal(t, "schedule unit worker: taskmanager: capacity exhausted", se.Error())
	assert.True(t, errors.Is(se, ErrSchedulingFailure))
	assert.False(t, errors.Is(se, ErrUnitFailure))

	ue := &UnitError{TaskID: "id-1", Err: errors.New("bad")}
	assert.Equal(t, "unit id-1: bad", ue.Error())
	assert.True(t, errors.Is(ue, ErrUnitFailure))
}

type wrappedLoop struct {
	Manager
	single bool
}

func (w wrappedLoop) SingleLoop() bool { return w.single }

func TestDedicatedTypeFollowsManager(t *testing.T) {
	threaded, err := NewThreaded(ThreadedConfig{})
	assert.NoError(t, err)
	coop, err := NewCooperative(CooperativeConfig{})
	assert.NoError(t, err)
	defer coop.Shutdown(context.Background())

	assert.Equal(t, BlockingDedicated, DedicatedType(threaded))
	assert.Equal(t, CooperativeDedicated, DedicatedType(coop))
	assert.Equal(t, CooperativeDedicated, DedicatedType(wrappedLoop{Manager: threaded, single: true}))
	assert.Equal(t, BlockingDedicated, DedicatedType(wrappedLoop{Manager: coop, single: false}))
}

func TestUsable(t *testing.T) {
	threaded, err := NewThreaded(ThreadedConfig{})
	assert.NoError(t, err)

	assert.True(t, Usable(threaded))
	assert.True(t, Usable(wrappedLoop{Manager: threaded}))
	assert.False(t, Usable(nil))
	assert.False(t, Usable((*Threaded)(nil)))
	assert.False(t, Usable((*Cooperative)(nil)))
}
