package controller

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wro-sim/simlink/internal/vehicle"
)

func TestTargets_LastWriterWins(t *testing.T) {
	var tg Targets

	v1, v2 := tg.Load()
	assert.Equal(t, float32(0), v1)
	assert.Equal(t, float32(0), v2)

	tg.SetControl(0.1, -0.5)
	tg.SetControl(0.2, 0.75)

	v1, v2 = tg.Load()
	assert.Equal(t, float32(0.2), v1)
	assert.Equal(t, float32(0.75), v2)
	assert.Equal(t, uint64(2), tg.Updates())
}

func TestTargets_PairNeverTears(t *testing.T) {
	var tg Targets
	var wg sync.WaitGroup

	for i := 1; i <= 4; i++ {
		wg.Add(1)
		go func(n float32) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				tg.SetControl(n, -n)
			}
		}(float32(i))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		v1, v2 := tg.Load()
		assert.Equal(t, -v1, v2)
		select {
		case <-done:
			return
		default:
		}
	}
}

func TestTargets_NaNBitsPreserved(t *testing.T) {
	var tg Targets
	nan := math.Float32frombits(0x7fc00001)
	tg.SetControl(nan, 1)

	v1, _ := tg.Load()
	assert.Equal(t, uint32(0x7fc00001), math.Float32bits(v1))
}

func TestRemote_AppliesTargets(t *testing.T) {
	var tg Targets
	v := vehicle.New(vehicle.DefaultParams(), vehicle.State{})
	r := NewRemote(&tg)

	tg.SetControl(0.2, -0.5)
	r.Update(v, 1.0/60)

	s := v.State()
	assert.InDelta(t, 0.2, s.SpeedTarget, 1e-6)
	assert.Equal(t, -0.5, s.SteeringTarget)
}

func TestRemote_NaNKeepsPreviousTarget(t *testing.T) {
	var tg Targets
	v := vehicle.New(vehicle.DefaultParams(), vehicle.State{})
	r := NewRemote(&tg)

	tg.SetControl(0.25, 0.5)
	r.Update(v, 0)
	tg.SetControl(float32(math.NaN()), 0.25)
	r.Update(v, 0)

	s := v.State()
	assert.Equal(t, 0.25, s.SpeedTarget)
	assert.Equal(t, 0.25, s.SteeringTarget)
}

func TestManual_KeysToTargets(t *testing.T) {
	keys := NewKeyState()
	m := NewManual(keys)
	v := vehicle.New(vehicle.DefaultParams(), vehicle.State{})

	keys.Press(ActionAccelerate)
	keys.Press(ActionRight)
	m.Update(v, 0)
	assert.Equal(t, 0.333, v.State().SpeedTarget)
	assert.Equal(t, 1.0, v.State().SteeringTarget)

	keys.Release(ActionAccelerate)
	keys.Release(ActionRight)
	keys.Press(ActionBrake)
	keys.Press(ActionLeft)
	m.Update(v, 0)
	assert.Equal(t, -0.333, v.State().SpeedTarget)
	assert.Equal(t, -1.0, v.State().SteeringTarget)

	keys.Release(ActionBrake)
	keys.Release(ActionLeft)
	m.Update(v, 0)
	assert.Equal(t, 0.0, v.State().SpeedTarget)
	assert.Equal(t, 0.0, v.State().SteeringTarget)
}

func TestManual_AccelerationModeUsesFullPower(t *testing.T) {
	p := vehicle.DefaultParams()
	p.Mode = vehicle.ModeAcceleration
	keys := NewKeyState()
	v := vehicle.New(p, vehicle.State{})

	keys.Press(ActionBrake)
	NewManual(keys).Update(v, 0)

	assert.Equal(t, -1.0, v.State().Power)
}
