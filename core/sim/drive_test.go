package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/vehrelay/core/model"
)

func TestDriveDeterministic(t *testing.T) {
	a := NewDrive(42, model.Sample(), 5*time.Second)
	b := NewDrive(42, model.Sample(), 5*time.Second)
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestDriveStaysInRange(t *testing.T) {
	d := NewDrive(7, model.Sample(), 10*time.Second)
	for i := 0; i < 500; i++ {
		p := d.Next()
		require.NoError(t, p.Validate(), "tick %d", i)
		assert.LessOrEqual(t, p.Speed, maxSpeed)
		if p.Speed == 0 {
			assert.Equal(t, model.GearPark, p.Gear)
		} else {
			assert.Equal(t, model.GearDrive, p.Gear)
		}
		if p.CruiseControl {
			assert.GreaterOrEqual(t, p.Speed, cruiseMinSpeed-10)
		}
	}
	assert.Less(t, d.Current().Battery, model.Sample().Battery)
}

func TestDriveEngagesCruiseControl(t *testing.T) {
	start := model.Sample()
	start.Speed = 100
	start.Gear = model.GearDrive
	d := NewDrive(1, start, time.Second)
	engaged := false
	for i := 0; i < 2000 && !engaged; i++ {
		engaged = d.Next().CruiseControl
	}
	assert.True(t, engaged)
}
