// Package sim produces plausible sequences of vehicle snapshots for the
// scheduled publisher.
package sim

import (
	"math"
	"math/rand"
	"time"

	"github.com/kilianp07/vehrelay/core/model"
)

const (
	maxSpeed       = 130.0 // km/h
	accelPerSecond = 3.0   // km/h gained or lost per second
	drainPerKm     = 0.15  // battery percent per km
	kmPerPercent   = 4.0   // range per battery percent
	cruiseMinSpeed = 60.0
	steadyDelta    = 2.0
)

// Drive evolves a payload between ticks: speed follows a random target,
// gear and RPM follow speed, battery and range drain with distance and
// cruise control engages when the speed is steady on the road.
type Drive struct {
	rng    *rand.Rand
	state  model.Payload
	tick   time.Duration
	target float64
	steady int
}

// NewDrive starts from the given payload. The same seed yields the same
// sequence.
func NewDrive(seed int64, start model.Payload, tick time.Duration) *Drive {
	if tick <= 0 {
		tick = time.Second
	}
	if !start.Gear.Valid() {
		start.Gear = model.GearPark
	}
	return &Drive{rng: rand.New(rand.NewSource(seed)), state: start, tick: tick, target: start.Speed}
}

// Current returns the last produced payload.
func (d *Drive) Current() model.Payload { return d.state }

// Next advances the simulation by one tick and returns the new snapshot.
func (d *Drive) Next() model.Payload {
	p := d.state
	dt := d.tick.Seconds()

	if d.rng.Float64() < 0.1 {
		d.target = math.Round(d.rng.Float64() * maxSpeed)
	}
	prev := p.Speed
	step := accelPerSecond * dt
	switch {
	case p.Speed < d.target:
		p.Speed = math.Min(p.Speed+step, d.target)
	case p.Speed > d.target:
		p.Speed = math.Max(p.Speed-step, d.target)
	}
	if p.Battery <= 0 {
		p.Speed = math.Max(p.Speed-step, 0)
	}

	if p.Speed < 1 {
		p.Speed = 0
		p.Gear = model.GearPark
		p.RPM = 0
	} else {
		p.Gear = model.GearDrive
		p.RPM = math.Round(800 + p.Speed*30)
	}

	km := p.Speed * d.tick.Hours()
	p.Battery = math.Max(0, p.Battery-km*drainPerKm)
	p.Range = math.Round(p.Battery * kmPerPercent)
	p.EngineTemperature = math.Min(110, math.Max(p.AmbientTemperature, p.EngineTemperature+(p.RPM/3000-0.5)*dt))

	if math.Abs(p.Speed-prev) < steadyDelta && p.Speed >= cruiseMinSpeed {
		d.steady++
	} else {
		d.steady = 0
	}
	switch {
	case d.steady >= 2:
		p.CruiseControl = true
	case p.Speed < cruiseMinSpeed-10 || prev-p.Speed >= steadyDelta:
		p.CruiseControl = false
	}

	d.state = p
	return p
}
