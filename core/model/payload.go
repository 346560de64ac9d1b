package model

import (
	"errors"
	"fmt"
)

// Unknown is the neutral value of string enums absent from a payload.
const Unknown = "unknown"

// Gear is the transmission position reported by the vehicle.
type Gear string

const (
	GearPark    Gear = "P"
	GearReverse Gear = "R"
	GearNeutral Gear = "N"
	GearDrive   Gear = "D"
	GearUnknown Gear = Unknown
)

// Valid reports whether g is one of the known gear positions.
func (g Gear) Valid() bool {
	switch g {
	case GearPark, GearReverse, GearNeutral, GearDrive:
		return true
	}
	return false
}

// EconomyMode is the driving mode selected on the vehicle.
type EconomyMode string

const (
	EconomyNormal  EconomyMode = "Normal"
	EconomyEco     EconomyMode = "Eco"
	EconomySport   EconomyMode = "Sport"
	EconomyUnknown EconomyMode = Unknown
)

// SpeedUnit is the unit used for Speed and Range.
type SpeedUnit string

const (
	SpeedKMH     SpeedUnit = "km/h"
	SpeedMPH     SpeedUnit = "mph"
	SpeedUnknown SpeedUnit = Unknown
)

// TemperatureUnit is the unit used for the temperature fields.
type TemperatureUnit int

const (
	Celsius TemperatureUnit = iota
	Fahrenheit
)

func (u TemperatureUnit) String() string {
	switch u {
	case Celsius:
		return "celsius"
	case Fahrenheit:
		return "fahrenheit"
	default:
		return fmt.Sprintf("TemperatureUnit(%d)", int(u))
	}
}

// VehicleType identifies the kind of vehicle emitting the snapshot.
type VehicleType int

const (
	Car VehicleType = iota
	Truck
	Motorcycle
	Bus
)

func (v VehicleType) String() string {
	switch v {
	case Car:
		return "car"
	case Truck:
		return "truck"
	case Motorcycle:
		return "motorcycle"
	case Bus:
		return "bus"
	default:
		return fmt.Sprintf("VehicleType(%d)", int(v))
	}
}

// Payload is a snapshot of the vehicle parameters exchanged on the vehicle
// parameters topic. Field names on the wire match the ones emitted by the
// existing vehicle publishers, including the space in "Engine Temperature".
type Payload struct {
	AmbientTemperature float64         `json:"AmbientTemperature" yaml:"AmbientTemperature"`
	Battery            float64         `json:"Battery" yaml:"Battery"` // percent, 0-100
	CruiseControl      bool            `json:"CruiseControl" yaml:"CruiseControl"`
	Economy            EconomyMode     `json:"Economy" yaml:"Economy"`
	EngineTemperature  float64         `json:"Engine Temperature" yaml:"Engine Temperature"`
	Gear               Gear            `json:"Gear" yaml:"Gear"`
	RPM                float64         `json:"RPM" yaml:"RPM"`
	Range              float64         `json:"Range" yaml:"Range"`
	ShareLocation      bool            `json:"ShareLocation" yaml:"ShareLocation"`
	Speed              float64         `json:"Speed" yaml:"Speed"`
	SpeedUnit          SpeedUnit       `json:"SpeedUnit" yaml:"SpeedUnit"`
	TemperatureUnit    TemperatureUnit `json:"TemperatureUnit" yaml:"TemperatureUnit"`
	TypeOfVehicle      VehicleType     `json:"TypeOfVehicle" yaml:"TypeOfVehicle"`
}

// Defaults returns the payload used as the base when decoding: numbers are
// zero, booleans false and string enums "unknown".
func Defaults() Payload {
	return Payload{
		Economy:   EconomyUnknown,
		Gear:      GearUnknown,
		SpeedUnit: SpeedUnknown,
	}
}

// Sample returns the parked-vehicle snapshot published when no payload file
// is provided.
func Sample() Payload {
	return Payload{
		AmbientTemperature: 22,
		Battery:            80,
		CruiseControl:      false,
		Economy:            EconomyNormal,
		EngineTemperature:  90,
		Gear:               GearPark,
		RPM:                0,
		Range:              320,
		ShareLocation:      false,
		Speed:              0,
		SpeedUnit:          SpeedKMH,
		TemperatureUnit:    Celsius,
		TypeOfVehicle:      Car,
	}
}

// Validate checks the value ranges a publisher must respect.
func (p Payload) Validate() error {
	var errs []error
	if p.Battery < 0 || p.Battery > 100 {
		errs = append(errs, fmt.Errorf("Battery must be within 0-100, got %v", p.Battery))
	}
	if p.Speed < 0 {
		errs = append(errs, fmt.Errorf("Speed must be >= 0, got %v", p.Speed))
	}
	if p.RPM < 0 {
		errs = append(errs, fmt.Errorf("RPM must be >= 0, got %v", p.RPM))
	}
	if p.Range < 0 {
		errs = append(errs, fmt.Errorf("Range must be >= 0, got %v", p.Range))
	}
	return errors.Join(errs...)
}
