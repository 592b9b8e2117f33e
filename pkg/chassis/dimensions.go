package chassis

import "math"

// Geometry describes the drive train.  It is only needed when the tick
// constants are derived rather than measured.
type Geometry struct {
	WheelDiameter float64 `yaml:"wheel_diameter"`
	TicksPerRev   float64 `yaml:"ticks_per_rev"`
	// TrackWidth is the distance between the left and right wheels.
	TrackWidth float64 `yaml:"track_width"`
}

func (g Geometry) WheelCircumference() float64 {
	return g.WheelDiameter * math.Pi
}

// DistanceConstant is encoder ticks per unit of travel.
func (g Geometry) DistanceConstant() float64 {
	return g.TicksPerRev / g.WheelCircumference()
}

// DegreeConstant is encoder ticks, as (left - right) / 2, per degree of
// chassis rotation.
func (g Geometry) DegreeConstant() float64 {
	return g.DistanceConstant() * math.Pi * g.TrackWidth / 360
}

// TurningCircle is the distance each wheel covers in one full turn on the
// spot.
func (g Geometry) TurningCircle() float64 {
	return math.Pi * g.TrackWidth
}
