package picobldc

import (
	"math"

	"github.com/tigerbot-team/motionctl/pkg/actuator"
)

// Sink drives the four motors from percentage speeds.  Both units map onto
// the same register range; the controller closes its own speed loop.
type Sink struct {
	pico Interface
	// FullScale is the register value for 100%.
	FullScale float64
}

func NewSink(pico Interface) *Sink {
	return &Sink{pico: pico, FullScale: math.MaxInt16}
}

var _ actuator.Sink = (*Sink)(nil)

func (s *Sink) SetGroups(left, right float64, unit actuator.Unit) error {
	return s.SetCorners(actuator.Corners{
		FrontLeft:  left,
		BackLeft:   left,
		FrontRight: right,
		BackRight:  right,
	}, unit)
}

func (s *Sink) SetCorners(c actuator.Corners, _ actuator.Unit) error {
	var speeds PerMotorVal[int16]
	speeds[FrontLeft] = scaleMotorOutput(c.FrontLeft, s.FullScale/100)
	speeds[BackLeft] = scaleMotorOutput(c.BackLeft, s.FullScale/100)
	// Right-hand motors are mirrored.
	speeds[FrontRight] = scaleMotorOutput(-c.FrontRight, s.FullScale/100)
	speeds[BackRight] = scaleMotorOutput(-c.BackRight, s.FullScale/100)
	return s.pico.SetMotorSpeeds(speeds)
}

func scaleMotorOutput(value, multiplier float64) int16 {
	multiplied := value * multiplier
	if multiplied <= math.MinInt16 {
		return math.MinInt16
	}
	if multiplied >= math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(multiplied)
}
