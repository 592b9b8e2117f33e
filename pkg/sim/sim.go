// Package sim is a kinematic model of a differential or X-drive chassis.  It
// accepts drive commands like a real motor controller and reports wheel,
// encoder and IMU readings consistent with the motion it integrates.
package sim

import (
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/motionctl/pkg/actuator"
	"github.com/tigerbot-team/motionctl/pkg/sensors"
)

type Kind int

const (
	Differential Kind = iota
	XDrive
)

const (
	fl = iota
	fr
	bl
	br
)

type Config struct {
	Kind Kind
	// TrackWidth is the distance between left and right wheels.  On an
	// X-drive it is twice the distance from centre to each wheel.
	TrackWidth float64
	// TopSpeed is the wheel surface speed, in units per second, at 100%.
	TopSpeed     float64
	TicksPerUnit float64

	QuadEncoders bool
	IMU          bool
}

func (c Config) Validate() error {
	if c.TrackWidth <= 0 {
		return errors.New("track width must be positive")
	}
	if c.TopSpeed <= 0 {
		return errors.New("top speed must be positive")
	}
	if c.TicksPerUnit <= 0 {
		return errors.New("ticks per unit must be positive")
	}
	if c.Kind == XDrive && c.QuadEncoders {
		return errors.New("quad encoders are only modelled on differential chassis")
	}
	return nil
}

// Robot is the simulated chassis.  All methods are safe for concurrent use.
type Robot struct {
	cfg Config

	lock    sync.Mutex
	pos     r2.Point
	heading float64
	cmd     [4]float64
	// Wheel travel in ticks since start.
	wheel     [4]float64
	imuOffset float64
	commands  int
}

func New(cfg Config) (*Robot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid simulator config")
	}
	return &Robot{cfg: cfg}, nil
}

var _ actuator.Sink = (*Robot)(nil)

func (r *Robot) SetGroups(left, right float64, _ actuator.Unit) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.cmd = [4]float64{fl: left, bl: left, fr: right, br: right}
	r.commands++
	return nil
}

func (r *Robot) SetCorners(c actuator.Corners, _ actuator.Unit) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.cfg.Kind != XDrive {
		return errors.New("corner commands need an X-drive")
	}
	r.cmd = [4]float64{fl: c.FrontLeft, fr: c.FrontRight, bl: c.BackLeft, br: c.BackRight}
	r.commands++
	return nil
}

// Commands counts the drive commands received.
func (r *Robot) Commands() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.commands
}

// Step advances the model by dt using the last command.
func (r *Robot) Step(dt time.Duration) {
	r.lock.Lock()
	defer r.lock.Unlock()

	secs := dt.Seconds()
	var w [4]float64
	for i, c := range r.cmd {
		w[i] = math.Max(-100, math.Min(100, c)) / 100 * r.cfg.TopSpeed
	}

	half := r.cfg.TrackWidth / 2
	// Body twist: v is (right, forward), omega is clockwise.
	var v r2.Point
	var omega float64
	switch r.cfg.Kind {
	case Differential:
		left := (w[fl] + w[bl]) / 2
		right := (w[fr] + w[br]) / 2
		v.Y = (left + right) / 2
		omega = (left - right) / r.cfg.TrackWidth
	case XDrive:
		v.Y = math.Sqrt2 * (w[fl] + w[fr] + w[bl] + w[br]) / 4
		v.X = math.Sqrt2 * (w[fl] - w[fr] - w[bl] + w[br]) / 4
		omega = (w[fl] - w[fr] + w[bl] - w[br]) / 4 / half
	}

	dTheta := omega * secs
	d := v.Mul(secs)
	if dTheta != 0 {
		d = d.Mul(2 * math.Sin(dTheta/2) / dTheta)
	}
	p := r.heading + dTheta/2
	sin, cos := math.Sincos(p)
	r.pos.X += sin*d.Y + cos*d.X
	r.pos.Y += cos*d.Y - sin*d.X
	r.heading += dTheta

	// Wheel travel consistent with the motion actually made.
	spin := omega * half * secs
	fwd, side := v.Y*secs, v.X*secs
	switch r.cfg.Kind {
	case Differential:
		r.wheel[fl] += (fwd + spin) * r.cfg.TicksPerUnit
		r.wheel[bl] += (fwd + spin) * r.cfg.TicksPerUnit
		r.wheel[fr] += (fwd - spin) * r.cfg.TicksPerUnit
		r.wheel[br] += (fwd - spin) * r.cfg.TicksPerUnit
	case XDrive:
		diagA := (fwd + side) / math.Sqrt2
		diagB := (fwd - side) / math.Sqrt2
		r.wheel[fl] += (diagA + spin) * r.cfg.TicksPerUnit
		r.wheel[br] += (diagA - spin) * r.cfg.TicksPerUnit
		r.wheel[fr] += (diagB - spin) * r.cfg.TicksPerUnit
		r.wheel[bl] += (diagB + spin) * r.cfg.TicksPerUnit
	}
}

// Truth returns the real pose: position and clockwise heading in degrees.
func (r *Robot) Truth() (r2.Point, float64) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.pos, r.heading * 180 / math.Pi
}

// Place teleports the robot without disturbing the wheel counts.
func (r *Robot) Place(p r2.Point, headingDeg float64) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.pos = p
	r.heading = headingDeg * math.Pi / 180
}

// Push moves the wheels without moving the robot, like a wheel slipping.
func (r *Robot) Push(ticks float64) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for i := range r.wheel {
		r.wheel[i] += ticks
	}
}

func (r *Robot) wheelPos(i int) float64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.wheel[i]
}

// Hardware returns sensor handles wired to the model.
func (r *Robot) Hardware() sensors.Hardware {
	hw := sensors.Hardware{
		FrontLeft:  &motor{r: r, wheels: []int{fl}},
		FrontRight: &motor{r: r, wheels: []int{fr}},
		BackLeft:   &motor{r: r, wheels: []int{bl}},
		BackRight:  &motor{r: r, wheels: []int{br}},
		Holonomic:  r.cfg.Kind == XDrive,
	}
	hw.LeftMotors = &motor{r: r, wheels: []int{fl, bl}}
	hw.RightMotors = &motor{r: r, wheels: []int{fr, br}}
	if r.cfg.QuadEncoders {
		hw.LeftEncoder = &encoder{motor{r: r, wheels: []int{fl, bl}}}
		hw.RightEncoder = &encoder{motor{r: r, wheels: []int{fr, br}}}
	}
	if r.cfg.IMU {
		hw.IMU = imu{r}
	}
	hw.DegreeConstant = r.cfg.TicksPerUnit * math.Pi * r.cfg.TrackWidth / 360
	return hw
}

// motor reads the average travel of one or more wheels.
type motor struct {
	r      *Robot
	wheels []int

	lock sync.Mutex
	tare float64
}

func (m *motor) raw() float64 {
	var sum float64
	for _, w := range m.wheels {
		sum += m.r.wheelPos(w)
	}
	return sum / float64(len(m.wheels))
}

func (m *motor) Position() float64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.raw() - m.tare
}

func (m *motor) TarePosition() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.tare = m.raw()
}

type encoder struct {
	motor
}

func (e *encoder) Value() float64 {
	return e.Position()
}

func (e *encoder) Reset() {
	e.TarePosition()
}

type imu struct {
	r *Robot
}

func (i imu) Rotation() float64 {
	i.r.lock.Lock()
	defer i.r.lock.Unlock()
	return i.r.heading*180/math.Pi + i.r.imuOffset
}

func (i imu) SetRotation(deg float64) {
	i.r.lock.Lock()
	defer i.r.lock.Unlock()
	i.r.imuOffset = deg - i.r.heading*180/math.Pi
}
