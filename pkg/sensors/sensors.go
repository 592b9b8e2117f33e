// Package sensors presents whichever position and heading sensors a chassis
// has as one read-only Source.  The variant used for each channel is picked
// once, when the Source is built.
package sensors

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Encoder is an external quadrature encoder.
type Encoder interface {
	Value() float64
	Reset()
}

// Motor is a motor (or motor group) with a built-in shaft encoder.
type Motor interface {
	Position() float64
	TarePosition()
}

// IMU reports an absolute, unwrapped rotation in degrees.
type IMU interface {
	Rotation() float64
	SetRotation(deg float64)
}

// Gyro is a single-axis rate gyro that integrates its own heading.  Value is
// in tenths of a degree.
type Gyro interface {
	Value() float64
}

// Hardware lists the sensors fitted to the chassis.  Any field may be nil
// except the drive motors: either both motor groups or all four corners.
type Hardware struct {
	LeftMotors, RightMotors Motor

	FrontLeft, FrontRight, BackLeft, BackRight Motor

	LeftEncoder, RightEncoder, MiddleEncoder Encoder

	IMU  IMU
	Gyro Gyro

	// Holonomic marks an X-drive without tracking wheels; odometry then
	// tracks on the diagonal corner motors.
	Holonomic bool

	// DegreeConstant is encoder ticks per degree of chassis rotation, used
	// when there is no heading sensor.
	DegreeConstant float64
}

// Reading is one raw sample of the three tracking channels, in ticks.
type Reading struct {
	Left, Right, Middle float64
}

var (
	ErrNoDriveMotors     = errors.New("no drive motors configured")
	ErrIncompleteEncoder = errors.New("left and right encoders must be configured together")
	ErrNoCorners         = errors.New("holonomic chassis needs all four corner motors")
)

// Source is the chassis' view of its sensors.  Methods are safe to call from
// several goroutines provided the underlying drivers are.
type Source struct {
	drive     pair
	tracking  pair
	middle    channel
	strafe    channel
	heading   heading
	holonomic bool
	hasMiddle bool

	encoders []Encoder
	motors   []Motor

	description string
}

func New(hw Hardware) (*Source, error) {
	corners := []Motor{hw.FrontLeft, hw.FrontRight, hw.BackLeft, hw.BackRight}
	haveCorners := true
	for _, m := range corners {
		if m == nil {
			haveCorners = false
		}
	}
	left, right := hw.LeftMotors, hw.RightMotors
	if left == nil || right == nil {
		if !haveCorners {
			return nil, ErrNoDriveMotors
		}
		left = averageOf{hw.FrontLeft, hw.BackLeft}
		right = averageOf{hw.FrontRight, hw.BackRight}
	}
	if (hw.LeftEncoder == nil) != (hw.RightEncoder == nil) {
		return nil, ErrIncompleteEncoder
	}
	haveQuad := hw.LeftEncoder != nil

	s := &Source{}
	var desc []string

	// Holonomic tracking only makes sense on x-drives without encoders.
	s.holonomic = hw.Holonomic && !haveQuad
	if s.holonomic && !haveCorners {
		return nil, ErrNoCorners
	}

	switch {
	case haveQuad:
		s.drive = quadPair{hw.LeftEncoder, hw.RightEncoder}
		s.tracking = s.drive
		desc = append(desc, "tracking=quad")
	case s.holonomic:
		s.drive = motorPair{left, right}
		s.tracking = motorPair{hw.BackLeft, hw.FrontRight}
		desc = append(desc, "tracking=diagonal")
	default:
		s.drive = motorPair{left, right}
		s.tracking = s.drive
		desc = append(desc, "tracking=motor")
	}

	switch {
	case hw.MiddleEncoder != nil:
		s.middle = hw.MiddleEncoder
		s.strafe = hw.MiddleEncoder
		s.hasMiddle = true
		desc = append(desc, "middle=quad")
	case s.holonomic:
		s.middle = motorChannel{hw.BackRight}
		s.strafe = cornerStrafe{hw.FrontLeft, hw.FrontRight, hw.BackLeft, hw.BackRight}
		s.hasMiddle = true
		desc = append(desc, "middle=back-right")
	case haveCorners:
		s.middle = zeroChannel{}
		s.strafe = cornerStrafe{hw.FrontLeft, hw.FrontRight, hw.BackLeft, hw.BackRight}
		desc = append(desc, "middle=none")
	default:
		s.middle = zeroChannel{}
		s.strafe = zeroChannel{}
		desc = append(desc, "middle=none")
	}

	switch {
	case hw.IMU != nil:
		s.heading = imuHeading{hw.IMU}
		desc = append(desc, "heading=imu")
	case hw.Gyro != nil:
		s.heading = &gyroHeading{gyro: hw.Gyro}
		desc = append(desc, "heading=gyro")
	default:
		if hw.DegreeConstant == 0 {
			return nil, errors.New("degree constant must be set when there is no heading sensor")
		}
		s.heading = &encoderHeading{drive: s.drive, degreeConstant: hw.DegreeConstant}
		desc = append(desc, "heading=encoders")
	}

	for _, e := range []Encoder{hw.LeftEncoder, hw.RightEncoder, hw.MiddleEncoder} {
		if e != nil {
			s.encoders = append(s.encoders, e)
		}
	}
	for _, m := range append([]Motor{hw.LeftMotors, hw.RightMotors}, corners...) {
		if m != nil {
			s.motors = append(s.motors, m)
		}
	}

	s.description = strings.Join(desc, " ")
	return s, nil
}

// Tracking samples the odometry channels.
func (s *Source) Tracking() Reading {
	l, r := s.tracking.read()
	return Reading{Left: l, Right: r, Middle: s.middle.Value()}
}

// Drive returns the left and right drive positions used for distance control.
func (s *Source) Drive() (left, right float64) {
	return s.drive.read()
}

// Position is the average of the left and right drive positions.
func (s *Source) Position() float64 {
	l, r := s.drive.read()
	return (l + r) / 2
}

// Strafe is the sideways displacement in per-wheel ticks, from the middle
// encoder or synthesised from the diagonal corner motors.
func (s *Source) Strafe() float64 {
	return s.strafe.Value()
}

// Angle is the chassis heading in degrees, clockwise positive.
func (s *Source) Angle() float64 {
	return s.heading.angle()
}

// HeadingSensor is true when the heading comes from an IMU or gyro rather
// than the drive encoders.
func (s *Source) HeadingSensor() bool {
	_, computed := s.heading.(*encoderHeading)
	return !computed
}

// HasMiddle reports whether the middle tracking channel measures anything.
// Without one it always reads 0.
func (s *Source) HasMiddle() bool {
	return s.hasMiddle
}

// Holonomic reports whether odometry tracks on the diagonal corner motors.
func (s *Source) Holonomic() bool {
	return s.holonomic
}

// ResetAngle makes the current heading read as deg.
func (s *Source) ResetAngle(deg float64) {
	s.heading.reset(deg)
}

// Tare zeroes every motor and encoder position.
func (s *Source) Tare() {
	for _, m := range s.motors {
		m.TarePosition()
	}
	for _, e := range s.encoders {
		e.Reset()
	}
	if h, ok := s.heading.(*encoderHeading); ok {
		h.tare()
	}
}

func (s *Source) Describe() string {
	return s.description
}

func (s *Source) String() string {
	return fmt.Sprintf("sensors(%s)", s.description)
}

type pair interface {
	read() (left, right float64)
}

type quadPair struct {
	left, right Encoder
}

func (p quadPair) read() (float64, float64) {
	return p.left.Value(), p.right.Value()
}

type motorPair struct {
	left, right Motor
}

func (p motorPair) read() (float64, float64) {
	return p.left.Position(), p.right.Position()
}

type channel interface {
	Value() float64
}

type motorChannel struct {
	m Motor
}

func (c motorChannel) Value() float64 {
	return c.m.Position()
}

type zeroChannel struct{}

func (zeroChannel) Value() float64 { return 0 }

// cornerStrafe derives sideways travel from the two diagonals of an X-drive.
// A pure strafe turns every wheel by the same amount, which is what Value
// reports.
type cornerStrafe struct {
	fl, fr, bl, br Motor
}

func (c cornerStrafe) Value() float64 {
	top := c.fl.Position() - c.fr.Position()
	bot := c.br.Position() - c.bl.Position()
	return (top + bot) / 4
}

// averageOf stands in for a motor group built from two corner motors.
type averageOf [2]Motor

func (a averageOf) Position() float64 {
	return (a[0].Position() + a[1].Position()) / 2
}

func (a averageOf) TarePosition() {
	a[0].TarePosition()
	a[1].TarePosition()
}

type heading interface {
	angle() float64
	reset(deg float64)
}

type imuHeading struct {
	imu IMU
}

func (h imuHeading) angle() float64 {
	return h.imu.Rotation()
}

func (h imuHeading) reset(deg float64) {
	h.imu.SetRotation(deg)
}

type gyroHeading struct {
	lock   sync.Mutex
	gyro   Gyro
	offset float64
}

func (h *gyroHeading) angle() float64 {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.gyro.Value()/10 + h.offset
}

func (h *gyroHeading) reset(deg float64) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.offset = deg - h.gyro.Value()/10
}

// encoderHeading dead-reckons the heading from the drive encoders.
type encoderHeading struct {
	lock           sync.Mutex
	drive          pair
	degreeConstant float64
	offset         float64
}

func (h *encoderHeading) raw() float64 {
	l, r := h.drive.read()
	return (l - r) / 2 / h.degreeConstant
}

func (h *encoderHeading) angle() float64 {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.raw() + h.offset
}

func (h *encoderHeading) reset(deg float64) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.offset = deg - h.raw()
}

// tare drops any heading offset; the encoders themselves have just been
// zeroed so the heading reads 0 again.
func (h *encoderHeading) tare() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.offset = 0
}
