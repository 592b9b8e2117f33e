package sensors

import (
	"testing"

	"go.viam.com/test"
)

type fakeEncoder struct{ v float64 }

func (e *fakeEncoder) Value() float64 { return e.v }
func (e *fakeEncoder) Reset()         { e.v = 0 }

type fakeMotor struct{ pos float64 }

func (m *fakeMotor) Position() float64 { return m.pos }
func (m *fakeMotor) TarePosition()     { m.pos = 0 }

type fakeIMU struct{ rot float64 }

func (i *fakeIMU) Rotation() float64       { return i.rot }
func (i *fakeIMU) SetRotation(deg float64) { i.rot = deg }

type fakeGyro struct{ tenths float64 }

func (g *fakeGyro) Value() float64 { return g.tenths }

type corners struct {
	fl, fr, bl, br *fakeMotor
}

func newCorners() corners {
	return corners{&fakeMotor{}, &fakeMotor{}, &fakeMotor{}, &fakeMotor{}}
}

func (c corners) fill(hw *Hardware) {
	hw.FrontLeft, hw.FrontRight, hw.BackLeft, hw.BackRight = c.fl, c.fr, c.bl, c.br
}

func TestNewRequiresDriveMotors(t *testing.T) {
	_, err := New(Hardware{DegreeConstant: 1})
	test.That(t, err, test.ShouldEqual, ErrNoDriveMotors)
}

func TestNewRejectsHalfAnEncoderPair(t *testing.T) {
	_, err := New(Hardware{
		LeftMotors:     &fakeMotor{},
		RightMotors:    &fakeMotor{},
		LeftEncoder:    &fakeEncoder{},
		DegreeConstant: 1,
	})
	test.That(t, err, test.ShouldEqual, ErrIncompleteEncoder)
}

func TestQuadEncodersWinOverMotors(t *testing.T) {
	lm, rm := &fakeMotor{pos: 1000}, &fakeMotor{pos: 2000}
	le, re := &fakeEncoder{v: 10}, &fakeEncoder{v: 20}
	c := newCorners()
	hw := Hardware{
		LeftMotors: lm, RightMotors: rm,
		LeftEncoder: le, RightEncoder: re,
		IMU:       &fakeIMU{},
		Holonomic: true,
	}
	c.fill(&hw)
	s, err := New(hw)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Holonomic(), test.ShouldBeFalse)

	r := s.Tracking()
	test.That(t, r.Left, test.ShouldEqual, 10.0)
	test.That(t, r.Right, test.ShouldEqual, 20.0)
	test.That(t, r.Middle, test.ShouldEqual, 0.0)
	test.That(t, s.Position(), test.ShouldEqual, 15.0)
}

func TestHolonomicTracksOnDiagonals(t *testing.T) {
	c := newCorners()
	c.fl.pos, c.fr.pos, c.bl.pos, c.br.pos = 1, 2, 3, 4
	hw := Hardware{Holonomic: true, DegreeConstant: 1}
	c.fill(&hw)
	s, err := New(hw)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Holonomic(), test.ShouldBeTrue)

	r := s.Tracking()
	test.That(t, r.Left, test.ShouldEqual, 3.0)
	test.That(t, r.Right, test.ShouldEqual, 2.0)
	test.That(t, r.Middle, test.ShouldEqual, 4.0)

	// Groups are synthesised from the corners.
	l, rr := s.Drive()
	test.That(t, l, test.ShouldEqual, 2.0)
	test.That(t, rr, test.ShouldEqual, 3.0)

	// ((fl - fr) + (br - bl)) / 4: each wheel travelled 10.
	test.That(t, s.Strafe(), test.ShouldEqual, 0.0)
	c.fl.pos, c.fr.pos, c.bl.pos, c.br.pos = 10, -10, -10, 10
	test.That(t, s.Strafe(), test.ShouldEqual, 10.0)
}

func TestHolonomicNeedsCorners(t *testing.T) {
	_, err := New(Hardware{
		LeftMotors:     &fakeMotor{},
		RightMotors:    &fakeMotor{},
		Holonomic:      true,
		DegreeConstant: 1,
	})
	test.That(t, err, test.ShouldEqual, ErrNoCorners)
}

func TestMiddleEncoderOverridesStrafe(t *testing.T) {
	me := &fakeEncoder{v: 42}
	c := newCorners()
	c.fl.pos = 100
	hw := Hardware{LeftMotors: &fakeMotor{}, RightMotors: &fakeMotor{}, MiddleEncoder: me, DegreeConstant: 1}
	c.fill(&hw)
	s, err := New(hw)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Strafe(), test.ShouldEqual, 42.0)
	test.That(t, s.Tracking().Middle, test.ShouldEqual, 42.0)
	test.That(t, s.HasMiddle(), test.ShouldBeTrue)
}

func TestHasMiddle(t *testing.T) {
	s, err := New(Hardware{LeftMotors: &fakeMotor{}, RightMotors: &fakeMotor{}, DegreeConstant: 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.HasMiddle(), test.ShouldBeFalse)

	// Corners alone give a strafe estimate but no middle tracking wheel.
	hw := Hardware{DegreeConstant: 1}
	newCorners().fill(&hw)
	s, err = New(hw)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.HasMiddle(), test.ShouldBeFalse)

	hw.Holonomic = true
	s, err = New(hw)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.HasMiddle(), test.ShouldBeTrue)
}

func TestHeadingPriority(t *testing.T) {
	imu := &fakeIMU{rot: 90}
	gyro := &fakeGyro{tenths: 450}
	lm, rm := &fakeMotor{pos: 100}, &fakeMotor{pos: -100}

	s, err := New(Hardware{LeftMotors: lm, RightMotors: rm, IMU: imu, Gyro: gyro})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Angle(), test.ShouldEqual, 90.0)
	test.That(t, s.HeadingSensor(), test.ShouldBeTrue)
	s.ResetAngle(10)
	test.That(t, imu.rot, test.ShouldEqual, 10.0)

	s, err = New(Hardware{LeftMotors: lm, RightMotors: rm, Gyro: gyro})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Angle(), test.ShouldEqual, 45.0)
	test.That(t, s.HeadingSensor(), test.ShouldBeTrue)
	s.ResetAngle(0)
	test.That(t, s.Angle(), test.ShouldEqual, 0.0)
	gyro.tenths += 100
	test.That(t, s.Angle(), test.ShouldEqual, 10.0)

	s, err = New(Hardware{LeftMotors: lm, RightMotors: rm, DegreeConstant: 2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.HeadingSensor(), test.ShouldBeFalse)
	// (100 - -100) / 2 / 2
	test.That(t, s.Angle(), test.ShouldEqual, 50.0)
}

func TestEncoderHeadingNeedsDegreeConstant(t *testing.T) {
	_, err := New(Hardware{LeftMotors: &fakeMotor{}, RightMotors: &fakeMotor{}})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestTareZeroesEverything(t *testing.T) {
	lm, rm := &fakeMotor{pos: 5}, &fakeMotor{pos: 7}
	le, re, me := &fakeEncoder{v: 1}, &fakeEncoder{v: 2}, &fakeEncoder{v: 3}
	c := newCorners()
	c.fl.pos = 9
	hw := Hardware{
		LeftMotors: lm, RightMotors: rm,
		LeftEncoder: le, RightEncoder: re, MiddleEncoder: me,
		DegreeConstant: 1,
	}
	c.fill(&hw)
	s, err := New(hw)
	test.That(t, err, test.ShouldBeNil)
	s.ResetAngle(30)
	test.That(t, s.Angle(), test.ShouldEqual, 30.0)

	s.Tare()
	test.That(t, lm.pos, test.ShouldEqual, 0.0)
	test.That(t, rm.pos, test.ShouldEqual, 0.0)
	test.That(t, c.fl.pos, test.ShouldEqual, 0.0)
	test.That(t, s.Tracking(), test.ShouldResemble, Reading{})
	test.That(t, s.Angle(), test.ShouldEqual, 0.0)
}
