package odom

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/tigerbot-team/motionctl/pkg/angle"
	"github.com/tigerbot-team/motionctl/pkg/sensors"
)

type fakeSource struct {
	lock     sync.Mutex
	r        sensors.Reading
	deg      float64
	absolute bool
	noMiddle bool
}

func (f *fakeSource) Tracking() sensors.Reading {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.r
}

func (f *fakeSource) Angle() float64 {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.deg
}

func (f *fakeSource) HeadingSensor() bool { return f.absolute }

func (f *fakeSource) HasMiddle() bool { return !f.noMiddle }

func (f *fakeSource) ResetAngle(deg float64) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.deg = deg
}

func (f *fakeSource) advance(left, right, middle, deg float64) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.r.Left += left
	f.r.Right += right
	f.r.Middle += middle
	f.deg += deg
}

func (f *fakeSource) zero() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.r = sensors.Reading{}
}

func testConfig() Config {
	return Config{
		LeftRightDistance: 5,
		LeftRightTPI:      1,
		MiddleTPI:         1,
		ExitError:         1,
	}
}

func TestStraightLineMovesAlongHeading(t *testing.T) {
	src := &fakeSource{}
	e := New(testConfig(), src, false, nil, golog.NewTestLogger(t))

	for i := 0; i < 10; i++ {
		src.advance(2.4, 2.4, 0, 0)
		e.Tick()
	}
	p := e.Pose()
	test.That(t, p.Position.X, test.ShouldAlmostEqual, 0)
	test.That(t, p.Position.Y, test.ShouldAlmostEqual, 24)
	test.That(t, p.Heading, test.ShouldEqual, 0.0)

	e.ResetWithHeading(r2.Point{X: 1, Y: 1}, 90)
	test.That(t, src.Angle(), test.ShouldEqual, 90.0)
	for i := 0; i < 10; i++ {
		src.advance(1, 1, 0, 0)
		e.Tick()
	}
	p = e.Pose()
	test.That(t, p.Position.X, test.ShouldAlmostEqual, 11)
	test.That(t, p.Position.Y, test.ShouldAlmostEqual, 1)
	test.That(t, p.HeadingDegrees, test.ShouldAlmostEqual, 90)
}

func TestCircleReturnsToStart(t *testing.T) {
	src := &fakeSource{}
	cfg := testConfig()
	e := New(cfg, src, false, nil, golog.NewTestLogger(t))

	// Clockwise circle of radius 20 about (20, 0).
	const (
		radius = 20.0
		steps  = 100
	)
	step := 2 * math.Pi / steps
	for i := 1; i <= steps; i++ {
		src.advance((radius+cfg.LeftRightDistance)*step, (radius-cfg.LeftRightDistance)*step, 0, 0)
		e.Tick()
		if i == steps/4 {
			p := e.Pose()
			test.That(t, p.Position.X, test.ShouldAlmostEqual, radius, 1e-9)
			test.That(t, p.Position.Y, test.ShouldAlmostEqual, radius, 1e-9)
			test.That(t, p.HeadingDegrees, test.ShouldAlmostEqual, 90, 1e-9)
		}
	}
	p := e.Pose()
	test.That(t, p.Position.X, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, p.Position.Y, test.ShouldAlmostEqual, 0, 1e-9)
	wrapped, err := angle.WrapRadians(p.Heading)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, wrapped, test.ShouldAlmostEqual, 0, 1e-9)
}

func TestHeadingSensorTurnOnTheSpot(t *testing.T) {
	src := &fakeSource{absolute: true}
	cfg := testConfig()
	e := New(cfg, src, false, nil, golog.NewTestLogger(t))

	// A point turn: the right wheel runs backwards by exactly the arc the
	// tracking centre would need.
	stepDeg := 3.0
	for i := 0; i < 30; i++ {
		arc := cfg.LeftRightDistance * angle.Radians(stepDeg)
		src.advance(arc, -arc, 0, stepDeg)
		e.Tick()
	}
	p := e.Pose()
	test.That(t, p.HeadingDegrees, test.ShouldAlmostEqual, 90)
	test.That(t, p.Position.X, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, p.Position.Y, test.ShouldAlmostEqual, 0, 1e-9)
}

func TestHolonomicRotatesByFortyFive(t *testing.T) {
	src := &fakeSource{absolute: true}
	cfg := testConfig()
	cfg.Holonomic = true
	e := New(cfg, src, true, nil, golog.NewTestLogger(t))

	src.advance(10, 10, 0, 0)
	e.Tick()
	p := e.Pose()
	test.That(t, p.Position.X, test.ShouldAlmostEqual, -10*math.Sqrt2/2)
	test.That(t, p.Position.Y, test.ShouldAlmostEqual, 10*math.Sqrt2/2)

	// Tracking encoders present: the source says not holonomic.
	src = &fakeSource{absolute: true}
	e = New(cfg, src, false, nil, golog.NewTestLogger(t))
	src.advance(10, 10, 0, 0)
	e.Tick()
	test.That(t, e.Pose().Position.X, test.ShouldAlmostEqual, 0)
}

func TestMiddleWheelStrafes(t *testing.T) {
	src := &fakeSource{absolute: true}
	e := New(testConfig(), src, false, nil, golog.NewTestLogger(t))
	src.advance(0, 0, 7, 0)
	e.Tick()
	test.That(t, e.Pose().Position, test.ShouldResemble, r2.Point{X: 7, Y: 0})
}

func TestTurnInPlaceWithoutMiddleWheel(t *testing.T) {
	cfg := testConfig()
	cfg.MiddleDistance = 5.75

	src := &fakeSource{absolute: true, noMiddle: true}
	e := New(cfg, src, false, nil, golog.NewTestLogger(t))
	test.That(t, e.Config().MiddleDistance, test.ShouldEqual, 0.0)
	// The side wheels roll round the centre in opposite directions.
	arc := cfg.LeftRightDistance * angle.Radians(5)
	for i := 0; i < 18; i++ {
		src.advance(arc, -arc, 0, 5)
		e.Tick()
	}
	p := e.Pose()
	test.That(t, p.HeadingDegrees, test.ShouldAlmostEqual, 90)
	test.That(t, p.Position.Norm(), test.ShouldBeLessThan, 1e-9)

	// With a middle wheel fitted the offset is honoured.
	src = &fakeSource{absolute: true}
	e = New(cfg, src, false, nil, golog.NewTestLogger(t))
	test.That(t, e.Config().MiddleDistance, test.ShouldEqual, 5.75)
}

func TestTareForgetsPreviousSample(t *testing.T) {
	src := &fakeSource{}
	e := New(testConfig(), src, false, nil, golog.NewTestLogger(t))
	src.advance(100, 100, 0, 0)
	e.Tick()
	test.That(t, e.Pose().Position.Y, test.ShouldAlmostEqual, 100)

	e.Tare(src.zero)
	e.Tick()
	test.That(t, e.Pose().Position.Y, test.ShouldAlmostEqual, 100)

	src.advance(5, 5, 0, 0)
	e.Tick()
	test.That(t, e.Pose().Position.Y, test.ShouldAlmostEqual, 105)
}

func TestReset(t *testing.T) {
	src := &fakeSource{}
	e := New(testConfig(), src, false, nil, golog.NewTestLogger(t))
	e.Reset(r2.Point{X: 3, Y: 4})
	test.That(t, e.Pose().Position, test.ShouldResemble, r2.Point{X: 3, Y: 4})
	test.That(t, e.DistanceError(r2.Point{}), test.ShouldAlmostEqual, 5)
}

func TestAngleError(t *testing.T) {
	pose := Pose{}
	expectAngleError(t, pose, r2.Point{X: 0, Y: 10}, 0)
	expectAngleError(t, pose, r2.Point{X: 10, Y: 0}, -math.Pi/2)
	expectAngleError(t, pose, r2.Point{X: -10, Y: 0}, math.Pi/2)
	expectAngleError(t, pose, r2.Point{X: 0, Y: -10}, math.Pi)
	expectAngleError(t, pose, r2.Point{}, 0)

	// Unwrapped headings are normalised.
	pose.Heading = 2*math.Pi + 0.25
	expectAngleError(t, pose, r2.Point{X: 0, Y: 10}, 0.25)
	pose.Heading = -3 * math.Pi / 2
	expectAngleError(t, pose, r2.Point{X: 0, Y: 10}, math.Pi/2)

	// Facing the target from somewhere else.
	pose = Pose{Position: r2.Point{X: 5, Y: 5}, Heading: math.Pi / 4}
	expectAngleError(t, pose, r2.Point{X: 10, Y: 10}, 0)
	expectAngleError(t, pose, pose.Position, 0)

	for h := -10.0; h < 10; h += 0.7 {
		e, err := AngleError(Pose{Heading: h}, r2.Point{X: 3, Y: -2})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, e, test.ShouldBeGreaterThan, -math.Pi)
		test.That(t, e, test.ShouldBeLessThanOrEqualTo, math.Pi)
	}
}

func expectAngleError(t *testing.T, pose Pose, target r2.Point, expected float64) {
	t.Helper()
	e, err := AngleError(pose, target)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e, test.ShouldAlmostEqual, expected)
}

func TestAngleErrorRejectsNonFinite(t *testing.T) {
	_, err := AngleError(Pose{Heading: math.NaN()}, r2.Point{X: 1, Y: 1})
	test.That(t, errors.Cause(err), test.ShouldEqual, angle.ErrNonFinite)

	_, err = AngleError(Pose{Heading: math.Inf(1)}, r2.Point{X: 1, Y: 1})
	test.That(t, err, test.ShouldNotBeNil)
}

type recorder struct {
	lock  sync.Mutex
	poses []Pose
}

func (r *recorder) Record(p Pose) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.poses = append(r.poses, p)
}

func (r *recorder) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.poses)
}

func TestLoopTicksOnClock(t *testing.T) {
	src := &fakeSource{}
	mock := clock.NewMock()
	e := New(testConfig(), src, false, mock, golog.NewTestLogger(t))
	rec := &recorder{}
	e.SetRecorder(rec)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go e.Loop(ctx, &wg)

	src.advance(1, 1, 0, 0)
	for i := 0; i < 1000 && rec.count() < 3; i++ {
		mock.Add(DefaultPeriod)
		time.Sleep(time.Millisecond)
	}
	cancel()
	wg.Wait()

	test.That(t, rec.count(), test.ShouldBeGreaterThanOrEqualTo, 3)
	test.That(t, e.Pose().Position.Y, test.ShouldAlmostEqual, 1)
}
