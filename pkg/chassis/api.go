package chassis

import (
	"context"
	"math"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/motionctl/pkg/actuator"
	"github.com/tigerbot-team/motionctl/pkg/angle"
	"github.com/tigerbot-team/motionctl/pkg/motion"
	"github.com/tigerbot-team/motionctl/pkg/odom"
	"github.com/tigerbot-team/motionctl/pkg/pid"
)

// ErrPoseNotSpecified is returned by the pose moves, whose arc blend has not
// been defined yet.  The chassis is left stopped.
var ErrPoseNotSpecified = errors.New("pose moves are not supported yet")

// Flags modify a point move.
type Flags uint8

const (
	// Thru passes through the point without stopping.
	Thru Flags = 1 << iota
	// Backwards drives to the point in reverse.
	Backwards
	// NoSettle returns as soon as the point is within the exit error
	// instead of waiting for the chassis to stop.
	NoSettle
)

// start stops the motors, zeroes the sensors and installs a new motion.
// setup runs after the sensors are zeroed so that it can read the fresh
// heading.
func (c *Chassis) start(mode motion.Mode, setup func(caps *motion.Caps, t *motion.Target)) {
	c.tickLock.Lock()
	defer c.tickLock.Unlock()

	c.state.SetMode(motion.Disabled)
	if err := c.sink.SetGroups(0, 0, actuator.Velocity); err != nil {
		c.logger.Warnw("failed to stop motors", "error", err)
	}
	c.odom.Tare(c.sensors.Tare)

	caps := c.state.Caps()
	var target motion.Target
	setup(&caps, &target)
	c.state.Retarget(mode, caps, target)
	c.logger.Debugw("new motion", "mode", mode, "target", target, "caps", caps)
}

// MoveAsync drives distance units straight ahead, holding the current
// heading.
func (c *Chassis) MoveAsync(distance, max float64) {
	c.start(motion.Linear, func(caps *motion.Caps, t *motion.Target) {
		caps.MaxSpeed = max
		t.Linear = distance * c.cfg.DistanceConstant
		t.Angular = c.sensors.Angle()
	})
}

func (c *Chassis) Move(ctx context.Context, distance, max float64) error {
	c.MoveAsync(distance, max)
	return c.settleAfterStartup(ctx)
}

// TurnAsync turns by degrees, clockwise positive.
func (c *Chassis) TurnAsync(degrees, max float64) {
	c.start(motion.Angular, func(caps *motion.Caps, t *motion.Target) {
		caps.MaxSpeed = max
		t.Angular = degrees + c.sensors.Angle()
	})
}

func (c *Chassis) Turn(ctx context.Context, degrees, max float64) error {
	c.TurnAsync(degrees, max)
	return c.settleAfterStartup(ctx)
}

// TurnAbsoluteAsync turns the short way round to face heading degrees.
// Without an IMU or gyro the heading comes from the drive encoders, which
// are tared at the start of every motion, so the turn is then relative to
// the heading at the end of the previous motion.
func (c *Chassis) TurnAbsoluteAsync(degrees, max float64) {
	rel := angle.FromFloat(degrees - c.sensors.Angle())
	c.TurnAsync(rel.Float(), max)
}

func (c *Chassis) TurnAbsolute(ctx context.Context, degrees, max float64) error {
	c.TurnAbsoluteAsync(degrees, max)
	return c.settleAfterStartup(ctx)
}

// HoloAsync strafes distance units in direction degrees, measured
// anticlockwise from straight ahead, holding the current heading.
func (c *Chassis) HoloAsync(distance, degrees, max float64) {
	c.start(motion.Linear, func(caps *motion.Caps, t *motion.Target) {
		caps.MaxSpeed = max
		t.Linear = distance * c.cfg.DistanceConstant
		t.VectorAngle = angle.Radians(degrees)
		t.Angular = c.sensors.Angle()
	})
}

func (c *Chassis) Holo(ctx context.Context, distance, degrees, max float64) error {
	c.HoloAsync(distance, degrees, max)
	return c.settleAfterStartup(ctx)
}

// MoveToAsync drives to point on the odometry map, turning to face it.
func (c *Chassis) MoveToAsync(point r2.Point, max float64, flags Flags) {
	mode := motion.Odom
	if flags&Thru != 0 {
		mode = motion.OdomThru
	}
	c.start(mode, func(caps *motion.Caps, t *motion.Target) {
		caps.MaxSpeed = max
		t.Point = point
		t.Backwards = flags&Backwards != 0
	})
}

// MoveTo drives to point.  It waits for the chassis to settle unless flags
// ask for Thru or NoSettle, in which case it returns once within the exit
// error.
func (c *Chassis) MoveTo(ctx context.Context, point r2.Point, max float64, flags Flags) error {
	c.MoveToAsync(point, max, flags)
	if err := c.sleep(ctx, c.cfg.StartupDelay); err != nil {
		return err
	}
	if flags&(Thru|NoSettle) != 0 {
		return c.waitUntilNear(ctx, point, false)
	}
	return c.WaitUntilSettled(ctx)
}

func (c *Chassis) MoveThru(ctx context.Context, point r2.Point, max float64) error {
	return c.MoveTo(ctx, point, max, Thru)
}

// HoloToAsync strafes to point while turning to face heading degrees.
func (c *Chassis) HoloToAsync(point r2.Point, degrees, max, turnMax float64, flags Flags) {
	mode := motion.OdomHolo
	if flags&Thru != 0 {
		mode = motion.OdomHoloThru
	}
	c.start(mode, func(caps *motion.Caps, t *motion.Target) {
		caps.MaxSpeed = max
		caps.MaxTurn = turnMax
		t.Point = point
		t.Angular = degrees
	})
}

// HoloTo waits for the chassis to settle; with Thru it returns once within
// the exit error or settled, whichever comes first.
func (c *Chassis) HoloTo(ctx context.Context, point r2.Point, degrees, max, turnMax float64, flags Flags) error {
	c.HoloToAsync(point, degrees, max, turnMax, flags)
	if err := c.sleep(ctx, c.cfg.StartupDelay); err != nil {
		return err
	}
	if flags&Thru != 0 {
		return c.waitUntilNear(ctx, point, true)
	}
	return c.WaitUntilSettled(ctx)
}

func (c *Chassis) HoloThru(ctx context.Context, point r2.Point, degrees, max, turnMax float64) error {
	return c.HoloTo(ctx, point, degrees, max, turnMax, Thru)
}

// MovePoseAsync records a pose target and stops the chassis.  The blend
// toward the pose is not defined yet, so it always returns
// ErrPoseNotSpecified.
func (c *Chassis) MovePoseAsync(point r2.Point, degrees, max float64) error {
	exit := c.odom.Config().ExitError
	c.start(motion.OdomPose, func(caps *motion.Caps, t *motion.Target) {
		caps.MaxSpeed = max
		t.Point = point
		t.Angular = degrees
		t.PointCircle = point
		t.PoseRadius = exit
	})
	c.logger.Warnw("pose move requested but not supported", "point", point, "heading", degrees)
	return ErrPoseNotSpecified
}

func (c *Chassis) MovePose(ctx context.Context, point r2.Point, degrees, max float64) error {
	return c.MovePoseAsync(point, degrees, max)
}

// Settled samples the drive channels and reports whether the chassis has
// stopped.  Each call counts as one sample.
func (c *Chassis) Settled() bool {
	l, r := c.sensors.Drive()
	return c.settle.Update(l, r, c.sensors.Strafe(), c.state.Mode())
}

// WaitUntilSettled polls Settled once per period.  There is no timeout; bound
// the wait with ctx.
func (c *Chassis) WaitUntilSettled(ctx context.Context) error {
	for !c.Settled() {
		if err := c.sleep(ctx, c.cfg.Period); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chassis) settleAfterStartup(ctx context.Context) error {
	if err := c.sleep(ctx, c.cfg.StartupDelay); err != nil {
		return err
	}
	return c.WaitUntilSettled(ctx)
}

// waitUntilNear polls until point is within the exit error, or optionally
// until the chassis settles.
func (c *Chassis) waitUntilNear(ctx context.Context, point r2.Point, orSettled bool) error {
	exit := c.odom.Config().ExitError
	for c.odom.DistanceError(point) > exit {
		if orSettled && c.Settled() {
			return nil
		}
		if err := c.sleep(ctx, c.cfg.Period); err != nil {
			return err
		}
	}
	return nil
}

// Fast drives open loop at max until distance is covered, with slew and
// heading correction but no deceleration.  The chassis is left moving.
func (c *Chassis) Fast(ctx context.Context, distance, max float64) error {
	if distance < 0 {
		max = -max
	}
	c.start(motion.Disabled, func(_ *motion.Caps, t *motion.Target) {
		t.Angular = c.sensors.Angle()
	})
	goal := math.Abs(distance * c.cfg.DistanceConstant)

	for {
		l, r := c.sensors.Drive()
		if math.Abs((l+r)/2) >= goal {
			return nil
		}
		speed := c.state.SlewUniform(max, c.cfg.AccelStep)
		in := pid.Inputs{
			DriveLeft:     l,
			DriveRight:    r,
			Angle:         c.sensors.Angle(),
			HeadingSensor: c.sensors.HeadingSensor(),
		}
		dif := pid.Difference(c.state.Snapshot(), in) * c.gains.Gains().Dif
		c.drive(speed-dif, speed+dif, c.unit())
		if err := c.sleep(ctx, c.cfg.Period); err != nil {
			return err
		}
	}
}

// Voltage drives each side open loop at a voltage percentage for d.
func (c *Chassis) Voltage(ctx context.Context, d time.Duration, left, right float64) error {
	c.state.SetMode(motion.Disabled)
	c.drive(left, right, actuator.Voltage)
	return c.sleep(ctx, d)
}

// Velocity drives each side open loop at a velocity percentage for d.
func (c *Chassis) Velocity(ctx context.Context, d time.Duration, left, right float64) error {
	c.state.SetMode(motion.Disabled)
	c.drive(left, right, actuator.Velocity)
	return c.sleep(ctx, d)
}

func (c *Chassis) drive(left, right float64, unit actuator.Unit) {
	c.tickLock.Lock()
	defer c.tickLock.Unlock()
	if err := c.sink.SetGroups(left, right, unit); err != nil {
		c.logger.Warnw("failed to set motor speeds", "error", err)
	}
}

func (c *Chassis) Pose() odom.Pose {
	return c.odom.Pose()
}

// ResetPose moves the odometry origin so that the chassis is at point.
func (c *Chassis) ResetPose(point r2.Point) {
	c.odom.Reset(point)
}

// ResetPoseWithHeading also re-zeroes the heading sensor to degrees.
func (c *Chassis) ResetPoseWithHeading(point r2.Point, degrees float64) {
	c.odom.ResetWithHeading(point, degrees)
}
