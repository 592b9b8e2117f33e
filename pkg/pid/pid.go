// Package pid turns the active motion target and the latest sensor readings
// into a left/right speed pair.  Outputs are not clamped.
package pid

import (
	"math"
	"sync"

	"github.com/edaniels/golog"

	"github.com/tigerbot-team/motionctl/pkg/angle"
	"github.com/tigerbot-team/motionctl/pkg/motion"
	"github.com/tigerbot-team/motionctl/pkg/odom"
	"github.com/tigerbot-team/motionctl/pkg/tunable"
)

// PD is a proportional-derivative controller.  The derivative is per tick.
type PD struct {
	KP float64 `yaml:"kp"`
	KD float64 `yaml:"kd"`
}

func (p PD) Output(err, prevErr float64) float64 {
	return p.KP*err + p.KD*(err-prevErr)
}

type Gains struct {
	Linear       PD `yaml:"linear"`
	Angular      PD `yaml:"angular"`
	LinearPoint  PD `yaml:"linear_point"`
	AngularPoint PD `yaml:"angular_point"`
	// Dif scales the heading correction applied during straight moves.
	Dif float64 `yaml:"dif"`
}

// GainSource supplies the gains for each tick.
type GainSource interface {
	Gains() Gains
}

// Static is a fixed set of gains.
type Static Gains

func (s Static) Gains() Gains {
	return Gains(s)
}

// TunableGains exposes every gain as a tunable so they can be adjusted live.
type TunableGains struct {
	linearKP, linearKD             *tunable.Tunable
	angularKP, angularKD           *tunable.Tunable
	linearPointKP, linearPointKD   *tunable.Tunable
	angularPointKP, angularPointKD *tunable.Tunable
	dif                            *tunable.Tunable
}

func NewTunableGains(t *tunable.Tunables, g Gains) *TunableGains {
	return &TunableGains{
		linearKP:       t.Create("linear.kp", g.Linear.KP, 0.01),
		linearKD:       t.Create("linear.kd", g.Linear.KD, 0.01),
		angularKP:      t.Create("angular.kp", g.Angular.KP, 0.1),
		angularKD:      t.Create("angular.kd", g.Angular.KD, 0.1),
		linearPointKP:  t.Create("linear_point.kp", g.LinearPoint.KP, 0.5),
		linearPointKD:  t.Create("linear_point.kd", g.LinearPoint.KD, 0.5),
		angularPointKP: t.Create("angular_point.kp", g.AngularPoint.KP, 0.1),
		angularPointKD: t.Create("angular_point.kd", g.AngularPoint.KD, 0.1),
		dif:            t.Create("dif", g.Dif, 0.05),
	}
}

func (t *TunableGains) Gains() Gains {
	return Gains{
		Linear:       PD{KP: t.linearKP.Get(), KD: t.linearKD.Get()},
		Angular:      PD{KP: t.angularKP.Get(), KD: t.angularKD.Get()},
		LinearPoint:  PD{KP: t.linearPointKP.Get(), KD: t.linearPointKD.Get()},
		AngularPoint: PD{KP: t.angularPointKP.Get(), KD: t.angularPointKD.Get()},
		Dif:          t.dif.Get(),
	}
}

// Inputs are the readings a calculator works from.
type Inputs struct {
	// DriveLeft and DriveRight are the drive encoder positions in ticks.
	DriveLeft, DriveRight float64
	// Strafe is the sideways drive position in per-wheel ticks, positive to
	// the right.
	Strafe float64
	// Angle is the chassis heading in degrees.
	Angle float64
	// HeadingSensor is true when Angle comes from an IMU or gyro.
	HeadingSensor bool
	Pose          odom.Pose
}

func (in Inputs) Position() float64 {
	return (in.DriveLeft + in.DriveRight) / 2
}

// Command is a calculator's output.  A non-zero VectorAngle asks the control
// loop to strafe in that direction, radians anticlockwise from forward.
type Command struct {
	Left, Right float64
	VectorAngle float64
}

// Calculator holds the derivative memory for each controller.  The memory
// is dropped whenever a new motion starts.
type Calculator struct {
	gains     GainSource
	exitError float64
	logger    golog.Logger

	lock       sync.Mutex
	generation uint64
	started    bool
	prev       map[string]float64
}

func NewCalculator(gains GainSource, exitError float64, logger golog.Logger) *Calculator {
	return &Calculator{
		gains:     gains,
		exitError: exitError,
		logger:    logger,
		prev:      map[string]float64{},
	}
}

// Calculate dispatches on the snapshot's mode.  ok is false for modes that
// do not drive the chassis.
func (c *Calculator) Calculate(snap motion.Snapshot, in Inputs) (cmd Command, ok bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if !c.started || snap.Generation != c.generation {
		c.generation = snap.Generation
		c.started = true
		c.prev = map[string]float64{}
	}
	g := c.gains.Gains()

	switch snap.Mode {
	case motion.Linear:
		return c.linear(g, snap, in), true
	case motion.Angular:
		return c.angular(g, snap, in), true
	case motion.Odom, motion.OdomThru:
		return c.point(g, snap, in), true
	case motion.OdomHolo, motion.OdomHoloThru:
		return c.holoPoint(g, snap, in), true
	}
	return Command{}, false
}

// pd runs controller name against err, remembering err for next tick.  On
// the first tick of a motion the derivative term is zero.
func (c *Calculator) pd(name string, p PD, err float64) float64 {
	prev, ok := c.prev[name]
	if !ok {
		prev = err
	}
	c.prev[name] = err
	return p.Output(err, prev)
}

// Difference measures how far the chassis has drifted off its held heading:
// degrees when there is a heading sensor, encoder ticks otherwise.
// Positive means drifted clockwise.
func Difference(snap motion.Snapshot, in Inputs) float64 {
	if in.HeadingSensor {
		return in.Angle - snap.Target.Angular
	}
	return in.DriveLeft - in.DriveRight
}

func (c *Calculator) linear(g Gains, snap motion.Snapshot, in Inputs) Command {
	va := snap.Target.VectorAngle
	sv := in.Position()
	if va != 0 {
		// Project the forward and leftward travel onto the strafe direction.
		left := -in.Strafe
		sv = sv*math.Cos(va) + left*math.Sin(va)
	}
	speed := c.pd("linear", g.Linear, snap.Target.Linear-sv)
	dif := Difference(snap, in) * g.Dif
	return Command{Left: speed - dif, Right: speed + dif, VectorAngle: va}
}

func (c *Calculator) angular(g Gains, snap motion.Snapshot, in Inputs) Command {
	speed := c.pd("angular", g.Angular, snap.Target.Angular-in.Angle)
	return Command{Left: speed, Right: -speed}
}

// pointErrors returns the distance and bearing to the point target, with the
// bearing flipped for backwards moves.  A non-finite bearing is logged and
// treated as dead ahead.
func (c *Calculator) pointErrors(snap motion.Snapshot, in Inputs) (dist, bearing float64) {
	target := snap.Target.Point
	dist = odom.DistanceError(in.Pose, target)
	bearing, err := odom.AngleError(in.Pose, target)
	if err != nil {
		c.logger.Warnw("rejecting angle error", "error", err, "target", target)
		return dist, 0
	}
	if snap.Target.Backwards {
		if bearing, err = angle.WrapRadians(bearing + math.Pi); err != nil {
			return dist, 0
		}
	}
	return dist, bearing
}

func (c *Calculator) point(g Gains, snap motion.Snapshot, in Inputs) Command {
	dist, bearing := c.pointErrors(snap, in)

	lin := c.pd("linear_point", g.LinearPoint, dist)
	if snap.Mode.IsThru() {
		lin = snap.Caps.MaxSpeed
	}
	// Slow down while facing away from the target.
	lin *= math.Cos(bearing)
	if snap.Target.Backwards {
		lin = -lin
	}

	ang := c.pd("angular_point", g.AngularPoint, angle.Degrees(bearing))
	if dist < c.exitError {
		// Close enough that the bearing is noise; stop steering.
		ang = 0
	}
	return Command{Left: lin - ang, Right: lin + ang}
}

func (c *Calculator) holoPoint(g Gains, snap motion.Snapshot, in Inputs) Command {
	dist, bearing := c.pointErrors(snap, in)

	lin := c.pd("linear_point", g.LinearPoint, dist)
	if snap.Mode.IsThru() {
		lin = snap.Caps.MaxSpeed
	}
	ang := c.pd("angular", g.Angular, in.Pose.HeadingDegrees-snap.Target.Angular)
	ang = motion.LimitSpeed(ang, snap.Caps.MaxAngular)
	if dist < c.exitError {
		// Arrived: only hold the heading.
		lin, bearing = 0, 0
	}
	return Command{Left: lin - ang, Right: lin + ang, VectorAngle: bearing}
}
