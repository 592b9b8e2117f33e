// Package chassis runs the fixed-period control loop and exposes the motion
// API used by autonomous routines and teleop.
package chassis

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/motionctl/pkg/actuator"
	"github.com/tigerbot-team/motionctl/pkg/motion"
	"github.com/tigerbot-team/motionctl/pkg/odom"
	"github.com/tigerbot-team/motionctl/pkg/pid"
	"github.com/tigerbot-team/motionctl/pkg/settle"
)

const (
	DefaultPeriod       = 10 * time.Millisecond
	DefaultStartupDelay = 450 * time.Millisecond
)

type Config struct {
	// DistanceConstant is encoder ticks per unit of travel.
	DistanceConstant float64 `yaml:"distance_constant"`
	// DegreeConstant is encoder ticks per degree of rotation.
	DegreeConstant float64 `yaml:"degree_constant"`

	SettleTime             int     `yaml:"settle_time"`
	SettleThresholdLinear  float64 `yaml:"settle_threshold_linear"`
	SettleThresholdAngular float64 `yaml:"settle_threshold_angular"`

	// AccelStep is the largest increase in any output per tick.
	AccelStep float64 `yaml:"accel_step"`

	JoystickThreshold float64 `yaml:"joystick_threshold"`

	// Gearing is the motors' top speed in rpm.
	Gearing     float64 `yaml:"gearing"`
	UseVelocity bool    `yaml:"use_velocity"`

	Caps motion.Caps `yaml:"caps"`

	StartupDelay time.Duration `yaml:"startup_delay"`
	Period       time.Duration `yaml:"period"`
}

func (c Config) Validate() error {
	if c.DistanceConstant == 0 {
		return errors.New("distance_constant must be non-zero")
	}
	if c.AccelStep <= 0 {
		return errors.Errorf("accel_step must be positive, got %v", c.AccelStep)
	}
	if c.SettleTime < 0 {
		return errors.Errorf("settle_time must not be negative, got %v", c.SettleTime)
	}
	if c.UseVelocity && c.Gearing <= 0 {
		return errors.New("gearing must be set when use_velocity is on")
	}
	return nil
}

// Sensors is what the chassis reads directly; odometry has its own view.
type Sensors interface {
	Drive() (left, right float64)
	Strafe() float64
	Angle() float64
	HeadingSensor() bool
	Tare()
}

type Chassis struct {
	cfg     Config
	state   *motion.State
	sensors Sensors
	odom    *odom.Engine
	gains   pid.GainSource
	calc    *pid.Calculator
	settle  *settle.Detector
	sink    actuator.Sink
	clk     clock.Clock
	logger  golog.Logger

	// tickLock serialises control ticks with anything else that writes to
	// the sink or starts a new motion.
	tickLock sync.Mutex
}

func New(
	cfg Config,
	sensors Sensors,
	engine *odom.Engine,
	gains pid.GainSource,
	sink actuator.Sink,
	clk clock.Clock,
	logger golog.Logger,
) (*Chassis, error) {
	if cfg.Period == 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.StartupDelay == 0 {
		cfg.StartupDelay = DefaultStartupDelay
	}
	if cfg.Caps == (motion.Caps{}) {
		cfg.Caps = motion.DefaultCaps()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid chassis config")
	}
	if clk == nil {
		clk = clock.New()
	}

	c := &Chassis{
		cfg:     cfg,
		state:   motion.NewState(),
		sensors: sensors,
		odom:    engine,
		gains:   gains,
		calc:    pid.NewCalculator(gains, engine.Config().ExitError, logger),
		settle:  settle.New(cfg.SettleTime, cfg.SettleThresholdLinear, cfg.SettleThresholdAngular),
		sink:    sink,
		clk:     clk,
		logger:  logger,
	}
	c.state.Retarget(motion.Disabled, cfg.Caps, motion.Target{})
	c.state.OnRetarget(c.settle.Reset)
	return c, nil
}

func (c *Chassis) State() *motion.State {
	return c.state
}

func (c *Chassis) Odom() *odom.Engine {
	return c.odom
}

// Loop runs Tick every period until the context is cancelled, then stops
// the motors.
func (c *Chassis) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer c.logger.Info("control loop exited")

	ticker := c.clk.Ticker(c.cfg.Period)
	defer ticker.Stop()
	defer func() {
		c.state.SetMode(motion.Disabled)
		if err := c.sink.SetGroups(0, 0, actuator.Voltage); err != nil {
			c.logger.Errorw("failed to stop motors", "error", err)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Tick runs one control step.  Disabled and not-yet-specified modes do
// nothing.
func (c *Chassis) Tick() {
	c.tickLock.Lock()
	defer c.tickLock.Unlock()

	snap := c.state.Snapshot()
	if snap.Mode == motion.Disabled || snap.Mode == motion.OdomPose {
		return
	}

	cmd, ok := c.calc.Calculate(snap, c.inputs())
	if !ok {
		return
	}

	left := motion.LimitSpeed(cmd.Left, snap.Caps.MaxSpeed)
	right := motion.LimitSpeed(cmd.Right, snap.Caps.MaxSpeed)
	out := Decompose(snap.Mode, snap.Caps, left, right, cmd.VectorAngle)

	out, ok = c.state.SlewAll(snap.Generation, out, c.cfg.AccelStep)
	if !ok {
		return
	}

	var err error
	if cmd.VectorAngle != 0 {
		err = c.sink.SetCorners(actuator.Corners{
			FrontLeft:  out[motion.FrontLeft],
			BackLeft:   out[motion.BackLeft],
			FrontRight: out[motion.FrontRight],
			BackRight:  out[motion.BackRight],
		}, c.unit())
	} else {
		err = c.sink.SetGroups(out[motion.FrontLeft], out[motion.FrontRight], c.unit())
	}
	if err != nil {
		c.logger.Warnw("failed to set motor speeds", "error", err)
	}
}

// Decompose maps a limited left/right pair onto the four wheels.  With no
// strafe vector each side gets its own value; otherwise the front and back
// diagonals are driven in the vector direction with the turn superimposed.
func Decompose(mode motion.Mode, caps motion.Caps, left, right, vectorAngle float64) [motion.NumChannels]float64 {
	var out [motion.NumChannels]float64
	if vectorAngle == 0 {
		out[motion.FrontLeft], out[motion.BackLeft] = left, left
		out[motion.FrontRight], out[motion.BackRight] = right, right
		return out
	}

	front := math.Sin(math.Pi/4 - vectorAngle)
	back := math.Sin(math.Pi/4 + vectorAngle)

	largestVector := back
	if math.Abs(front) > math.Abs(back) {
		largestVector = front
	}
	largestSpeed := right
	if math.Abs(left) > math.Abs(right) {
		largestSpeed = left
	}

	// The sign of the drive is kept so that a linear strafe can back up
	// after overshooting.
	scale := largestSpeed / math.Abs(largestVector)
	if mode == motion.OdomHoloThru {
		scale = math.Abs(caps.MaxSpeed) / math.Abs(largestVector)
	}
	front *= scale
	back *= scale

	turn := motion.LimitSpeed(right-left, caps.MaxTurn)

	out[motion.FrontLeft] = front - turn
	out[motion.BackLeft] = back - turn
	out[motion.FrontRight] = back + turn
	out[motion.BackRight] = front + turn
	return out
}

func (c *Chassis) inputs() pid.Inputs {
	l, r := c.sensors.Drive()
	return pid.Inputs{
		DriveLeft:     l,
		DriveRight:    r,
		Strafe:        c.sensors.Strafe(),
		Angle:         c.sensors.Angle(),
		HeadingSensor: c.sensors.HeadingSensor(),
		Pose:          c.odom.Pose(),
	}
}

func (c *Chassis) unit() actuator.Unit {
	if c.cfg.UseVelocity {
		return actuator.Velocity
	}
	return actuator.Voltage
}

// sleep waits on the chassis clock.
func (c *Chassis) sleep(ctx context.Context, d time.Duration) error {
	t := c.clk.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
