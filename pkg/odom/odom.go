// Package odom estimates the chassis pose by integrating tracking-wheel
// deltas along circular arcs.
//
// World frame: a heading of 0 faces +Y, headings grow clockwise and X grows
// to the right.
package odom

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/motionctl/pkg/angle"
	"github.com/tigerbot-team/motionctl/pkg/sensors"
)

const DefaultPeriod = 10 * time.Millisecond

type Config struct {
	// LeftRightDistance is the distance from the tracking centre to each
	// side wheel.
	LeftRightDistance float64 `yaml:"left_right_distance"`
	// MiddleDistance is the offset of the perpendicular tracking wheel.
	MiddleDistance float64 `yaml:"middle_distance"`
	LeftRightTPI   float64 `yaml:"left_right_tpi"`
	MiddleTPI      float64 `yaml:"middle_tpi"`
	// ExitError is how close a point move must get before it counts as
	// arrived.
	ExitError float64 `yaml:"exit_error"`
	Holonomic bool    `yaml:"holonomic"`
	Debug     bool    `yaml:"debug"`

	Period time.Duration `yaml:"period"`
}

func (c Config) Validate() error {
	if c.LeftRightDistance <= 0 {
		return errors.Errorf("left_right_distance must be positive, got %v", c.LeftRightDistance)
	}
	if c.LeftRightTPI == 0 {
		return errors.New("left_right_tpi must be non-zero")
	}
	if c.MiddleTPI == 0 {
		return errors.New("middle_tpi must be non-zero")
	}
	if c.ExitError < 0 {
		return errors.Errorf("exit_error must not be negative, got %v", c.ExitError)
	}
	return nil
}

// Pose is a snapshot of the position estimate.
type Pose struct {
	Position r2.Point
	// Heading is in radians and is not wrapped.
	Heading        float64
	HeadingDegrees float64
}

// Source is the subset of the sensor source used for tracking.
type Source interface {
	Tracking() sensors.Reading
	Angle() float64
	HeadingSensor() bool
	HasMiddle() bool
	ResetAngle(deg float64)
}

// Recorder receives every pose the engine produces.
type Recorder interface {
	Record(p Pose)
}

type Engine struct {
	cfg       Config
	source    Source
	holonomic bool
	clk       clock.Clock
	logger    golog.Logger

	lock        sync.RWMutex
	pose        Pose
	prev        sensors.Reading
	prevHeading float64
	recorder    Recorder
}

// New creates an engine.  holonomic is the sensor source's verdict, which
// takes precedence over the configured flag.  A source without a middle
// channel tracks as if the middle wheel sat on the centre line.
func New(cfg Config, source Source, holonomic bool, clk clock.Clock, logger golog.Logger) *Engine {
	if cfg.Period == 0 {
		cfg.Period = DefaultPeriod
	}
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Holonomic && !holonomic {
		logger.Infow("holonomic odometry disabled; chassis has tracking encoders")
	}
	if cfg.MiddleDistance != 0 && !source.HasMiddle() {
		logger.Infow("ignoring middle_distance; chassis has no middle tracking channel", "middle_distance", cfg.MiddleDistance)
		cfg.MiddleDistance = 0
	}
	return &Engine{
		cfg:       cfg,
		source:    source,
		holonomic: cfg.Holonomic && holonomic,
		clk:       clk,
		logger:    logger,
	}
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) SetRecorder(r Recorder) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.recorder = r
}

// Loop runs Tick every period until the context is cancelled.
func (e *Engine) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer e.logger.Info("odometry loop exited")

	ticker := e.clk.Ticker(e.cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Tick integrates one sample.
func (e *Engine) Tick() {
	e.lock.Lock()

	// Sensors are read under the lock so that a concurrent Tare can't land
	// between the read and the prev update.
	r := e.source.Tracking()
	absolute := e.source.HeadingSensor()
	var headingDeg float64
	if absolute {
		headingDeg = e.source.Angle()
	}

	dLeft := (r.Left - e.prev.Left) / e.cfg.LeftRightTPI
	dRight := (r.Right - e.prev.Right) / e.cfg.LeftRightTPI
	dMiddle := (r.Middle - e.prev.Middle) / e.cfg.MiddleTPI

	var dTheta float64
	if absolute {
		e.pose.Heading = angle.Radians(headingDeg)
		dTheta = e.pose.Heading - e.prevHeading
	} else {
		dTheta = (dLeft - dRight) / (2 * e.cfg.LeftRightDistance)
		e.pose.Heading += dTheta
	}
	e.pose.HeadingDegrees = angle.Degrees(e.pose.Heading)

	e.prev = r
	e.prevHeading = e.pose.Heading

	local := localDisplacement(dRight, dMiddle, dTheta, e.cfg.LeftRightDistance, e.cfg.MiddleDistance)

	p := e.pose.Heading - dTheta/2
	if e.holonomic {
		p -= math.Pi / 4
	}
	sin, cos := math.Sincos(p)
	e.pose.Position.Y += cos*local.Y - sin*local.X
	e.pose.Position.X += sin*local.Y + cos*local.X

	pose := e.pose
	rec := e.recorder
	e.lock.Unlock()

	if e.cfg.Debug {
		e.logger.Debugw("pose", "x", pose.Position.X, "y", pose.Position.Y, "heading", pose.HeadingDegrees)
	}
	if rec != nil {
		rec.Record(pose)
	}
}

// localDisplacement returns the robot-frame displacement for one tick: Y is
// forward, X is to the right.  A turning tick is treated as a circular arc
// and reduced to its chord.
func localDisplacement(dRight, dMiddle, dTheta, leftRightDistance, middleDistance float64) r2.Point {
	if dTheta == 0 {
		return r2.Point{X: dMiddle, Y: dRight}
	}
	chord := 2 * math.Sin(dTheta/2)
	return r2.Point{
		X: (dMiddle/dTheta + middleDistance) * chord,
		Y: (dRight/dTheta + leftRightDistance) * chord,
	}
}

func (e *Engine) Pose() Pose {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.pose
}

// Reset moves the position estimate without touching the heading.
func (e *Engine) Reset(p r2.Point) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.pose.Position = p
}

// ResetWithHeading moves the estimate and re-zeroes the heading sensor so
// that it reads deg.
func (e *Engine) ResetWithHeading(p r2.Point, deg float64) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.pose.Position = p
	e.pose.Heading = angle.Radians(deg)
	e.pose.HeadingDegrees = deg
	e.prevHeading = e.pose.Heading
	e.source.ResetAngle(deg)
}

// Tare runs zero (normally a sensor tare) and forgets the previous sample, as
// one step with respect to Tick.
func (e *Engine) Tare(zero func()) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.prev = sensors.Reading{}
	if zero != nil {
		zero()
	}
}

func (e *Engine) AngleError(target r2.Point) (float64, error) {
	return AngleError(e.Pose(), target)
}

func (e *Engine) DistanceError(target r2.Point) float64 {
	return DistanceError(e.Pose(), target)
}

// AngleError is the signed angle, in (-π, π], that the chassis must turn
// anticlockwise to face target.  Negative means turn clockwise.  A target at
// the current position gives 0.
func AngleError(pose Pose, target r2.Point) (float64, error) {
	d := target.Sub(pose.Position)
	if d.X == 0 && d.Y == 0 {
		return 0, nil
	}
	e, err := angle.WrapRadians(pose.Heading - math.Atan2(d.X, d.Y))
	if err != nil {
		return 0, errors.Wrapf(err, "angle error from %v to %v", pose.Position, target)
	}
	return e, nil
}

func DistanceError(pose Pose, target r2.Point) float64 {
	return target.Sub(pose.Position).Norm()
}
