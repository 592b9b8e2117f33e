// Package autonomous runs scripted sequences of chassis motions, loaded
// from YAML.
package autonomous

import (
	"context"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"

	"github.com/tigerbot-team/motionctl/pkg/chassis"
)

const (
	OpMove    = "move"
	OpTurn    = "turn"
	OpTurnTo  = "turn_to"
	OpHolo    = "holo"
	OpMoveTo  = "move_to"
	OpHoloTo  = "holo_to"
	OpReset   = "reset"
	OpWait    = "wait"
	OpVoltage = "voltage"

	// DefaultMax is used when a step leaves max unset.
	DefaultMax = 100
)

// Chassis is the part of the motion API that plans use.
type Chassis interface {
	Move(ctx context.Context, distance, max float64) error
	Turn(ctx context.Context, degrees, max float64) error
	TurnAbsolute(ctx context.Context, degrees, max float64) error
	Holo(ctx context.Context, distance, degrees, max float64) error
	MoveTo(ctx context.Context, point r2.Point, max float64, flags chassis.Flags) error
	HoloTo(ctx context.Context, point r2.Point, degrees, max, turnMax float64, flags chassis.Flags) error
	Voltage(ctx context.Context, d time.Duration, left, right float64) error
	ResetPoseWithHeading(point r2.Point, degrees float64)
}

// Step is one motion.  Which fields matter depends on Op:
//
//	move      distance
//	turn      heading (relative)
//	turn_to   heading (absolute)
//	holo      distance, direction
//	move_to   x, y, flags
//	holo_to   x, y, heading, turn_max, thru
//	reset     x, y, heading
//	wait      duration
//	voltage   left, right, duration
type Step struct {
	Op        string        `yaml:"op"`
	Distance  float64       `yaml:"distance,omitempty"`
	Heading   float64       `yaml:"heading,omitempty"`
	Direction float64       `yaml:"direction,omitempty"`
	X         float64       `yaml:"x,omitempty"`
	Y         float64       `yaml:"y,omitempty"`
	Max       float64       `yaml:"max,omitempty"`
	TurnMax   float64       `yaml:"turn_max,omitempty"`
	Left      float64       `yaml:"left,omitempty"`
	Right     float64       `yaml:"right,omitempty"`
	Duration  time.Duration `yaml:"duration,omitempty"`
	Thru      bool          `yaml:"thru,omitempty"`
	Backwards bool          `yaml:"backwards,omitempty"`
	NoSettle  bool          `yaml:"no_settle,omitempty"`
}

func (s Step) Point() r2.Point {
	return r2.Point{X: s.X, Y: s.Y}
}

func (s Step) Flags() chassis.Flags {
	var f chassis.Flags
	if s.Thru {
		f |= chassis.Thru
	}
	if s.Backwards {
		f |= chassis.Backwards
	}
	if s.NoSettle {
		f |= chassis.NoSettle
	}
	return f
}

func (s Step) max() float64 {
	if s.Max == 0 {
		return DefaultMax
	}
	return s.Max
}

func (s Step) turnMax() float64 {
	if s.TurnMax == 0 {
		return DefaultMax
	}
	return s.TurnMax
}

func (s Step) Validate() error {
	switch s.Op {
	case OpMove, OpTurn, OpTurnTo, OpHolo, OpMoveTo, OpHoloTo, OpReset:
	case OpWait, OpVoltage:
		if s.Duration <= 0 {
			return errors.Errorf("%s needs a positive duration", s.Op)
		}
	default:
		return errors.Errorf("unknown op %q", s.Op)
	}
	if s.Max < 0 || s.TurnMax < 0 {
		return errors.Errorf("%s: max and turn_max must not be negative", s.Op)
	}
	if s.Op == OpHoloTo && s.Backwards {
		return errors.New("holo_to cannot drive backwards")
	}
	return nil
}

type Plan struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

func (p Plan) Validate() error {
	var err error
	if len(p.Steps) == 0 {
		err = multierr.Append(err, errors.New("plan has no steps"))
	}
	for i, s := range p.Steps {
		err = multierr.Append(err, errors.Wrapf(s.Validate(), "step %d", i))
	}
	return err
}

// Default drives out two feet and reverses back to the start.
func Default() Plan {
	return Plan{
		Name: "out-and-back",
		Steps: []Step{
			{Op: OpReset},
			{Op: OpMoveTo, Y: 24, Max: 80, Thru: true},
			{Op: OpMoveTo, Y: 36, Max: 50},
			{Op: OpTurnTo, Heading: 90, Max: 60},
			{Op: OpMoveTo, Max: 60, Backwards: true},
			{Op: OpTurnTo, Max: 60},
		},
	}
}

func LoadPlan(path string) (Plan, error) {
	var p Plan
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, errors.Wrapf(err, "reading plan %s", path)
	}
	if err := yaml.UnmarshalStrict(raw, &p); err != nil {
		return p, errors.Wrapf(err, "parsing plan %s", path)
	}
	return p, errors.Wrapf(p.Validate(), "invalid plan %s", path)
}

// Targets lists the points the plan drives to, for drawing.
func (p Plan) Targets() []r2.Point {
	var pts []r2.Point
	for _, s := range p.Steps {
		if s.Op == OpMoveTo || s.Op == OpHoloTo {
			pts = append(pts, s.Point())
		}
	}
	return pts
}

type Runner struct {
	chassis Chassis
	clk     clock.Clock
	logger  golog.Logger
}

func NewRunner(c Chassis, clk clock.Clock, logger golog.Logger) *Runner {
	if clk == nil {
		clk = clock.New()
	}
	return &Runner{chassis: c, clk: clk, logger: logger}
}

// Run executes the plan in order, stopping at the first failure.
func (r *Runner) Run(ctx context.Context, p Plan) error {
	if err := p.Validate(); err != nil {
		return err
	}
	start := r.clk.Now()
	for i, s := range p.Steps {
		r.logger.Infow("plan step", "plan", p.Name, "step", i, "op", s.Op)
		if err := r.step(ctx, s); err != nil {
			return errors.Wrapf(err, "%s step %d (%s)", p.Name, i, s.Op)
		}
	}
	r.logger.Infow("plan complete", "plan", p.Name, "took", r.clk.Since(start))
	return nil
}

// Routine binds the plan for use as a teleop routine.
func (r *Runner) Routine(p Plan) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return r.Run(ctx, p)
	}
}

func (r *Runner) step(ctx context.Context, s Step) error {
	c := r.chassis
	switch s.Op {
	case OpMove:
		return c.Move(ctx, s.Distance, s.max())
	case OpTurn:
		return c.Turn(ctx, s.Heading, s.max())
	case OpTurnTo:
		return c.TurnAbsolute(ctx, s.Heading, s.max())
	case OpHolo:
		return c.Holo(ctx, s.Distance, s.Direction, s.max())
	case OpMoveTo:
		return c.MoveTo(ctx, s.Point(), s.max(), s.Flags())
	case OpHoloTo:
		return c.HoloTo(ctx, s.Point(), s.Heading, s.max(), s.turnMax(), s.Flags())
	case OpReset:
		c.ResetPoseWithHeading(s.Point(), s.Heading)
		return nil
	case OpWait:
		return r.wait(ctx, s.Duration)
	case OpVoltage:
		return c.Voltage(ctx, s.Duration, s.Left, s.Right)
	}
	return errors.Errorf("unknown op %q", s.Op)
}

func (r *Runner) wait(ctx context.Context, d time.Duration) error {
	t := r.clk.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
