// Package main drives an autonomous plan on the simulated chassis, faster
// than real time, and draws the odometry trace.
package main

import (
	"context"
	"time"

	"github.com/alecthomas/kong"
	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/tigerbot-team/motionctl/pkg/autonomous"
	"github.com/tigerbot-team/motionctl/pkg/chassis"
	"github.com/tigerbot-team/motionctl/pkg/config"
	"github.com/tigerbot-team/motionctl/pkg/odom"
	"github.com/tigerbot-team/motionctl/pkg/pid"
	"github.com/tigerbot-team/motionctl/pkg/sensors"
	"github.com/tigerbot-team/motionctl/pkg/sim"
	"github.com/tigerbot-team/motionctl/pkg/trace"
)

type arguments struct {
	Config   string        `help:"Robot configuration file; defaults are used when empty." type:"path"`
	Plan     string        `help:"Autonomous plan file; the built-in plan is used when empty." type:"path"`
	Drive    string        `help:"Chassis to simulate." enum:"differential,xdrive" default:"differential"`
	TopSpeed float64       `help:"Wheel speed at full power, in units per second." default:"40"`
	Limit    time.Duration `help:"Simulated time limit." default:"2m"`
	Out      string        `help:"Where to write the trace image; empty to skip." default:"autosim.png"`
	Size     int           `help:"Trace image size in pixels." default:"800"`
}

func main() {
	goutils.ContextualMain(mainWithArgs, golog.NewDevelopmentLogger("autosim"))
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed arguments
	parser, err := kong.New(&argsParsed,
		kong.Name("autosim"),
		kong.Description("Run an autonomous plan on the simulated chassis."),
	)
	if err != nil {
		return err
	}
	if _, err := parser.Parse(args[1:]); err != nil {
		return err
	}

	cfg := config.Default()
	if argsParsed.Config != "" {
		if cfg, err = config.Load(argsParsed.Config); err != nil {
			return err
		}
	}
	plan := autonomous.Default()
	if argsParsed.Plan != "" {
		if plan, err = autonomous.LoadPlan(argsParsed.Plan); err != nil {
			return err
		}
	}

	res, err := simulate(ctx, cfg, plan, simOptions{
		xdrive:   argsParsed.Drive == config.DriveXDrive,
		topSpeed: argsParsed.TopSpeed,
		limit:    argsParsed.Limit,
	}, logger)
	if err != nil {
		return err
	}
	logger.Infow("plan finished",
		"sim_time", res.elapsed,
		"truth", res.truth, "truth_heading", res.truthHeading,
		"pose", res.pose.Position, "pose_heading", res.pose.HeadingDegrees,
	)
	if argsParsed.Out == "" {
		return nil
	}
	if err := res.trace.SavePNG(argsParsed.Out, argsParsed.Size, plan.Targets()...); err != nil {
		return err
	}
	logger.Infow("wrote trace", "path", argsParsed.Out, "poses", res.trace.Len())
	return nil
}

type simOptions struct {
	xdrive   bool
	topSpeed float64
	limit    time.Duration
}

type result struct {
	trace        *trace.Trace
	elapsed      time.Duration
	truth        r2.Point
	truthHeading float64
	pose         odom.Pose
}

// simulate runs plan against a simulated chassis.  A mock clock stands in
// for time: each step advances the model, odometry and control by one
// period, so sleeps in the motion API follow simulated time.
func simulate(ctx context.Context, cfg config.Config, plan autonomous.Plan, opts simOptions, logger golog.Logger) (*result, error) {
	simCfg := sim.Config{
		Kind:         sim.Differential,
		TrackWidth:   2 * cfg.Odom.LeftRightDistance,
		TopSpeed:     opts.topSpeed,
		TicksPerUnit: cfg.Chassis.DistanceConstant,
		IMU:          true,
	}
	if opts.xdrive {
		simCfg.Kind = sim.XDrive
	}
	robot, err := sim.New(simCfg)
	if err != nil {
		return nil, err
	}
	hw := robot.Hardware()
	src, err := sensors.New(hw)
	if err != nil {
		return nil, errors.Wrap(err, "building sensor source")
	}

	// The model's tracking wheels are its drive wheels.
	oc := cfg.Odom
	oc.LeftRightTPI = cfg.Chassis.DistanceConstant
	oc.MiddleTPI = cfg.Chassis.DistanceConstant
	oc.Holonomic = opts.xdrive
	if opts.xdrive {
		oc.MiddleDistance = oc.LeftRightDistance
	}

	mock := clock.NewMock()
	tr := trace.New(0)
	engine := odom.New(oc, src, src.Holonomic(), mock, logger)
	engine.SetRecorder(tr)

	cc := cfg.Chassis
	cc.DegreeConstant = hw.DegreeConstant
	c, err := chassis.New(cc, src, engine, pid.Static(cfg.PID), robot, mock, logger)
	if err != nil {
		return nil, err
	}

	period := cc.Period
	if period == 0 {
		period = chassis.DefaultPeriod
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := mock.Now()
	stepped := make(chan struct{})
	go func() {
		defer close(stepped)
		for runCtx.Err() == nil {
			robot.Step(period)
			engine.Tick()
			c.Tick()
			mock.Add(period)
			if opts.limit > 0 && mock.Since(start) >= opts.limit {
				logger.Warnw("simulated time limit reached", "limit", opts.limit)
				cancel()
			}
		}
	}()

	runErr := autonomous.NewRunner(c, mock, logger).Run(runCtx, plan)
	limited := ctx.Err() == nil && runCtx.Err() != nil
	cancel()
	<-stepped
	if limited {
		return nil, errors.Errorf("plan did not finish within %v of simulated time", opts.limit)
	}
	if runErr != nil {
		return nil, runErr
	}

	truth, heading := robot.Truth()
	return &result{
		trace:        tr,
		elapsed:      mock.Since(start),
		truth:        truth,
		truthHeading: heading,
		pose:         engine.Pose(),
	}, nil
}
