// Package main runs the chassis: control and odometry loops, joystick
// teleop, and an autonomous plan started from the pad.
package main

import (
	"context"
	"sync"

	"github.com/alecthomas/kong"
	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/tigerbot-team/motionctl/pkg/autonomous"
	"github.com/tigerbot-team/motionctl/pkg/chassis"
	"github.com/tigerbot-team/motionctl/pkg/config"
	"github.com/tigerbot-team/motionctl/pkg/joystick"
	"github.com/tigerbot-team/motionctl/pkg/odom"
	"github.com/tigerbot-team/motionctl/pkg/pid"
	"github.com/tigerbot-team/motionctl/pkg/sensors"
	"github.com/tigerbot-team/motionctl/pkg/teleop"
	"github.com/tigerbot-team/motionctl/pkg/tunable"
)

type arguments struct {
	Config string `help:"Robot configuration file." default:"/etc/motionctl/config.yaml" type:"path"`
	InUse  string `help:"Where to record the configuration in use; empty to skip." default:"/tmp/motionctl-in-use.yaml"`
	Plan   string `help:"Autonomous plan file; the built-in plan is used when empty." type:"path"`
	Auto   bool   `help:"Run the plan once at startup instead of waiting for the pad."`
}

func main() {
	goutils.ContextualMain(mainWithArgs, golog.NewDevelopmentLogger("motionctl"))
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) (err error) {
	var argsParsed arguments
	parser, err := kong.New(&argsParsed,
		kong.Name("controller"),
		kong.Description("Chassis motion controller."),
	)
	if err != nil {
		return err
	}
	if _, err := parser.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(argsParsed.Config)
	if err != nil {
		return err
	}
	if argsParsed.InUse != "" {
		if err := cfg.WriteInUse(argsParsed.InUse); err != nil {
			logger.Warnw("failed to record config", "error", err)
		}
	}

	plan := autonomous.Default()
	if argsParsed.Plan != "" {
		if plan, err = autonomous.LoadPlan(argsParsed.Plan); err != nil {
			return err
		}
	}

	clk := clock.New()
	r, err := openRobot(cfg, clk, logger.Named("hw"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, r.Close())
	}()

	src, err := sensors.New(r.hw)
	if err != nil {
		return errors.Wrap(err, "building sensor source")
	}
	logger.Infow("sensors ready", "sensors", src.Describe())

	tunables := tunable.New(logger)
	gains := pid.NewTunableGains(tunables, cfg.PID)
	engine := odom.New(cfg.Odom, src, src.Holonomic(), clk, logger.Named("odom"))
	c, err := chassis.New(cfg.Chassis, src, engine, gains, r.sink, clk, logger.Named("chassis"))
	if err != nil {
		return err
	}
	runner := autonomous.NewRunner(c, clk, logger.Named("auto"))

	loopCtx, cancelLoops := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancelLoops()
		wg.Wait()
	}()
	for _, poll := range r.pollers {
		poll := poll
		wg.Add(1)
		goutils.ManagedGo(func() {
			poll(loopCtx)
		}, wg.Done)
	}
	wg.Add(2)
	go engine.Loop(loopCtx, &wg)
	go c.Loop(loopCtx, &wg)

	if argsParsed.Auto {
		return runner.Run(ctx, plan)
	}
	if cfg.Hardware.Joystick == "" {
		return errors.New("no joystick configured; use --auto to run the plan")
	}

	mode := teleop.New(c, cfg.Hardware.Drive == config.DriveXDrive, tunables, runner.Routine(plan), clk, logger.Named("teleop"))
	mode.Start(ctx)
	defer mode.Stop()

	return runJoystick(ctx, cfg.Hardware.Joystick, mode, logger)
}

// runJoystick feeds pad events to the mode until the pad goes away or ctx
// is cancelled.
func runJoystick(ctx context.Context, device string, mode *teleop.Mode, logger golog.Logger) error {
	j, err := joystick.NewJoystick(device, logger)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Closing the device is the only way to unblock a pending read.
	go func() {
		<-ctx.Done()
		if err := j.Close(); err != nil {
			logger.Debugw("closing joystick", "error", err)
		}
	}()

	events := make(chan *joystick.Event)
	go j.Loop(ctx, events)
	logger.Infow("joystick ready", "device", device)

	for event := range events {
		mode.OnJoystickEvent(event)
	}
	if ctx.Err() != nil {
		return nil
	}
	return errors.New("joystick disconnected")
}
