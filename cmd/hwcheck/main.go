// Package main holds bring-up checks for the chassis hardware: the motor
// controller, the pad and the heading sensors.
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/tigerbot-team/motionctl/pkg/bno08x"
	"github.com/tigerbot-team/motionctl/pkg/gyro"
	"github.com/tigerbot-team/motionctl/pkg/joystick"
	"github.com/tigerbot-team/motionctl/pkg/picobldc"
)

type runContext struct {
	ctx    context.Context
	logger golog.Logger
}

type arguments struct {
	Pico     picoCmd     `cmd:"" help:"Spin the motors slowly and print controller telemetry."`
	Joystick joystickCmd `cmd:"" help:"Print pad events."`
	IMU      imuCmd      `cmd:"" name:"imu" help:"Print BNO08x reports and the unwrapped heading."`
	Gyro     gyroCmd     `cmd:"" help:"Zero the rate gyro bias and print the integrated heading."`
}

func main() {
	goutils.ContextualMain(mainWithArgs, golog.NewDevelopmentLogger("hwcheck"))
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed arguments
	parser, err := kong.New(&argsParsed, kong.Name("hwcheck"))
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args[1:])
	if err != nil {
		return err
	}
	return kctx.Run(&runContext{ctx: ctx, logger: logger})
}

// every calls f each period until ctx is done.
func every(ctx context.Context, period time.Duration, f func() error) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		if err := f(); err != nil {
			return err
		}
		if !goutils.SelectContextOrWaitChan(ctx, ticker.C) {
			return nil
		}
	}
}

type picoCmd struct {
	Bus      string        `help:"I2C bus." default:"/dev/i2c-1"`
	Speed    int16         `help:"Raw speed register value for every motor." default:"1000"`
	Watchdog time.Duration `help:"Controller watchdog timeout." default:"1s"`
}

func (c *picoCmd) Run(rc *runContext) (err error) {
	pico, err := picobldc.New(c.Bus, rc.logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, pico.Close())
	}()
	if err := pico.SetWatchdog(c.Watchdog); err != nil {
		return err
	}
	tracker := picobldc.NewDistanceTracker(pico, rc.logger)

	return every(rc.ctx, 500*time.Millisecond, func() error {
		speeds := picobldc.PerMotorVal[int16]{c.Speed, c.Speed, c.Speed, c.Speed}
		if err := pico.SetMotorSpeeds(speeds); err != nil {
			rc.logger.Warnw("failed to set speeds", "error", err)
		}
		if err := tracker.Poll(); err != nil {
			rc.logger.Warnw("failed to read travel", "error", err)
		}
		volts, vErr := pico.BattVolts()
		amps, aErr := pico.CurrentAmps()
		temp, tErr := pico.TemperatureC()
		status, sErr := pico.Status()
		if err := multierr.Combine(vErr, aErr, tErr, sErr); err != nil {
			rc.logger.Warnw("failed to read telemetry", "error", err)
		}
		rc.logger.Infow("pico",
			"volts", volts, "amps", amps, "temp_c", temp, "status", fmt.Sprintf("%#x", status),
			"rotations", tracker.AccumulatedRotations(),
		)
		return nil
	})
}

type joystickCmd struct {
	Device string `help:"Joystick device." default:"/dev/input/js0"`
}

func (c *joystickCmd) Run(rc *runContext) error {
	j, err := joystick.NewJoystick(c.Device, rc.logger)
	if err != nil {
		return err
	}
	go func() {
		<-rc.ctx.Done()
		goutils.UncheckedError(j.Close())
	}()
	events := make(chan *joystick.Event)
	go j.Loop(rc.ctx, events)
	for event := range events {
		rc.logger.Infow("event", "event", event.String(), "percent", event.Percent())
	}
	return nil
}

type imuCmd struct {
	Device string `help:"Serial device." default:"/dev/ttyAMA0"`
	Invert bool   `help:"Negate the yaw."`
}

func (c *imuCmd) Run(rc *runContext) error {
	imu := bno08x.New(c.Device, c.Invert, rc.logger)
	ctx, cancel := context.WithCancel(rc.ctx)
	defer cancel()
	go imu.LoopReadingReports(ctx)

	if _, err := imu.WaitForReportAfter(time.Now(), 5*time.Second); err != nil {
		return err
	}
	imu.SetRotation(0)
	return every(ctx, 200*time.Millisecond, func() error {
		rc.logger.Infow("imu", "report", imu.CurrentReport().String(), "rotation", imu.Rotation())
		return nil
	})
}

type gyroCmd struct {
	Device  string `help:"SPI port, or an i2c-dev path." default:"/dev/spidev0.0"`
	Samples int    `help:"Samples to average for the bias." default:"200"`
	Invert  bool   `help:"Negate the rate."`
}

func (c *gyroCmd) Run(rc *runContext) error {
	var dev *gyro.Device
	var err error
	if strings.HasPrefix(c.Device, "/dev/i2c") {
		dev, err = gyro.NewI2C(c.Device, rc.logger)
	} else {
		dev, err = gyro.NewSPI(c.Device, rc.logger)
	}
	if err != nil {
		return err
	}
	if err := dev.Configure(); err != nil {
		return err
	}
	if err := dev.Calibrate(c.Samples); err != nil {
		return err
	}
	if err := dev.ResetFIFO(); err != nil {
		return err
	}
	g := gyro.New(dev, c.Invert, rc.logger)
	ctx, cancel := context.WithCancel(rc.ctx)
	defer cancel()
	go g.Loop(ctx, clock.New(), 10*time.Millisecond)

	return every(ctx, 200*time.Millisecond, func() error {
		rate, err := dev.ReadRate()
		if err != nil {
			return err
		}
		rc.logger.Infow("gyro", "heading", g.Value()/10, "rate_dps", float64(rate)*dev.DegreesPerLSB())
		return nil
	})
}
