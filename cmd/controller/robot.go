package main

import (
	"context"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/tigerbot-team/motionctl/pkg/actuator"
	"github.com/tigerbot-team/motionctl/pkg/bno08x"
	"github.com/tigerbot-team/motionctl/pkg/cansink"
	"github.com/tigerbot-team/motionctl/pkg/config"
	"github.com/tigerbot-team/motionctl/pkg/gyro"
	"github.com/tigerbot-team/motionctl/pkg/picobldc"
	"github.com/tigerbot-team/motionctl/pkg/sensors"
)

const (
	pollPeriod       = 10 * time.Millisecond
	gyroCalibrations = 200
)

// robot is the hardware picked by the config: the sensors for the chassis,
// the motor sink, and the background pollers that keep the sensors fresh.
type robot struct {
	hw      sensors.Hardware
	sink    actuator.Sink
	pollers []func(ctx context.Context)
	closers []func() error
}

func (r *robot) Close() error {
	var err error
	for i := len(r.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, r.closers[i]())
	}
	return err
}

func openRobot(cfg config.Config, clk clock.Clock, logger golog.Logger) (_ *robot, err error) {
	hwCfg := cfg.Hardware
	r := &robot{}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, r.Close())
		}
	}()

	var pico picobldc.Interface
	if hwCfg.Motors == config.MotorsDummy || hwCfg.I2CBus == "" {
		pico = picobldc.Dummy(logger)
	} else {
		p, err := picobldc.New(hwCfg.I2CBus, logger)
		if err != nil {
			return nil, err
		}
		pico = p
	}
	r.closers = append(r.closers, pico.Close)

	tracker := picobldc.NewDistanceTracker(pico, logger)
	r.hw = tracker.Hardware()
	r.hw.Holonomic = hwCfg.Drive == config.DriveXDrive
	r.hw.DegreeConstant = cfg.Chassis.DegreeConstant
	r.pollers = append(r.pollers, func(ctx context.Context) {
		tracker.Loop(ctx, clk, pollPeriod)
	})

	switch hwCfg.Motors {
	case config.MotorsPicoBLDC:
		r.sink = picobldc.NewSink(pico)
	case config.MotorsCAN:
		s, err := cansink.Open(hwCfg.CANInterface, cfg.Chassis.Gearing, logger)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, s.Close)
		r.sink = s
	default:
		r.sink = actuator.NewDummy(logger)
	}

	switch {
	case hwCfg.IMUDevice != "":
		imu := bno08x.New(hwCfg.IMUDevice, hwCfg.IMUInvert, logger)
		r.hw.IMU = imu
		r.pollers = append(r.pollers, imu.LoopReadingReports)
	case hwCfg.GyroDevice != "":
		g, err := openGyro(hwCfg.GyroDevice, hwCfg.GyroInvert, logger)
		if err != nil {
			return nil, err
		}
		r.hw.Gyro = g
		r.pollers = append(r.pollers, func(ctx context.Context) {
			g.Loop(ctx, clk, pollPeriod)
		})
	}
	return r, nil
}

func openGyro(device string, invert bool, logger golog.Logger) (*gyro.Gyro, error) {
	var dev *gyro.Device
	var err error
	if strings.HasPrefix(device, "/dev/i2c") {
		dev, err = gyro.NewI2C(device, logger)
	} else {
		dev, err = gyro.NewSPI(device, logger)
	}
	if err != nil {
		return nil, err
	}
	if err := dev.Configure(); err != nil {
		return nil, errors.Wrap(err, "configuring gyro")
	}
	logger.Info("calibrating gyro; keep the robot still")
	if err := dev.Calibrate(gyroCalibrations); err != nil {
		return nil, errors.Wrap(err, "calibrating gyro")
	}
	if err := dev.ResetFIFO(); err != nil {
		return nil, errors.Wrap(err, "resetting gyro FIFO")
	}
	return gyro.New(dev, invert, logger), nil
}
