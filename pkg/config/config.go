// Package config loads the robot configuration from YAML.
package config

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"

	"github.com/tigerbot-team/motionctl/pkg/chassis"
	"github.com/tigerbot-team/motionctl/pkg/motion"
	"github.com/tigerbot-team/motionctl/pkg/odom"
	"github.com/tigerbot-team/motionctl/pkg/pid"
)

const (
	DriveDifferential = "differential"
	DriveXDrive       = "xdrive"

	MotorsPicoBLDC = "picobldc"
	MotorsCAN      = "can"
	MotorsDummy    = "dummy"
)

// Hardware says which drivers the controller binary should start.  Empty
// device paths leave that sensor out.
type Hardware struct {
	Drive  string `yaml:"drive"`
	Motors string `yaml:"motors"`

	I2CBus       string `yaml:"i2c_bus"`
	CANInterface string `yaml:"can_interface"`

	IMUDevice string `yaml:"imu_device"`
	IMUInvert bool   `yaml:"imu_invert"`

	// GyroDevice is an SPI port name, or an i2c-dev path for the I2C
	// variant.  Ignored when an IMU is configured.
	GyroDevice string `yaml:"gyro_device"`
	GyroInvert bool   `yaml:"gyro_invert"`

	Joystick string `yaml:"joystick"`
}

func (h Hardware) Validate() error {
	var err error
	switch h.Drive {
	case DriveDifferential, DriveXDrive:
	default:
		err = multierr.Append(err, errors.Errorf("unknown drive %q", h.Drive))
	}
	switch h.Motors {
	case MotorsPicoBLDC, MotorsDummy:
	case MotorsCAN:
		if h.CANInterface == "" {
			err = multierr.Append(err, errors.New("can motors need can_interface"))
		}
	default:
		err = multierr.Append(err, errors.Errorf("unknown motors %q", h.Motors))
	}
	return err
}

type Config struct {
	// Geometry, when set, overrides the chassis tick constants.
	Geometry chassis.Geometry `yaml:"geometry"`
	Chassis  chassis.Config   `yaml:"chassis"`
	Odom     odom.Config      `yaml:"odom"`
	PID      pid.Gains        `yaml:"pid"`
	Hardware Hardware         `yaml:"hardware"`
}

// Default is a 4 inch wheel, 12.75 inch track differential chassis with a
// serial IMU and no middle tracking wheel.
func Default() Config {
	return Config{
		Chassis: chassis.Config{
			DistanceConstant:       273,
			DegreeConstant:         2.3,
			SettleTime:             3,
			SettleThresholdLinear:  3,
			SettleThresholdAngular: 1,
			AccelStep:              8,
			JoystickThreshold:      10,
			Gearing:                200,
			Caps:                   motion.DefaultCaps(),
			StartupDelay:           chassis.DefaultStartupDelay,
			Period:                 chassis.DefaultPeriod,
		},
		Odom: odom.Config{
			LeftRightDistance: 6.375,
			MiddleDistance:    0,
			LeftRightTPI:      41.7,
			MiddleTPI:         41.7,
			ExitError:         1,
			Period:            odom.DefaultPeriod,
		},
		PID: pid.Gains{
			Linear:       pid.PD{KP: 0.3, KD: 0.5},
			Angular:      pid.PD{KP: 0.8, KD: 3},
			LinearPoint:  pid.PD{KP: 9, KD: 20},
			AngularPoint: pid.PD{KP: 1.2, KD: 4},
			Dif:          0.1,
		},
		Hardware: Hardware{
			Drive:     DriveDifferential,
			Motors:    MotorsPicoBLDC,
			I2CBus:    "/dev/i2c-1",
			IMUDevice: "/dev/ttyAMA0",
			Joystick:  "/dev/input/js0",
		},
	}
}

// Resolve fills the chassis constants from the geometry, when one is given.
func (c Config) Resolve() Config {
	if c.Geometry.WheelDiameter > 0 && c.Geometry.TicksPerRev > 0 {
		c.Chassis.DistanceConstant = c.Geometry.DistanceConstant()
		if c.Geometry.TrackWidth > 0 {
			c.Chassis.DegreeConstant = c.Geometry.DegreeConstant()
		}
	}
	return c
}

func (c Config) Validate() error {
	return multierr.Combine(
		errors.Wrap(c.Chassis.Validate(), "chassis"),
		errors.Wrap(c.Odom.Validate(), "odom"),
		errors.Wrap(c.Hardware.Validate(), "hardware"),
	)
}

// Load reads path over the defaults.  A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return cfg, errors.Wrapf(err, "reading config %s", path)
	default:
		if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parsing config %s", path)
		}
	}
	cfg = cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// WriteInUse records the effective configuration.
func (c Config) WriteInUse(path string) error {
	raw, err := yaml.Marshal(&c)
	if err != nil {
		return errors.Wrap(err, "marshalling config")
	}
	return errors.Wrapf(os.WriteFile(path, raw, 0o666), "writing %s", path)
}
