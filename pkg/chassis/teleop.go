package chassis

import (
	"math"

	"github.com/tigerbot-team/motionctl/pkg/actuator"
	"github.com/tigerbot-team/motionctl/pkg/motion"
)

// Teleop calls disable autonomous control and write voltages straight to
// the motors.  Inputs within the joystick threshold are treated as zero.

func (c *Chassis) Tank(left, right float64) {
	c.state.SetMode(motion.Disabled)
	c.drive(c.deadband(left), c.deadband(right), actuator.Voltage)
}

func (c *Chassis) Arcade(vertical, horizontal float64) {
	c.state.SetMode(motion.Disabled)
	vertical, horizontal = c.deadband(vertical), c.deadband(horizontal)
	c.drive(vertical+horizontal, vertical-horizontal, actuator.Voltage)
}

// Holonomic drives an X-drive: y forward, x right, z clockwise.
func (c *Chassis) Holonomic(y, x, z float64) {
	c.state.SetMode(motion.Disabled)
	y, x, z = c.deadband(y), c.deadband(x), c.deadband(z)

	c.tickLock.Lock()
	defer c.tickLock.Unlock()
	err := c.sink.SetCorners(actuator.Corners{
		FrontLeft:  y + x + z,
		FrontRight: y - x - z,
		BackLeft:   y - x + z,
		BackRight:  y + x - z,
	}, actuator.Voltage)
	if err != nil {
		c.logger.Warnw("failed to set motor speeds", "error", err)
	}
}

func (c *Chassis) deadband(v float64) float64 {
	if math.Abs(v) > c.cfg.JoystickThreshold {
		return v
	}
	return 0
}
