// Package cansink drives four wheel hub motors over a CAN bus.
package cansink

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/go-daq/canbus"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/tigerbot-team/motionctl/pkg/actuator"
)

const (
	CanIDMotorFr uint32 = 0x0000022A
	CanIDMotorFl uint32 = 0x0000022B
	CanIDMotorRr uint32 = 0x0000022C
	CanIDMotorRl uint32 = 0x0000022D
)

const (
	stateDisable byte = 0x00
	stateEnable  byte = 0x01

	modeSpeed byte = 0x00
)

type motorCommand struct {
	state   byte
	mode    byte
	rpm     int16
	current int16
	encoder int32
}

func (cmd *motorCommand) toFrame(canID uint32) canbus.Frame {
	frame := canbus.Frame{
		ID:   canID,
		Data: make([]byte, 0, 8),
		Kind: canbus.EFF,
	}
	frame.Data = append(frame.Data, (cmd.state&0x0F)|((cmd.mode&0x0F)<<4))
	frame.Data = append(frame.Data, byte(cmd.rpm&0xFF))
	frame.Data = append(frame.Data, byte((cmd.rpm>>8)&0xFF)|byte((cmd.current&0x0F)<<4))
	frame.Data = append(frame.Data, byte((cmd.current>>4)&0x0FF))
	frame.Data = append(frame.Data, byte(cmd.encoder&0xFF))
	frame.Data = append(frame.Data, byte((cmd.encoder>>8)&0xFF))
	frame.Data = append(frame.Data, byte((cmd.encoder>>16)&0xFF))
	frame.Data = append(frame.Data, byte((cmd.encoder>>24)&0xFF))
	return frame
}

type socket interface {
	Send(frame canbus.Frame) (int, error)
	Close() error
}

// Sink sends one speed-mode frame per motor for every command.
type Sink struct {
	socket socket
	// MaxRPM is the wheel speed at 100%.
	MaxRPM float64
	logger golog.Logger
}

var _ actuator.Sink = (*Sink)(nil)

// Open binds a raw CAN socket on iface, e.g. "can0".
func Open(iface string, maxRPM float64, logger golog.Logger) (*Sink, error) {
	s, err := canbus.New()
	if err != nil {
		return nil, errors.Wrap(err, "creating CAN socket")
	}
	if err := s.Bind(iface); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "binding CAN socket to %s", iface), s.Close())
	}
	return &Sink{socket: s, MaxRPM: maxRPM, logger: logger}, nil
}

func (s *Sink) SetGroups(left, right float64, unit actuator.Unit) error {
	return s.SetCorners(actuator.Corners{
		FrontLeft:  left,
		BackLeft:   left,
		FrontRight: right,
		BackRight:  right,
	}, unit)
}

// SetCorners sends speed commands.  The hub controllers only run closed
// loop, so voltage requests are treated as speeds too.
func (s *Sink) SetCorners(c actuator.Corners, _ actuator.Unit) error {
	frames := []struct {
		id    uint32
		speed float64
	}{
		{CanIDMotorFr, c.FrontRight},
		{CanIDMotorFl, c.FrontLeft},
		{CanIDMotorRr, c.BackRight},
		{CanIDMotorRl, c.BackLeft},
	}
	var err error
	for _, f := range frames {
		cmd := motorCommand{
			state: stateEnable,
			mode:  modeSpeed,
			rpm:   s.rpm(f.speed),
		}
		frame := cmd.toFrame(f.id)
		s.logger.Debugw("frame", "id", f.id, "data", frame.Data)
		if _, sendErr := s.socket.Send(frame); sendErr != nil {
			err = multierr.Append(err, errors.Wrapf(sendErr, "sending to motor %#x", f.id))
		}
	}
	return err
}

func (s *Sink) rpm(speed float64) int16 {
	rpm := math.Round(actuator.RPM(speed, s.MaxRPM))
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, rpm)))
}

// Close disables the motors and closes the socket.
func (s *Sink) Close() error {
	var err error
	for _, id := range []uint32{CanIDMotorFr, CanIDMotorFl, CanIDMotorRr, CanIDMotorRl} {
		cmd := motorCommand{state: stateDisable, mode: modeSpeed}
		if _, sendErr := s.socket.Send(cmd.toFrame(id)); sendErr != nil {
			err = multierr.Append(err, sendErr)
		}
	}
	return multierr.Combine(err, s.socket.Close())
}
