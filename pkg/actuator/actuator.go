package actuator

import (
	"fmt"
	"sync"

	"github.com/edaniels/golog"
)

// Unit selects how a speed percentage is sent to the motors.
type Unit int

const (
	Voltage Unit = iota
	Velocity
)

func (u Unit) String() string {
	switch u {
	case Voltage:
		return "voltage"
	case Velocity:
		return "velocity"
	default:
		return fmt.Sprintf("unknown(%d)", int(u))
	}
}

// Corners holds one command per wheel.
type Corners struct {
	FrontLeft, FrontRight, BackLeft, BackRight float64
}

// Sink accepts drive commands as percentages of full scale.
type Sink interface {
	// SetGroups drives every motor on each side together.
	SetGroups(left, right float64, unit Unit) error
	// SetCorners drives each wheel independently.
	SetCorners(c Corners, unit Unit) error
}

// Millivolts converts a speed percentage to a motor voltage.
func Millivolts(speed float64) float64 {
	return speed * 120
}

// RPM converts a speed percentage to a velocity for a motor whose top speed
// is gearing rpm.
func RPM(speed, gearing float64) float64 {
	return speed * gearing / 100
}

// Dummy logs every command.
type Dummy struct {
	logger golog.Logger
}

func NewDummy(logger golog.Logger) *Dummy {
	return &Dummy{logger: logger}
}

var _ Sink = (*Dummy)(nil)

func (d *Dummy) SetGroups(left, right float64, unit Unit) error {
	d.logger.Debugw("set groups", "left", left, "right", right, "unit", unit)
	return nil
}

func (d *Dummy) SetCorners(c Corners, unit Unit) error {
	d.logger.Debugw("set corners", "fl", c.FrontLeft, "fr", c.FrontRight, "bl", c.BackLeft, "br", c.BackRight, "unit", unit)
	return nil
}

// Command is one call made on a Recorder.
type Command struct {
	Grouped bool
	Corners Corners
	Unit    Unit
}

// Recorder wraps a sink and remembers the commands sent through it.
type Recorder struct {
	next Sink

	lock     sync.Mutex
	commands []Command
}

func NewRecorder(next Sink) *Recorder {
	return &Recorder{next: next}
}

var _ Sink = (*Recorder)(nil)

func (r *Recorder) SetGroups(left, right float64, unit Unit) error {
	r.record(Command{
		Grouped: true,
		Corners: Corners{FrontLeft: left, BackLeft: left, FrontRight: right, BackRight: right},
		Unit:    unit,
	})
	if r.next == nil {
		return nil
	}
	return r.next.SetGroups(left, right, unit)
}

func (r *Recorder) SetCorners(c Corners, unit Unit) error {
	r.record(Command{Corners: c, Unit: unit})
	if r.next == nil {
		return nil
	}
	return r.next.SetCorners(c, unit)
}

func (r *Recorder) record(c Command) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.commands = append(r.commands, c)
}

// Last returns the most recent command.
func (r *Recorder) Last() (Command, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if len(r.commands) == 0 {
		return Command{}, false
	}
	return r.commands[len(r.commands)-1], true
}

func (r *Recorder) Commands() []Command {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]Command(nil), r.commands...)
}

func (r *Recorder) Clear() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.commands = nil
}
