package picobldc

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"

	"github.com/tigerbot-team/motionctl/pkg/sensors"
)

// Motor slots, in register order.
const (
	BackRight = iota
	FrontRight
	FrontLeft
	BackLeft
	NumMotors
)

// PerMotorVal holds one value per motor, indexed by the slot constants.
type PerMotorVal[T any] [NumMotors]T

type distanceProvider interface {
	RawDistancesTraveled() (PerMotorVal[int16], error)
}

// TicksPerRotation is the resolution of the travel counters.
const TicksPerRotation = 256

// DistanceTracker unwraps the controller's 16-bit travel counters into
// running totals.  Poll must run often enough that no counter moves more
// than half its range between polls.
type DistanceTracker struct {
	pico   distanceProvider
	logger golog.Logger

	lock          sync.Mutex
	doneFirstPoll bool
	lastRawValues PerMotorVal[int16]
	accumulator   PerMotorVal[int64]
}

func NewDistanceTracker(pico distanceProvider, logger golog.Logger) *DistanceTracker {
	return &DistanceTracker{
		pico:   pico,
		logger: logger,
	}
}

func (d *DistanceTracker) Poll() error {
	raw, err := d.pico.RawDistancesTraveled()
	if err != nil {
		return err
	}

	d.lock.Lock()
	defer d.lock.Unlock()
	if d.doneFirstPoll {
		for m, newD := range raw {
			oldD := d.lastRawValues[m]
			delta := newD - oldD
			d.accumulator[m] += int64(delta)
		}
	}

	d.lastRawValues = raw
	d.doneFirstPoll = true
	return nil
}

// Loop polls every period until ctx is cancelled.
func (d *DistanceTracker) Loop(ctx context.Context, clk clock.Clock, period time.Duration) {
	ticker := clk.Ticker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Poll(); err != nil {
				d.logger.Warnw("failed to poll wheel travel", "error", err)
			}
		}
	}
}

func (d *DistanceTracker) AccumulatedRotations() (rotations PerMotorVal[float64]) {
	d.lock.Lock()
	defer d.lock.Unlock()
	for m, v := range d.accumulator {
		rotations[m] = float64(v) / TicksPerRotation
	}
	return
}

func (d *DistanceTracker) Zero() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.accumulator = PerMotorVal[int64]{}
}

func (d *DistanceTracker) ticks(m int) float64 {
	d.lock.Lock()
	defer d.lock.Unlock()
	return float64(d.accumulator[m])
}

// Motor returns a position handle for one slot.  Positions are in counter
// ticks.  Reversed flips the sign for motors mounted the other way round.
func (d *DistanceTracker) Motor(slot int, reversed bool) sensors.Motor {
	sign := 1.0
	if reversed {
		sign = -1
	}
	return &motorPosition{tracker: d, slot: slot, sign: sign}
}

// Hardware returns the four corner motors.  The right-hand motors face the
// other way, so their counts are negated.
func (d *DistanceTracker) Hardware() sensors.Hardware {
	return sensors.Hardware{
		FrontLeft:  d.Motor(FrontLeft, false),
		BackLeft:   d.Motor(BackLeft, false),
		FrontRight: d.Motor(FrontRight, true),
		BackRight:  d.Motor(BackRight, true),
	}
}

type motorPosition struct {
	tracker *DistanceTracker
	slot    int
	sign    float64

	lock sync.Mutex
	tare float64
}

func (m *motorPosition) Position() float64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.sign*m.tracker.ticks(m.slot) - m.tare
}

func (m *motorPosition) TarePosition() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.tare = m.sign * m.tracker.ticks(m.slot)
}
