// Package teleop drives the chassis from a joystick and can hand over to an
// autonomous routine.
package teleop

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"

	"github.com/tigerbot-team/motionctl/pkg/joystick"
	"github.com/tigerbot-team/motionctl/pkg/tunable"
)

const DefaultPeriod = 20 * time.Millisecond

// Driver is the chassis' teleop surface.
type Driver interface {
	Arcade(vertical, horizontal float64)
	Holonomic(y, x, z float64)
}

// Routine is an autonomous routine.  It must return when ctx is cancelled.
type Routine func(ctx context.Context) error

// Mode maps sticks onto the chassis:
//
//	arcade:    left stick Y = forward, right stick X = turn
//	holonomic: left stick = translate, right stick X = turn
//
// Cross starts the routine, Circle aborts it, the D-pad selects (left/right)
// and adjusts (up/down) tunables.
type Mode struct {
	driver    Driver
	holonomic bool
	tunables  *tunable.Tunables
	routine   Routine
	clk       clock.Clock
	period    time.Duration
	logger    golog.Logger

	cancel         context.CancelFunc
	stopWG         sync.WaitGroup
	done           chan struct{}
	joystickEvents chan *joystick.Event

	lock        sync.Mutex
	autoRunning bool
	cancelAuto  context.CancelFunc
}

func New(
	driver Driver,
	holonomic bool,
	tunables *tunable.Tunables,
	routine Routine,
	clk clock.Clock,
	logger golog.Logger,
) *Mode {
	if clk == nil {
		clk = clock.New()
	}
	return &Mode{
		driver:         driver,
		holonomic:      holonomic,
		tunables:       tunables,
		routine:        routine,
		clk:            clk,
		period:         DefaultPeriod,
		logger:         logger,
		joystickEvents: make(chan *joystick.Event),
	}
}

func (m *Mode) Name() string {
	return "teleop"
}

func (m *Mode) Start(ctx context.Context) {
	m.stopWG.Add(1)
	m.done = make(chan struct{})
	var loopCtx context.Context
	loopCtx, m.cancel = context.WithCancel(ctx)
	go m.loop(loopCtx)
}

// Stop aborts any running routine and waits for the loop to exit.
func (m *Mode) Stop() {
	m.cancel()
	m.stopWG.Wait()
}

// OnJoystickEvent hands the event to the loop.  Events arriving after the
// loop has exited are dropped.
func (m *Mode) OnJoystickEvent(event *joystick.Event) {
	select {
	case m.joystickEvents <- event:
	case <-m.done:
	}
}

// AutonomousRunning reports whether the routine has control.
func (m *Mode) AutonomousRunning() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.autoRunning
}

func (m *Mode) loop(ctx context.Context) {
	defer m.stopWG.Done()
	defer close(m.done)

	var leftStickX, leftStickY, rightStickX float64
	var autoWG sync.WaitGroup
	defer autoWG.Wait()
	defer m.abortRoutine()

	ticker := m.clk.Ticker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-m.joystickEvents:
			switch event.Type {
			case joystick.EventTypeAxis:
				switch event.Number {
				case joystick.AxisLStickX:
					leftStickX = event.Percent()
				case joystick.AxisLStickY:
					leftStickY = -event.Percent()
				case joystick.AxisRStickX:
					rightStickX = event.Percent()
				case joystick.AxisDPadX:
					m.selectTunable(event.Value)
				case joystick.AxisDPadY:
					m.adjustTunable(event.Value)
				}
			case joystick.EventTypeButton:
				if event.Value != 1 {
					continue
				}
				switch event.Number {
				case joystick.ButtonCross:
					m.startRoutine(ctx, &autoWG)
				case joystick.ButtonCircle:
					m.abortRoutine()
				}
			}
		case <-ticker.C:
			if m.AutonomousRunning() {
				continue
			}
			if m.holonomic {
				m.driver.Holonomic(leftStickY, leftStickX, rightStickX)
			} else {
				m.driver.Arcade(leftStickY, rightStickX)
			}
		}
	}
}

func (m *Mode) startRoutine(ctx context.Context, wg *sync.WaitGroup) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.routine == nil || m.autoRunning {
		return
	}
	var autoCtx context.Context
	autoCtx, m.cancelAuto = context.WithCancel(ctx)
	m.autoRunning = true
	m.logger.Info("starting autonomous routine")

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := m.routine(autoCtx)
		if err != nil && autoCtx.Err() == nil {
			m.logger.Errorw("autonomous routine failed", "error", err)
		} else {
			m.logger.Infow("autonomous routine finished", "error", err)
		}
		m.lock.Lock()
		defer m.lock.Unlock()
		m.autoRunning = false
		m.cancelAuto()
	}()
}

func (m *Mode) abortRoutine() {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.cancelAuto != nil {
		m.cancelAuto()
	}
}

func (m *Mode) selectTunable(value int16) {
	if m.tunables == nil {
		return
	}
	switch {
	case value > 0:
		m.tunables.SelectNext()
	case value < 0:
		m.tunables.SelectPrev()
	}
}

func (m *Mode) adjustTunable(value int16) {
	if m.tunables == nil {
		return
	}
	t := m.tunables.Current()
	if t == nil {
		return
	}
	// D-pad up reads negative.
	switch {
	case value < 0:
		t.Add(1)
	case value > 0:
		t.Add(-1)
	}
}
