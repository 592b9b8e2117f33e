package motion

import (
	"sync"

	"github.com/golang/geo/r2"
)

// NumChannels is the number of slew-limited outputs: front-left, back-left,
// front-right, back-right.
const NumChannels = 4

const (
	FrontLeft = iota
	BackLeft
	FrontRight
	BackRight
)

// Caps bound the commanded speeds, in percent.
type Caps struct {
	MaxSpeed   float64 `yaml:"max_speed"`
	MaxTurn    float64 `yaml:"max_turn"`
	MaxAngular float64 `yaml:"max_angular"`
}

func DefaultCaps() Caps {
	return Caps{MaxSpeed: 100, MaxTurn: 100, MaxAngular: 50}
}

// Target is what the active mode is driving toward.
type Target struct {
	// Linear is a distance in encoder ticks.
	Linear float64
	// Angular is a heading in degrees.
	Angular float64
	// VectorAngle is the strafe direction in radians, zero for ordinary
	// differential moves.
	VectorAngle float64

	Point     r2.Point
	Backwards bool

	PointCircle r2.Point
	PoseRadius  float64
}

// Snapshot is a consistent copy of the state, taken once per tick.
type Snapshot struct {
	Mode   Mode
	Caps   Caps
	Target Target
	Slew   [NumChannels]float64
	// Generation increments on every Retarget so that readers can spot a new
	// motion.
	Generation uint64
}

// State is the motion context shared between the API and the control loop.
type State struct {
	controlLock sync.Mutex
	controls    Snapshot
	onRetarget  []func()
}

func NewState() *State {
	s := &State{}
	s.controls.Caps = DefaultCaps()
	return s
}

// OnRetarget registers a hook run, under the state lock, whenever a new
// motion starts.  Used to zero counters that live outside the state.
func (s *State) OnRetarget(f func()) {
	s.controlLock.Lock()
	defer s.controlLock.Unlock()
	s.onRetarget = append(s.onRetarget, f)
}

// Retarget starts a new motion: slew memory is zeroed and the mode, caps and
// target are replaced together.
func (s *State) Retarget(mode Mode, caps Caps, target Target) {
	s.controlLock.Lock()
	defer s.controlLock.Unlock()

	s.controls.Mode = mode
	s.controls.Caps = caps
	s.controls.Target = target
	s.controls.Slew = [NumChannels]float64{}
	s.controls.Generation++
	for _, f := range s.onRetarget {
		f()
	}
}

func (s *State) Snapshot() Snapshot {
	s.controlLock.Lock()
	defer s.controlLock.Unlock()
	return s.controls
}

func (s *State) Mode() Mode {
	s.controlLock.Lock()
	defer s.controlLock.Unlock()
	return s.controls.Mode
}

func (s *State) SetMode(m Mode) {
	s.controlLock.Lock()
	defer s.controlLock.Unlock()
	s.controls.Mode = m
}

func (s *State) Caps() Caps {
	s.controlLock.Lock()
	defer s.controlLock.Unlock()
	return s.controls.Caps
}

func (s *State) SetVectorAngle(rad float64) {
	s.controlLock.Lock()
	defer s.controlLock.Unlock()
	s.controls.Target.VectorAngle = rad
}

// SlewAll rate limits the four outputs against the stored slew memory and
// records the results.  If a Retarget happened since generation was read the
// outputs are dropped and zeros returned.
func (s *State) SlewAll(generation uint64, outputs [NumChannels]float64, step float64) ([NumChannels]float64, bool) {
	s.controlLock.Lock()
	defer s.controlLock.Unlock()
	if generation != s.controls.Generation {
		return [NumChannels]float64{}, false
	}
	for i := range outputs {
		s.controls.Slew[i] = Slew(outputs[i], step, s.controls.Slew[i])
		outputs[i] = s.controls.Slew[i]
	}
	return outputs, true
}

// SlewUniform slews channel 0 toward target and copies the result to every
// channel, for open-loop drives that run outside the control loop.
func (s *State) SlewUniform(target, step float64) float64 {
	s.controlLock.Lock()
	defer s.controlLock.Unlock()
	v := Slew(target, step, s.controls.Slew[0])
	for i := range s.controls.Slew {
		s.controls.Slew[i] = v
	}
	return v
}
