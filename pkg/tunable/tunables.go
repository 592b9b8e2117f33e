package tunable

import (
	"sync"

	"github.com/edaniels/golog"
	"go.uber.org/atomic"
)

type Tunable struct {
	Name string
	Step float64

	value  atomic.Float64
	logger golog.Logger
}

// Add nudges the value by delta steps.
func (t *Tunable) Add(delta int) {
	newV := t.value.Add(float64(delta) * t.Step)
	t.logger.Infow("tunable", "name", t.Name, "value", newV)
}

func (t *Tunable) Get() float64 {
	return t.value.Load()
}

func (t *Tunable) Set(v float64) {
	t.value.Store(v)
}

type Tunables struct {
	lock     sync.Mutex
	All      []*Tunable
	selected int
	logger   golog.Logger
}

func New(logger golog.Logger) *Tunables {
	return &Tunables{logger: logger}
}

func (t *Tunables) Create(name string, value, step float64) *Tunable {
	t.lock.Lock()
	defer t.lock.Unlock()
	newTunable := &Tunable{
		Name:   name,
		Step:   step,
		logger: t.logger,
	}
	newTunable.value.Store(value)
	t.All = append(t.All, newTunable)
	return newTunable
}

func (t *Tunables) SelectNext() {
	t.lock.Lock()
	t.selected++
	if t.selected >= len(t.All) {
		t.selected = 0
	}
	t.lock.Unlock()
	t.logSelected()
}

func (t *Tunables) SelectPrev() {
	t.lock.Lock()
	t.selected--
	if t.selected < 0 {
		t.selected = len(t.All) - 1
	}
	t.lock.Unlock()
	t.logSelected()
}

func (t *Tunables) logSelected() {
	if c := t.Current(); c != nil {
		t.logger.Infow("tunable selected", "name", c.Name, "value", c.Get())
	}
}

// Current returns the selected tunable, or nil if there are none.
func (t *Tunables) Current() *Tunable {
	t.lock.Lock()
	defer t.lock.Unlock()
	if len(t.All) == 0 {
		return nil
	}
	return t.All[t.selected]
}
