package settle

import (
	"math"
	"sync"

	"github.com/tigerbot-team/motionctl/pkg/motion"
)

// Detector decides that the chassis has stopped once none of its channels
// has moved more than a threshold for Time consecutive samples.
type Detector struct {
	Time             int
	LinearThreshold  float64
	AngularThreshold float64

	lock  sync.Mutex
	prev  [3]float64
	count int
}

func New(time int, linearThreshold, angularThreshold float64) *Detector {
	return &Detector{
		Time:             time,
		LinearThreshold:  linearThreshold,
		AngularThreshold: angularThreshold,
	}
}

// Update takes one sample of the left, right and middle channels and
// reports whether the chassis is settled.
func (d *Detector) Update(left, right, middle float64, mode motion.Mode) bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	thresh := d.LinearThreshold
	if mode == motion.Angular {
		thresh = d.AngularThreshold
	}

	moving := false
	for i, v := range [3]float64{left, right, middle} {
		if math.Abs(v-d.prev[i]) > thresh {
			moving = true
		}
		d.prev[i] = v
	}

	if moving {
		d.count = 0
	} else {
		d.count++
	}
	return d.count > d.Time
}

// Reset restarts the quiet-sample count.  The previous samples are kept.
func (d *Detector) Reset() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.count = 0
}

func (d *Detector) Count() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.count
}
