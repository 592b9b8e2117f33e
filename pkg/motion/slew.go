package motion

import (
	"math"

	"golang.org/x/exp/constraints"
)

// LimitSpeed clamps speed into [-limit, limit].
func LimitSpeed[T constraints.Float | constraints.Integer](speed, limit T) T {
	if speed > limit {
		return limit
	}
	if speed < -limit {
		return -limit
	}
	return speed
}

// Slew moves current toward target by at most step.  Slowing down is never
// rate limited: if target is smaller in magnitude than current it is
// returned unchanged.
func Slew(target, step, current float64) float64 {
	if math.Abs(current) > math.Abs(target) {
		return target
	}
	if target > current+step {
		return current + step
	} else if target < current-step {
		return current - step
	}
	return target
}
