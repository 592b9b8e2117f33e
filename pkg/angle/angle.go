package angle

import (
	"math"

	"github.com/pkg/errors"
)

// ErrNonFinite is returned when asked to wrap a NaN or infinite angle.
var ErrNonFinite = errors.New("angle is not finite")

// PlusMinus180 is an angle in degrees, stored as a value in range (-180, 180].
// All operations clamp their output into range.
type PlusMinus180 struct {
	float64
}

func (a PlusMinus180) Add(b PlusMinus180) PlusMinus180 {
	return FromFloat(a.float64 + b.float64)
}

func (a PlusMinus180) Sub(b PlusMinus180) PlusMinus180 {
	return FromFloat(a.float64 - b.float64)
}

func (a PlusMinus180) AddFloat(f float64) PlusMinus180 {
	return FromFloat(a.float64 + f)
}

func (a PlusMinus180) SubFloat(f float64) PlusMinus180 {
	return FromFloat(a.float64 - f)
}

// Float returns the angle in degrees, range (-180, 180].
func (a PlusMinus180) Float() float64 {
	return a.float64
}

// Radians returns the angle in radians, range (-π, π].
func (a PlusMinus180) Radians() float64 {
	return Radians(a.float64)
}

// FromFloat converts a float of any magnitude to a PlusMinus180 by calculating
// f mod 360 and shifting into range.
func FromFloat(f float64) PlusMinus180 {
	d := math.Mod(f, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return PlusMinus180{d}
}

// WrapRadians normalises theta into (-π, π].  Zero is returned as-is and
// non-finite input is rejected rather than looping forever.
func WrapRadians(theta float64) (float64, error) {
	if theta == 0 {
		return 0, nil
	}
	if math.IsNaN(theta) || math.IsInf(theta, 0) {
		return 0, ErrNonFinite
	}
	w := math.Mod(theta, 2*math.Pi)
	if w <= -math.Pi {
		w += 2 * math.Pi
	} else if w > math.Pi {
		w -= 2 * math.Pi
	}
	return w, nil
}

func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
