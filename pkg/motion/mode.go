package motion

import "fmt"

// Mode selects which error calculator drives the chassis.
type Mode int

const (
	Disabled Mode = iota
	Linear
	Angular
	Odom
	OdomHolo
	OdomHoloThru
	OdomThru
	OdomPose
)

func (m Mode) String() string {
	switch m {
	case Disabled:
		return "disabled"
	case Linear:
		return "linear"
	case Angular:
		return "angular"
	case Odom:
		return "odom"
	case OdomHolo:
		return "odom-holo"
	case OdomHoloThru:
		return "odom-holo-thru"
	case OdomThru:
		return "odom-thru"
	case OdomPose:
		return "odom-pose"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// IsOdom is true for the modes that steer toward a point.
func (m Mode) IsOdom() bool {
	switch m {
	case Odom, OdomHolo, OdomHoloThru, OdomThru, OdomPose:
		return true
	}
	return false
}

// IsHolo is true for the point modes that strafe instead of turning.
func (m Mode) IsHolo() bool {
	return m == OdomHolo || m == OdomHoloThru
}

// IsThru is true for modes that pass through their target without stopping.
func (m Mode) IsThru() bool {
	return m == OdomThru || m == OdomHoloThru
}
