package actuator

import (
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"
)

func TestConversions(t *testing.T) {
	test.That(t, Millivolts(100), test.ShouldEqual, 12000.0)
	test.That(t, Millivolts(-50), test.ShouldEqual, -6000.0)
	test.That(t, RPM(50, 200), test.ShouldEqual, 100.0)
	test.That(t, RPM(100, 600), test.ShouldEqual, 600.0)
}

func TestRecorderPassesThrough(t *testing.T) {
	inner := NewRecorder(NewDummy(golog.NewTestLogger(t)))
	r := NewRecorder(inner)

	_, ok := r.Last()
	test.That(t, ok, test.ShouldBeFalse)

	test.That(t, r.SetGroups(10, -10, Voltage), test.ShouldBeNil)
	last, ok := r.Last()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, last.Grouped, test.ShouldBeTrue)
	test.That(t, last.Corners, test.ShouldResemble, Corners{FrontLeft: 10, BackLeft: 10, FrontRight: -10, BackRight: -10})

	c := Corners{FrontLeft: 1, FrontRight: 2, BackLeft: 3, BackRight: 4}
	test.That(t, r.SetCorners(c, Velocity), test.ShouldBeNil)
	last, _ = r.Last()
	test.That(t, last, test.ShouldResemble, Command{Corners: c, Unit: Velocity})

	test.That(t, len(inner.Commands()), test.ShouldEqual, 2)
	r.Clear()
	test.That(t, len(r.Commands()), test.ShouldEqual, 0)
}

func TestUnitString(t *testing.T) {
	test.That(t, Voltage.String(), test.ShouldEqual, "voltage")
	test.That(t, Unit(7).String(), test.ShouldEqual, "unknown(7)")
}
