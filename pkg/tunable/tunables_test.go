package tunable

import (
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"
)

func TestSelectAndAdjust(t *testing.T) {
	ts := New(golog.NewTestLogger(t))
	test.That(t, ts.Current(), test.ShouldBeNil)

	kp := ts.Create("kp", 1, 0.5)
	kd := ts.Create("kd", 0, 0.25)
	test.That(t, ts.Current(), test.ShouldEqual, kp)

	ts.Current().Add(2)
	test.That(t, kp.Get(), test.ShouldEqual, 2.0)

	ts.SelectNext()
	test.That(t, ts.Current(), test.ShouldEqual, kd)
	ts.Current().Add(-1)
	test.That(t, kd.Get(), test.ShouldEqual, -0.25)

	ts.SelectNext()
	test.That(t, ts.Current(), test.ShouldEqual, kp)
	ts.SelectPrev()
	test.That(t, ts.Current(), test.ShouldEqual, kd)
	ts.SelectPrev()
	test.That(t, ts.Current(), test.ShouldEqual, kp)
}
