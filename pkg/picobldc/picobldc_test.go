package picobldc

import (
	"encoding/binary"
	"math"
	"sync"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/tigerbot-team/motionctl/pkg/actuator"
)

type fakeDevice struct {
	lock   sync.Mutex
	regs   map[byte]uint16
	writes [][]byte
	fail   int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{regs: map[byte]uint16{byte(RegMot3Calib): 0x1234}}
}

func (f *fakeDevice) Write(buf []byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("bus error")
	}
	f.writes = append(f.writes, append([]byte(nil), buf...))
	f.regs[buf[0]] = binary.BigEndian.Uint16(buf[1:])
	return nil
}

func (f *fakeDevice) ReadReg(reg byte, buf []byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	binary.BigEndian.PutUint16(buf, f.regs[reg])
	return nil
}

func (f *fakeDevice) Close() error { return nil }

func newFakePico(t *testing.T) (*PicoBLDC, *fakeDevice) {
	t.Helper()
	dev := newFakeDevice()
	p, err := newWithOpener("fake", func() (device, error) { return dev, nil }, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return p, dev
}

func TestSetMotorSpeedsWritesRegisters(t *testing.T) {
	p, dev := newFakePico(t)
	var speeds PerMotorVal[int16]
	speeds[FrontLeft] = 100
	speeds[FrontRight] = -200
	speeds[BackLeft] = 300
	speeds[BackRight] = -400
	test.That(t, p.SetMotorSpeeds(speeds), test.ShouldBeNil)

	test.That(t, int16(dev.regs[byte(RegMot0V)]), test.ShouldEqual, int16(-400))
	test.That(t, int16(dev.regs[byte(RegMot1V)]), test.ShouldEqual, int16(-200))
	test.That(t, int16(dev.regs[byte(RegMot2V)]), test.ShouldEqual, int16(100))
	test.That(t, int16(dev.regs[byte(RegMot3V)]), test.ShouldEqual, int16(300))
	test.That(t, dev.regs[byte(RegCtrl)]&RegCtrlRun, test.ShouldNotEqual, uint16(0))
}

func TestUncalibratedControllerIsNotReady(t *testing.T) {
	p, dev := newFakePico(t)
	dev.regs[byte(RegMot3Calib)] = 0
	err := p.SetMotorSpeeds(PerMotorVal[int16]{})
	test.That(t, errors.Is(err, ErrNotReady), test.ShouldBeTrue)
}

func TestWriteRetries(t *testing.T) {
	p, dev := newFakePico(t)
	dev.fail = 3
	test.That(t, p.SetMotorSpeeds(PerMotorVal[int16]{}), test.ShouldBeNil)

	dev.fail = 100
	p.lastConfigWord = 0xffff
	test.That(t, p.SetMotorSpeeds(PerMotorVal[int16]{}), test.ShouldNotBeNil)
}

func TestReadScaled(t *testing.T) {
	p, dev := newFakePico(t)
	dev.regs[byte(RegBattV)] = 3000
	v, err := p.BattVolts()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldAlmostEqual, float32(12), 0.001)
}

type fakeTravel struct {
	raw PerMotorVal[int16]
}

func (f *fakeTravel) RawDistancesTraveled() (PerMotorVal[int16], error) {
	return f.raw, nil
}

func TestDistanceTrackerUnwraps(t *testing.T) {
	src := &fakeTravel{}
	src.raw[FrontLeft] = math.MaxInt16 - 10
	d := NewDistanceTracker(src, golog.NewTestLogger(t))
	test.That(t, d.Poll(), test.ShouldBeNil)

	src.raw[FrontLeft] = math.MinInt16 + 10
	src.raw[BackRight] = -512
	test.That(t, d.Poll(), test.ShouldBeNil)

	rot := d.AccumulatedRotations()
	test.That(t, rot[FrontLeft], test.ShouldAlmostEqual, 21.0/256)
	test.That(t, rot[BackRight], test.ShouldAlmostEqual, -2.0)

	hw := d.Hardware()
	test.That(t, hw.BackRight.Position(), test.ShouldEqual, 512.0)
	hw.BackRight.TarePosition()
	test.That(t, hw.BackRight.Position(), test.ShouldEqual, 0.0)

	d.Zero()
	test.That(t, d.AccumulatedRotations()[FrontLeft], test.ShouldEqual, 0.0)
}

type fakeInterface struct {
	last PerMotorVal[int16]
}

func (f *fakeInterface) SetMotorSpeeds(s PerMotorVal[int16]) error {
	f.last = s
	return nil
}

func (f *fakeInterface) RawDistancesTraveled() (PerMotorVal[int16], error) {
	return PerMotorVal[int16]{}, nil
}

func (f *fakeInterface) Close() error { return nil }

func TestSinkScalesAndMirrors(t *testing.T) {
	pico := &fakeInterface{}
	s := NewSink(pico)
	test.That(t, s.SetGroups(50, 100, actuator.Voltage), test.ShouldBeNil)
	test.That(t, pico.last[FrontLeft], test.ShouldEqual, int16(16383))
	test.That(t, pico.last[BackLeft], test.ShouldEqual, int16(16383))
	test.That(t, pico.last[FrontRight], test.ShouldEqual, int16(-math.MaxInt16))
	test.That(t, pico.last[BackRight], test.ShouldEqual, int16(-math.MaxInt16))

	test.That(t, s.SetCorners(actuator.Corners{FrontLeft: 250}, actuator.Velocity), test.ShouldBeNil)
	test.That(t, pico.last[FrontLeft], test.ShouldEqual, int16(math.MaxInt16))
}
