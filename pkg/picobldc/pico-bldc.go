package picobldc

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"golang.org/x/exp/io/i2c"
)

const (
	PicoAddr   = 0x42
	DefaultBus = "/dev/i2c-1"
)

type Register byte

const (
	RegCtrl Register = iota
	RegStatus
	RegWatchdogTimeout
	RegFaultCount

	RegMot0V
	RegMot1V
	RegMot2V
	RegMot3V

	RegMot0Calib
	RegMot1Calib
	RegMot2Calib
	RegMot3Calib

	RegBattV // LSB=4mV
	RegCurrent
	RegPower

	RegTemperature // LSB = 0.01C

	// Wheel travel counters, LSB = 1/256 rotation, wrapping.
	RegMot0Travel
	RegMot1Travel
	RegMot2Travel
	RegMot3Travel
)

const (
	BattVLSB       = 0.004
	CurrentLSB     = 0.0001831054688
	PowerLSB       = CurrentLSB * 20
	TemperatureLSB = 0.01
)

const (
	RegCtrlEnableI2CControl uint16 = 1 << iota
	RegCtrlRun
	RegCtrlDoCalib
	RegCtrlReset
	RegCtrlWatchdogEnable
)

type StatusFlag uint16

const (
	RegStatusFault StatusFlag = 1 << iota
	RegStatusCalibDone
	RegStatusWatchdogExpired
)

// Interface is the part of the controller the drive code uses.  Motor values
// are in PerMotorVal order.
type Interface interface {
	SetMotorSpeeds(speeds PerMotorVal[int16]) error
	RawDistancesTraveled() (PerMotorVal[int16], error)
	Close() error
}

// device is the subset of *i2c.Device used here.
type device interface {
	Write(buf []byte) error
	ReadReg(reg byte, buf []byte) error
	Close() error
}

type PicoBLDC struct {
	bus    string
	open   func() (device, error)
	logger golog.Logger

	lock            sync.Mutex
	dev             device
	lastConfigWord  uint16
	lastConfigTime  time.Time
	watchdogEnabled bool
}

// New opens the controller on the given I2C bus device.
func New(bus string, logger golog.Logger) (*PicoBLDC, error) {
	if bus == "" {
		bus = DefaultBus
	}
	open := func() (device, error) {
		return i2c.Open(&i2c.Devfs{Dev: bus}, PicoAddr)
	}
	return newWithOpener(bus, open, logger)
}

func newWithOpener(bus string, open func() (device, error), logger golog.Logger) (*PicoBLDC, error) {
	dev, err := open()
	if err != nil {
		return nil, errors.Wrapf(err, "opening Pico-BLDC on %s", bus)
	}
	return &PicoBLDC{
		bus:    bus,
		open:   open,
		dev:    dev,
		logger: logger,
	}, nil
}

var _ Interface = (*PicoBLDC)(nil)

func (p *PicoBLDC) Reset() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.maybeConfigure(true, false)
}

var ErrNotReady = errors.New("Pico-BLDC not ready")

func (p *PicoBLDC) SetWatchdog(timeout time.Duration) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if timeout == 0 {
		// Disable.
		p.watchdogEnabled = false
		return p.maybeConfigure(false, false)
	}

	ms := timeout.Milliseconds()
	if ms > math.MaxUint16 {
		ms = math.MaxUint16
	}
	err := p.writeReg(RegWatchdogTimeout, uint16(ms))
	if err != nil {
		return err
	}

	p.watchdogEnabled = true
	return p.maybeConfigure(false, false)
}

func (p *PicoBLDC) SetMotorSpeeds(speeds PerMotorVal[int16]) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if err := p.maybeConfigure(false, true); err != nil {
		return err
	}
	for m, v := range speeds {
		if err := p.writeReg(RegMot0V+Register(m), uint16(v)); err != nil {
			return err
		}
	}
	return nil
}

func (p *PicoBLDC) RawDistancesTraveled() (PerMotorVal[int16], error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	var out PerMotorVal[int16]
	for m := range out {
		v, err := p.readReg(RegMot0Travel + Register(m))
		if err != nil {
			return out, err
		}
		out[m] = int16(v)
	}
	return out, nil
}

func (p *PicoBLDC) Close() error {
	if err := p.Reset(); err != nil {
		p.logger.Warnw("failed to reset Pico-BLDC on close", "error", err)
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.dev.Close()
}

func (p *PicoBLDC) writeWithRetries(data []byte) error {
	var err error
	for tries := 0; tries < 20; tries++ {
		err = p.dev.Write(data)
		if err == nil {
			if tries > 0 {
				p.logger.Infow("programmed Pico-BLDC after retries", "tries", tries)
			}
			return nil
		}
		p.logger.Debugw("failed to write to Pico-BLDC", "error", err)
		time.Sleep(1 * time.Millisecond)
		_ = p.dev.Close()
		dev, openErr := p.open()
		if openErr != nil {
			continue
		}
		p.dev = dev
	}
	return errors.Wrap(err, "failed to write to Pico-BLDC")
}

func (p *PicoBLDC) maybeConfigure(resetMotorSpeeds bool, enableMotors bool) error {
	// Figure out if the config word has changed.
	var configWord uint16 = RegCtrlEnableI2CControl
	if resetMotorSpeeds {
		configWord |= RegCtrlReset
	}
	if enableMotors {
		configWord |= RegCtrlRun
	}
	if p.watchdogEnabled {
		configWord |= RegCtrlWatchdogEnable
	}

	if configWord == p.lastConfigWord && time.Since(p.lastConfigTime) < 100*time.Millisecond {
		// Skip writing config if we've done it recently.
		return nil
	}

	if p.lastConfigWord == 0 {
		calib, err := p.readReg(RegMot3Calib)
		if err != nil {
			return err
		}
		if calib == 0 {
			return errors.Wrap(ErrNotReady, "motors are not calibrated")
		}
	}

	if err := p.writeReg(RegCtrl, configWord); err != nil {
		return err
	}
	if err := p.writeReg(RegStatus, uint16(RegStatusCalibDone)); err != nil {
		return err
	}

	p.lastConfigTime = time.Now()
	p.lastConfigWord = configWord & (^RegCtrlReset) /* Reset flag is not persistent */
	return nil
}

func (p *PicoBLDC) BattVolts() (float32, error) {
	return p.readScaled(RegBattV, BattVLSB)
}

func (p *PicoBLDC) CurrentAmps() (float32, error) {
	return p.readScaled(RegCurrent, CurrentLSB)
}

func (p *PicoBLDC) PowerWatts() (float32, error) {
	return p.readScaled(RegPower, PowerLSB)
}

func (p *PicoBLDC) TemperatureC() (float32, error) {
	return p.readScaled(RegTemperature, TemperatureLSB)
}

func (p *PicoBLDC) Status() (StatusFlag, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	raw, err := p.readReg(RegStatus)
	if err != nil {
		return 0, err
	}
	return StatusFlag(raw), nil
}

func (p *PicoBLDC) readScaled(reg Register, lsb float32) (float32, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	raw, err := p.readReg(reg)
	if err != nil {
		return 0, err
	}
	return float32(raw) * lsb, nil
}

func (p *PicoBLDC) writeReg(reg Register, value uint16) error {
	return p.writeWithRetries([]byte{byte(reg), byte(value >> 8), byte(value)})
}

func (p *PicoBLDC) readReg(reg Register) (uint16, error) {
	var buf [2]byte
	err := p.dev.ReadReg(byte(reg), buf[:])
	if err != nil {
		return 0, errors.Wrapf(err, "reading Pico-BLDC register %d", reg)
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// Dummy is a stand-in controller that logs speeds and reports no travel.
func Dummy(logger golog.Logger) Interface {
	return &dummyPico{logger: logger}
}

type dummyPico struct {
	logger golog.Logger
}

func (p *dummyPico) RawDistancesTraveled() (PerMotorVal[int16], error) {
	return PerMotorVal[int16]{}, nil
}

func (p *dummyPico) SetMotorSpeeds(speeds PerMotorVal[int16]) error {
	p.logger.Debugw("dummy Pico-BLDC setting motors",
		"fl", speeds[FrontLeft], "fr", speeds[FrontRight], "bl", speeds[BackLeft], "br", speeds[BackRight])
	return nil
}

func (p *dummyPico) Close() error {
	return nil
}
