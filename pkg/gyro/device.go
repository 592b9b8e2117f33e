// Package gyro drives an MPU-6000 family rate gyro over SPI or I2C and
// integrates its yaw rate into a heading.
package gyro

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"golang.org/x/exp/io/i2c"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

const (
	Addr = 0x68

	RegSampleRateDiv = 25
	RegConfig        = 26
	RegGyroConf      = 27
	RegGyroYOffset   = 21
	RegFIFOEnable    = 35
	RegGyroY         = 69 // 16 bits
	RegUserCtl       = 106
	RegFIFOCount     = 114 // 16 bits
	RegFIFORW        = 116 // n-bytes

	GyroRange = 2 // 1000 dps

	// SampleRate is the FIFO rate after the 1kHz DLPF and divider of 10.
	SampleRate = 100
)

type port interface {
	// ReadReg reads len(buf) bytes from the device.
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg byte, buf []byte) (err error)
}

type Device struct {
	dev        port
	disableI2C bool
	logger     golog.Logger
}

func NewI2C(deviceFile string, logger golog.Logger) (*Device, error) {
	dev, err := i2c.Open(&i2c.Devfs{Dev: deviceFile}, Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "opening gyro on %s", deviceFile)
	}
	return &Device{
		dev:    dev,
		logger: logger,
	}, nil
}

func NewSPI(deviceFile string, logger golog.Logger) (*Device, error) {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "initialising periph")
	}

	// Use spireg SPI port registry to find the SPI bus.
	p, err := spireg.Open(deviceFile)
	if err != nil {
		return nil, errors.Wrapf(err, "opening SPI port %s", deviceFile)
	}

	c, err := p.Connect(physic.KiloHertz*1000, spi.Mode3, 8)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to gyro")
	}

	return &Device{
		dev:        &SPIAdapter{c: c},
		disableI2C: true,
		logger:     logger,
	}, nil
}

type SPIAdapter struct {
	c spi.Conn

	r, w []byte
}

const W = 0x00
const R = 0x80

func (s *SPIAdapter) ReadReg(reg byte, buf []byte) error {
	// The read and write buffers need to be as long as the whole transaction.
	bufLen := 1 + len(buf)
	s.ensureBuf(bufLen)
	s.w[0] = R | reg
	err := s.c.Tx(s.w[:bufLen], s.r[:bufLen])
	if err != nil {
		return err
	}
	// The response starts after the address byte.
	copy(buf, s.r[1:])
	return nil
}

func (s *SPIAdapter) WriteReg(reg byte, buf []byte) (err error) {
	bufLen := 1 + len(buf)
	s.ensureBuf(bufLen)
	s.w[0] = W | reg
	copy(s.w[1:], buf)
	return s.c.Tx(s.w[:bufLen], s.r[:bufLen])
}

func (s *SPIAdapter) ensureBuf(l int) {
	if len(s.r) < l {
		s.w = make([]byte, l)
		s.r = make([]byte, l)
	} else {
		for i := 0; i < l; i++ {
			s.w[i] = 0
			s.r[i] = 0
		}
	}
}

func (m *Device) Configure() error {
	if m.disableI2C {
		if err := m.dev.WriteReg(RegUserCtl, []byte{0x10}); err != nil {
			return err
		}
	}
	writes := []struct {
		reg byte
		val byte
	}{
		{RegGyroConf, GyroRange << 3},
		// DLPF, Fs=1KHz
		{RegConfig, 1},
		{RegSampleRateDiv, 1000/SampleRate - 1},
		// Gyro Y into the FIFO.
		{RegFIFOEnable, 1 << 5},
	}
	for _, w := range writes {
		if err := m.dev.WriteReg(w.reg, []byte{w.val}); err != nil {
			return errors.Wrapf(err, "configuring gyro register %d", w.reg)
		}
	}
	return nil
}

func (m *Device) DegreesPerLSB() float64 {
	return 1000.0 / math.MaxInt16
}

// Calibrate averages n samples with the chassis still and programs the
// offset register to cancel the bias.
func (m *Device) Calibrate(n int) error {
	if err := m.dev.WriteReg(RegGyroYOffset, []byte{0, 0}); err != nil {
		return err
	}

	var sum float64
	for i := 0; i < n; i++ {
		x, err := m.ReadRate()
		if err != nil {
			return err
		}
		sum -= float64(x)
	}
	offset := sum / float64(n)
	scaled := int16(offset / 4 * math.Pow(2, GyroRange))
	m.logger.Infow("gyro calibrated", "offset", offset, "register", scaled)
	return m.dev.WriteReg(RegGyroYOffset, []byte{byte(scaled >> 8), byte(scaled)})
}

func (m *Device) ReadRate() (int16, error) {
	return m.read16(RegGyroY)
}

func (m *Device) ResetFIFO() error {
	return m.dev.WriteReg(RegUserCtl, []byte{1<<6 | 1<<2})
}

// ReadFIFO returns the queued rate samples, possibly none.
func (m *Device) ReadFIFO() ([]int16, error) {
	count, err := m.read16(RegFIFOCount)
	if err != nil {
		return nil, err
	}
	count &= 0xfff
	count &^= 1
	if count == 0 {
		return nil, nil
	}
	if count > 512 {
		count = 512
	}
	buf := make([]byte, count)
	if err := m.dev.ReadReg(RegFIFORW, buf); err != nil {
		return nil, err
	}
	result := make([]int16, count/2)
	for i := range result {
		result[i] = int16(buf[i*2])<<8 | int16(buf[i*2+1])
	}
	return result, nil
}

func (m *Device) read16(reg byte) (int16, error) {
	var buf [2]byte
	if err := m.dev.ReadReg(reg, buf[:]); err != nil {
		return 0, errors.Wrapf(err, "reading gyro register %d", reg)
	}
	return int16(buf[0])<<8 | int16(buf[1]), nil
}
