// Package bno08x reads yaw reports from a BNO08x IMU in UART-RVC mode and
// presents them as an unwrapped chassis heading.
package bno08x

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.bug.st/serial"

	"github.com/tigerbot-team/motionctl/pkg/angle"
	"github.com/tigerbot-team/motionctl/pkg/sensors"
)

const DefaultDevice = "/dev/ttyAMA0"

const ReportFrequency = 100
const ReportInterval = time.Second / ReportFrequency

const packetLen = 19

var sync2 = []byte{0xaa, 0xaa}

type IMUReport struct {
	Time   time.Time
	Index  uint8
	Yaw    int16
	Pitch  int16
	Roll   int16
	XAccel int16
	YAccel int16
	ZAccel int16
}

func (i IMUReport) String() string {
	return fmt.Sprintf("[%02x] Y:%7.2f P:%7.2f R:%7.2f X:%7.2f Y:%7.2f Z:%7.2f",
		i.Index, float64(i.Yaw)/100.0, float64(i.Pitch)/100.0, float64(i.Roll)/100.0,
		float64(i.XAccel)/100.0, float64(i.YAccel)/100.0, float64(i.ZAccel)/100.0)
}

func (i IMUReport) YawDegrees() float64 {
	return (float64(i.Yaw)) / 100.0
}

var ErrNoReports = errors.New("IMU hasn't reported")

type BNO08X struct {
	device string
	// invert negates the reported yaw, for sensors mounted upside down.
	invert bool
	logger golog.Logger

	lock       sync.Mutex
	cond       *sync.Cond
	lastReport IMUReport
	haveReport bool
	// unwrapped heading and the offset applied by SetRotation.
	heading float64
	offset  float64
}

var _ sensors.IMU = (*BNO08X)(nil)

func New(device string, invert bool, logger golog.Logger) *BNO08X {
	if device == "" {
		device = DefaultDevice
	}
	b := &BNO08X{device: device, invert: invert, logger: logger}
	b.cond = sync.NewCond(&b.lock)
	return b
}

func (b *BNO08X) CurrentReport() IMUReport {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.lastReport
}

// WaitForReportAfter blocks until a report newer than t arrives, or fails
// once timeout has passed without one.
func (b *BNO08X) WaitForReportAfter(t time.Time, timeout time.Duration) (IMUReport, error) {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		b.lock.Lock()
		defer b.lock.Unlock()
		b.cond.Broadcast()
	})
	defer timer.Stop()

	b.lock.Lock()
	defer b.lock.Unlock()
	for b.lastReport.Time.Before(t) {
		if !time.Now().Before(deadline) {
			return b.lastReport, errors.Wrapf(ErrNoReports, "for %v", timeout)
		}
		b.cond.Wait()
	}
	return b.lastReport, nil
}

// Rotation is the unwrapped heading in degrees, clockwise positive.
func (b *BNO08X) Rotation() float64 {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.heading + b.offset
}

func (b *BNO08X) SetRotation(deg float64) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.offset = deg - b.heading
}

func (b *BNO08X) LoopReadingReports(ctx context.Context) {
	defer b.cond.Broadcast()
	for ctx.Err() == nil {
		err := b.openAndLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		b.logger.Warnw("BNO08X loop stopped; will retry", "error", err)
		time.Sleep(100 * time.Millisecond)
		b.cond.Broadcast()
	}
}

func (b *BNO08X) openAndLoop(ctx context.Context) error {
	mode := &serial.Mode{
		BaudRate: 115200,
	}
	s, err := serial.Open(b.device, mode)
	if err != nil {
		return errors.Wrapf(err, "failed to open serial port %s", b.device)
	}
	defer s.Close()
	return b.readReports(ctx, s)
}

func (b *BNO08X) readReports(ctx context.Context, r io.Reader) error {
	br := bufio.NewReader(r)
resync:
	b.logger.Debug("BNO08X resync")
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		buf, err := br.Peek(2)
		if err != nil {
			return errors.Wrap(err, "failed to read from serial")
		}
		if bytes.Equal(buf, sync2) {
			break
		}
		_, err = br.Discard(1)
		if err != nil {
			return errors.Wrap(err, "failed to read from serial")
		}
	}

	buf := make([]byte, packetLen)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := io.ReadAtLeast(br, buf, packetLen)
		if err != nil {
			return errors.Wrap(err, "failed to read from serial")
		}
		report, err := parsePacket(buf)
		if err != nil {
			b.logger.Debugw("BNO08X dropping packet", "error", err)
			goto resync
		}
		report.Time = time.Now()
		b.setReport(report)
	}
}

func parsePacket(buf []byte) (IMUReport, error) {
	var report IMUReport
	if !bytes.Equal(buf[:2], sync2) {
		return report, errors.New("lost sync")
	}
	var checksum uint8
	for _, b := range buf[2 : packetLen-1] {
		checksum += b
	}
	if buf[packetLen-1] != checksum {
		return report, errors.Errorf("bad checksum %x != %x", buf[packetLen-1], checksum)
	}
	report.Index = buf[2]
	report.Yaw = int16(binary.LittleEndian.Uint16(buf[3:5]))
	report.Pitch = int16(binary.LittleEndian.Uint16(buf[5:7]))
	report.Roll = int16(binary.LittleEndian.Uint16(buf[7:9]))
	report.XAccel = int16(binary.LittleEndian.Uint16(buf[9:11]))
	report.YAccel = int16(binary.LittleEndian.Uint16(buf[11:13]))
	report.ZAccel = int16(binary.LittleEndian.Uint16(buf[13:15]))
	return report, nil
}

func (b *BNO08X) setReport(report IMUReport) {
	b.lock.Lock()
	defer b.lock.Unlock()
	yaw := report.YawDegrees()
	if b.invert {
		yaw = -yaw
	}
	if b.haveReport {
		prev := b.lastReport.YawDegrees()
		if b.invert {
			prev = -prev
		}
		b.heading += angle.FromFloat(yaw - prev).Float()
	} else {
		b.heading = yaw
		b.haveReport = true
	}
	b.lastReport = report
	b.cond.Broadcast()
}
