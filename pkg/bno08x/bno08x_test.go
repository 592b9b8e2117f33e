package bno08x

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func packet(index uint8, yawCentiDeg int16) []byte {
	buf := make([]byte, packetLen)
	copy(buf, sync2)
	buf[2] = index
	binary.LittleEndian.PutUint16(buf[3:5], uint16(yawCentiDeg))
	var checksum uint8
	for _, b := range buf[2 : packetLen-1] {
		checksum += b
	}
	buf[packetLen-1] = checksum
	return buf
}

func TestParsePacket(t *testing.T) {
	r, err := parsePacket(packet(7, -4500))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.Index, test.ShouldEqual, uint8(7))
	test.That(t, r.YawDegrees(), test.ShouldEqual, -45.0)

	bad := packet(7, -4500)
	bad[packetLen-1]++
	_, err = parsePacket(bad)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReadReportsUnwrapsHeading(t *testing.T) {
	b := New("", false, golog.NewTestLogger(t))

	var stream bytes.Buffer
	stream.Write([]byte{0x01, 0xaa, 0x02})
	stream.Write(packet(1, 17000))
	stream.Write(packet(2, 17900))
	corrupt := packet(3, 0)
	corrupt[packetLen-1]++
	stream.Write(corrupt)
	stream.Write(packet(4, -17900))
	stream.Write(packet(5, -9000))

	err := b.readReports(context.Background(), &stream)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, b.CurrentReport().Index, test.ShouldEqual, uint8(5))
	// 170 -> 179 -> -179 -> -90 is a continuous turn through 270.
	test.That(t, b.Rotation(), test.ShouldAlmostEqual, 270.0)

	b.SetRotation(0)
	test.That(t, b.Rotation(), test.ShouldAlmostEqual, 0.0)
}

func TestInvert(t *testing.T) {
	b := New("", true, golog.NewTestLogger(t))
	b.setReport(IMUReport{Yaw: 1000})
	b.setReport(IMUReport{Yaw: 500})
	test.That(t, b.Rotation(), test.ShouldAlmostEqual, -5.0)
}

func TestWaitForReportTimesOut(t *testing.T) {
	b := New("", false, golog.NewTestLogger(t))
	_, err := b.WaitForReportAfter(time.Now(), 20*time.Millisecond)
	test.That(t, errors.Is(err, ErrNoReports), test.ShouldBeTrue)

	start := time.Now()
	go func() {
		time.Sleep(5 * time.Millisecond)
		b.setReport(IMUReport{Time: time.Now(), Index: 9})
	}()
	r, err := b.WaitForReportAfter(start, time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.Index, test.ShouldEqual, uint8(9))
}
