package apu

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/arm"
)

func poweredAPU() *APU {
	a := New(48000)
	a.Write8(RegSOUNDCNTX, 0x80)
	return a
}

func TestSquareTriggerAndStatus(t *testing.T) {
	a := poweredAPU()
	a.Write8(0x62, 0x80) // duty 50%
	a.Write8(0x63, 0xF0) // volume 15
	a.Write8(0x65, 0x80) // restart

	assert.True(t, a.Channel(0).Enabled())
	assert.Equal(t, 15, a.Channel(0).Sample())
	assert.Equal(t, byte(0x81), a.Read8(RegSOUNDCNTX))
	assert.Equal(t, byte(0xF0), a.Read8(0x63))
	assert.Equal(t, byte(0x80), a.Read8(0x62))
}

func TestDACOffKeepsChannelSilent(t *testing.T) {
	a := poweredAPU()
	a.Write8(0x69, 0x00)
	a.Write8(0x6D, 0x80)
	assert.False(t, a.Channel(1).Enabled())
}

func TestLengthCounterStopsChannel(t *testing.T) {
	a := poweredAPU()
	a.Write8(0x79, 0xF0)
	a.Write8(0x78, 63) // one tick left
	a.Write8(0x7D, 0xC0)
	assert.True(t, a.Channel(3).Enabled())

	for i := 0; i < seqPeriod; i++ {
		a.Step()
	}
	assert.True(t, a.Channel(3).Enabled())
	for i := 0; i < seqPeriod; i++ {
		a.Step()
	}
	assert.False(t, a.Channel(3).Enabled())
}

func TestMasterDisableResetsRegisters(t *testing.T) {
	a := poweredAPU()
	a.Write8(0x63, 0xF0)
	a.Write8(RegSOUNDCNTL, 0x77)
	a.Write8(RegSOUNDCNTX, 0x00)
	assert.Equal(t, byte(0), a.Read8(0x63))
	assert.Equal(t, byte(0), a.Read8(RegSOUNDCNTL))

	a.Write8(0x63, 0xF0)
	assert.Equal(t, byte(0), a.Read8(0x63))
}

func TestFIFORefillRequests(t *testing.T) {
	a := poweredAPU()
	var reqs []uint32
	a.OnFIFORequest = func(addr uint32) { reqs = append(reqs, addr) }
	a.Write8(RegSOUNDCNTH+1, 0x40) // FIFO B on timer 1

	for i := 0; i < 20; i++ {
		a.Write8(RegFIFOA+uint32(i%4), byte(i))
	}
	a.TimerOverflow(0)
	assert.Equal(t, int8(0), a.fifo[0].sample)
	assert.Equal(t, 0, len(reqs))

	for i := 0; i < 3; i++ {
		a.TimerOverflow(0)
	}
	assert.Equal(t, int8(3), a.fifo[0].sample)
	assert.Equal(t, []uint32{FIFOAddrA}, reqs)

	a.TimerOverflow(0)
	assert.Equal(t, []uint32{FIFOAddrA, FIFOAddrA}, reqs)
	a.TimerOverflow(1)
	assert.Equal(t, uint32(FIFOAddrB), reqs[2])
}

func TestFIFOResetBit(t *testing.T) {
	a := poweredAPU()
	a.Write8(RegFIFOB, 1)
	a.Write8(RegFIFOB, 2)
	a.Write8(RegSOUNDCNTH+1, 0x80)
	assert.Equal(t, 0, a.fifo[1].len())
	assert.Equal(t, byte(0), a.Read8(RegSOUNDCNTH+1))
}

func TestFIFOIsWriteOnly(t *testing.T) {
	a := New(48000)
	assert.False(t, a.Supports(RegFIFOA, arm.Word, false))
	assert.True(t, a.Supports(RegFIFOA, arm.Word, true))
	assert.False(t, a.Supports(RegFIFOB+3, arm.Byte, false))
	assert.True(t, a.Supports(RegSOUNDBIAS, arm.Half, false))
}

func TestDirectSoundMix(t *testing.T) {
	a := poweredAPU()
	a.Write8(RegSOUNDCNTH, 0x04)   // FIFO A at full volume
	a.Write8(RegSOUNDCNTH+1, 0x03) // to both sides
	a.Write8(RegFIFOA, 0x40)
	a.TimerOverflow(0)
	l, r := a.mix()
	assert.Equal(t, int16(128<<5), l)
	assert.Equal(t, int16(128<<5), r)
}

func TestRingBufferPullAndCap(t *testing.T) {
	a := New(cpuHz / 64)
	for i := 0; i < 640; i++ {
		a.Step()
	}
	assert.Equal(t, 10, a.StereoAvailable())
	assert.Equal(t, 8, len(a.PullStereo(4)))
	assert.Equal(t, 6, a.StereoAvailable())
	a.CapBuffered(2)
	assert.Equal(t, 2, a.StereoAvailable())
	assert.Equal(t, 0, len(a.PullStereo(0)))
}
