package irq

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestRaiseTimer0SetsShouldInterrupt(t *testing.T) {
	c := New()
	c.SetEnable(1 << Timer0)
	c.SetMasterEnable(true)
	assert.False(t, c.ShouldInterrupt())

	c.Raise(Timer0)
	assert.True(t, c.ShouldInterrupt())
	assert.True(t, c.ShouldWake())

	// acknowledge through the IF register lane
	c.Write8(RegIF, 1<<Timer0)
	assert.False(t, c.ShouldInterrupt())
	assert.False(t, c.ShouldWake())
}

func TestShouldWakeIgnoresMasterEnable(t *testing.T) {
	c := New()
	c.SetEnable(1 << VBlank)
	c.Raise(VBlank)
	assert.True(t, c.ShouldWake())
	assert.False(t, c.ShouldInterrupt())

	c.Write8(RegIME, 1)
	assert.True(t, c.ShouldInterrupt())
	c.Write8(RegIME, 0)
	assert.False(t, c.ShouldInterrupt())
}

func TestAcknowledgeClearsOnlyWrittenBits(t *testing.T) {
	patterns := []uint16{0x0000, 0x0001, 0x0101, 0x2AAA, 0x1555, 0x3FFF, 0x0F0F}
	for _, pending := range patterns {
		for _, ack := range patterns {
			c := New()
			for bit := Source(0); bit <= GamePak; bit++ {
				if pending&(1<<bit) != 0 {
					c.Raise(bit)
				}
			}
			c.Write8(RegIF, byte(ack))
			c.Write8(RegIF+1, byte(ack>>8))
			if got, want := c.Request(), pending&^ack; got != want {
				t.Fatalf("pending %04x ack %04x: IF got %04x want %04x", pending, ack, got, want)
			}
		}
	}
}

func TestHighLaneAcknowledgeTargetsUpperBits(t *testing.T) {
	c := New()
	c.Raise(VBlank)
	c.Raise(DMA3)
	c.Raise(GamePak)
	// writing the upper IF byte must not touch bits 0-7
	c.Write8(RegIF+1, byte((1<<DMA3)>>8))
	assert.Equal(t, uint16(1<<VBlank|1<<GamePak), c.Request())
}

func TestEnableLanesRecomputeFlags(t *testing.T) {
	c := New()
	c.SetMasterEnable(true)
	c.Raise(Keypad)
	assert.False(t, c.ShouldInterrupt())

	c.Write8(RegIE+1, byte((1<<Keypad)>>8))
	assert.True(t, c.ShouldInterrupt())
	assert.Equal(t, byte((1<<Keypad)>>8), c.Read8(RegIE+1))

	c.Write8(RegIE+1, 0)
	assert.False(t, c.ShouldInterrupt())
}

func TestRequestBitsOutsideMaskIgnored(t *testing.T) {
	c := New()
	c.Raise(Source(15))
	assert.Equal(t, uint16(0), c.Request())
	c.Write8(RegIE+1, 0xFF)
	assert.Equal(t, uint16(0x3F00), c.Enable())
}
