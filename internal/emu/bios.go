package emu

import "encoding/binary"

// Post-boot stack pointers the BIOS leaves behind.
const (
	stackIRQ = 0x03007FA0
	stackSVC = 0x03007FE0
	stackSys = 0x03007F00

	cartEntry = 0x08000000

	// the user IRQ handler pointer lives at the top of IWRAM (mirrored at 0x03FFFFFC)
	irqHandlerPtr = 0x03007FFC
	// IntrWait reads and clears the acknowledged sources at this address
	irqCheckFlags = 0x03007FF8
)

// stubBIOS is the image installed when no BIOS is supplied. It boots into the
// cartridge with the usual stacks and dispatches IRQs through [0x03FFFFFC].
// Software interrupts are serviced by hleBIOS before they reach the vector.
var stubBIOS = [...]uint32{
	// vectors
	0x00: 0xEA000006, // b     reset
	0x01: 0xE1B0F00E, // movs  pc, lr            undefined
	0x02: 0xE1B0F00E, // movs  pc, lr            swi
	0x03: 0xE25EF004, // subs  pc, lr, #4        prefetch abort
	0x04: 0xE25EF008, // subs  pc, lr, #8        data abort
	0x05: 0xE1B0F00E, // movs  pc, lr
	0x06: 0xEA000018, // b     irq
	0x07: 0xE25EF004, // subs  pc, lr, #4        fiq

	// reset at 0x20
	0x08: 0xE321F0D2, // msr   cpsr_c, #0xD2
	0x09: 0xE59FD014, // ldr   sp, =stackIRQ
	0x0A: 0xE321F0D3, // msr   cpsr_c, #0xD3
	0x0B: 0xE59FD010, // ldr   sp, =stackSVC
	0x0C: 0xE321F01F, // msr   cpsr_c, #0x1F
	0x0D: 0xE59FD00C, // ldr   sp, =stackSys
	0x0E: 0xE3A0E302, // mov   lr, #0x08000000
	0x0F: 0xE12FFF1E, // bx    lr
	0x10: stackIRQ,
	0x11: stackSVC,
	0x12: stackSys,

	// irq at 0x80
	0x20: 0xE92D500F, // stmfd sp!, {r0-r3, r12, lr}
	0x21: 0xE3A00301, // mov   r0, #0x04000000
	0x22: 0xE28FE000, // add   lr, pc, #0
	0x23: 0xE510F004, // ldr   pc, [r0, #-4]
	0x24: 0xE8BD500F, // ldmfd sp!, {r0-r3, r12, lr}
	0x25: 0xE25EF004, // subs  pc, lr, #4
}

func stubImage() []byte {
	img := make([]byte, len(stubBIOS)*4)
	for i, w := range stubBIOS {
		binary.LittleEndian.PutUint32(img[i*4:], w)
	}
	return img
}
