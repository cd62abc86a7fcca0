package arm

// Memory is the bus as seen from the core. Every access may fail with an
// addressing error which the core hands back to its caller untouched.
type Memory interface {
	Read8(addr uint32) (byte, error)
	Read16(addr uint32) (uint16, error)
	Read32(addr uint32) (uint32, error)
	Write8(addr uint32, v byte) error
	Write16(addr uint32, v uint16) error
	Write32(addr uint32, v uint32) error
	// WaitStates returns the cycles an access costs on top of the first one.
	WaitStates(addr uint32, size Size, seq bool) int
}

// Interrupts is the CPU's view of the interrupt controller.
type Interrupts interface {
	ShouldInterrupt() bool
	ShouldWake() bool
}

// SWIHandler services software interrupts in place of a BIOS image. Returning
// false lets the exception vector through the BIOS as usual.
type SWIHandler interface {
	SWI(c *CPU, number uint32) (bool, error)
}

// Exception vectors
const (
	VectorReset     = 0x00
	VectorUndefined = 0x04
	VectorSWI       = 0x08
	VectorIRQ       = 0x18
)

// CPU is an ARM7TDMI core stepped one bus cycle at a time. An instruction is
// decoded when its opcode fetch cycle commits and leaves behind a plan of the
// cycles it still needs. Each data access of the plan reaches the bus only
// when its own cycle commits, so observers see it before it takes effect.
type CPU struct {
	Regs Registers

	mem Memory
	irq Interrupts
	swi SWIHandler

	halted bool

	// per-instruction cycle plan; plan[pos] is the cycle last committed
	plan []cycle
	pos  int
	last Signals

	instrAddr uint32
	// R15 holds instrAddr while an instruction is in flight and retirePC once it retires
	retirePC uint32
	branched bool
	err      error

	instructions uint64
}

// cycle is one planned bus cycle. do runs when the cycle commits.
type cycle struct {
	sig Signals
	do  func() error
}

func New(mem Memory, irq Interrupts) *CPU {
	c := &CPU{mem: mem, irq: irq, plan: make([]cycle, 0, 32)}
	c.Reset()
	return c
}

// SetSWIHandler installs high-level handling for software interrupts; nil removes it.
func (c *CPU) SetSWIHandler(h SWIHandler) { c.swi = h }

// Reset puts the core in its power-on state: Supervisor mode, IRQ/FIQ masked, ARM state, PC=0.
func (c *CPU) Reset() {
	c.Regs = Registers{}
	c.Regs.CPSR = uint32(ModeSupervisor) | FlagI | FlagF
	c.halted = false
	c.plan = c.plan[:0]
	c.pos = 0
	c.last = Idle
	c.retirePC = 0
	c.err = nil
	c.instructions = 0
}

// SetPC moves execution to addr. Inside an instruction it acts as a branch.
func (c *CPU) SetPC(addr uint32) { c.branchTo(addr) }

// InstrAddr is the address of the instruction executing (or last executed).
func (c *CPU) InstrAddr() uint32 { return c.instrAddr }

// Instructions returns the number of instructions executed since reset.
func (c *CPU) Instructions() uint64 { return c.instructions }

func (c *CPU) Halt()        { c.halted = true }
func (c *CPU) Halted() bool { return c.halted }

// Busy reports whether the core is in the middle of an instruction.
func (c *CPU) Busy() bool { return c.pos+1 < len(c.plan) }

// Mem exposes the bus the core is attached to.
func (c *CPU) Mem() Memory { return c.mem }

// NextSignals computes the bus signals of the cycle about to run, without side effects.
func (c *CPU) NextSignals() Signals {
	if c.Busy() {
		return c.plan[c.pos+1].sig
	}
	if c.halted {
		return Idle
	}
	addr := c.Regs.R[15]
	thumb := c.Regs.Thumb()
	if c.irq.ShouldInterrupt() && !c.Regs.flag(FlagI) {
		addr, thumb = VectorIRQ, false
	}
	s := Signals{Addr: addr, Size: Word, MemReq: true, Fetch: true, Execute: true}
	if thumb {
		s.Size = Half
	}
	s.Seq = c.last.MemReq && s.Addr == c.last.Addr+uint32(c.last.Size)
	return s
}

// AtBoundary reports whether the next cycle starts a new instruction.
func (c *CPU) AtBoundary() bool { return !c.Busy() && !c.halted }

// Cycle commits one bus cycle. The interrupt line is only sampled when a new
// instruction is about to be fetched.
func (c *CPU) Cycle() error {
	if c.Busy() {
		c.pos++
		return c.commit()
	}
	if c.halted {
		if c.irq.ShouldWake() {
			c.halted = false
		}
		c.last = Idle
		return nil
	}

	c.plan = c.plan[:0]
	c.pos = 0
	c.err = nil

	if c.irq.ShouldInterrupt() && !c.Regs.flag(FlagI) {
		c.exception(ModeIRQ, VectorIRQ, c.Regs.R[15]+4)
	}
	c.step()
	if !c.Busy() {
		c.retire()
	}
	return c.err
}

// commit performs the work of plan[pos]. A failed access ends the instruction.
func (c *CPU) commit() error {
	cy := c.plan[c.pos]
	if cy.do != nil {
		if err := cy.do(); err != nil {
			c.plan = c.plan[:c.pos+1]
			c.last = cy.sig
			c.retire()
			return err
		}
	}
	if !c.Busy() {
		c.retire()
	}
	return nil
}

func (c *CPU) retire() { c.Regs.R[15] = c.retirePC }

// Step runs cycles until the current instruction has fully retired and returns
// how many cycles it took. Used by tests and tools that think in instructions.
func (c *CPU) Step() (int, error) {
	n := 0
	for {
		if err := c.Cycle(); err != nil {
			return n + 1, err
		}
		n++
		if !c.Busy() {
			return n, nil
		}
	}
}

func (c *CPU) step() {
	pc := c.Regs.R[15]
	c.instrAddr = pc
	c.retirePC = pc
	c.branched = false
	c.instructions++

	size := uint32(4)
	if c.Regs.Thumb() {
		size = 2
		op, err := c.fetch16(pc)
		if err != nil {
			c.fail(err)
			return
		}
		c.Regs.R[15] = pc + 4
		c.execThumb(op)
	} else {
		op, err := c.fetch32(pc)
		if err != nil {
			c.fail(err)
			return
		}
		c.Regs.R[15] = pc + 8
		c.execARM(op)
	}

	next := pc + size
	if c.branched {
		next = c.Regs.R[15]
		c.refill(next)
	}
	c.retirePC = next
	c.Regs.R[15] = pc
}

// refill accounts for the two pipeline fetches after a branch to pc.
func (c *CPU) refill(pc uint32) {
	size := Word
	if c.Regs.Thumb() {
		size = Half
	}
	c.record(Signals{Addr: pc, Size: size, Fetch: true}, nil)
	c.record(Signals{Addr: pc + uint32(size), Size: size, Fetch: true}, nil)
}

func (c *CPU) branchTo(addr uint32) {
	c.Regs.R[15] = c.align(addr)
	c.branched = true
}

// jump is a branch decided by a committing cycle, such as a load into R15.
func (c *CPU) jump(addr uint32) {
	c.retirePC = c.align(addr)
	c.refill(c.retirePC)
}

func (c *CPU) align(addr uint32) uint32 {
	if c.Regs.Thumb() {
		return addr &^ 1
	}
	return addr &^ 3
}

func (c *CPU) exception(m Mode, vector, lr uint32) {
	cpsr := c.Regs.CPSR
	c.Regs.SetMode(m)
	c.Regs.SetSPSR(cpsr)
	c.Regs.R[14] = lr
	c.Regs.CPSR = (c.Regs.CPSR &^ FlagT) | FlagI
	c.Regs.R[15] = vector
	c.branched = true
}

func (c *CPU) instrSize() uint32 {
	if c.Regs.Thumb() {
		return 2
	}
	return 4
}

func (c *CPU) undefined() {
	c.exception(ModeUndefined, VectorUndefined, c.instrAddr+c.instrSize())
}

func (c *CPU) softwareInterrupt(number uint32) {
	if c.swi != nil {
		ok, err := c.swi.SWI(c, number)
		if err != nil {
			c.fail(err)
			return
		}
		if ok {
			return
		}
	}
	c.exception(ModeSupervisor, VectorSWI, c.instrAddr+c.instrSize())
}

func (c *CPU) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// --- cycle plan ---

// record appends an access and its wait states. do is attached to the last
// of them, the cycle in which the access completes.
func (c *CPU) record(s Signals, do func() error) {
	s.MemReq = true
	s.Seq = c.last.MemReq && s.Addr == c.last.Addr+uint32(c.last.Size)
	c.plan = append(c.plan, cycle{sig: s})
	w := s
	w.Wait = true
	for i := c.mem.WaitStates(s.Addr, s.Size, s.Seq); i > 0; i-- {
		c.plan = append(c.plan, cycle{sig: w})
	}
	c.plan[len(c.plan)-1].do = do
	c.last = s
}

func (c *CPU) internal(n int) {
	for i := 0; i < n; i++ {
		c.plan = append(c.plan, cycle{sig: Idle})
	}
	c.last = Idle
}

// then chains fn after the most recently planned access, or runs it at once
// when nothing is left to wait for.
func (c *CPU) then(fn func()) {
	i := len(c.plan) - 1
	if i <= c.pos {
		fn()
		return
	}
	prev := c.plan[i].do
	c.plan[i].do = func() error {
		if prev != nil {
			if err := prev(); err != nil {
				return err
			}
		}
		fn()
		return nil
	}
}

// AddInternalCycles charges n internal cycles to the current instruction.
func (c *CPU) AddInternalCycles(n int) { c.internal(n) }

// --- memory helpers ---

// Opcode fetches happen in the cycle that decodes them.

func (c *CPU) fetch32(addr uint32) (uint32, error) {
	v, err := c.mem.Read32(addr &^ 3)
	c.record(Signals{Addr: addr &^ 3, Data: v, Size: Word, Fetch: true}, nil)
	return v, err
}

func (c *CPU) fetch16(addr uint32) (uint16, error) {
	v, err := c.mem.Read16(addr &^ 1)
	c.record(Signals{Addr: addr &^ 1, Data: uint32(v), Size: Half, Fetch: true}, nil)
	return v, err
}

// Data accesses are planned here and performed when their cycle commits.

func (c *CPU) load32(addr uint32, done func(v uint32)) {
	a := addr &^ 3
	c.record(Signals{Addr: a, Size: Word}, func() error {
		v, err := c.mem.Read32(a)
		if err != nil {
			return err
		}
		done(v)
		return nil
	})
}

func (c *CPU) load16(addr uint32, done func(v uint16)) {
	a := addr &^ 1
	c.record(Signals{Addr: a, Size: Half}, func() error {
		v, err := c.mem.Read16(a)
		if err != nil {
			return err
		}
		done(v)
		return nil
	})
}

func (c *CPU) load8(addr uint32, done func(v byte)) {
	c.record(Signals{Addr: addr, Size: Byte}, func() error {
		v, err := c.mem.Read8(addr)
		if err != nil {
			return err
		}
		done(v)
		return nil
	})
}

func (c *CPU) store32(addr, v uint32) {
	a := addr &^ 3
	c.record(Signals{Addr: a, Data: v, Size: Word, Write: true}, func() error {
		return c.mem.Write32(a, v)
	})
}

func (c *CPU) store16(addr uint32, v uint16) {
	a := addr &^ 1
	c.record(Signals{Addr: a, Data: uint32(v), Size: Half, Write: true}, func() error {
		return c.mem.Write16(a, v)
	})
}

func (c *CPU) store8(addr uint32, v byte) {
	c.record(Signals{Addr: addr, Data: uint32(v), Size: Byte, Write: true}, func() error {
		return c.mem.Write8(addr, v)
	})
}

// --- register helpers ---

func (c *CPU) reg(n int) uint32 { return c.Regs.R[n] }

func (c *CPU) setReg(n int, v uint32) {
	if n == 15 {
		c.branchTo(v)
		return
	}
	c.Regs.R[n] = v
}

// put writes a register from a committing cycle.
func (c *CPU) put(n int, v uint32) {
	if n == 15 {
		c.jump(v)
		return
	}
	c.Regs.R[n] = v
}

// Reg and SetReg are the register accessors for high-level BIOS services.
func (c *CPU) Reg(n int) uint32       { return c.reg(n) }
func (c *CPU) SetReg(n int, v uint32) { c.setReg(n, v) }

func (c *CPU) condition(cc uint32) bool {
	n := c.Regs.flag(FlagN)
	z := c.Regs.flag(FlagZ)
	cy := c.Regs.flag(FlagC)
	v := c.Regs.flag(FlagV)
	switch cc {
	case 0x0: // EQ
		return z
	case 0x1: // NE
		return !z
	case 0x2: // CS
		return cy
	case 0x3: // CC
		return !cy
	case 0x4: // MI
		return n
	case 0x5: // PL
		return !n
	case 0x6: // VS
		return v
	case 0x7: // VC
		return !v
	case 0x8: // HI
		return cy && !z
	case 0x9: // LS
		return !cy || z
	case 0xA: // GE
		return n == v
	case 0xB: // LT
		return n != v
	case 0xC: // GT
		return !z && n == v
	case 0xD: // LE
		return z || n != v
	case 0xE: // AL
		return true
	}
	return false
}
