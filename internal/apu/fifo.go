package apu

// fifo is a direct sound queue of signed 8-bit samples.
type fifo struct {
	buf    [32]int8
	head   int
	n      int
	sample int8
}

func (f *fifo) reset() { *f = fifo{} }

func (f *fifo) len() int { return f.n }

// push drops the byte when the queue is full.
func (f *fifo) push(v byte) {
	if f.n == len(f.buf) {
		return
	}
	f.buf[(f.head+f.n)%len(f.buf)] = int8(v)
	f.n++
}

// pop moves the next sample to the output latch; an empty queue holds the last one.
func (f *fifo) pop() {
	if f.n == 0 {
		return
	}
	f.sample = f.buf[f.head]
	f.head = (f.head + 1) % len(f.buf)
	f.n--
}
