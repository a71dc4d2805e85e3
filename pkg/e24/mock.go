package e24

import (
	"io"
	"math"
	"slices"
	"sync"
	"time"
)

// Signal returns the simulated input of channel ch, in counts before gain,
// for the n-th frame produced on that channel.
type Signal func(ch Channel, n int) float64

// SineSignal returns a sine of the given amplitude (counts) and period
// (frames), shifted by a quarter period per channel.
func SineSignal(amplitude float64, period int) Signal {
	if period <= 0 {
		period = 1
	}
	return func(ch Channel, n int) float64 {
		phase := float64(ch-1) * math.Pi / 2
		return amplitude * math.Sin(2*math.Pi*float64(n)/float64(period)+phase)
	}
}

// ConstantSignal returns the same value on every channel.
func ConstantSignal(v float64) Signal {
	return func(Channel, int) float64 { return v }
}

// Mock simulates an E24 on the far side of a serial line. It interprets the
// command frames written to it, answers queries, and streams sample frames
// while channels are active.
type Mock struct {
	// Realtime paces sample frames at the programmed frequencies.
	Realtime bool

	mu     sync.Mutex
	signal Signal
	closed bool

	frames  []Frame
	partial []byte
	replies []byte
	stream  []byte

	active   ChannelMask
	running  bool
	width    int
	baud     int
	divisors [NumChannels]uint16
	settings [NumChannels]uint8 // calibration<<3 | gain code
	inputs   [NumChannels]InputType
	counts   [NumChannels]int
	slot     int
	timer    uint8

	eeprom [MaxEEPROMReadAddress + 1]byte
	addr   uint8

	writeErr error
	readErr  error
}

// NewMock creates a simulated device. A nil signal produces a sine wave.
func NewMock(signal Signal) *Mock {
	if signal == nil {
		signal = SineSignal(0x100000, 50)
	}
	m := &Mock{
		signal: signal,
		width:  FrameWidth,
		baud:   DefaultBaudRate,
		slot:   NumChannels - 1,
	}
	for i := range m.divisors {
		m.divisors[i] = ClockHz / (divisorScale * 10)
	}
	return m
}

// Write interprets every complete 3-byte frame in p.
func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, io.ErrClosedPipe
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}

	m.partial = append(m.partial, p...)
	for len(m.partial) >= len(Frame{}) {
		var f Frame
		copy(f[:], m.partial)
		m.partial = m.partial[len(f):]
		m.handle(f)
	}
	return len(p), nil
}

// Read returns pending command answers first, then sample frames while the
// device is running. It returns 0 bytes when there is nothing to send, as a
// serial port does when its read timeout expires.
func (m *Mock) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, io.ErrClosedPipe
	}
	if m.readErr != nil {
		return 0, m.readErr
	}

	if len(m.replies) > 0 {
		n := copy(p, m.replies)
		m.replies = m.replies[n:]
		return n, nil
	}
	if !m.running || m.active == 0 {
		return 0, nil
	}
	if len(m.stream) == 0 {
		m.stream = m.nextFrame()
	}
	n := copy(p, m.stream)
	m.stream = m.stream[n:]
	return n, nil
}

// ResetInputBuffer drops the partially read sample frame. Command answers
// are produced after the flush, as the device's latency ensures on a real line.
func (m *Mock) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stream = nil
	return nil
}

func (m *Mock) ResetOutputBuffer() error { return nil }

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Frames returns every command frame received so far.
func (m *Mock) Frames() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.frames)
}

// ClearFrames forgets the recorded command frames.
func (m *Mock) ClearFrames() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = nil
}

// Inject queues raw bytes to be read before anything else.
func (m *Mock) Inject(b ...byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, b...)
}

// FailWrites makes every following Write fail with err; nil clears it.
func (m *Mock) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// FailReads makes every following Read fail with err; nil clears it.
func (m *Mock) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// Running reports whether the device is converting and which channels are on.
func (m *Mock) Running() (bool, ChannelMask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running, m.active
}

// Baud returns the line speed last programmed into the device.
func (m *Mock) Baud() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baud
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mock) handle(f Frame) {
	m.frames = append(m.frames, f)

	if f[0] == speedGuard && f[1] == speedGuard {
		for baud, idx := range speedIndex {
			if opSpeed+idx == f[2] {
				m.baud = baud
			}
		}
		return
	}

	value := f[0]<<4 | f[1]&0x0F
	switch f[2] {
	case opStop:
		m.running = false
		m.stream = nil
		return
	case opResetTimer:
		m.timer = 0
		return
	case opEEPROMAddr:
		m.addr = value & MaxEEPROMReadAddress
		return
	case opEEPROMRead:
		v := m.eeprom[m.addr]
		m.replies = append(m.replies, v&0x0F, v>>4)
		m.addr = (m.addr + 1) & MaxEEPROMReadAddress
		return
	case opEEPROMSave:
		m.eeprom[m.addr] = value
		m.addr = (m.addr + 1) & MaxEEPROMReadAddress
		m.replies = append(m.replies, eepromAck)
		return
	case opQuery:
		m.replies = append(m.replies, m.params()...)
		return
	case opTimerMode:
		m.width = TimerFrameWidth
		return
	case opPlainMode:
		m.width = FrameWidth
		return
	}

	op, mask := f[2]&0xF0, ChannelMask(f[2]&0x0F)
	switch op {
	case opActivate:
		m.active = mask
		m.running = mask != 0
		return
	case opReinit:
		return
	}
	for _, ch := range mask.Channels() {
		i := ch - 1
		switch op {
		case opFreqLow:
			m.divisors[i] = m.divisors[i]&0xFF00 | uint16(value)
		case opFreqHigh:
			m.divisors[i] = m.divisors[i]&0x00FF | uint16(value)<<8
		case opGainCal:
			m.settings[i] = (f[0]&0x07)<<3 | f[1]&0x07
		case opInputType:
			m.inputs[i] = InputType(f[1])
		}
	}
}

// params builds the 14-byte parameter echo.
func (m *Mock) params() []byte {
	out := []byte{paramsMarker[0], paramsMarker[1]}
	for i := range NumChannels {
		div := m.divisors[i]
		out = append(out, byte(div>>8), byte(div), adChannelBySlot[i]<<6|m.settings[i])
	}
	return out
}

// nextFrame produces the sample frame of the next active channel.
func (m *Mock) nextFrame() []byte {
	for i := 1; i <= NumChannels; i++ {
		s := (m.slot + i) % NumChannels
		if m.active.Has(Channel(s + 1)) {
			m.slot = s
			break
		}
	}
	ch := Channel(m.slot + 1)

	if m.Realtime {
		if hz, err := FrequencyFromDivisor(m.divisors[m.slot]); err == nil {
			n := len(m.active.Channels())
			time.Sleep(time.Duration(float64(time.Second) / (hz * float64(n))))
		}
	}

	gain := gainTable[m.settings[m.slot]&0x07]
	v := m.signal(ch, m.counts[m.slot]) * float64(gain)
	m.counts[m.slot]++
	v = math.Max(-midScale, math.Min(midScale-1, v))

	frame := encodeSampleFrame(m.slot, uint32(int32(v)+midScale))
	if m.width == TimerFrameWidth {
		frame = append(frame, m.timer)
		m.timer++
	}
	return frame
}

// encodeSampleFrame packs a 24-bit offset-binary code of a 0-based slot the
// way RawValue unpacks it.
func encodeSampleFrame(slot int, code uint32) []byte {
	return []byte{
		byte(slot)<<4 | byte(code>>20)&0x0F,
		byte(code>>13) & 0x7F,
		byte(code>>6) & 0x7F,
		byte(code&0x3F) << 1,
	}
}
