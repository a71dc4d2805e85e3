package e24

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// FrameWidth is the size of a sample frame without the timer byte.
	FrameWidth = 4
	// TimerFrameWidth is the size of a sample frame carrying the hardware timer.
	TimerFrameWidth = 5

	// MillivoltCoefficient converts counts to millivolts (2.5 V full scale).
	MillivoltCoefficient = 2500.0 / (1 << 23)
	// CountsCoefficient leaves values in raw counts.
	CountsCoefficient = 1.0

	midScale = 0x800000
)

// Sample is one decoded conversion result.
type Sample struct {
	Timestamp time.Time // assigned on decode, not sent by the device
	Channel   Channel
	Raw       int32   // signed counts, mid-scale removed
	Value     float64 // Raw / gain * coefficient
	Timer     uint8
	HasTimer  bool
}

func (s Sample) String() string {
	return FormatSample(s)
}

// FormatSample renders s as "HH:MM:SS.ffffff\tChannel n\tValue v[\tTimer t]".
// The value is truncated to an integer.
func FormatSample(s Sample) string {
	var b strings.Builder
	b.WriteString(s.Timestamp.Format("15:04:05.000000"))
	b.WriteString("\tChannel ")
	b.WriteString(strconv.Itoa(int(s.Channel)))
	b.WriteString("\tValue ")
	b.WriteString(strconv.FormatInt(int64(s.Value), 10))
	if s.HasTimer {
		b.WriteString("\tTimer ")
		b.WriteString(strconv.Itoa(int(s.Timer)))
	}
	return b.String()
}

// Decoder is a read-only snapshot of the device state needed to turn frames
// into samples.
type Decoder struct {
	Width       int
	Coefficient float64
	Gains       [NumChannels]Gain
}

// Decode parses one sample frame. A frame shorter or longer than the decoder
// width yields ErrShortRead.
func (d Decoder) Decode(frame []byte, at time.Time) (Sample, error) {
	if d.Width != FrameWidth && d.Width != TimerFrameWidth {
		return Sample{}, fmt.Errorf("%w: frame width %d", ErrInvalidParameter, d.Width)
	}
	if len(frame) != d.Width {
		return Sample{}, fmt.Errorf("%w: got %d of %d bytes", ErrShortRead, len(frame), d.Width)
	}

	ch := FrameChannel(frame)
	raw := RawValue(frame)
	gain := d.Gains[ch-1]
	if gain == 0 {
		gain = 1
	}

	s := Sample{
		Timestamp: at,
		Channel:   ch,
		Raw:       raw,
		Value:     float64(raw) / float64(gain) * d.Coefficient,
	}
	if d.Width == TimerFrameWidth {
		s.Timer = frame[4]
		s.HasTimer = true
	}
	return s, nil
}

// FrameChannel extracts the 1-based channel from bits 5-4 of the first byte.
func FrameChannel(frame []byte) Channel {
	return Channel((frame[0]&0x30)>>4) + 1
}

// RawValue extracts the 24-bit offset-binary code of a frame and removes the
// mid-scale offset. The frame must hold at least 4 bytes.
func RawValue(frame []byte) int32 {
	code := uint32(frame[0]&0x0F)<<20 |
		uint32(frame[1])<<13 |
		uint32(frame[2])<<6 |
		uint32(frame[3])>>1
	return int32(code) - midScale
}

// FormatFrame dumps raw bytes with one row of bits per byte, MSB first.
func FormatFrame(frame []byte) string {
	if len(frame) == 0 {
		return ""
	}
	width := len(strconv.Itoa(len(frame)))

	var b strings.Builder
	fmt.Fprintf(&b, "% x\n", frame)
	fmt.Fprintf(&b, "%*s |7|6|5|4|3|2|1|0", width, "")
	for i, v := range frame {
		fmt.Fprintf(&b, "\n%*d ", width, i)
		for bit := 7; bit >= 0; bit-- {
			fmt.Fprintf(&b, "|%d", v>>bit&1)
		}
	}
	return b.String()
}
