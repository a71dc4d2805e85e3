package e24

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainDecoder() Decoder {
	return Decoder{Width: FrameWidth, Coefficient: CountsCoefficient, Gains: [NumChannels]Gain{1, 1, 1, 1}}
}

func TestRawValue(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  int32
	}{
		{"zero code", []byte{0x00, 0x00, 0x00, 0x00}, -0x800000},
		{"mid scale", encodeSampleFrame(0, 0x800000), 0},
		{"full scale", []byte{0x0F, 0x7F, 0x7F, 0x7E}, 0x7FFFFF},
		{"full scale, all bits set", []byte{0x0F, 0xFF, 0xFF, 0xFF}, 0x7FFFFF},
		{"channel bits ignored", []byte{0x38, 0x00, 0x00, 0x00}, 0},
		{"one count", encodeSampleFrame(2, 0x800001), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RawValue(tt.frame))
		})
	}
}

func TestEncodeSampleFrame_RoundTrip(t *testing.T) {
	for _, code := range []uint32{0, 1, 0x3F, 0x40, 0x1FFF, 0x2000, 0xFFFFF, 0x100000, 0x7FFFFF, 0x800000, 0xABCDEF, 0xFFFFFF} {
		for slot := range NumChannels {
			frame := encodeSampleFrame(slot, code)
			assert.Equal(t, int32(code)-0x800000, RawValue(frame), "code %#x", code)
			assert.Equal(t, Channel(slot+1), FrameChannel(frame))
		}
	}
}

func TestDecode_Scenario(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 15, 123456000, time.UTC)

	s, err := plainDecoder().Decode([]byte{0x30, 0x00, 0x00, 0x00}, at)
	require.NoError(t, err)
	assert.Equal(t, Channel(4), s.Channel)
	assert.Equal(t, int32(-0x800000), s.Raw)
	assert.Equal(t, float64(-0x800000), s.Value)
	assert.False(t, s.HasTimer)
	assert.Equal(t, at, s.Timestamp)
	assert.Equal(t, "12:30:15.123456\tChannel 4\tValue -8388608", FormatSample(s))
}

func TestDecode_TimerByte(t *testing.T) {
	d := plainDecoder()
	d.Width = TimerFrameWidth

	frame := append(encodeSampleFrame(1, 0x800000+1000), 0x2A)
	s, err := d.Decode(frame, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, Channel(2), s.Channel)
	assert.Equal(t, int32(1000), s.Raw)
	assert.True(t, s.HasTimer)
	assert.Equal(t, uint8(0x2A), s.Timer)
	assert.Contains(t, FormatSample(s), "\tChannel 2\tValue 1000\tTimer 42")
}

func TestDecode_GainAndCoefficient(t *testing.T) {
	frame := encodeSampleFrame(2, 0x800000+6400)

	d := plainDecoder()
	d.Gains[2] = 64
	s, err := d.Decode(frame, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int32(6400), s.Raw)
	assert.InDelta(t, 100.0, s.Value, 1e-9)

	d.Coefficient = MillivoltCoefficient
	s, err = d.Decode(frame, time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 100.0*2500.0/8388608.0, s.Value, 1e-12)

	// Full scale in millivolts is just under 2500 mV.
	d.Gains[0] = 1
	s, err = d.Decode([]byte{0x0F, 0x7F, 0x7F, 0x7E}, time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 2500.0, s.Value, 0.001)
}

func TestDecode_Idempotent(t *testing.T) {
	d := plainDecoder()
	frame := []byte{0x15, 0x12, 0x34, 0x56}

	a, err := d.Decode(frame, time.Now())
	require.NoError(t, err)
	b, err := d.Decode(frame, time.Now().Add(time.Second))
	require.NoError(t, err)

	assert.Equal(t, a.Channel, b.Channel)
	assert.Equal(t, a.Raw, b.Raw)
	assert.Equal(t, a.Value, b.Value)
	assert.Equal(t, []byte{0x15, 0x12, 0x34, 0x56}, frame)
}

func TestDecode_WrongLength(t *testing.T) {
	tests := []struct {
		name  string
		width int
		frame []byte
	}{
		{"empty", FrameWidth, nil},
		{"three bytes", FrameWidth, []byte{1, 2, 3}},
		{"four bytes in timer mode", TimerFrameWidth, []byte{1, 2, 3, 4}},
		{"five bytes in plain mode", FrameWidth, []byte{1, 2, 3, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := plainDecoder()
			d.Width = tt.width
			_, err := d.Decode(tt.frame, time.Now())
			assert.ErrorIs(t, err, ErrShortRead)
		})
	}

	_, err := Decoder{Width: 3}.Decode([]byte{1, 2, 3}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestFormatSample_TruncatesValue(t *testing.T) {
	s := Sample{
		Timestamp: time.Date(2024, 1, 1, 1, 2, 3, 4000, time.UTC),
		Channel:   1,
		Value:     -12.9,
	}
	assert.Equal(t, "01:02:03.000004\tChannel 1\tValue -12", s.String())
}

func TestFormatFrame(t *testing.T) {
	want := "30 01\n" +
		"  |7|6|5|4|3|2|1|0\n" +
		"0 |0|0|1|1|0|0|0|0\n" +
		"1 |0|0|0|0|0|0|0|1"
	assert.Equal(t, want, FormatFrame([]byte{0x30, 0x01}))
	assert.Empty(t, FormatFrame(nil))
}
