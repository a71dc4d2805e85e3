package e24

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

func TestParseParameters(t *testing.T) {
	b := []byte{
		0xEE, 0xEA,
		0x0F, 0x00, 0x00, // 5 Hz, ad7714 0, calibration 0, gain 1
		0x03, 0xC0, 0x49, // 20 Hz, ad7714 1, calibration 1, gain 2
		0x01, 0x80, 0xFD, // 50 Hz, ad7714 3, calibration 7, gain 32
		0x00, 0xC0, 0xAF, // 100 Hz, ad7714 2, calibration 5, gain 128
	}

	p, err := ParseParameters(b)
	require.NoError(t, err)
	for _, e := range p.Errors {
		assert.NoError(t, e)
	}

	assert.Equal(t, ChannelParams{
		Channel:     1,
		Divisor:     3840,
		Frequency:   5 * physic.Hertz,
		ADChannel:   0,
		Calibration: 0,
		Gain:        1,
	}, p.Channels[0])
	assert.Equal(t, "ADC_Channel #1\tfrequency 5\tad7714_channel 0\tcalibration 0\tgain 1", p.Line(1))

	want := "ADC_Channel #1\tfrequency 5\tad7714_channel 0\tcalibration 0\tgain 1\n" +
		"ADC_Channel #2\tfrequency 20\tad7714_channel 1\tcalibration 1\tgain 2\n" +
		"ADC_Channel #3\tfrequency 50\tad7714_channel 3\tcalibration 7\tgain 32\n" +
		"ADC_Channel #4\tfrequency 100\tad7714_channel 2\tcalibration 5\tgain 128"
	assert.Equal(t, want, p.String())
}

func TestParseParameters_Malformed(t *testing.T) {
	good := append([]byte{0xEE, 0xEA}, make([]byte, 12)...)

	tests := []struct {
		name string
		b    []byte
	}{
		{"empty", nil},
		{"short", good[:13]},
		{"long", append(append([]byte{}, good...), 0)},
		{"wrong first marker byte", append([]byte{0xEF, 0xEA}, good[2:]...)},
		{"wrong second marker byte", append([]byte{0xEE, 0xEB}, good[2:]...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseParameters(tt.b)
			assert.ErrorIs(t, err, ErrMalformedReadback)
			assert.Equal(t, Parameters{}, p)
		})
	}
}

func TestParseParameters_ChannelErrorIsolated(t *testing.T) {
	b := []byte{
		0xEE, 0xEA,
		0x0F, 0x00, 0x00,
		0x00, 0x00, 0x40, // zero divisor
		0x01, 0x80, 0xFD,
		0x00, 0xC0, 0xAF,
	}

	p, err := ParseParameters(b)
	require.NoError(t, err)

	var chErr *ChannelError
	require.ErrorAs(t, p.Errors[1], &chErr)
	assert.Equal(t, Channel(2), chErr.Channel)
	assert.ErrorIs(t, p.Errors[1], ErrInvalidParameter)

	assert.NoError(t, p.Errors[0])
	assert.NoError(t, p.Errors[2])
	assert.NoError(t, p.Errors[3])
	assert.Equal(t, Gain(32), p.Channels[2].Gain)

	lines := strings.Split(p.String(), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "Error in ADC_channel 2 : "), lines[1])
	assert.True(t, strings.HasPrefix(lines[3], "ADC_Channel #4"))
}

func TestExpectedParams(t *testing.T) {
	p, err := ExpectedParams(ChannelConfig{Channel: 4, Frequency: 100, Gain: 128, Calibration: 5, Input: SelfVoltage})
	require.NoError(t, err)
	assert.Equal(t, "ADC_Channel #4\tfrequency 100\tad7714_channel 2\tcalibration 5\tgain 128", p.String())

	// 7 Hz quantizes to 7.002 Hz and still reports as 7.
	p, err = ExpectedParams(ChannelConfig{Channel: 2, Frequency: 7, Gain: 1})
	require.NoError(t, err)
	assert.Equal(t, uint16(2742), p.Divisor)
	assert.Contains(t, p.String(), "\tfrequency 7\t")

	_, err = ExpectedParams(ChannelConfig{Channel: 1, Frequency: 50, Gain: 3})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
