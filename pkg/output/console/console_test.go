package console

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gole24/pkg/e24"
)

func TestConsolePublish(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf)

	ts := time.Date(2025, 9, 19, 14, 41, 54, 120000000, time.UTC)
	require.NoError(t, c.Publish(e24.Sample{Timestamp: ts, Channel: 3, Raw: 123, Value: 123.9}))
	require.NoError(t, c.Publish(e24.Sample{Timestamp: ts, Channel: 1, Raw: -7, Value: -7, Timer: 9, HasTimer: true}))

	want := "14:41:54.120000\tChannel 3\tValue 123\n" +
		"14:41:54.120000\tChannel 1\tValue -7\tTimer 9\n"
	assert.Equal(t, want, buf.String())
	assert.NoError(t, c.Close())
}

func TestNew_DefaultsToStdout(t *testing.T) {
	c := New(nil)
	assert.NotNil(t, c.(*ConsoleOutput).w)
}
