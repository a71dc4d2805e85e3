package output

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gole24/pkg/e24"
)

type recorder struct {
	samples  []e24.Sample
	err      error
	closed   bool
	closeErr error
}

func (r *recorder) Publish(s e24.Sample) error {
	r.samples = append(r.samples, s)
	return r.err
}

func (r *recorder) Close() error {
	r.closed = true
	return r.closeErr
}

func TestMulti_Publish(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, b}

	s := e24.Sample{Timestamp: time.Now(), Channel: 2, Raw: 5, Value: 5}
	require.NoError(t, m.Publish(s))
	assert.Equal(t, []e24.Sample{s}, a.samples)
	assert.Equal(t, []e24.Sample{s}, b.samples)
}

func TestMulti_PublishContinuesAfterFailure(t *testing.T) {
	errA := errors.New("a failed")
	a, b := &recorder{err: errA}, &recorder{}

	err := Multi{a, b}.Publish(e24.Sample{Channel: 1})
	assert.ErrorIs(t, err, errA)
	assert.Len(t, b.samples, 1)
}

func TestMulti_Close(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	a, b, c := &recorder{closeErr: errA}, &recorder{}, &recorder{closeErr: errB}

	err := Multi{a, b, c}.Close()
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.True(t, c.closed)
}

func TestMulti_Empty(t *testing.T) {
	var m Multi
	assert.NoError(t, m.Publish(e24.Sample{}))
	assert.NoError(t, m.Close())
}
