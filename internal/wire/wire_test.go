package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderPrimitives(t *testing.T) {
	w := NewWriter(16)
	w.PutUint8(0x12)
	w.PutUint16(0xABCD)
	w.PutUint32(0xDEADBEEF)
	w.PutUint64(0x0102030405060708)
	w.PutBytes([]byte("hi"))

	r := NewReader(w.Bytes())
	v8, err := r.Uint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x12), v8)

	v16, err := r.Uint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xABCD), v16)

	v32, err := r.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v32)

	v64, err := r.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), v64)

	rest, err := r.ReadN(2)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(rest))
	assert.Equal(t, 0, r.Len())
}

func TestReaderShortBuffer(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, err := r.Uint16()
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestReaderSeekOutOfRange(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	assert.ErrorIs(t, r.Seek(5), ErrShortBuffer)
}

func TestSubStreamIsZeroCopyView(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	r := NewReader(buf)
	sub, err := r.SubStream(3)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	b, err := sub.Uint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), b)

	buf[1] = 0xFF
	b2, err := sub.Uint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xFF), b2, "SubStream must share the parent backing array")
}

func TestFifoEnqueueDequeueWraparound(t *testing.T) {
	f := NewFifo(4)
	f.Enqueue([]byte{1, 2, 3})
	out := make([]byte, 2)
	n := f.Dequeue(out)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{1, 2}, out)
	assert.Equal(t, 1, f.Len())

	f.Enqueue([]byte{4, 5, 6, 7}) // forces growth past the initial capacity
	assert.Equal(t, 5, f.Len())
	assert.Equal(t, []byte{3, 4, 5, 6, 7}, f.Snapshot())
}

func TestFifoContains(t *testing.T) {
	f := NewFifo(8)
	f.Enqueue([]byte("hello"))
	assert.True(t, f.Contains('e'))
	assert.False(t, f.Contains('z'))
}

func TestFifoWaitUnblocksOnEnqueue(t *testing.T) {
	f := NewFifo(4)
	done := make(chan struct{})
	go func() {
		f.Wait(make(chan struct{}))
		close(done)
	}()
	f.Enqueue([]byte{1})
	<-done
}

func TestFifoWaitUnblocksOnNotifyClose(t *testing.T) {
	f := NewFifo(4)
	notify := make(chan struct{})
	done := make(chan struct{})
	go func() {
		f.Wait(notify)
		close(done)
	}()
	close(notify)
	<-done
}
