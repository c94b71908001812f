package stream

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/holmberd/go-bufstream"
	"github.com/holmberd/go-bufstream/internal/testutils"
)

// newTestBufferStream returns a pool-owned stream over a window of "xxabcdefyy".
func newTestBufferStream(t *testing.T) (*BufferStream, *testutils.MockManager) {
	t.Helper()
	m := &testutils.MockManager{}
	buf := m.TakeBuffer(10)
	copy(buf, "xxabcdefyy")
	s, err := NewBufferStream(m, buf, 2, 6, PoolOwned)
	require.NoError(t, err)
	return s, m
}

func TestNewBufferStream(t *testing.T) {
	m := &testutils.MockManager{}
	buf := make([]byte, 4)
	for _, w := range [][2]int{{-1, 1}, {0, -1}, {3, 2}, {5, 0}} {
		_, err := NewBufferStream(m, buf, w[0], w[1], PoolOwned)
		assert.ErrorIs(t, err, bufstream.ErrInvalidArgument, "window %v", w)
	}
	_, err := NewBufferStream(m, buf, 0, 4, Shared)
	assert.ErrorIs(t, err, bufstream.ErrInvalidArgument)
	_, err = NewBufferStream(nil, buf, 0, 4, PoolOwned)
	assert.ErrorIs(t, err, bufstream.ErrInvalidArgument)
}

func TestBufferStreamRead(t *testing.T) {
	s, _ := newTestBufferStream(t)
	defer s.Close()

	assert.True(t, s.IsReadOnly())
	assert.Equal(t, 6, s.Length())
	assert.Equal(t, "abcdef", string(s.Bytes()))

	p := make([]byte, 4)
	n, err := s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(p[:n]))
	assert.Equal(t, 4, s.Position())

	b, err := s.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('e'), b)

	n, err = s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "f", string(p[:n]))

	n, err = s.Read(p)
	assert.Zero(t, n)
	assert.Equal(t, io.EOF, err)
	_, err = s.ReadByte()
	assert.Equal(t, io.EOF, err)
}

func TestBufferStreamPosition(t *testing.T) {
	s, _ := newTestBufferStream(t)
	defer s.Close()

	off, err := s.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.EqualValues(t, 6, off)

	off, err = s.Seek(-4, io.SeekCurrent)
	require.NoError(t, err)
	assert.EqualValues(t, 2, off)
	b, err := s.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('c'), b)

	require.NoError(t, s.SetPosition(6))
	assert.ErrorIs(t, s.SetPosition(7), bufstream.ErrInvalidArgument)
	assert.ErrorIs(t, s.SetPosition(-1), bufstream.ErrInvalidArgument)
	_, err = s.Seek(1, io.SeekEnd)
	assert.ErrorIs(t, err, bufstream.ErrInvalidArgument)
	assert.Equal(t, 6, s.Position())
}

func TestBufferStreamUnsupported(t *testing.T) {
	s, _ := newTestBufferStream(t)
	defer s.Close()

	_, err := s.Write([]byte{1})
	assert.ErrorIs(t, err, bufstream.ErrNotSupported)
	assert.ErrorIs(t, s.SetLength(1), bufstream.ErrNotSupported)
}

func TestBufferStreamCopyTo(t *testing.T) {
	t.Run("Copies from the position", func(t *testing.T) {
		s, _ := newTestBufferStream(t)
		defer s.Close()
		require.NoError(t, s.SetPosition(1))

		got, err := ToByteArray(s)
		require.NoError(t, err)
		assert.Equal(t, "bcdef", string(got))
		assert.Equal(t, 6, s.Position())
	})

	t.Run("Writes capped by the buffer size", func(t *testing.T) {
		s, _ := newTestBufferStream(t)
		defer s.Close()

		var w recordingWriter
		require.NoError(t, s.CopyToBuffer(&w, 4))
		assert.Equal(t, []string{"abcd", "ef"}, w.writes)
		assert.ErrorIs(t, s.CopyToBuffer(&w, -1), bufstream.ErrInvalidArgument)
	})

	t.Run("WriteTo", func(t *testing.T) {
		s, _ := newTestBufferStream(t)
		defer s.Close()

		var w recordingWriter
		n, err := s.WriteTo(&w)
		require.NoError(t, err)
		assert.EqualValues(t, 6, n)
		assert.Equal(t, []string{"abcdef"}, w.writes)
	})

	t.Run("Checksum", func(t *testing.T) {
		s, _ := newTestBufferStream(t)
		defer s.Close()

		sum, err := Checksum(s)
		require.NoError(t, err)
		assert.Equal(t, xxhashOf("abcdef"), sum)
	})
}

func TestBufferStreamClose(t *testing.T) {
	t.Run("Pool owned buffer is returned once", func(t *testing.T) {
		s, m := newTestBufferStream(t)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())
		assert.EqualValues(t, 1, m.ReturnCalls())
		assert.Zero(t, m.Outstanding())

		_, err := s.Read(make([]byte, 1))
		assert.ErrorIs(t, err, bufstream.ErrClosed)
		assert.Nil(t, s.Bytes())
	})

	t.Run("Transferred buffer is kept", func(t *testing.T) {
		m := &testutils.MockManager{}
		s, err := NewBufferStream(m, m.TakeBuffer(4), 0, 4, TransferredToCaller)
		require.NoError(t, err)
		require.NoError(t, s.Close())
		assert.Zero(t, m.ReturnCalls())
	})
}

func TestBufferStreamClone(t *testing.T) {
	t.Run("Last holder returns the buffer", func(t *testing.T) {
		s, m := newTestBufferStream(t)
		require.NoError(t, s.SetPosition(3))

		c, err := s.Clone()
		require.NoError(t, err)
		assert.Equal(t, Shared, s.Ownership())
		assert.Equal(t, Shared, c.Ownership())
		assert.Zero(t, c.Position())
		assert.Equal(t, 3, s.Position())

		require.NoError(t, s.Close())
		assert.Zero(t, m.ReturnCalls())
		got, err := ToByteArray(c)
		require.NoError(t, err)
		assert.Equal(t, "abcdef", string(got))

		require.NoError(t, c.Close())
		assert.EqualValues(t, 1, m.ReturnCalls())
		assert.Zero(t, m.Outstanding())
	})

	t.Run("Concurrent close of many clones", func(t *testing.T) {
		s, m := newTestBufferStream(t)
		streams := []*BufferStream{s}
		for range 7 {
			c, err := streams[len(streams)-1].Clone()
			require.NoError(t, err)
			streams = append(streams, c)
		}

		var g errgroup.Group
		for _, st := range streams {
			g.Go(st.Close)
			g.Go(st.Close)
		}
		require.NoError(t, g.Wait())
		assert.EqualValues(t, 1, m.ReturnCalls())
		assert.Zero(t, m.Outstanding())
	})

	t.Run("Clone of a transferred buffer", func(t *testing.T) {
		m := &testutils.MockManager{}
		s, err := NewBufferStream(m, m.TakeBuffer(4), 0, 4, TransferredToCaller)
		require.NoError(t, err)
		c, err := s.Clone()
		require.NoError(t, err)
		assert.Equal(t, TransferredToCaller, c.Ownership())
		require.NoError(t, s.Close())
		require.NoError(t, c.Close())
		assert.Zero(t, m.ReturnCalls())
	})

	t.Run("Clone after close", func(t *testing.T) {
		s, _ := newTestBufferStream(t)
		require.NoError(t, s.Close())
		_, err := s.Clone()
		assert.ErrorIs(t, err, bufstream.ErrClosed)
	})
}
