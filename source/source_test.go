package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r Reader, src string, rng *Range) ([]byte, *Response) {
	t.Helper()
	resp, err := r.Read(context.Background(), src, rng)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return b, resp
}

func TestBytes_Ranges(t *testing.T) {
	t.Parallel()
	b := &Bytes{Data: []byte("0123456789")}

	got, resp := readAll(t, b, "", nil)
	assert.Equal(t, "0123456789", string(got))
	assert.Equal(t, int64(10), resp.ContentLength)
	assert.True(t, resp.SupportsRange)

	got, _ = readAll(t, b, "", From(7))
	assert.Equal(t, "789", string(got))

	got, _ = readAll(t, b, "", Between(2, 4))
	assert.Equal(t, "234", string(got))

	got, _ = readAll(t, b, "", Between(8, 100))
	assert.Equal(t, "89", string(got))

	_, err := b.Read(context.Background(), "", From(11))
	assert.Error(t, err)
}

func TestBytes_DisableRange(t *testing.T) {
	t.Parallel()
	b := &Bytes{Data: []byte("abc"), DisableRange: true}
	_, err := b.Read(context.Background(), "", From(1))
	assert.ErrorIs(t, err, ErrRangeUnsupported)

	got, resp := readAll(t, b, "", nil)
	assert.Equal(t, "abc", string(got))
	assert.False(t, resp.SupportsRange)
}

func TestBody_HonoursContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancelCause(context.Background())
	b := &Bytes{Data: []byte("abc")}
	resp, err := b.Read(ctx, "", nil)
	require.NoError(t, err)
	cause := errors.New("stop")
	cancel(cause)
	_, err = resp.Body.Read(make([]byte, 1))
	assert.ErrorIs(t, err, cause)
}

func TestFile_Read(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "x.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	got, resp := readAll(t, File{}, path, Between(6, 10))
	assert.Equal(t, "world", string(got))
	assert.Equal(t, int64(11), resp.ContentLength)

	_, err := File{}.Read(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCounting(t *testing.T) {
	t.Parallel()
	c := &Counting{Reader: &Bytes{Data: []byte("abcdef")}}
	readAll(t, c, "", nil)
	readAll(t, c, "", Between(1, 2))
	assert.Equal(t, 2, c.Reads())
	assert.Equal(t, []Range{{Start: 0, End: -1}, {Start: 1, End: 2}}, c.Ranges())
}

func TestReadSeeker(t *testing.T) {
	t.Parallel()
	data := make([]byte, 200_000)
	for i := range data {
		data[i] = byte(i)
	}
	c := &Counting{Reader: &Bytes{Data: data}}
	rs := NewReadSeeker(context.Background(), c, "")
	defer rs.Close()

	size, err := rs.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)

	buf := make([]byte, 4)
	_, err = io.ReadFull(rs, buf)
	require.NoError(t, err)
	assert.Equal(t, data[:4], buf)

	// Short forward seek reads through the open body.
	_, err = rs.Seek(1000, io.SeekStart)
	require.NoError(t, err)
	_, err = io.ReadFull(rs, buf)
	require.NoError(t, err)
	assert.Equal(t, data[1000:1004], buf)
	assert.Equal(t, 1, c.Reads())

	// Backward seek opens a new range.
	_, err = rs.Seek(-4, io.SeekEnd)
	require.NoError(t, err)
	_, err = io.ReadFull(rs, buf)
	require.NoError(t, err)
	assert.Equal(t, data[len(data)-4:], buf)
	assert.Equal(t, 2, c.Reads())

	_, err = rs.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadSeeker_NoRanges(t *testing.T) {
	t.Parallel()
	data := []byte("0123456789")
	rs := NewReadSeeker(context.Background(), &Bytes{Data: data, DisableRange: true}, "")
	defer rs.Close()

	buf := make([]byte, 2)
	_, err := rs.Seek(5, io.SeekStart)
	require.NoError(t, err)
	_, err = io.ReadFull(rs, buf)
	require.NoError(t, err)
	assert.Equal(t, "56", string(buf))

	_, err = rs.Seek(1, io.SeekStart)
	require.NoError(t, err)
	_, err = io.ReadFull(rs, buf)
	require.NoError(t, err)
	assert.Equal(t, "12", string(buf))
}
