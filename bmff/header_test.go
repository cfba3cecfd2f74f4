package bmff

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/mediaparse/cursor"
	"github.com/tetsuo/mediaparse/internal/mp4test"
	"github.com/tetsuo/mediaparse/media"
)

func TestParseBox_WaitsForWholeBox(t *testing.T) {
	t.Parallel()
	var w mp4test.Writer
	w.StartBox("free")
	w.Zeros(8)
	w.EndBox()
	box := w.Bytes()
	require.Len(t, box, 16)

	c := cursor.New(0)
	c.Append(box[:8])
	_, _, err := ParseBox(c, -1)
	n, ok := cursor.NeedMore(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, 8, n)
	assert.Equal(t, int64(0), c.Offset(), "cursor rolled back")

	c.Append(box[8:])
	b, raw, err := ParseBox(c, -1)
	require.NoError(t, err)
	assert.Equal(t, TypeFree, b.Type)
	assert.Equal(t, int64(16), b.Size)
	assert.Equal(t, box, raw)
	assert.Equal(t, 0, c.Available())
	assert.Equal(t, int64(16), c.Offset())
}

func TestReadHeader_PartialHeader(t *testing.T) {
	t.Parallel()
	c := cursor.New(100)
	c.Append([]byte{0, 0, 0})
	_, err := ReadHeader(c, -1)
	n, ok := cursor.NeedMore(err)
	require.True(t, ok)
	assert.Equal(t, 5, n)
	assert.Equal(t, int64(100), c.Offset())
}

func TestReadHeader_Sizes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		header   []byte
		budget   int64
		wantSize int64
		wantHdr  int
		wantErr  error
	}{
		{
			name:     "compact",
			header:   []byte{0, 0, 0, 24, 'm', 'o', 'o', 'v'},
			budget:   -1,
			wantSize: 24,
			wantHdr:  8,
		},
		{
			name:     "largesize",
			header:   []byte{0, 0, 0, 1, 'm', 'd', 'a', 't', 0, 0, 0, 1, 0, 0, 0, 0},
			budget:   -1,
			wantSize: 1 << 32,
			wantHdr:  16,
		},
		{
			name:     "to end",
			header:   []byte{0, 0, 0, 0, 'm', 'd', 'a', 't'},
			budget:   5000,
			wantSize: 5000,
			wantHdr:  8,
		},
		{
			name:    "to unknown end",
			header:  []byte{0, 0, 0, 0, 'm', 'd', 'a', 't'},
			budget:  -1,
			wantErr: ErrBoxSize,
		},
		{
			name:    "smaller than header",
			header:  []byte{0, 0, 0, 7, 'f', 'r', 'e', 'e'},
			budget:  -1,
			wantErr: ErrBoxSize,
		},
		{
			name:    "overrun",
			header:  []byte{0, 0, 0, 64, 'f', 'r', 'e', 'e'},
			budget:  32,
			wantErr: ErrOverrun,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := cursor.New(0)
			c.Append(tt.header)
			h, err := ReadHeader(c, tt.budget)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, media.ErrCorrupt)
				var pe *ParseError
				assert.True(t, errors.As(err, &pe))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSize, h.Size)
			assert.Equal(t, tt.wantHdr, h.HeaderSize)
			assert.Equal(t, int64(tt.wantHdr), c.Offset())
			assert.Equal(t, h.Size-int64(tt.wantHdr), h.DataSize())
		})
	}
}

func TestDecodeBox_ContainerRemainder(t *testing.T) {
	t.Parallel()
	var w mp4test.Writer
	w.StartBox("moov")
	w.Mvhd(1000, 0, 2)
	w.Zeros(3) // not a box
	w.EndBox()

	_, err := DecodeBox(w.Bytes(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, media.ErrCorrupt)
}

func TestDecodeBox_ChildOverrun(t *testing.T) {
	t.Parallel()
	var w mp4test.Writer
	w.StartBox("moov")
	w.U32(64) // claims more than the parent holds
	w.Tag("free")
	w.Zeros(8)
	w.EndBox()

	_, err := DecodeBox(w.Bytes(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, media.ErrCorrupt)
}
