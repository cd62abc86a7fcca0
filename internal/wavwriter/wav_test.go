package wavwriter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/retroenv/retrogolib/assert"
)

func TestWriteAndDecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := New(path, 32768)
	assert.NoError(t, err)
	w.WriteStereo([]int16{1, -1, 1000, -1000})
	w.WriteStereo([]int16{32767, -32768})
	assert.Equal(t, 3, w.Frames())
	assert.NoError(t, w.Close())

	f, err := os.Open(path)
	assert.NoError(t, err)
	defer f.Close()
	d := wav.NewDecoder(f)
	assert.True(t, d.IsValidFile())
	buf, err := d.FullPCMBuffer()
	assert.NoError(t, err)
	assert.Equal(t, uint32(32768), d.SampleRate)
	assert.Equal(t, uint16(2), d.NumChans)
	assert.Equal(t, uint16(16), d.BitDepth)
	assert.Equal(t, []int{1, -1, 1000, -1000, 32767, -32768}, buf.Data)
}

func TestRejectsBadRate(t *testing.T) {
	_, err := New("x.wav", 0)
	assert.Error(t, err)
}
