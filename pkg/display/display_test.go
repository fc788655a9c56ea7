package display

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadless(t *testing.T) {
	h := NewHeadless()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))

	assert.NoError(t, h.Show("Bottom Camera", img))
	assert.NoError(t, h.Show("Bottom Camera", img))
	assert.Equal(t, 2, h.Shown("Bottom Camera"))
	assert.Same(t, img, h.Last("Bottom Camera"))
	assert.Equal(t, 0, h.Shown("LiDAR Feed"))

	assert.Equal(t, NoKey, h.WaitKey(1))
	h.QueueKey('x')
	assert.Equal(t, int('x'), h.WaitKey(1))
	assert.Equal(t, NoKey, h.WaitKey(1))

	assert.False(t, h.Closed())
	assert.NoError(t, h.Close())
	assert.True(t, h.Closed())
}
