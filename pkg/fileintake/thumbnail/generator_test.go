package thumbnail

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumekit/fileintake/pkg/fileintake"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSupports(t *testing.T) {
	g := New()

	assert.True(t, g.Supports("image/png"))
	assert.True(t, g.Supports("image/jpeg"))
	assert.True(t, g.Supports("image/jpg"))
	assert.True(t, g.Supports("application/pdf"))
	assert.True(t, g.Supports("application/pdf; charset=binary"))

	assert.False(t, g.Supports("application/msword"))
	assert.False(t, g.Supports("text/plain"))
}

func TestGenerateDownscalesLargeImage(t *testing.T) {
	g := New()
	dims := fileintake.Dimensions{Width: 100, Height: 100}

	out, err := g.Generate(context.Background(), encodePNG(t, 800, 400), "image/png", dims)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestGenerateKeepsSmallImage(t *testing.T) {
	g := New()
	dims := fileintake.Dimensions{Width: 200, Height: 200}

	out, err := g.Generate(context.Background(), encodePNG(t, 40, 30), "image/png", dims)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 30, img.Bounds().Dy())
}

func TestGenerateRejectsUnsupportedType(t *testing.T) {
	g := New()

	_, err := g.Generate(context.Background(), []byte("plain text"), "text/plain", fileintake.Dimensions{Width: 100, Height: 100})
	assert.ErrorIs(t, err, fileintake.ErrUnsupportedMedia)
}

func TestGenerateRejectsCorruptImage(t *testing.T) {
	g := New()

	_, err := g.Generate(context.Background(), []byte("not an image"), "image/png", fileintake.Dimensions{Width: 100, Height: 100})
	assert.Error(t, err)
}

func TestGenerateHonorsCancelledContext(t *testing.T) {
	g := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, encodePNG(t, 800, 400), "image/png", fileintake.Dimensions{Width: 100, Height: 100})
	assert.ErrorIs(t, err, context.Canceled)
}
