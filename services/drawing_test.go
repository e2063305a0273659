package services

import (
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
)

func TestParseColor(t *testing.T) {
	assert.Equal(t, colorRed, parseColor("red"))
	assert.Equal(t, colorGreen, parseColor("green"))
	assert.Equal(t, colorBlue, parseColor("blue"))
	assert.Equal(t, colorBlue, parseColor(""))
	assert.Equal(t, colorBlue, parseColor("chartreuse"))
}

func TestStrokeLinePaintsEndpoints(t *testing.T) {
	img := imaging.New(100, 100, color.White)

	strokeLine(img, 10, 50, 90, 50, 1, colorRed)

	assert.Equal(t, colorRed, img.NRGBAAt(10, 50))
	assert.Equal(t, colorRed, img.NRGBAAt(50, 50))
	assert.Equal(t, colorRed, img.NRGBAAt(90, 50))
	// Off the stroke stays untouched.
	assert.NotEqual(t, colorRed, img.NRGBAAt(50, 60))
}

func TestStrokeLineClipsOutOfBounds(t *testing.T) {
	img := imaging.New(50, 50, color.White)

	// Must not panic when the line leaves the canvas.
	strokeLine(img, -20, -20, 200, 200, 3, colorRed)
	drawCircle(img, 49, 49, 30, 2, colorGreen)
	drawText(img, 45, 25, "overflowing label text", colorBlue)
}

func TestDrawRectPaintsBorderOnly(t *testing.T) {
	img := imaging.New(100, 100, color.White)

	drawRect(img, 20, 20, 80, 80, 1, colorBlue)

	assert.Equal(t, colorBlue, img.NRGBAAt(20, 20))
	assert.Equal(t, colorBlue, img.NRGBAAt(50, 20))
	assert.Equal(t, colorBlue, img.NRGBAAt(80, 80))
	// Interior stays white.
	assert.NotEqual(t, colorBlue, img.NRGBAAt(50, 50))
}

func TestDrawTextPaintsSomething(t *testing.T) {
	img := imaging.New(200, 60, color.White)

	drawText(img, 10, 30, "7/10", colorRed)
	assert.False(t, allWhite(img))

	assert.Greater(t, textWidth("longer label"), textWidth("ok"))
	assert.Equal(t, 0, textWidth(""))
}
