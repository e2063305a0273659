package services

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Stroke colors for overlay marks. Red for errors, green for correct work,
// blue for neutral notes.
var (
	colorRed   = color.NRGBA{R: 210, G: 35, B: 35, A: 255}
	colorGreen = color.NRGBA{R: 25, G: 135, B: 45, A: 255}
	colorBlue  = color.NRGBA{R: 35, G: 70, B: 190, A: 255}
)

func parseColor(name string) color.NRGBA {
	switch name {
	case "red":
		return colorRed
	case "green":
		return colorGreen
	default:
		return colorBlue
	}
}

func setPixel(img *image.NRGBA, x, y int, c color.NRGBA) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetNRGBA(x, y, c)
	}
}

// strokeLine draws a Bresenham line with the given thickness
func strokeLine(img *image.NRGBA, x1, y1, x2, y2, thickness int, c color.NRGBA) {
	dx := absInt(x2 - x1)
	dy := -absInt(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx + dy

	x, y := x1, y1
	for {
		stampPixel(img, x, y, thickness, c)
		if x == x2 && y == y2 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

// stampPixel fills a small square so strokes read at scan resolution
func stampPixel(img *image.NRGBA, x, y, thickness int, c color.NRGBA) {
	half := thickness / 2
	for oy := -half; oy <= half; oy++ {
		for ox := -half; ox <= half; ox++ {
			setPixel(img, x+ox, y+oy, c)
		}
	}
}

// drawRect draws a rectangle outline
func drawRect(img *image.NRGBA, x1, y1, x2, y2, thickness int, c color.NRGBA) {
	strokeLine(img, x1, y1, x2, y1, thickness, c)
	strokeLine(img, x1, y2, x2, y2, thickness, c)
	strokeLine(img, x1, y1, x1, y2, thickness, c)
	strokeLine(img, x2, y1, x2, y2, thickness, c)
}

// drawCircle draws a midpoint circle outline
func drawCircle(img *image.NRGBA, cx, cy, radius, thickness int, c color.NRGBA) {
	x, y := radius, 0
	err := 1 - radius

	for x >= y {
		stampPixel(img, cx+x, cy+y, thickness, c)
		stampPixel(img, cx+y, cy+x, thickness, c)
		stampPixel(img, cx-y, cy+x, thickness, c)
		stampPixel(img, cx-x, cy+y, thickness, c)
		stampPixel(img, cx-x, cy-y, thickness, c)
		stampPixel(img, cx-y, cy-x, thickness, c)
		stampPixel(img, cx+y, cy-x, thickness, c)
		stampPixel(img, cx+x, cy-y, thickness, c)

		y++
		if err < 0 {
			err += 2*y + 1
		} else {
			x--
			err += 2*(y-x) + 1
		}
	}
}

// drawTick draws a check mark centered on (cx, cy), size is the glyph height
func drawTick(img *image.NRGBA, cx, cy, size int, c color.NRGBA) {
	short := size / 3
	strokeLine(img, cx-size/2, cy, cx-size/2+short, cy+short, 3, c)
	strokeLine(img, cx-size/2+short, cy+short, cx+size/2, cy-size/2, 3, c)
}

// drawCross draws an X centered on (cx, cy)
func drawCross(img *image.NRGBA, cx, cy, size int, c color.NRGBA) {
	half := size / 2
	strokeLine(img, cx-half, cy-half, cx+half, cy+half, 3, c)
	strokeLine(img, cx-half, cy+half, cx+half, cy-half, 3, c)
}

// drawBracket draws a left-facing square bracket spanning y1..y2 at x
func drawBracket(img *image.NRGBA, x, y1, y2 int, c color.NRGBA) {
	lip := 8
	strokeLine(img, x, y1, x, y2, 2, c)
	strokeLine(img, x, y1, x+lip, y1, 2, c)
	strokeLine(img, x, y2, x+lip, y2, 2, c)
}

// drawText renders a label at (x, y) (baseline) using the built-in bitmap
// face. Scanned pages are large enough that the small face stays legible.
func drawText(img *image.NRGBA, x, y int, text string, c color.NRGBA) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// textWidth measures a label in pixels for right-aligned placement
func textWidth(text string) int {
	return font.MeasureString(basicfont.Face7x13, text).Ceil()
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
