package apitype

import (
	"image"
)

type Size struct {
	width  int
	height int
}

func (s *Size) Width() int {
	return s.width
}

func (s *Size) Height() int {
	return s.height
}

func SizeOf(width int, height int) Size {
	return Size{width, height}
}

func SizeFromRectangle(rectangle image.Rectangle) Size {
	return Size{
		width:  rectangle.Dx(),
		height: rectangle.Dy(),
	}
}

// RectangleOfScaledToFit fits the source inside the target keeping the
// aspect ratio.
func RectangleOfScaledToFit(source image.Rectangle, target Size) Size {
	ratio := float32(source.Dx()) / float32(source.Dy())
	newWidth := int(float32(target.Height()) * ratio)
	newHeight := target.Height()

	if newWidth > target.Width() {
		newWidth = target.Width()
		newHeight = int(float32(target.Width()) / ratio)
	}
	return SizeOf(newWidth, newHeight)
}
