package decoder

import (
	"image"
	"os"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	"vincit.fi/image-viewer/common/logger"
)

// exifRotateFile applies the EXIF orientation of the file to the
// decoded pixels. Missing or broken EXIF data leaves the image as is.
func exifRotateFile(path string, decoded image.Image) image.Image {
	file, err := os.Open(path)
	if err != nil {
		return decoded
	}
	defer file.Close()

	exifData, err := exif.Decode(file)
	if err != nil {
		logger.Trace.Printf("No usable Exif data in '%s'", path)
		return decoded
	}

	orientationTag, err := exifData.Get(exif.Orientation)
	if err != nil {
		return decoded
	}
	orientation, err := orientationTag.Int(0)
	if err != nil {
		return decoded
	}

	return rotateByOrientation(decoded, orientation)
}

func rotateByOrientation(decoded image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(decoded)
	case 3:
		return imaging.Rotate180(decoded)
	case 4:
		return imaging.FlipV(decoded)
	case 5:
		return imaging.Transpose(decoded)
	case 6:
		return imaging.Rotate270(decoded)
	case 7:
		return imaging.Transverse(decoded)
	case 8:
		return imaging.Rotate90(decoded)
	}
	return decoded
}
