// Package rgba moves raw 4-channel pixel buffers in and out of gocv Mats.
//
// Buffers crossing the plugin boundary carry no size metadata; every helper
// here checks the buffer length against the dimensions it is given.
package rgba

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/viam-modules/aruco-bridge/cverr"
)

// Channels is the number of bytes per pixel of a boundary buffer.
const Channels = 4

// FrameSize is the byte length of a width x height 4-channel buffer.
func FrameSize(width, height int) int {
	return width * height * Channels
}

// CheckSize validates dimensions and that buf holds at least one frame.
func CheckSize(op string, buf []byte, width, height int) error {
	if width <= 0 || height <= 0 {
		return cverr.New(cverr.InvalidArgument, op, "invalid size %dx%d", width, height)
	}
	if len(buf) < FrameSize(width, height) {
		return cverr.New(cverr.InvalidArgument, op,
			"buffer holds %d bytes, %dx%d needs %d", len(buf), width, height, FrameSize(width, height))
	}
	return nil
}

// View returns a CV_8UC4 Mat aliasing buf. buf must outlive the Mat and the
// Mat must be closed by the caller.
func View(op string, buf []byte, width, height int) (gocv.Mat, error) {
	if err := CheckSize(op, buf, width, height); err != nil {
		return gocv.Mat{}, err
	}
	m, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC4, buf[:FrameSize(width, height)])
	if err != nil {
		return gocv.Mat{}, cverr.Wrap(cverr.Internal, op, errors.Wrap(err, "wrapping pixel buffer"))
	}
	return m, nil
}

// Clone copies buf into a Mat that owns its pixels.
func Clone(op string, buf []byte, width, height int) (gocv.Mat, error) {
	view, err := View(op, buf, width, height)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer view.Close()
	return view.Clone(), nil
}

// CopyOut writes the pixels of a continuous 8-bit Mat into dst. Nothing is
// written when dst is too small.
func CopyOut(op string, m gocv.Mat, dst []byte) error {
	if m.Empty() {
		return cverr.New(cverr.NotInitialized, op, "no image to copy")
	}
	data, err := m.DataPtrUint8()
	if err != nil {
		return cverr.Wrap(cverr.Internal, op, errors.Wrap(err, "reading mat pixels"))
	}
	if len(dst) < len(data) {
		return cverr.New(cverr.InvalidArgument, op, "destination holds %d bytes, image needs %d", len(dst), len(data))
	}
	copy(dst, data)
	return nil
}

// ToRGBA converts an 8-bit 1, 3 (BGR) or 4 channel Mat to RGBA.
// The result is a new Mat owned by the caller.
func ToRGBA(op string, src gocv.Mat) (gocv.Mat, error) {
	var code gocv.ColorConversionCode
	switch src.Channels() {
	case 1:
		code = gocv.ColorGrayToBGRA
	case 3:
		code = gocv.ColorBGRToRGBA
	case 4:
		return src.Clone(), nil
	default:
		return gocv.Mat{}, cverr.New(cverr.Internal, op, "unsupported number of channels: %d", src.Channels())
	}
	out := gocv.NewMat()
	gocv.CvtColor(src, &out, code)
	return out, nil
}
