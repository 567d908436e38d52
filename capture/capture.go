// Package capture grabs frames from a camera device and runs the stateless
// edge transform used on live frames.
package capture

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/viam-modules/aruco-bridge/cverr"
	"github.com/viam-modules/aruco-bridge/plog"
	"github.com/viam-modules/aruco-bridge/rgba"
)

// Source is a frame producer. *gocv.VideoCapture satisfies it.
type Source interface {
	IsOpened() bool
	Read(m *gocv.Mat) bool
	Close() error
}

// Camera is the object behind a camera handle. It is not safe for
// concurrent use.
type Camera struct {
	src    Source
	frame  gocv.Mat
	logger plog.Logger
}

// Open opens capture device id.
func Open(device int, logger plog.Logger) (*Camera, error) {
	logger = plog.OrNop(logger)
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, cverr.Wrap(cverr.OpenFailed, "capture.Open", errors.Wrapf(err, "device %d", device))
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, cverr.New(cverr.OpenFailed, "capture.Open", "device %d could not be opened", device)
	}
	logger.Infow("camera opened", "device", device)
	return NewCamera(vc, logger), nil
}

// NewCamera wraps an already opened source.
func NewCamera(src Source, logger plog.Logger) *Camera {
	return &Camera{src: src, frame: gocv.NewMat(), logger: plog.OrNop(logger)}
}

// Fetch grabs one frame, resizes it to width x height and writes it to dst
// as RGBA. dst is untouched on failure.
func (c *Camera) Fetch(dst []byte, width, height int) error {
	if err := rgba.CheckSize("capture.Fetch", dst, width, height); err != nil {
		return err
	}
	if c.src == nil || !c.src.IsOpened() {
		return cverr.New(cverr.OpenFailed, "capture.Fetch", "camera is closed")
	}
	if !c.src.Read(&c.frame) || c.frame.Empty() {
		return cverr.New(cverr.EmptyResult, "capture.Fetch", "camera returned no frame")
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(c.frame, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)

	out, err := rgba.ToRGBA("capture.Fetch", resized)
	if err != nil {
		return err
	}
	defer out.Close()
	return rgba.CopyOut("capture.Fetch", out, dst)
}

// Close releases the device and the frame buffer.
func (c *Camera) Close() error {
	if c.src == nil {
		return nil
	}
	c.frame.Close()
	err := c.src.Close()
	c.src = nil
	c.logger.Infow("camera released")
	return err
}

// Canny writes the edge map of an RGBA frame into dst as RGBA. src and dst
// may be the same buffer.
func Canny(src, dst []byte, width, height int, thresh1, thresh2 float32) error {
	if err := rgba.CheckSize("capture.Canny", src, width, height); err != nil {
		return err
	}
	if err := rgba.CheckSize("capture.Canny", dst, width, height); err != nil {
		return err
	}

	view, err := rgba.View("capture.Canny", src, width, height)
	if err != nil {
		return err
	}
	defer view.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(view, &gray, gocv.ColorRGBAToGray)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, thresh1, thresh2)

	out, err := rgba.ToRGBA("capture.Canny", edges)
	if err != nil {
		return err
	}
	defer out.Close()
	return rgba.CopyOut("capture.Canny", out, dst)
}
