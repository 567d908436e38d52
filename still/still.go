// Package still runs edge detection on image files.
package still

import (
	"os"

	"gocv.io/x/gocv"

	"github.com/viam-modules/aruco-bridge/cverr"
	"github.com/viam-modules/aruco-bridge/rgba"
)

// Thresholds used by ReadEdges.
const (
	LowThreshold  = 50
	HighThreshold = 200
)

func load(op, path string) (gocv.Mat, error) {
	if _, err := os.Stat(path); err != nil {
		return gocv.Mat{}, cverr.Wrap(cverr.OpenFailed, op, err)
	}
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, cverr.New(cverr.DecodeFailed, op, "%s is not a readable image", path)
	}
	return img, nil
}

// Size returns the pixel dimensions of the image at path. Width counts
// columns and height counts rows.
func Size(path string) (width, height int, err error) {
	img, err := load("still.Size", path)
	if err != nil {
		return 0, 0, err
	}
	defer img.Close()
	return img.Cols(), img.Rows(), nil
}

// ReadEdges loads the image at path, runs Canny with the fixed thresholds
// and writes the edge map into dst as RGBA. dst must hold
// width*height*4 bytes as reported by Size; nothing is written otherwise.
func ReadEdges(path string, dst []byte) (width, height int, err error) {
	img, err := load("still.ReadEdges", path)
	if err != nil {
		return 0, 0, err
	}
	defer img.Close()

	width, height = img.Cols(), img.Rows()
	if err := rgba.CheckSize("still.ReadEdges", dst, width, height); err != nil {
		return 0, 0, err
	}

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(img, &edges, LowThreshold, HighThreshold)

	out, err := rgba.ToRGBA("still.ReadEdges", edges)
	if err != nil {
		return 0, 0, err
	}
	defer out.Close()
	if err := rgba.CopyOut("still.ReadEdges", out, dst); err != nil {
		return 0, 0, err
	}
	return width, height, nil
}
