// Package calib loads camera calibration files written by OpenCV's
// FileStorage (YAML dialect) and adapts them to a working resolution.
package calib

import (
	"bytes"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gopkg.in/yaml.v3"

	"github.com/viam-modules/aruco-bridge/cverr"
)

// Params holds pinhole intrinsics and lens distortion for one resolution.
type Params struct {
	// Matrix is the row-major 3x3 camera matrix [fx 0 cx; 0 fy cy; 0 0 1].
	Matrix     [9]float64
	Distortion []float64
	Width      int
	Height     int
}

// Valid reports whether p can be used for pose estimation.
func (p Params) Valid() bool {
	return p.Matrix[0] > 0 && p.Matrix[4] > 0 && p.Width > 0 && p.Height > 0
}

// Resize rescales the focal lengths and principal point from the calibrated
// resolution to width x height. Distortion is resolution independent.
func (p Params) Resize(width, height int) (Params, error) {
	if !p.Valid() {
		return Params{}, cverr.New(cverr.NotInitialized, "calib.Resize", "parameters are not loaded")
	}
	if width <= 0 || height <= 0 {
		return Params{}, cverr.New(cverr.InvalidArgument, "calib.Resize", "invalid size %dx%d", width, height)
	}
	if width == p.Width && height == p.Height {
		return p, nil
	}
	ax := float64(width) / float64(p.Width)
	ay := float64(height) / float64(p.Height)

	out := p
	out.Distortion = append([]float64(nil), p.Distortion...)
	out.Matrix[0] *= ax
	out.Matrix[2] *= ax
	out.Matrix[4] *= ay
	out.Matrix[5] *= ay
	out.Width, out.Height = width, height
	return out, nil
}

// Mats returns the camera matrix (3x3) and distortion (1xN) as CV_64F Mats.
// The caller owns both.
func (p Params) Mats() (gocv.Mat, gocv.Mat) {
	k := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64FC1)
	for i, v := range p.Matrix {
		k.SetDoubleAt(i/3, i%3, v)
	}
	if len(p.Distortion) == 0 {
		return k, gocv.NewMat()
	}
	d := gocv.NewMatWithSize(1, len(p.Distortion), gocv.MatTypeCV64FC1)
	for i, v := range p.Distortion {
		d.SetDoubleAt(0, i, v)
	}
	return k, d
}

// Load reads a calibration file from path.
func Load(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, cverr.Wrap(cverr.OpenFailed, "calib.Load", err)
	}
	p, err := Parse(data)
	if err != nil {
		return Params{}, errors.Wrapf(err, "reading %s", path)
	}
	return p, nil
}

// Parse decodes the OpenCV YAML layout:
//
//	%YAML:1.0
//	image_width: 640
//	image_height: 480
//	camera_matrix: !!opencv-matrix
//	  rows: 3
//	  cols: 3
//	  dt: d
//	  data: [ fx, 0, cx, 0, fy, cy, 0, 0, 1 ]
//	distortion_coefficients: !!opencv-matrix
//	  ...
func Parse(data []byte) (Params, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(stripDirectives(data), &doc); err != nil {
		return Params{}, cverr.Wrap(cverr.DecodeFailed, "calib.Parse", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return Params{}, cverr.New(cverr.DecodeFailed, "calib.Parse", "expected a mapping at document root")
	}

	var (
		p         Params
		haveK     bool
		root      = doc.Content[0]
		decodeErr error
	)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := strings.ToLower(root.Content[i].Value)
		val := root.Content[i+1]
		switch key {
		case "image_width":
			decodeErr = val.Decode(&p.Width)
		case "image_height":
			decodeErr = val.Decode(&p.Height)
		case "camera_matrix":
			var m []float64
			m, decodeErr = matrixValues(val, 3, 3)
			if decodeErr == nil {
				copy(p.Matrix[:], m)
				haveK = true
			}
		case "distortion_coefficients":
			p.Distortion, decodeErr = matrixValues(val, -1, -1)
		}
		if decodeErr != nil {
			return Params{}, cverr.Wrap(cverr.DecodeFailed, "calib.Parse", errors.Wrapf(decodeErr, "field %s", key))
		}
	}

	if !haveK {
		return Params{}, cverr.New(cverr.DecodeFailed, "calib.Parse", "missing camera_matrix")
	}
	if !p.Valid() {
		return Params{}, cverr.New(cverr.DecodeFailed, "calib.Parse",
			"incomplete calibration: fx=%g fy=%g size=%dx%d", p.Matrix[0], p.Matrix[4], p.Width, p.Height)
	}
	return p, nil
}

// matrixValues reads an opencv-matrix node. rows/cols < 0 accept any shape.
func matrixValues(n *yaml.Node, rows, cols int) ([]float64, error) {
	var m struct {
		Rows int       `yaml:"rows"`
		Cols int       `yaml:"cols"`
		Data []float64 `yaml:"data"`
	}
	if n.Kind != yaml.MappingNode {
		return nil, errors.New("expected an opencv-matrix mapping")
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		var err error
		switch n.Content[i].Value {
		case "rows":
			err = n.Content[i+1].Decode(&m.Rows)
		case "cols":
			err = n.Content[i+1].Decode(&m.Cols)
		case "data":
			err = n.Content[i+1].Decode(&m.Data)
		}
		if err != nil {
			return nil, err
		}
	}
	if rows >= 0 && (m.Rows != rows || m.Cols != cols) {
		return nil, errors.Errorf("expected %dx%d matrix, got %dx%d", rows, cols, m.Rows, m.Cols)
	}
	if len(m.Data) != m.Rows*m.Cols {
		return nil, errors.Errorf("matrix declares %dx%d but has %d values", m.Rows, m.Cols, len(m.Data))
	}
	return m.Data, nil
}

// stripDirectives drops OpenCV's "%YAML:1.0" header, which is not valid
// YAML 1.2 directive syntax.
func stripDirectives(data []byte) []byte {
	lines := bytes.Split(data, []byte("\n"))
	out := lines[:0]
	for _, l := range lines {
		if bytes.HasPrefix(bytes.TrimSpace(l), []byte("%")) {
			continue
		}
		out = append(out, l)
	}
	return bytes.Join(out, []byte("\n"))
}
