// Package marker detects ArUco markers with OpenCV and estimates their pose.
package marker

import (
	"image"
	"image/color"
	"strconv"

	"gocv.io/x/gocv"

	"github.com/viam-modules/aruco-bridge/plog"
)

// Marker is one detected marker.
type Marker struct {
	ID      int
	Corners [4]gocv.Point2f
	Pose    Pose
}

// Result is the fixed-size record handed to the host. Its memory layout
// matches struct { int32_t id; double position[3]; double orientation[4]; }.
type Result struct {
	ID          int32
	_           [4]byte
	Position    [3]float64
	Orientation [4]float64
}

// Result converts m to the host record.
func (m Marker) Result() Result {
	pos, rot := ogre(m.Pose)
	return Result{ID: int32(m.ID), Position: pos, Orientation: rot}
}

// Bounds is the axis aligned box around the marker corners.
func (m Marker) Bounds() image.Rectangle {
	r := image.Rectangle{Min: pt(m.Corners[0]), Max: pt(m.Corners[0])}
	for _, c := range m.Corners[1:] {
		p := pt(c)
		r = r.Union(image.Rectangle{Min: p, Max: p})
	}
	return r
}

// Center is the mean of the corners.
func (m Marker) Center() image.Point {
	var x, y float32
	for _, c := range m.Corners {
		x += c.X
		y += c.Y
	}
	return image.Pt(int(x/4), int(y/4))
}

func pt(p gocv.Point2f) image.Point { return image.Pt(int(p.X+0.5), int(p.Y+0.5)) }

// Finder wraps an OpenCV ArUco detector for one dictionary.
type Finder struct {
	detector gocv.ArucoDetector
	logger   plog.Logger
}

// NewFinder builds a detector for dict with default detector parameters.
func NewFinder(dict gocv.ArucoDictionaryCode, logger plog.Logger) *Finder {
	return &Finder{
		detector: gocv.NewArucoDetectorWithParams(gocv.GetPredefinedDictionary(dict), gocv.NewArucoDetectorParameters()),
		logger:   plog.OrNop(logger),
	}
}

// Find detects markers in a BGR image and estimates each pose from the
// camera matrix, distortion and the marker side length. Markers whose pose
// cannot be recovered are dropped.
func (f *Finder) Find(bgr gocv.Mat, camera, dist gocv.Mat, size float64) []Marker {
	corners, ids, _ := f.detector.DetectMarkers(bgr)

	markers := make([]Marker, 0, len(ids))
	for i, id := range ids {
		if i >= len(corners) || len(corners[i]) != 4 {
			continue
		}
		pose, err := estimatePose(corners[i], camera, dist, size)
		if err != nil {
			f.logger.Warnw("dropping marker without pose", "id", id, "error", err)
			continue
		}
		m := Marker{ID: id, Pose: pose}
		copy(m.Corners[:], corners[i])
		markers = append(markers, m)
	}
	f.logger.Debugw("markers detected", "candidates", len(ids), "posed", len(markers))
	return markers
}

// Close releases the OpenCV detector.
func (f *Finder) Close() error {
	return f.detector.Close()
}

var (
	outlineColor = gocv.NewScalar(0, 0, 255, 0)
	xAxisColor   = color.RGBA{0, 0, 255, 0}
	yAxisColor   = color.RGBA{0, 255, 0, 0}
	zAxisColor   = color.RGBA{255, 0, 0, 0}
	labelColor   = color.RGBA{255, 255, 0, 0}
)

// Draw annotates a BGR image with marker outlines, ids and pose axes.
func Draw(bgr *gocv.Mat, markers []Marker, camera [9]float64, size float64) {
	if len(markers) == 0 {
		return
	}
	corners := make([][]gocv.Point2f, len(markers))
	ids := make([]int, len(markers))
	for i, m := range markers {
		corners[i] = m.Corners[:]
		ids[i] = m.ID
	}
	gocv.ArucoDrawDetectedMarkers(*bgr, corners, ids, outlineColor)

	for _, m := range markers {
		origin, ok := project(m.Pose, camera, [3]float64{})
		if !ok {
			continue
		}
		axes := []struct {
			dir [3]float64
			c   color.RGBA
		}{
			{[3]float64{size / 2, 0, 0}, xAxisColor},
			{[3]float64{0, size / 2, 0}, yAxisColor},
			{[3]float64{0, 0, -size / 2}, zAxisColor},
		}
		for _, a := range axes {
			if end, ok := project(m.Pose, camera, a.dir); ok {
				gocv.Line(bgr, origin, end, a.c, 2)
			}
		}
		gocv.PutText(bgr, strconv.Itoa(m.ID), m.Center(), gocv.FontHersheyPlain, 1.2, labelColor, 2)
	}
}

// project maps a point in marker coordinates to pixels with the pinhole
// model. Lens distortion is ignored; it only affects the overlay.
func project(p Pose, camera [9]float64, x [3]float64) (image.Point, bool) {
	var c [3]float64
	for i := 0; i < 3; i++ {
		c[i] = p.Rotation[i*3]*x[0] + p.Rotation[i*3+1]*x[1] + p.Rotation[i*3+2]*x[2] + p.Translation[i]
	}
	if c[2] <= 1e-9 {
		return image.Point{}, false
	}
	u := camera[0]*c[0]/c[2] + camera[1]*c[1]/c[2] + camera[2]
	v := camera[4]*c[1]/c[2] + camera[5]
	return image.Pt(int(u+0.5), int(v+0.5)), true
}
