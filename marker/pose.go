package marker

import (
	"math"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// solvePnPIPPESquare is cv::SOLVEPNP_IPPE_SQUARE, the solver for the four
// corners of a square planar marker in the order used by estimatePose.
const solvePnPIPPESquare = 7

// Pose is a marker's rigid transform in the OpenCV camera frame
// (x right, y down, z forward), in the units of the marker size.
type Pose struct {
	// Rotation is row-major; its columns are the marker axes.
	Rotation    [9]float64
	Translation [3]float64
}

// estimatePose recovers the pose of a square marker of side size from its
// four image corners (top-left, top-right, bottom-right, bottom-left).
func estimatePose(corners []gocv.Point2f, camera, dist gocv.Mat, size float64) (Pose, error) {
	if len(corners) != 4 {
		return Pose{}, errors.Errorf("expected 4 corners, got %d", len(corners))
	}

	h := float32(size / 2)
	object := gocv.NewPoint3fVectorFromPoints([]gocv.Point3f{
		{X: -h, Y: h},
		{X: h, Y: h},
		{X: h, Y: -h},
		{X: -h, Y: -h},
	})
	defer object.Close()
	imagePoints := gocv.NewPoint2fVectorFromPoints(corners)
	defer imagePoints.Close()

	rvec := gocv.NewMat()
	defer rvec.Close()
	tvec := gocv.NewMat()
	defer tvec.Close()
	if !gocv.SolvePnP(object, imagePoints, camera, dist, &rvec, &tvec, false, solvePnPIPPESquare) {
		return Pose{}, errors.New("no pose fits the marker corners")
	}

	rmat := gocv.NewMat()
	defer rmat.Close()
	gocv.Rodrigues(rvec, &rmat)
	if rmat.Rows() != 3 || rmat.Cols() != 3 || tvec.Total() != 3 {
		return Pose{}, errors.Errorf("unexpected pose shape %dx%d, %d", rmat.Rows(), rmat.Cols(), tvec.Total())
	}

	var p Pose
	for i := range p.Rotation {
		p.Rotation[i] = rmat.GetDoubleAt(i/3, i%3)
	}
	for i := range p.Translation {
		p.Translation[i] = tvec.GetDoubleAt(i, 0)
	}
	for _, v := range append(p.Rotation[:], p.Translation[:]...) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Pose{}, errors.New("pose is not finite")
		}
	}
	if p.Translation[2] <= 0 {
		return Pose{}, errors.Errorf("marker behind the camera (z=%g)", p.Translation[2])
	}
	return p, nil
}

// yPerpendicular turns the marker frame a quarter turn about its x axis,
// R * Rx(pi/2), so that y is the marker normal.
func yPerpendicular(r [9]float64) [9]float64 {
	var out [9]float64
	for i := 0; i < 3; i++ {
		out[i*3+0] = r[i*3+0]
		out[i*3+1] = r[i*3+2]
		out[i*3+2] = -r[i*3+1]
	}
	return out
}

// ogre converts a pose to the layout consumed by the host: position with x
// and y negated, and a (w, x, y, z) quaternion of the y-perpendicular
// rotation whose first two axes are flipped.
func ogre(p Pose) (position [3]float64, orientation [4]float64) {
	t := p.Translation
	position = [3]float64{-t[0], -t[1], t[2]}

	rot := yPerpendicular(p.Rotation)
	r := func(i, j int) float64 { return rot[i*3+j] }
	var st [3][3]float64
	st[0] = [3]float64{-r(0, 0), -r(1, 0), r(2, 0)}
	st[1] = [3]float64{-r(0, 1), -r(1, 1), r(2, 1)}
	st[2] = [3]float64{
		st[0][1]*st[1][2] - st[0][2]*st[1][1],
		st[0][2]*st[1][0] - st[0][0]*st[1][2],
		st[0][0]*st[1][1] - st[0][1]*st[1][0],
	}

	var axes [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			axes[i][j] = st[j][i]
		}
	}
	return position, quaternion(axes)
}

// quaternion returns (w, x, y, z) for rotation matrix k.
func quaternion(k [3][3]float64) [4]float64 {
	trace := k[0][0] + k[1][1] + k[2][2]
	if trace > 0 {
		root := math.Sqrt(trace + 1)
		w := 0.5 * root
		root = 0.5 / root
		return [4]float64{
			w,
			(k[2][1] - k[1][2]) * root,
			(k[0][2] - k[2][0]) * root,
			(k[1][0] - k[0][1]) * root,
		}
	}

	next := [3]int{1, 2, 0}
	i := 0
	if k[1][1] > k[0][0] {
		i = 1
	}
	if k[2][2] > k[i][i] {
		i = 2
	}
	j := next[i]
	l := next[j]

	var xyz [3]float64
	root := math.Sqrt(k[i][i] - k[j][j] - k[l][l] + 1)
	xyz[i] = 0.5 * root
	root = 0.5 / root
	w := (k[l][j] - k[j][l]) * root
	xyz[j] = (k[j][i] + k[i][j]) * root
	xyz[l] = (k[l][i] + k[i][l]) * root
	return [4]float64{w, xyz[0], xyz[1], xyz[2]}
}
