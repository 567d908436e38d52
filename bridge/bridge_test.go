package bridge

import (
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"gocv.io/x/gocv"
	"go.viam.com/test"

	"github.com/viam-modules/aruco-bridge/capture"
	"github.com/viam-modules/aruco-bridge/cverr"
	"github.com/viam-modules/aruco-bridge/marker"
	"github.com/viam-modules/aruco-bridge/plog"
)

const frame = 300

const intrinsics = `%YAML:1.0
image_width: 300
image_height: 300
camera_matrix: !!opencv-matrix
   rows: 3
   cols: 3
   dt: d
   data: [ 300., 0., 150., 0., 300., 150., 0., 0., 1. ]
distortion_coefficients: !!opencv-matrix
   rows: 1
   cols: 5
   dt: d
   data: [ 0., 0., 0., 0., 0. ]
`

func writeIntrinsics(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intrinsics.yml")
	test.That(t, os.WriteFile(path, []byte(intrinsics), 0o600), test.ShouldBeNil)
	return path
}

func newBridge(t *testing.T) *Bridge {
	t.Helper()
	b, err := New(DefaultOptions(), plog.Nop())
	test.That(t, err, test.ShouldBeNil)
	return b
}

func markerFrame(t *testing.T, id int) []byte {
	t.Helper()
	tag := gocv.NewMat()
	defer tag.Close()
	gocv.ArucoGenerateImageMarker(gocv.ArucoDictArucoOriginal, id, 200, tag, 1)

	padded := gocv.NewMat()
	defer padded.Close()
	gocv.CopyMakeBorder(tag, &padded, 50, 50, 50, 50, gocv.BorderConstant, color.RGBA{255, 255, 255, 255})

	rgbaFrame := gocv.NewMat()
	defer rgbaFrame.Close()
	gocv.CvtColor(padded, &rgbaFrame, gocv.ColorGrayToBGRA)
	data, err := rgbaFrame.DataPtrUint8()
	test.That(t, err, test.ShouldBeNil)
	return append([]byte(nil), data...)
}

func TestDetectWithoutImage(t *testing.T) {
	b := newBridge(t)
	defer b.Close()

	h, err := b.InitDetector(frame, frame, 0.1, writeIntrinsics(t))
	test.That(t, err, test.ShouldBeNil)

	kind := b.Guard("aruco_set_image", func() error { return b.SetImage(h, nil) })
	test.That(t, kind, test.ShouldEqual, cverr.OK)

	var count int
	kind = b.Guard("aruco_detect", func() error {
		var err error
		count, err = b.Detect(h, true)
		return err
	})
	test.That(t, kind, test.ShouldEqual, cverr.NotInitialized)
	test.That(t, count, test.ShouldEqual, 0)
}

func TestInitDetectorErrors(t *testing.T) {
	b := newBridge(t)
	defer b.Close()

	_, err := b.InitDetector(frame, frame, 0.1, filepath.Join(t.TempDir(), "missing.yml"))
	test.That(t, cverr.KindOf(err), test.ShouldEqual, cverr.OpenFailed)

	bad := filepath.Join(t.TempDir(), "bad.yml")
	test.That(t, os.WriteFile(bad, []byte("image_width: 1\n"), 0o600), test.ShouldBeNil)
	_, err = b.InitDetector(frame, frame, 0.1, bad)
	test.That(t, cverr.KindOf(err), test.ShouldEqual, cverr.DecodeFailed)

	_, err = b.InitDetector(0, frame, 0.1, writeIntrinsics(t))
	test.That(t, cverr.KindOf(err), test.ShouldEqual, cverr.InvalidArgument)

	d, _ := b.Live()
	test.That(t, d, test.ShouldEqual, 0)
}

func TestFinalizeTwice(t *testing.T) {
	b := newBridge(t)
	defer b.Close()

	h, err := b.InitDetector(frame, frame, 0.1, writeIntrinsics(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.FinalizeDetector(h), test.ShouldBeNil)
	test.That(t, cverr.KindOf(b.FinalizeDetector(h)), test.ShouldEqual, cverr.InvalidHandle)

	_, err = b.Detect(h, true)
	test.That(t, cverr.KindOf(err), test.ShouldEqual, cverr.InvalidHandle)
	test.That(t, cverr.KindOf(b.FinalizeDetector(0)), test.ShouldEqual, cverr.InvalidHandle)
}

func TestInitFinalizeCycles(t *testing.T) {
	b := newBridge(t)
	defer b.Close()
	path := writeIntrinsics(t)

	seen := map[Handle]bool{}
	for i := 0; i < 100; i++ {
		h, err := b.InitDetector(frame, frame, 0.1, path)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, seen[h], test.ShouldBeFalse)
		seen[h] = true
		test.That(t, b.FinalizeDetector(h), test.ShouldBeNil)
	}
	d, c := b.Live()
	test.That(t, d, test.ShouldEqual, 0)
	test.That(t, c, test.ShouldEqual, 0)
}

func TestNoMarkers(t *testing.T) {
	b := newBridge(t)
	defer b.Close()

	h, err := b.InitDetector(frame, frame, 0.1, writeIntrinsics(t))
	test.That(t, err, test.ShouldBeNil)

	img := make([]byte, frame*frame*4)
	for i := range img {
		img[i] = 200
	}
	test.That(t, b.SetImage(h, unsafe.Pointer(&img[0])), test.ShouldBeNil)

	n, err := b.Detect(h, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 0)

	count, err := b.MarkerCount(h)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, count, test.ShouldEqual, 0)

	dst := make([]marker.Result, 4)
	_, err = b.CopyMarkers(h, unsafe.Pointer(&dst[0]), len(dst))
	test.That(t, cverr.KindOf(err), test.ShouldEqual, cverr.EmptyResult)

	out := make([]byte, frame*frame*4)
	test.That(t, b.GetImage(h, unsafe.Pointer(&out[0])), test.ShouldBeNil)
	test.That(t, out[0], test.ShouldEqual, byte(200))
	test.That(t, b.GetImage(h, nil), test.ShouldBeNil)
}

func TestCopyMarkers(t *testing.T) {
	b := newBridge(t)
	defer b.Close()

	h, err := b.InitDetector(frame, frame, 0.1, writeIntrinsics(t))
	test.That(t, err, test.ShouldBeNil)

	img := markerFrame(t, 12)
	test.That(t, b.SetImage(h, unsafe.Pointer(&img[0])), test.ShouldBeNil)
	n, err := b.Detect(h, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 1)

	_, err = b.CopyMarkers(h, nil, 1)
	test.That(t, cverr.KindOf(err), test.ShouldEqual, cverr.InvalidArgument)

	dst := make([]marker.Result, 2)
	_, err = b.CopyMarkers(h, unsafe.Pointer(&dst[0]), 0)
	test.That(t, cverr.KindOf(err), test.ShouldEqual, cverr.InvalidArgument)

	got, err := b.CopyMarkers(h, unsafe.Pointer(&dst[0]), len(dst))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, 1)
	test.That(t, dst[0].ID, test.ShouldEqual, int32(12))
	test.That(t, dst[0].Position[2], test.ShouldBeGreaterThan, 0.0)
	// an upright marker facing the camera: half turn about (0, 1, -1)
	q := dst[0].Orientation
	dot := (q[2] - q[3]) * math.Sqrt2 / 2
	test.That(t, math.Abs(dot), test.ShouldAlmostEqual, 1.0, 1e-3)
	// records past the count are untouched
	test.That(t, dst[1], test.ShouldResemble, marker.Result{})
}

type closedSource struct{ closes int }

func (s *closedSource) IsOpened() bool       { return false }
func (s *closedSource) Read(m *gocv.Mat) bool { return false }
func (s *closedSource) Close() error          { s.closes++; return nil }

func TestCameraLifecycle(t *testing.T) {
	b := newBridge(t)
	defer b.Close()

	src := &closedSource{}
	b.openCamera = func(device int, logger plog.Logger) (*capture.Camera, error) {
		if device != 0 {
			return nil, cverr.New(cverr.OpenFailed, "open", "no device %d", device)
		}
		return capture.NewCamera(src, logger), nil
	}

	_, err := b.OpenCamera(3)
	test.That(t, cverr.KindOf(err), test.ShouldEqual, cverr.OpenFailed)

	h, err := b.OpenCamera(0)
	test.That(t, err, test.ShouldBeNil)

	dst := make([]byte, 4*4*4)
	for i := range dst {
		dst[i] = 0xEE
	}
	err = b.FetchImage(h, unsafe.Pointer(&dst[0]), 4, 4)
	test.That(t, cverr.KindOf(err), test.ShouldEqual, cverr.OpenFailed)
	for _, v := range dst {
		test.That(t, v, test.ShouldEqual, byte(0xEE))
	}

	err = b.FetchImage(h, nil, 4, 4)
	test.That(t, cverr.KindOf(err), test.ShouldEqual, cverr.InvalidArgument)

	test.That(t, b.ReleaseCamera(h), test.ShouldBeNil)
	test.That(t, src.closes, test.ShouldEqual, 1)
	test.That(t, cverr.KindOf(b.ReleaseCamera(h)), test.ShouldEqual, cverr.InvalidHandle)
	err = b.FetchImage(h, unsafe.Pointer(&dst[0]), 4, 4)
	test.That(t, cverr.KindOf(err), test.ShouldEqual, cverr.InvalidHandle)
}

func TestCannyThroughBridge(t *testing.T) {
	b := newBridge(t)
	defer b.Close()

	buf := make([]byte, 8*8*4)
	for i := range buf {
		buf[i] = 77
	}
	test.That(t, b.Canny(unsafe.Pointer(&buf[0]), unsafe.Pointer(&buf[0]), 8, 8, 50, 200), test.ShouldBeNil)
	for i := 0; i < len(buf); i += 4 {
		test.That(t, buf[i], test.ShouldEqual, byte(0))
	}
	err := b.Canny(nil, unsafe.Pointer(&buf[0]), 8, 8, 50, 200)
	test.That(t, cverr.KindOf(err), test.ShouldEqual, cverr.InvalidArgument)
	err = b.Canny(unsafe.Pointer(&buf[0]), unsafe.Pointer(&buf[0]), 0, 8, 50, 200)
	test.That(t, cverr.KindOf(err), test.ShouldEqual, cverr.InvalidArgument)
}

func TestReadImageNullDestination(t *testing.T) {
	b := newBridge(t)
	err := b.ReadImage("whatever.png", nil, 100)
	test.That(t, cverr.KindOf(err), test.ShouldEqual, cverr.InvalidArgument)
}

type levelLogger struct{ debug, warn, errs int }

func (l *levelLogger) Debugw(string, ...interface{}) { l.debug++ }
func (l *levelLogger) Infow(string, ...interface{})  {}
func (l *levelLogger) Warnw(string, ...interface{})  { l.warn++ }
func (l *levelLogger) Errorw(string, ...interface{}) { l.errs++ }

func TestGuardLogLevels(t *testing.T) {
	logs := &levelLogger{}
	b, err := New(DefaultOptions(), logs)
	test.That(t, err, test.ShouldBeNil)
	defer b.Close()

	test.That(t, b.Guard("ok", func() error { return nil }), test.ShouldEqual, cverr.OK)
	test.That(t, logs.debug+logs.warn+logs.errs, test.ShouldEqual, 0)

	for _, k := range []cverr.Kind{cverr.EmptyResult, cverr.NotInitialized} {
		kind := b.Guard("poll", func() error { return cverr.New(k, "poll", "nothing yet") })
		test.That(t, kind, test.ShouldEqual, k)
	}
	test.That(t, logs.debug, test.ShouldEqual, 2)
	test.That(t, logs.warn, test.ShouldEqual, 0)

	kind := b.Guard("open", func() error { return cverr.New(cverr.OpenFailed, "open", "no device") })
	test.That(t, kind, test.ShouldEqual, cverr.OpenFailed)
	test.That(t, logs.warn, test.ShouldEqual, 1)
}

func TestGuardRecovers(t *testing.T) {
	b := newBridge(t)
	kind := b.Guard("boom", func() error {
		var m map[string]int
		m["x"] = 1
		return nil
	})
	test.That(t, kind, test.ShouldEqual, cverr.Internal)
}

func TestCloseReleasesEverything(t *testing.T) {
	b := newBridge(t)
	path := writeIntrinsics(t)
	for i := 0; i < 3; i++ {
		_, err := b.InitDetector(frame, frame, 0.1, path)
		test.That(t, err, test.ShouldBeNil)
	}
	src := &closedSource{}
	b.cameras.put(capture.NewCamera(src, nil))

	test.That(t, b.Close(), test.ShouldBeNil)
	d, c := b.Live()
	test.That(t, d, test.ShouldEqual, 0)
	test.That(t, c, test.ShouldEqual, 0)
	test.That(t, src.closes, test.ShouldEqual, 1)
}

func TestOptionsFromEnv(t *testing.T) {
	env := map[string]string{
		EnvDictionary: "6x6_250",
		EnvLogLevel:   "debug",
		EnvLogFormat:  "JSON",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	opts, err := OptionsFromEnv(lookup)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, opts, test.ShouldResemble, Options{Dictionary: "6x6_250", LogLevel: "debug", LogFormat: "json"})

	env[EnvDictionary] = "nope"
	_, err = OptionsFromEnv(lookup)
	test.That(t, err, test.ShouldNotBeNil)

	delete(env, EnvDictionary)
	env[EnvLogFormat] = "xml"
	_, err = OptionsFromEnv(lookup)
	test.That(t, err, test.ShouldNotBeNil)

	opts, err = OptionsFromEnv(func(string) (string, bool) { return "", false })
	test.That(t, err, test.ShouldBeNil)
	test.That(t, opts, test.ShouldResemble, DefaultOptions())
}
