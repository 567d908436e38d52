// Package bridge is the handle-based surface exported to the host. Every
// method takes raw pointers and explicit sizes the way the C ABI delivers
// them, and reports failures as cverr kinds.
//
// A handle is owned by one caller; concurrent calls on the same handle are
// not supported. Distinct handles may be used from distinct threads.
package bridge

import (
	"fmt"
	"runtime/debug"
	"unsafe"

	"gocv.io/x/gocv"

	"github.com/viam-modules/aruco-bridge/capture"
	"github.com/viam-modules/aruco-bridge/cverr"
	"github.com/viam-modules/aruco-bridge/marker"
	"github.com/viam-modules/aruco-bridge/plog"
	"github.com/viam-modules/aruco-bridge/rgba"
	"github.com/viam-modules/aruco-bridge/still"
)

// Bridge owns every object handed out to the host.
type Bridge struct {
	dict      gocv.ArucoDictionaryCode
	logger    plog.Logger
	detectors *table[*marker.Detector]
	cameras   *table[*capture.Camera]

	openCamera func(device int, logger plog.Logger) (*capture.Camera, error)
}

// New validates opts and returns an empty Bridge.
func New(opts Options, logger plog.Logger) (*Bridge, error) {
	dict, err := marker.ParseDictionary(opts.Dictionary)
	if err != nil {
		return nil, err
	}
	return &Bridge{
		dict:       dict,
		logger:     plog.OrNop(logger),
		detectors:  newTable[*marker.Detector]("detector"),
		cameras:    newTable[*capture.Camera]("camera"),
		openCamera: capture.Open,
	}, nil
}

// Guard runs fn, converting a returned error or a panic into a kind. No
// panic escapes.
func (b *Bridge) Guard(op string, fn func() error) (kind cverr.Kind) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorw("panic at plugin boundary", "op", op, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			kind = cverr.Internal
		}
	}()
	err := fn()
	kind = cverr.KindOf(err)
	switch kind {
	case cverr.OK:
	case cverr.EmptyResult, cverr.NotInitialized:
		// hosts poll these every frame
		b.logger.Debugw("call returned no data", "op", op, "kind", kind.String(), "error", err)
	default:
		b.logger.Warnw("call failed", "op", op, "kind", kind.String(), "error", err)
	}
	return kind
}

// Live reports the number of open detector and camera handles.
func (b *Bridge) Live() (detectors, cameras int) {
	return b.detectors.len(), b.cameras.len()
}

// Close releases every handle still open.
func (b *Bridge) Close() error {
	derr := b.detectors.closeAll()
	cerr := b.cameras.closeAll()
	if derr != nil {
		return derr
	}
	return cerr
}

// InitDetector creates a detector for width x height frames.
func (b *Bridge) InitDetector(width, height int, markerSize float64, paramsPath string) (Handle, error) {
	d, err := marker.New(marker.Config{
		Width:      width,
		Height:     height,
		MarkerSize: markerSize,
		Dictionary: b.dict,
	}, paramsPath, b.logger)
	if err != nil {
		return 0, err
	}
	h := b.detectors.put(d)
	b.logger.Infow("detector initialized", "handle", uint64(h), "width", width, "height", height)
	return h, nil
}

// FinalizeDetector releases h. A second call fails with InvalidHandle.
func (b *Bridge) FinalizeDetector(h Handle) error {
	return b.detectors.take("aruco_finalize", h)
}

// SetImage copies a full frame from src. A nil src is a no-op.
func (b *Bridge) SetImage(h Handle, src unsafe.Pointer) error {
	d, err := b.detectors.get("aruco_set_image", h)
	if err != nil {
		return err
	}
	return d.SetImage(bytesAt(src, d.FrameSize()))
}

// GetImage copies the last annotated frame into dst. A nil dst is a no-op.
func (b *Bridge) GetImage(h Handle, dst unsafe.Pointer) error {
	d, err := b.detectors.get("aruco_get_image", h)
	if err != nil {
		return err
	}
	return d.Image(bytesAt(dst, d.FrameSize()))
}

// Detect runs detection on the pending frame.
func (b *Bridge) Detect(h Handle, draw bool) (int, error) {
	d, err := b.detectors.get("aruco_detect", h)
	if err != nil {
		return 0, err
	}
	return d.Detect(draw)
}

// MarkerCount is the number of markers of the last detection.
func (b *Bridge) MarkerCount(h Handle) (int, error) {
	d, err := b.detectors.get("aruco_marker_count", h)
	if err != nil {
		return 0, err
	}
	return d.Count(), nil
}

// CopyMarkers writes the results of the last detection into an array of
// capacity records at dst.
func (b *Bridge) CopyMarkers(h Handle, dst unsafe.Pointer, capacity int) (int, error) {
	const op = "aruco_get_markers"
	d, err := b.detectors.get(op, h)
	if err != nil {
		return 0, err
	}
	results, err := d.Results()
	if err != nil {
		return 0, err
	}
	if dst == nil {
		return 0, cverr.New(cverr.InvalidArgument, op, "destination is null")
	}
	if capacity < len(results) {
		return 0, cverr.New(cverr.InvalidArgument, op, "capacity %d is less than %d markers", capacity, len(results))
	}
	copy(unsafe.Slice((*marker.Result)(dst), capacity), results)
	return len(results), nil
}

// OpenCamera opens capture device.
func (b *Bridge) OpenCamera(device int) (Handle, error) {
	cam, err := b.openCamera(device, b.logger)
	if err != nil {
		return 0, err
	}
	return b.cameras.put(cam), nil
}

// ReleaseCamera closes h. A second call fails with InvalidHandle.
func (b *Bridge) ReleaseCamera(h Handle) error {
	return b.cameras.take("release_camera", h)
}

// FetchImage grabs a frame into dst, width x height RGBA.
func (b *Bridge) FetchImage(h Handle, dst unsafe.Pointer, width, height int) error {
	const op = "fetch_image"
	cam, err := b.cameras.get(op, h)
	if err != nil {
		return err
	}
	if dst == nil {
		return cverr.New(cverr.InvalidArgument, op, "destination is null")
	}
	if width <= 0 || height <= 0 {
		return cverr.New(cverr.InvalidArgument, op, "invalid size %dx%d", width, height)
	}
	return cam.Fetch(bytesAt(dst, rgba.FrameSize(width, height)), width, height)
}

// Canny runs the stateless edge transform. src and dst may alias.
func (b *Bridge) Canny(src, dst unsafe.Pointer, width, height, thresh1, thresh2 int) error {
	const op = "to_canny"
	if src == nil || dst == nil {
		return cverr.New(cverr.InvalidArgument, op, "null buffer")
	}
	if width <= 0 || height <= 0 {
		return cverr.New(cverr.InvalidArgument, op, "invalid size %dx%d", width, height)
	}
	n := rgba.FrameSize(width, height)
	return capture.Canny(bytesAt(src, n), bytesAt(dst, n), width, height, float32(thresh1), float32(thresh2))
}

// ImageSize reports the width (columns) and height (rows) of an image file.
func (b *Bridge) ImageSize(path string) (int, int, error) {
	return still.Size(path)
}

// ReadImage writes the edge map of an image file into dst, which holds
// dstLen bytes.
func (b *Bridge) ReadImage(path string, dst unsafe.Pointer, dstLen int) error {
	if dst == nil || dstLen <= 0 {
		return cverr.New(cverr.InvalidArgument, "read_image", "empty destination")
	}
	_, _, err := still.ReadEdges(path, bytesAt(dst, dstLen))
	return err
}

func bytesAt(p unsafe.Pointer, n int) []byte {
	if p == nil {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}
