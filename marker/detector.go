package marker

import (
	"math"

	"gocv.io/x/gocv"

	"github.com/viam-modules/aruco-bridge/calib"
	"github.com/viam-modules/aruco-bridge/cverr"
	"github.com/viam-modules/aruco-bridge/plog"
	"github.com/viam-modules/aruco-bridge/rgba"
)

// Config fixes the frame geometry of a Detector.
type Config struct {
	Width      int
	Height     int
	MarkerSize float64
	Dictionary gocv.ArucoDictionaryCode
}

// Validate checks the geometry.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return cverr.New(cverr.InvalidArgument, "marker.Config", "invalid image size %dx%d", c.Width, c.Height)
	}
	if !(c.MarkerSize > 0) || math.IsInf(c.MarkerSize, 0) {
		return cverr.New(cverr.InvalidArgument, "marker.Config", "marker size must be positive and finite, got %g", c.MarkerSize)
	}
	return nil
}

// Detector is the stateful object behind a detector handle: it keeps the
// last frame handed in by the host, the last annotated frame and the last
// detection results. It is not safe for concurrent use.
type Detector struct {
	cfg    Config
	params calib.Params
	camera gocv.Mat
	dist   gocv.Mat
	finder *Finder
	logger plog.Logger

	input   gocv.Mat
	output  gocv.Mat
	markers []Marker
}

// New loads the calibration at paramsPath and builds a Detector for cfg.
func New(cfg Config, paramsPath string, logger plog.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	params, err := calib.Load(paramsPath)
	if err != nil {
		return nil, err
	}
	return NewWithParams(cfg, params, logger)
}

// NewWithParams builds a Detector from already loaded calibration, rescaled
// to the configured frame size.
func NewWithParams(cfg Config, params calib.Params, logger plog.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	resized, err := params.Resize(cfg.Width, cfg.Height)
	if err != nil {
		return nil, err
	}
	camera, dist := resized.Mats()
	logger = plog.OrNop(logger)
	logger.Debugw("detector created", "width", cfg.Width, "height", cfg.Height, "marker_size", cfg.MarkerSize)
	return &Detector{
		cfg:    cfg,
		params: resized,
		camera: camera,
		dist:   dist,
		finder: NewFinder(cfg.Dictionary, logger),
		logger: logger,
		input:  gocv.NewMat(),
		output: gocv.NewMat(),
	}, nil
}

// FrameSize is the byte length of the buffers exchanged with the host.
func (d *Detector) FrameSize() int {
	return rgba.FrameSize(d.cfg.Width, d.cfg.Height)
}

// Config returns the detector geometry.
func (d *Detector) Config() Config { return d.cfg }

// SetImage copies an RGBA frame into the input slot. A nil src keeps the
// current input.
func (d *Detector) SetImage(src []byte) error {
	if src == nil {
		return nil
	}
	m, err := rgba.Clone("marker.SetImage", src, d.cfg.Width, d.cfg.Height)
	if err != nil {
		return err
	}
	d.input.Close()
	d.input = m
	return nil
}

// Image copies the last annotated frame into dst. A nil dst is a no-op.
func (d *Detector) Image(dst []byte) error {
	if dst == nil {
		return nil
	}
	if d.output.Empty() {
		return cverr.New(cverr.NotInitialized, "marker.Image", "no frame has been drawn yet")
	}
	return rgba.CopyOut("marker.Image", d.output, dst)
}

// Detect runs marker detection on the pending input frame and returns the
// number of markers found. When draw is set the annotated frame replaces
// the output image. The input slot is emptied either way.
func (d *Detector) Detect(draw bool) (int, error) {
	if d.input.Empty() {
		return 0, cverr.New(cverr.NotInitialized, "marker.Detect", "no input image")
	}

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(d.input, &bgr, gocv.ColorRGBAToBGR)

	d.markers = d.finder.Find(bgr, d.camera, d.dist, d.cfg.MarkerSize)

	if draw {
		Draw(&bgr, d.markers, d.params.Matrix, d.cfg.MarkerSize)
		gocv.CvtColor(bgr, &d.output, gocv.ColorBGRToRGBA)
	}

	d.input.Close()
	d.input = gocv.NewMat()
	return len(d.markers), nil
}

// Count is the number of markers found by the last Detect.
func (d *Detector) Count() int { return len(d.markers) }

// Markers returns the markers of the last Detect.
func (d *Detector) Markers() []Marker {
	return append([]Marker(nil), d.markers...)
}

// Results returns the host records of the last Detect, or EmptyResult when
// it found nothing.
func (d *Detector) Results() ([]Result, error) {
	if len(d.markers) == 0 {
		return nil, cverr.New(cverr.EmptyResult, "marker.Results", "no markers detected")
	}
	out := make([]Result, len(d.markers))
	for i, m := range d.markers {
		out[i] = m.Result()
	}
	return out, nil
}

// Close releases every Mat and the OpenCV detector.
func (d *Detector) Close() error {
	d.input.Close()
	d.output.Close()
	d.camera.Close()
	d.dist.Close()
	d.markers = nil
	return d.finder.Close()
}
