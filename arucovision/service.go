// Package arucovision implements an ArUco marker detector as a Viam vision service
package arucovision

import (
	"context"
	"image"
	"image/draw"
	"runtime"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/vision"
	vis "go.viam.com/rdk/vision"
	"go.viam.com/rdk/vision/classification"
	objdet "go.viam.com/rdk/vision/objectdetection"
	"go.viam.com/rdk/vision/viscapture"
	"gocv.io/x/gocv"

	"github.com/viam-modules/aruco-bridge/calib"
	"github.com/viam-modules/aruco-bridge/marker"
	"github.com/viam-modules/aruco-bridge/rgba"
)

const (
	ModelName = "aruco-detector"
)

var (
	// Model is viam:aruco-bridge:aruco-detector
	Model            = resource.NewModel("viam", "aruco-bridge", ModelName)
	errUnimplemented = errors.New("unimplemented")
)

func init() {
	resource.RegisterService(vision.API, Model, resource.Registration[vision.Service, *Config]{
		Constructor: newArucoDetector,
	})
}

type arucoDetector struct {
	resource.Named
	resource.AlwaysRebuild

	logger logging.Logger
	cam    camera.Camera
	conf   *Config
	params calib.Params

	mu     sync.Mutex
	finder *marker.Finder
	last   []marker.Marker
}

func newArucoDetector(ctx context.Context, deps resource.Dependencies, conf resource.Config, logger logging.Logger) (vision.Service, error) {
	newConf, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return nil, errors.Errorf("Could not assert proper config for %s", ModelName)
	}
	newConf.setDefaults()

	params, err := calib.Load(newConf.CameraParamsPath)
	if err != nil {
		return nil, err
	}

	d, err := newDetector(conf.ResourceName(), newConf, params, logger)
	if err != nil {
		return nil, err
	}

	d.cam, err = camera.FromDependencies(deps, newConf.CameraName)
	if err != nil {
		d.finder.Close()
		return nil, err
	}
	return d, nil
}

func newDetector(name resource.Name, conf *Config, params calib.Params, logger logging.Logger) (*arucoDetector, error) {
	dict, err := marker.ParseDictionary(conf.Dictionary)
	if err != nil {
		return nil, err
	}
	if !params.Valid() {
		return nil, errors.Errorf("camera parameters in %q are incomplete", conf.CameraParamsPath)
	}
	return &arucoDetector{
		Named:  name.AsNamed(),
		logger: logger,
		conf:   conf,
		params: params,
		finder: marker.NewFinder(dict, logger),
	}, nil
}

func (d *arucoDetector) DetectionsFromCamera(
	ctx context.Context,
	cameraName string,
	extra map[string]interface{},
) ([]objdet.Detection, error) {
	img, err := d.getImage(ctx)
	if err != nil {
		return nil, err
	}
	return d.Detections(ctx, img, extra)
}

func (d *arucoDetector) Detections(ctx context.Context, img image.Image, extra map[string]interface{}) ([]objdet.Detection, error) {
	markers, _, err := d.detect(img, false)
	if err != nil {
		return nil, err
	}
	return formatDetections(markers), nil
}

func (d *arucoDetector) ClassificationsFromCamera(
	ctx context.Context,
	cameraName string,
	n int,
	extra map[string]interface{},
) (classification.Classifications, error) {
	return nil, errUnimplemented
}

func (d *arucoDetector) Classifications(ctx context.Context, img image.Image,
	n int, extra map[string]interface{},
) (classification.Classifications, error) {
	return nil, errUnimplemented
}

func (d *arucoDetector) GetProperties(ctx context.Context, extra map[string]interface{}) (*vision.Properties, error) {
	return &vision.Properties{
		DetectionSupported:      true,
		ClassificationSupported: false,
		ObjectPCDsSupported:     false,
	}, nil
}

func (d *arucoDetector) GetObjectPointClouds(
	ctx context.Context,
	cameraName string,
	extra map[string]interface{},
) ([]*vis.Object, error) {
	return nil, errUnimplemented
}

func (d *arucoDetector) CaptureAllFromCamera(
	ctx context.Context,
	cameraName string,
	opt viscapture.CaptureOptions,
	extra map[string]interface{},
) (viscapture.VisCapture, error) {
	img, err := d.getImage(ctx)
	if err != nil {
		return viscapture.VisCapture{}, err
	}

	markers, annotated, err := d.detect(img, true)
	if err != nil {
		return viscapture.VisCapture{}, err
	}

	return viscapture.VisCapture{
		Image:      annotated,
		Detections: formatDetections(markers),
	}, nil
}

func (d *arucoDetector) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finder.Close()
}

// DoCommand supports {"command": "poses"}, which reports the poses of the
// markers found by the last detection.
func (d *arucoDetector) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	name, _ := cmd["command"].(string)
	if name != "poses" {
		return nil, errors.Errorf("unknown command %q", name)
	}

	d.mu.Lock()
	last := append([]marker.Marker(nil), d.last...)
	d.mu.Unlock()

	poses := make([]interface{}, 0, len(last))
	for _, m := range last {
		r := m.Result()
		poses = append(poses, map[string]interface{}{
			"id":          m.ID,
			"position":    r.Position[:],
			"orientation": r.Orientation[:],
		})
	}
	return map[string]interface{}{"poses": poses}, nil
}

func (d *arucoDetector) getImage(ctx context.Context) (image.Image, error) {
	images, _, err := d.cam.Images(ctx)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, errors.Errorf("camera %q returned no images", d.conf.CameraName)
	}

	colorImg := images[0].Image
	for _, img := range images {
		if img.SourceName == "color" {
			colorImg = img.Image
		}
	}
	return colorImg, nil
}

// detect finds markers in img. With overlay set the returned image carries
// the marker outlines and axes; otherwise it is a plain RGBA copy of img.
func (d *arucoDetector) detect(img image.Image, overlay bool) ([]marker.Marker, *image.RGBA, error) {
	const op = "arucovision.detect"
	if img == nil {
		return nil, nil, errors.New("no image to detect markers in")
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	pix := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(pix, pix.Bounds(), img, bounds.Min, draw.Src)

	view, err := rgba.View(op, pix.Pix, w, h)
	if err != nil {
		return nil, nil, err
	}
	defer view.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(view, &bgr, gocv.ColorRGBAToBGR)

	params, err := d.params.Resize(w, h)
	if err != nil {
		return nil, nil, err
	}
	cameraMat, dist := params.Mats()
	defer cameraMat.Close()
	defer dist.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	markers := d.finder.Find(bgr, cameraMat, dist, d.conf.MarkerSize)
	d.last = markers

	if overlay && len(markers) > 0 {
		marker.Draw(&bgr, markers, params.Matrix, d.conf.MarkerSize)
		out, err := rgba.ToRGBA(op, bgr)
		if err != nil {
			return nil, nil, err
		}
		defer out.Close()
		if err := rgba.CopyOut(op, out, pix.Pix); err != nil {
			return nil, nil, err
		}
	}
	runtime.KeepAlive(pix.Pix)

	d.logger.Debugw("detected markers", "count", len(markers), "width", w, "height", h)
	return markers, pix, nil
}

func formatDetections(markers []marker.Marker) []objdet.Detection {
	var detections []objdet.Detection
	for _, m := range markers {
		name := "marker-" + strconv.Itoa(m.ID)
		detections = append(detections, objdet.NewDetection(m.Bounds(), 1, name))
	}
	return detections
}
