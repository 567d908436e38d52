package main

/*
#include <stdbool.h>
#include <stdint.h>

typedef struct {
	int32_t id;
	double position[3];
	double orientation[4];
} marker_result;
*/
import "C"

import (
	"unsafe"

	"github.com/viam-modules/aruco-bridge/bridge"
	"github.com/viam-modules/aruco-bridge/cverr"
)

//export aruco_initialize
func aruco_initialize(width, height C.int32_t, markerSize C.float, paramsPath *C.char, out *C.uint64_t) C.int32_t {
	return status(plugin.Guard("aruco_initialize", func() error {
		if paramsPath == nil || out == nil {
			return cverr.New(cverr.InvalidArgument, "aruco_initialize", "null argument")
		}
		h, err := plugin.InitDetector(int(width), int(height), float64(markerSize), C.GoString(paramsPath))
		if err != nil {
			return err
		}
		*out = C.uint64_t(h)
		return nil
	}))
}

//export aruco_finalize
func aruco_finalize(handle C.uint64_t) C.int32_t {
	return status(plugin.Guard("aruco_finalize", func() error {
		return plugin.FinalizeDetector(bridge.Handle(handle))
	}))
}

//export aruco_set_image
func aruco_set_image(handle C.uint64_t, src *C.uint8_t) C.int32_t {
	return status(plugin.Guard("aruco_set_image", func() error {
		return plugin.SetImage(bridge.Handle(handle), unsafe.Pointer(src))
	}))
}

//export aruco_get_image
func aruco_get_image(handle C.uint64_t, dest *C.uint8_t) C.int32_t {
	return status(plugin.Guard("aruco_get_image", func() error {
		return plugin.GetImage(bridge.Handle(handle), unsafe.Pointer(dest))
	}))
}

//export aruco_detect
func aruco_detect(handle C.uint64_t, draw C.bool, count *C.int32_t) C.int32_t {
	return status(plugin.Guard("aruco_detect", func() error {
		n, err := plugin.Detect(bridge.Handle(handle), bool(draw))
		if err != nil {
			return err
		}
		if count != nil {
			*count = C.int32_t(n)
		}
		return nil
	}))
}

//export aruco_marker_count
func aruco_marker_count(handle C.uint64_t, count *C.int32_t) C.int32_t {
	return status(plugin.Guard("aruco_marker_count", func() error {
		if count == nil {
			return cverr.New(cverr.InvalidArgument, "aruco_marker_count", "null count")
		}
		n, err := plugin.MarkerCount(bridge.Handle(handle))
		if err != nil {
			return err
		}
		*count = C.int32_t(n)
		return nil
	}))
}

//export aruco_get_markers
func aruco_get_markers(handle C.uint64_t, dest *C.marker_result, capacity C.int32_t, count *C.int32_t) C.int32_t {
	return status(plugin.Guard("aruco_get_markers", func() error {
		n, err := plugin.CopyMarkers(bridge.Handle(handle), unsafe.Pointer(dest), int(capacity))
		if err != nil {
			return err
		}
		if count != nil {
			*count = C.int32_t(n)
		}
		return nil
	}))
}
