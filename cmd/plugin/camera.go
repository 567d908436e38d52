package main

/*
#include <stdint.h>
*/
import "C"

import (
	"unsafe"

	"github.com/viam-modules/aruco-bridge/bridge"
	"github.com/viam-modules/aruco-bridge/cverr"
)

//export get_camera
func get_camera(device C.int32_t, out *C.uint64_t) C.int32_t {
	return status(plugin.Guard("get_camera", func() error {
		if out == nil {
			return cverr.New(cverr.InvalidArgument, "get_camera", "null handle pointer")
		}
		h, err := plugin.OpenCamera(int(device))
		if err != nil {
			return err
		}
		*out = C.uint64_t(h)
		return nil
	}))
}

//export release_camera
func release_camera(handle C.uint64_t) C.int32_t {
	return status(plugin.Guard("release_camera", func() error {
		return plugin.ReleaseCamera(bridge.Handle(handle))
	}))
}

//export fetch_image
func fetch_image(handle C.uint64_t, dest *C.uint8_t, width, height C.int32_t) C.int32_t {
	return status(plugin.Guard("fetch_image", func() error {
		return plugin.FetchImage(bridge.Handle(handle), unsafe.Pointer(dest), int(width), int(height))
	}))
}

//export to_canny
func to_canny(src, dest *C.uint8_t, width, height, thresh1, thresh2 C.int32_t) C.int32_t {
	return status(plugin.Guard("to_canny", func() error {
		return plugin.Canny(unsafe.Pointer(src), unsafe.Pointer(dest), int(width), int(height), int(thresh1), int(thresh2))
	}))
}
