package main

/*
#include <stdint.h>
*/
import "C"

import (
	"unsafe"

	"github.com/viam-modules/aruco-bridge/cverr"
)

// get_image_size reports width as the column count and height as the row
// count.
//
//export get_image_size
func get_image_size(path *C.char, width, height *C.int32_t) C.int32_t {
	return status(plugin.Guard("get_image_size", func() error {
		if path == nil || width == nil || height == nil {
			return cverr.New(cverr.InvalidArgument, "get_image_size", "null argument")
		}
		w, h, err := plugin.ImageSize(C.GoString(path))
		if err != nil {
			return err
		}
		*width, *height = C.int32_t(w), C.int32_t(h)
		return nil
	}))
}

//export read_image
func read_image(path *C.char, dest *C.uint8_t, destLen C.int64_t) C.int32_t {
	return status(plugin.Guard("read_image", func() error {
		if path == nil {
			return cverr.New(cverr.InvalidArgument, "read_image", "null path")
		}
		return plugin.ReadImage(C.GoString(path), unsafe.Pointer(dest), int(destLen))
	}))
}
