// Package main builds the native plugin loaded by the game engine:
//
//	go build -buildmode=c-shared -o libopencv_sample.so ./cmd/plugin
//
// Every exported function returns an int32 error kind (0 on success) and
// writes results through out-parameters. Handles are opaque integers; a
// handle must not be used from two threads at once.
package main

/*
#include <stdint.h>
*/
import "C"

import (
	"os"

	"github.com/viam-modules/aruco-bridge/bridge"
	"github.com/viam-modules/aruco-bridge/cverr"
)

var plugin = load()

func load() *bridge.Bridge {
	opts, err := bridge.OptionsFromEnv(os.LookupEnv)
	if err != nil {
		fallback := bridge.DefaultOptions()
		fallback.Logger(os.Stderr).Warnw("ignoring plugin environment", "error", err)
		opts = fallback
	}
	logger := opts.Logger(os.Stderr)
	b, err := bridge.New(opts, logger)
	if err != nil {
		// DefaultOptions always validates
		panic(err)
	}
	logger.Infow("plugin loaded", "dictionary", opts.Dictionary, "log_level", opts.LogLevel)
	return b
}

var errorNames = func() map[cverr.Kind]*C.char {
	m := make(map[cverr.Kind]*C.char)
	for _, k := range cverr.Kinds() {
		// allocated once for the life of the process
		m[k] = C.CString(k.String())
	}
	return m
}()

var unknownKind = C.CString("unknown")

//export error_name
func error_name(kind C.int32_t) *C.char {
	if s, ok := errorNames[cverr.Kind(kind)]; ok {
		return s
	}
	return unknownKind
}

//export bridge_shutdown
func bridge_shutdown() C.int32_t {
	return status(plugin.Guard("bridge_shutdown", plugin.Close))
}

func status(k cverr.Kind) C.int32_t { return C.int32_t(k) }

func main() {}
