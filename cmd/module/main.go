// Package main is a module which serves the ArUco marker detector as a vision service
package main

import (
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/vision"

	"github.com/viam-modules/aruco-bridge/arucovision"
)

func main() {
	module.ModularMain(
		resource.APIModel{API: vision.API, Model: arucovision.Model},
	)
}
