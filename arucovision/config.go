package arucovision

import (
	"fmt"

	"github.com/viam-modules/aruco-bridge/marker"
)

// Config names the camera to read from and how to interpret its frames.
type Config struct {
	CameraName       string  `json:"camera_name"`
	CameraParamsPath string  `json:"camera_params_path"`
	MarkerSize       float64 `json:"marker_size"`
	Dictionary       string  `json:"dictionary,omitempty"`
}

// Validate validates the config and returns implicit dependencies.
func (cfg *Config) Validate(path string) ([]string, error) {
	if cfg.CameraName == "" {
		return nil, fmt.Errorf(`expected "camera_name" attribute for marker detector %q`, path)
	}
	if cfg.CameraParamsPath == "" {
		return nil, fmt.Errorf(`expected "camera_params_path" attribute for marker detector %q`, path)
	}
	if cfg.MarkerSize <= 0 {
		return nil, fmt.Errorf("marker_size must be positive, got %g", cfg.MarkerSize)
	}
	if cfg.Dictionary != "" {
		if _, err := marker.ParseDictionary(cfg.Dictionary); err != nil {
			return nil, err
		}
	}
	return []string{cfg.CameraName}, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Dictionary == "" {
		cfg.Dictionary = marker.DefaultDictionary
	}
}
