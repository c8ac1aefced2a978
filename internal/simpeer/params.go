package simpeer

import (
	"math"

	"simdash/internal/proto"
)

const (
	ParamMobileNodes     = "mobile_nodes"
	ParamNoiseStdev      = "rssi_noise_stdev"
	ParamDetectionRange  = "detection_range"
	ParamConnectionRange = "connection_range"
	ParamCenterStatic    = "center_static"
	ParamMaxSteps        = "max_steps"
)

// Schema lists the operator-adjustable inputs announced on connect, using
// cfg for the current values.
func Schema(cfg WorldConfig) []proto.Descriptor {
	return []proto.Descriptor{
		{
			Key:         ParamMobileNodes,
			DisplayName: "Mobile nodes",
			Kind:        proto.KindStepper,
			Value:       proto.NumberValue(float64(cfg.MobileNodes)),
			Min:         proto.Float(0),
			Max:         proto.Float(64),
			Step:        proto.Float(1),
		},
		{
			Key:         ParamNoiseStdev,
			DisplayName: "RSSI noise stdev",
			Kind:        proto.KindSlider,
			Value:       proto.NumberValue(cfg.NoiseStdev),
			Min:         proto.Float(0),
			Max:         proto.Float(0.5),
			Step:        proto.Float(0.01),
		},
		{
			Key:         ParamDetectionRange,
			DisplayName: "Detection range",
			Kind:        proto.KindSlider,
			Value:       proto.NumberValue(cfg.DetectionRange),
			Min:         proto.Float(10),
			Max:         proto.Float(700),
			Step:        proto.Float(10),
		},
		{
			Key:         ParamConnectionRange,
			DisplayName: "Connection range",
			Kind:        proto.KindSlider,
			Value:       proto.NumberValue(cfg.ConnectionRange),
			Min:         proto.Float(10),
			Max:         proto.Float(200),
			Step:        proto.Float(10),
		},
		{
			Key:         ParamCenterStatic,
			DisplayName: "Center static node",
			Kind:        proto.KindBoolean,
			Value:       proto.BoolValue(cfg.CenterStatic),
		},
		{
			Key:         ParamMaxSteps,
			DisplayName: "Max steps",
			Kind:        proto.KindStepper,
			Value:       proto.NumberValue(float64(cfg.MaxSteps)),
			Min:         proto.Float(0),
			Step:        proto.Float(1),
			Description: "0 runs until stopped",
		},
	}
}

// Apply folds submitted values into cfg. Unknown keys and values of the
// wrong type are reported back as ignored.
func Apply(cfg WorldConfig, values map[string]proto.Value) (WorldConfig, []string) {
	var ignored []string
	for key, value := range values {
		if !applyOne(&cfg, key, value) {
			ignored = append(ignored, key)
		}
	}
	return cfg, ignored
}

func applyOne(cfg *WorldConfig, key string, value proto.Value) bool {
	if key == ParamCenterStatic {
		b, ok := value.Bool()
		if ok {
			cfg.CenterStatic = b
		}
		return ok
	}
	n, ok := value.Number()
	if !ok || math.IsNaN(n) || n < 0 {
		return false
	}
	switch key {
	case ParamMobileNodes:
		cfg.MobileNodes = int(n)
	case ParamNoiseStdev:
		cfg.NoiseStdev = n
	case ParamDetectionRange:
		cfg.DetectionRange = n
	case ParamConnectionRange:
		cfg.ConnectionRange = n
	case ParamMaxSteps:
		cfg.MaxSteps = uint64(n)
	default:
		return false
	}
	return true
}
