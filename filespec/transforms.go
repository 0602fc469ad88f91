package filespec

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/kleenlab/ucsfbids/errors"
	"github.com/kleenlab/ucsfbids/registry"
	"github.com/kleenlab/ucsfbids/sidecar"
)

// PrivacyKeys are removed from image-derived JSON sidecars by StripJSON.
var PrivacyKeys = []string{
	"InstitutionName",
	"InstitutionalDepartmentName",
	"InstitutionAddress",
	"DeviceSerialNumber",
}

// CoordinateSystem is the iEEG coordinate-system descriptor.
type CoordinateSystem struct {
	System string `json:"iEEGCoordinateSystem"`
	Units  string `json:"iEEGCoordinateUnits"`
}

// DefaultCoordinateSystem is written for iEEG sessions without a descriptor.
var DefaultCoordinateSystem = CoordinateSystem{System: "ACPC", Units: "mm"}

// StripJSON copies a JSON object dropping keys; PrivacyKeys when none are given.
// Key order is preserved.
func StripJSON(keys ...string) TransformFunc {
	if len(keys) == 0 {
		keys = PrivacyKeys
	}
	return func(_ context.Context, src, dst Location) error {
		doc, err := sidecar.Read(src.FS, src.Path)
		if err != nil {
			return err
		}
		for _, k := range keys {
			doc.Delete(k)
		}
		return sidecar.Write(dst.FS, dst.Path, doc)
	}
}

// WriteJSON synthesizes dst from value, ignoring any source.
func WriteJSON(value any) TransformFunc {
	return func(_ context.Context, _, dst Location) error {
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return errors.Wrap(err, errors.CodeInvalidInput, "value is not JSON encodable")
		}
		if err := dst.FS.MkdirAll(filepath.Dir(dst.Path), 0o755); err != nil {
			return errors.Wrap(err, errors.CodeIO, "failed to create destination directory")
		}
		if err := dst.FS.WriteFile(dst.Path, append(data, '\n'), 0o644); err != nil {
			return errors.Wrap(err, errors.CodeIO, "failed to write JSON file")
		}
		return nil
	}
}

// CoordSystem returns a synthesizing step writing a coordinate-system descriptor.
func CoordSystem(cs CoordinateSystem) *Step {
	return &Step{Name: "coordsystem", Transform: WriteJSON(cs), Synthesizes: true}
}

// TransformFactory builds a named step from profile arguments.
type TransformFactory func(args registry.Options) (*Step, error)

// NewTransforms returns a registry holding the built-in named steps:
//
//	copy         verbatim byte copy
//	strip_json   StripJSON; args: keys []string
//	coordsystem  CoordSystem; args: system, units
//	write_json   WriteJSON; args: value
//	electrodes   ElectrodeTable
//
// Callers may layer their own transforms with Child.
func NewTransforms() *registry.Registry[TransformFactory] {
	r := registry.New[TransformFactory](nil)
	_ = r.Add("copy", func(registry.Options) (*Step, error) {
		return &Step{Name: "copy"}, nil
	}, nil, false)
	_ = r.Add("strip_json", func(args registry.Options) (*Step, error) {
		keys, err := stringList(args, "keys")
		if err != nil {
			return nil, err
		}
		return &Step{Name: "strip_json", Transform: StripJSON(keys...)}, nil
	}, nil, false)
	_ = r.Add("coordsystem", func(args registry.Options) (*Step, error) {
		cs := DefaultCoordinateSystem
		if v, ok := args["system"].(string); ok && v != "" {
			cs.System = v
		}
		if v, ok := args["units"].(string); ok && v != "" {
			cs.Units = v
		}
		return CoordSystem(cs), nil
	}, nil, false)
	_ = r.Add("write_json", func(args registry.Options) (*Step, error) {
		value, ok := args["value"]
		if !ok {
			return nil, errors.New(errors.CodeInvalidInput, "write_json requires a value argument")
		}
		return &Step{Name: "write_json", Transform: WriteJSON(value), Synthesizes: true}, nil
	}, nil, false)
	_ = r.Add("electrodes", func(registry.Options) (*Step, error) {
		return &Step{Name: "electrodes", Transform: ElectrodeTable()}, nil
	}, nil, false)
	return r
}

func stringList(args registry.Options, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, errors.Newf(errors.CodeInvalidInput, "argument %s must be a list of strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errors.Newf(errors.CodeInvalidInput, "argument %s must be a list of strings, got %T", key, raw)
	}
}
