package envelope

import (
	"encoding/base64"
	"fmt"
	"math"

	"github.com/ppiankov/aegis/internal/model"
)

// DefaultTakeoffAltitude is used when TAKEOFF carries no altitude.
const DefaultTakeoffAltitude = 10.0

// Build converts a framed raw command into an envelope body. It checks the
// kind and its required parameters but never judges intent.
func Build(raw model.RawCommand) (model.CommandEnvelope, error) {
	kind, err := model.ParseKind(raw.Kind)
	if err != nil {
		return model.CommandEnvelope{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	params := model.Params(raw.Params).Clone()
	if err := checkParams(kind, params); err != nil {
		return model.CommandEnvelope{}, fmt.Errorf("%w: %s: %v", ErrInvalidCommand, kind, err)
	}

	var tag []byte
	if raw.AuthTag != "" {
		tag, err = base64.StdEncoding.DecodeString(raw.AuthTag)
		if err != nil {
			return model.CommandEnvelope{}, fmt.Errorf("%w: auth_tag is not base64: %v", ErrInvalidCommand, err)
		}
	}

	return model.CommandEnvelope{
		Kind:    kind,
		Params:  params,
		Source:  model.ParseSource(raw.Source),
		KeyID:   raw.KeyID,
		Nonce:   raw.Nonce,
		AuthTag: tag,
	}, nil
}

func checkParams(kind model.CommandKind, p model.Params) error {
	switch kind {
	case model.KindGotoPosition:
		lat, err := requireFloat(p, "lat")
		if err != nil {
			return err
		}
		lon, err := requireFloat(p, "lon")
		if err != nil {
			return err
		}
		if _, err := requireFloat(p, "alt"); err != nil {
			return err
		}
		if lat < -90 || lat > 90 {
			return fmt.Errorf("lat %v out of range", lat)
		}
		if lon < -180 || lon > 180 {
			return fmt.Errorf("lon %v out of range", lon)
		}
	case model.KindTakeoff:
		if _, ok := p["alt"]; !ok {
			p["alt"] = DefaultTakeoffAltitude
			return nil
		}
		alt, err := requireFloat(p, "alt")
		if err != nil {
			return err
		}
		if alt < 0 {
			return fmt.Errorf("alt %v must not be negative", alt)
		}
	case model.KindSetMode:
		mode, ok := p.String("mode")
		if !ok || mode == "" {
			return fmt.Errorf("missing mode")
		}
	case model.KindSetVelocity:
		if _, err := requireFloat(p, "vx"); err != nil {
			return err
		}
		if _, err := requireFloat(p, "vy"); err != nil {
			return err
		}
		if _, ok := p["vz"]; ok {
			if _, err := requireFloat(p, "vz"); err != nil {
				return err
			}
		}
	}
	return nil
}

func requireFloat(p model.Params, name string) (float64, error) {
	if _, ok := p[name]; !ok {
		return 0, fmt.Errorf("missing %s", name)
	}
	v, ok := p.Float(name)
	if !ok {
		return 0, fmt.Errorf("%s is not numeric", name)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s is not finite", name)
	}
	p[name] = v
	return v, nil
}
