package config

import (
	"encoding/json"
	"time"

	"github.com/tessera-lab/tessera/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "5s"
// or "2m30s", or from a plain number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var asString string
	if err := value.Decode(&asString); err == nil {
		parsed, err := time.ParseDuration(asString)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid duration %q", asString)
		}

		*d = Duration(parsed)

		return nil
	}

	var seconds float64
	if err := value.Decode(&seconds); err != nil {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "invalid duration %q", value.Value)
	}

	*d = Duration(time.Duration(seconds * float64(time.Second)))

	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		parsed, err := time.ParseDuration(asString)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid duration %q", asString)
		}

		*d = Duration(parsed)

		return nil
	}

	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "invalid duration %s", string(data))
	}

	*d = Duration(time.Duration(seconds * float64(time.Second)))

	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
