package network

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// LoadConfig reads a launch config from a JSON or YAML file.
// The config is not validated.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read config file %q: %w", path, err)
	}
	config, err := ParseConfig(b)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse config file %q: %w", path, err)
	}
	return config, nil
}

// ParseConfig decodes a JSON or YAML document into a Config.
// A document consisting of `null` yields a nil config.
// Numbers are kept as json.Number, so balances above 2^53 keep every digit.
func ParseConfig(b []byte) (*Config, error) {
	var config *Config
	if json.Valid(b) {
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		if err := dec.Decode(&config); err != nil {
			return nil, err
		}
		return config, nil
	}
	if err := yaml.Unmarshal(b, &config, useNumber); err != nil {
		return nil, err
	}
	return config, nil
}

func useNumber(d *json.Decoder) *json.Decoder {
	d.UseNumber()
	return d
}

// LoadTypeDefs returns the type definitions given by [c.Types].
// A JSON string is treated as the path in [fs] of a JSON file holding them.
func (c *Config) LoadTypeDefs(fs afero.Fs) (map[string]interface{}, error) {
	typeDefs := map[string]interface{}{}
	if len(c.Types) == 0 || string(c.Types) == "null" {
		return typeDefs, nil
	}
	var path string
	if err := json.Unmarshal(c.Types, &path); err == nil {
		b, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load allychain typedef file %q: %w", path, err)
		}
		if err := json.Unmarshal(b, &typeDefs); err != nil {
			return nil, fmt.Errorf("failed to parse allychain typedef file %q: %w", path, err)
		}
		return typeDefs, nil
	}
	if err := json.Unmarshal(c.Types, &typeDefs); err != nil {
		return nil, fmt.Errorf("expected `types` to be a file path or an object: %w", err)
	}
	return typeDefs, nil
}
