// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"

	"github.com/tsdasari9/firewall/internal/errors"
)

// LoadFile loads, defaults and validates a config file. The format follows
// the extension (.hcl, .json, .yaml, .yml); anything else is tried as HCL
// and then JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(err, errors.KindNotFound, "config file %s", path)
		}
		return nil, errors.Wrap(err, errors.KindInternal, "failed to read config file")
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		cfg, err = decodeHCL(data, path)
	case ".json":
		cfg, err = decodeJSON(data)
	case ".yaml", ".yml":
		cfg, err = decodeYAML(data)
	default:
		var hclErr error
		cfg, hclErr = decodeHCL(data, path)
		if hclErr != nil {
			var jsonErr error
			cfg, jsonErr = decodeJSON(data)
			if jsonErr != nil {
				err = fmt.Errorf("failed to parse config as HCL: %w (JSON fallback error: %v)", hclErr, jsonErr)
			}
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, path)
	}

	return finish(cfg)
}

// LoadHCL loads, defaults and validates HCL source.
func LoadHCL(data []byte, filename string) (*Config, error) {
	cfg, err := decodeHCL(data, filename)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, filename)
	}
	return finish(cfg)
}

// LoadJSON loads, defaults and validates JSON.
func LoadJSON(data []byte) (*Config, error) {
	cfg, err := decodeJSON(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "json config")
	}
	return finish(cfg)
}

// LoadYAML loads, defaults and validates YAML.
func LoadYAML(data []byte) (*Config, error) {
	cfg, err := decodeYAML(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "yaml config")
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()
	if errs := cfg.Validate(); errs.HasErrors() {
		return nil, errors.Wrap(errs, errors.KindValidation, "invalid config")
	}
	return cfg, nil
}

func decodeHCL(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %w", diags)
	}

	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %w", diags)
	}
	return &cfg, nil
}

func decodeJSON(data []byte) (*Config, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &cfg, nil
}

func decodeYAML(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}
