package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dnswlt/qgisrepo/internal/dispatch"
	"github.com/dnswlt/qgisrepo/internal/store"
	"gopkg.in/yaml.v3"
)

// HTTPConfig configures how remote input catalogs are fetched.
type HTTPConfig struct {
	// Sent as User-Agent header. Some release hosts reject requests without one.
	UserAgent string `yaml:"userAgent"`
}

// Bundle is the umbrella struct for the serialized application configuration YAML.
// It bundles the package-specific configurations.
type Bundle struct {
	Dispatch dispatch.Config `yaml:"dispatch"`
	HTTP     HTTPConfig      `yaml:"http"`
}

// Load reads the configuration at configPath. Unknown fields are an error.
// An empty file yields the zero Bundle.
func Load(st store.Store, configPath string) (*Bundle, error) {
	bs, err := st.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("could not read config %q: %v", configPath, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(bs))
	dec.KnownFields(true)
	var bundle Bundle
	if err := dec.Decode(&bundle); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid configuration YAML in %q: %v", configPath, err)
	}

	if err := bundle.Dispatch.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dispatch defaults in %q: %v", configPath, err)
	}
	return &bundle, nil
}
