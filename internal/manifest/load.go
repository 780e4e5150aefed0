package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/kythours/modelvol/internal/data"
)

// Load reads a manifest file and builds it with vars bound. A .toml file is
// a Recipe. A .json file is either a Recipe object or a plain array of
// tasks; plain arrays are taken literally, without templating.
func Load(path string, vars map[string]string) (data.Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return decodeTOML(b, vars)
	case ".json":
		return decodeJSON(b, vars)
	default:
		return nil, fmt.Errorf("%w: unsupported manifest format %q", data.ErrInvalidManifest, filepath.Ext(path))
	}
}

func decodeTOML(b []byte, vars map[string]string) (data.Manifest, error) {
	var r Recipe
	dec := toml.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: %v", data.ErrInvalidManifest, err)
	}
	return Build(r.WithVars(vars))
}

func decodeJSON(b []byte, vars map[string]string) (data.Manifest, error) {
	if t := bytes.TrimSpace(b); len(t) > 0 && t[0] == '[' {
		var m data.Manifest
		if err := m.FromJSON(bytes.NewReader(t)); err != nil {
			return nil, fmt.Errorf("%w: %v", data.ErrInvalidManifest, err)
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		return m, nil
	}
	var r Recipe
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: %v", data.ErrInvalidManifest, err)
	}
	return Build(r.WithVars(vars))
}

// Formats accepted by Write.
const (
	FormatJSON = "json"
	FormatTOML = "toml"
)

// Write renders m in format. The TOML form is a Recipe with one literal
// item per task, so it loads back unchanged.
func Write(w io.Writer, m data.Manifest, format string) error {
	switch format {
	case FormatJSON, "":
		return m.ToJSON(w)
	case FormatTOML:
		r := Recipe{Items: make([]Item, 0, len(m))}
		for _, t := range m {
			r.Items = append(r.Items, Item{URL: t.URL, Path: t.Path})
		}
		return toml.NewEncoder(w).Encode(r)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
