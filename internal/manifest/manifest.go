// Package manifest builds the ordered list of download tasks from templated
// items, some of which expand into checkpoint series.
package manifest

import (
	"bytes"
	"fmt"
	"maps"
	"text/template"

	"github.com/kythours/modelvol/internal/data"
)

// Range yields Start, Start+Step, ... while below Stop.
type Range struct {
	Start int `json:"start" toml:"start"`
	Stop  int `json:"stop" toml:"stop"`
	Step  int `json:"step" toml:"step"`
}

// Values expands r. A non-positive Step yields nothing.
func (r Range) Values() []int {
	if r.Step <= 0 {
		return nil
	}
	var out []int
	for v := r.Start; v < r.Stop; v += r.Step {
		out = append(out, v)
	}
	return out
}

// Item is a URL/path template pair. Without Range or Steps it yields one
// task; otherwise one task per step, Range values first, with .Step bound.
type Item struct {
	URL   string `json:"url" toml:"url"`
	Path  string `json:"path" toml:"path"`
	Range *Range `json:"range,omitempty" toml:"range,omitempty"`
	Steps []int  `json:"steps,omitempty" toml:"steps,omitempty"`
}

func (it Item) series() bool { return it.Range != nil || len(it.Steps) > 0 }

func (it Item) steps() []int {
	var out []int
	if it.Range != nil {
		out = append(out, it.Range.Values()...)
	}
	return append(out, it.Steps...)
}

// Recipe is a declarative manifest: template variables plus ordered items.
type Recipe struct {
	Vars  map[string]string `json:"vars,omitempty" toml:"vars,omitempty"`
	Items []Item            `json:"item" toml:"item"`
}

// WithVars returns a copy of r whose Vars are overlaid with extra.
func (r Recipe) WithVars(extra map[string]string) Recipe {
	out := r
	out.Vars = make(map[string]string, len(r.Vars)+len(extra))
	maps.Copy(out.Vars, r.Vars)
	maps.Copy(out.Vars, extra)
	return out
}

var funcs = template.FuncMap{"pad": pad}

// pad zero-pads n to width characters, sign included, as %0*d does.
func pad(width, n int) string { return fmt.Sprintf("%0*d", width, n) }

// Build expands r into a validated manifest. It has no side effects.
func Build(r Recipe) (data.Manifest, error) {
	var m data.Manifest
	for i, it := range r.Items {
		if !it.series() {
			t, err := render(it, r.Vars, nil)
			if err != nil {
				return nil, fmt.Errorf("%w: item %d: %v", data.ErrInvalidManifest, i, err)
			}
			m = append(m, t)
			continue
		}
		for _, step := range it.steps() {
			t, err := render(it, r.Vars, &step)
			if err != nil {
				return nil, fmt.Errorf("%w: item %d step %d: %v", data.ErrInvalidManifest, i, step, err)
			}
			m = append(m, t)
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func render(it Item, vars map[string]string, step *int) (data.DownloadTask, error) {
	ctx := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		ctx[k] = v
	}
	if step != nil {
		ctx["Step"] = *step
	}
	u, err := expand(it.URL, ctx)
	if err != nil {
		return data.DownloadTask{}, fmt.Errorf("url: %w", err)
	}
	p, err := expand(it.Path, ctx)
	if err != nil {
		return data.DownloadTask{}, fmt.Errorf("path: %w", err)
	}
	return data.DownloadTask{URL: u, Path: p}, nil
}

func expand(text string, ctx map[string]any) (string, error) {
	tmpl, err := template.New("").Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", err
	}
	return buf.String(), nil
}
