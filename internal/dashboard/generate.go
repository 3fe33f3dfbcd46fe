// Package dashboard renders Grafana dashboards for the exported tables.
package dashboard

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"

	"netmon-sim/internal/telemetry"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// Render executes every embedded dashboard template into outDir.
func Render(outDir string) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
		"sampleTable": func() string { return telemetry.SampleTableName },
		"logTable":    func() string { return telemetry.LogTableName },
	}

	names, err := fs.Glob(templates, "templates/*.json.tmpl")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, name := range names {
		t, err := template.New(path.Base(name)).Funcs(funcMap).ParseFS(templates, name)
		if err != nil {
			return err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(path.Base(name), ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := t.Execute(f, nil); err != nil {
			f.Close()
			return fmt.Errorf("render %s: %w", path.Base(name), err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
