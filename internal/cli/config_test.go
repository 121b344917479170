package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobert/otlp-waterfall/internal/timeline"
	"github.com/tobert/otlp-waterfall/internal/trace"
	"github.com/tobert/otlp-waterfall/internal/view"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "c.json")
	writeFile(t, jsonPath, `{"initial_expansion": "roots", "width": 80, "color_by_service": true}`)
	cfg, err := LoadConfigFromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "roots", cfg.InitialExpansion)
	assert.Equal(t, 80, cfg.Width)
	assert.True(t, cfg.ColorByService)

	yamlPath := filepath.Join(dir, "c.yaml")
	writeFile(t, yamlPath, "marker_mode: nice\nhistory_size: 3\ndebounce: 250ms\n")
	cfg, err = LoadConfigFromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "nice", cfg.MarkerMode)
	assert.Equal(t, 3, cfg.HistorySize)
	assert.Equal(t, "250ms", cfg.Debounce)

	badPath := filepath.Join(dir, "bad.json")
	writeFile(t, badPath, `{"width": `)
	_, err = LoadConfigFromFile(badPath)
	assert.Error(t, err)

	_, err = LoadConfigFromFile(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMergeConfigs(t *testing.T) {
	base := DefaultConfig()
	merged := MergeConfigs(base, &Config{Width: 60, MarkerMode: "nice", Verbose: true})

	assert.Equal(t, 60, merged.Width)
	assert.Equal(t, "nice", merged.MarkerMode)
	assert.True(t, merged.Verbose)
	assert.Equal(t, base.HTTPPort, merged.HTTPPort, "unset fields keep the base value")
	assert.Equal(t, 100, base.Width, "base is not modified")

	assert.Same(t, base, MergeConfigs(base, nil))
	assert.Equal(t, 5, MergeConfigs(nil, &Config{MarkerCount: 5}).MarkerCount)
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	repo := filepath.Join(root, "repo")
	deep := filepath.Join(repo, "a", "b")
	require.NoError(t, os.MkdirAll(deep, 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(repo, ".git"), 0o755))

	_, err := FindProjectConfig(deep)
	assert.ErrorIs(t, err, os.ErrNotExist)

	// Above the repository root is never consulted.
	writeFile(t, filepath.Join(root, ".otlp-waterfall.json"), `{}`)
	_, err = FindProjectConfig(deep)
	assert.ErrorIs(t, err, os.ErrNotExist)

	want := filepath.Join(repo, "a", ".otlp-waterfall.yaml")
	writeFile(t, want, "width: 90\n")
	got, err := FindProjectConfig(deep)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadEffectiveConfig_Layers(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeFile(t, filepath.Join(home, ".config", "otlp-waterfall", "config.json"),
		`{"width": 70, "marker_mode": "nice"}`)

	explicit := filepath.Join(t.TempDir(), "explicit.yaml")
	writeFile(t, explicit, "width: 50\n")

	cfg, err := LoadEffectiveConfig(explicit)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Width, "explicit file wins")
	assert.Equal(t, "nice", cfg.MarkerMode, "global file applies")
	assert.Equal(t, "all", cfg.InitialExpansion, "default applies")

	_, err = LoadEffectiveConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestConfigParse(t *testing.T) {
	cfg := MergeConfigs(DefaultConfig(), &Config{
		InitialExpansion: "roots",
		InvalidPolicy:    "reject",
		MarkerMode:       "nice",
		Debounce:         "50ms",
	})
	s, err := cfg.parse()
	require.NoError(t, err)
	assert.Equal(t, view.ExpandRoots, s.initial)
	assert.Equal(t, trace.RejectInvalid, s.invalid)
	assert.Equal(t, timeline.NiceMarkers, s.markers)
	assert.Equal(t, int64(50e6), s.debounce.Nanoseconds())
	assert.Equal(t, timeline.DefaultMarkerCount, s.markerCount)

	bad := &Config{InitialExpansion: "x", InvalidPolicy: "y", MarkerMode: "z", Debounce: "soon"}
	_, err = bad.parse()
	require.Error(t, err)
	for _, v := range []string{`"x"`, `"y"`, `"z"`, `"soon"`} {
		assert.Contains(t, err.Error(), v)
	}
}

func TestHTTPAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:4381", DefaultConfig().HTTPAddr())
	assert.Equal(t, "[::1]:80", (&Config{HTTPHost: "::1", HTTPPort: 80}).HTTPAddr())
}

func TestParseOtelConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.yaml")
	writeFile(t, path, `
exporters:
  file/traces:
    path: /tmp/otel/traces.jsonl
  file:
    path: /tmp/otel/all.jsonl
  otlp:
    endpoint: localhost:4317
  file/empty: {}
`)
	paths, err := ParseOtelConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/otel/all.jsonl", "/tmp/otel/traces.jsonl"}, paths)

	_, err = ParseOtelConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
