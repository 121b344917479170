package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockFsUtils struct {
	executable    string
	executableErr error
	statMap       map[string]os.FileInfo
	statErr       error
	readFileMap   map[string][]byte
	readFileErr   error
	homeDir       string
	homeDirErr    error
	cwd           string
	cwdErr        error
}

func (m *mockFsUtils) Executable() (string, error) { return m.executable, m.executableErr }
func (m *mockFsUtils) Stat(name string) (os.FileInfo, error) {
	if info, ok := m.statMap[name]; ok {
		return info, nil
	}
	return nil, m.statErr
}
func (m *mockFsUtils) ReadFile(name string) ([]byte, error) {
	if content, ok := m.readFileMap[name]; ok {
		return content, nil
	}
	return nil, m.readFileErr
}
func (m *mockFsUtils) UserHomeDir() (string, error) { return m.homeDir, m.homeDirErr }
func (m *mockFsUtils) Getwd() (string, error)       { return m.cwd, m.cwdErr }

func baseMock() *mockFsUtils {
	return &mockFsUtils{
		executable: "/usr/local/bin/otlp-waterfall",
		homeDir:    "/home/testuser",
		cwd:        "/home/testuser/project",
		statMap: map[string]os.FileInfo{
			"/usr/local/bin/otlp-waterfall": &mockFileInfo{mode: 0755},
		},
		statErr:     os.ErrNotExist,
		readFileMap: map[string][]byte{},
		readFileErr: os.ErrNotExist,
	}
}

func TestDoctor_NothingConfigured(t *testing.T) {
	var out bytes.Buffer
	err := runDoctorWithUtils(&out, "test-version", "", baseMock())

	assert.NoError(t, err)
	assert.Contains(t, out.String(), "✓ Binary location: /usr/local/bin/otlp-waterfall")
	assert.Contains(t, out.String(), "✓ No global config (defaults in use)")
	assert.Contains(t, out.String(), "✓ No project config")
	assert.Contains(t, out.String(), "⚠ Optional: MCP config not found")
	assert.Contains(t, out.String(), "✅ All critical checks passed!")
}

func TestDoctor_ConfigsAndMCP(t *testing.T) {
	m := baseMock()
	globalPath := filepath.Join("/home/testuser", ".config", "otlp-waterfall", "config.yaml")
	projectPath := filepath.Join("/home/testuser/project", ".otlp-waterfall.json")
	mcpPath := filepath.Join("/home/testuser/project", ".gemini", "settings.json")
	for _, p := range []string{globalPath, projectPath, mcpPath} {
		m.statMap[p] = &mockFileInfo{mode: 0644}
	}
	m.readFileMap[globalPath] = []byte("initial_expansion: roots\nwidth: 120\n")
	m.readFileMap[projectPath] = []byte(`{"marker_mode": "nice"}`)
	m.readFileMap[mcpPath] = []byte(`{"mcpServers": {"otlp-waterfall": {"command": "/usr/local/bin/otlp-waterfall"}}}`)

	var out bytes.Buffer
	err := runDoctorWithUtils(&out, "test-version", "", m)

	assert.NoError(t, err)
	assert.Contains(t, out.String(), "✓ Global config found: "+globalPath)
	assert.Contains(t, out.String(), "✓ Project config found: "+projectPath)
	assert.Contains(t, out.String(), "✓ MCP config found: "+mcpPath)
	assert.Contains(t, out.String(), "✅ All checks passed!")
}

func TestDoctor_InvalidProjectConfig(t *testing.T) {
	m := baseMock()
	projectPath := filepath.Join("/home/testuser/project", ".otlp-waterfall.json")
	m.statMap[projectPath] = &mockFileInfo{mode: 0644}
	m.readFileMap[projectPath] = []byte(`{"initial_expansion": "sideways"}`)

	var out bytes.Buffer
	err := runDoctorWithUtils(&out, "test-version", "", m)

	assert.Error(t, err)
	assert.Contains(t, out.String(), "✗ Project config has invalid values")
	assert.Contains(t, out.String(), "sideways")
	assert.Contains(t, out.String(), "❌ Found 1 issue(s) that need attention")
}

func TestDoctor_SpanFile(t *testing.T) {
	m := baseMock()
	m.readFileMap["good.json"] = []byte(`[
		{"span_id": "r", "timestamp": "0", "duration_ms": 10},
		{"span_id": "c", "parent_span_id": "r", "timestamp": "1", "duration_ms": 5}
	]`)
	m.readFileMap["dupes.json"] = []byte(`[
		{"span_id": "r", "timestamp": "0", "duration_ms": 10},
		{"span_id": "r", "timestamp": "1", "duration_ms": 5}
	]`)
	m.readFileMap["bad.json"] = []byte(`<html>`)

	var out bytes.Buffer
	assert.NoError(t, runDoctorWithUtils(&out, "v", "good.json", m))
	assert.Contains(t, out.String(), "✓ Span file: 2 spans, 1 roots")

	out.Reset()
	assert.NoError(t, runDoctorWithUtils(&out, "v", "dupes.json", m))
	assert.Contains(t, out.String(), "⚠ Span file: 1 spans, 1 roots, 1 issues")
	assert.Contains(t, out.String(), "duplicate span id")

	out.Reset()
	assert.Error(t, runDoctorWithUtils(&out, "v", "bad.json", m))
	assert.Contains(t, out.String(), "✗ Span file does not decode: bad.json")

	out.Reset()
	assert.Error(t, runDoctorWithUtils(&out, "v", "missing.json", m))
	assert.Contains(t, out.String(), "✗ Could not read span file missing.json")
}

// mockFileInfo implements os.FileInfo for testing purposes
type mockFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
	sys     interface{}
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() os.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() interface{}   { return m.sys }
