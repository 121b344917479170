package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/tobert/otlp-waterfall/internal/spanfile"
	"github.com/tobert/otlp-waterfall/internal/trace"
)

// DoctorCommand returns the CLI command definition for the 'doctor' subcommand.
// This command runs diagnostic checks on configuration and span input.
func DoctorCommand(version string) *cli.Command {
	return &cli.Command{
		Name:      "doctor",
		Usage:     "Diagnose configuration and span file problems",
		ArgsUsage: "[FILE]",
		Description: `Run checks to verify otlp-waterfall is properly configured.

This command checks:
  - Binary location
  - Global and project config files parse and hold valid values
  - MCP agent configuration (mcp_settings.json)
  - The span file, when given: that it decodes and how many spans have issues

Exit codes:
  0 - All critical checks passed
  1 - One or more issues found`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runDoctorWithUtils(cmd.Root().Writer, version, cmd.Args().First(), &realFsUtils{})
		},
	}
}

type checkResult struct {
	Name       string
	Status     string // "pass", "warn", "fail"
	Message    string
	Suggestion string
	IsCritical bool
}

type fsUtils interface {
	Executable() (string, error)
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	UserHomeDir() (string, error)
	Getwd() (string, error)
}

type realFsUtils struct{}

func (r *realFsUtils) Executable() (string, error)           { return os.Executable() }
func (r *realFsUtils) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (r *realFsUtils) ReadFile(name string) ([]byte, error)  { return os.ReadFile(name) }
func (r *realFsUtils) UserHomeDir() (string, error)          { return os.UserHomeDir() }
func (r *realFsUtils) Getwd() (string, error)                { return os.Getwd() }

func runDoctorWithUtils(w io.Writer, version, spanPath string, utils fsUtils) error {
	fmt.Fprintf(w, "🔍 otlp-waterfall doctor v%s\n\n", version)

	checks := []func(utils fsUtils) checkResult{
		checkBinaryLocation,
		checkGlobalConfig,
		checkProjectConfig,
		checkMCPConfig,
	}
	if spanPath != "" {
		checks = append(checks, func(utils fsUtils) checkResult {
			return checkSpanFile(utils, spanPath)
		})
	}

	results := make([]checkResult, 0, len(checks))
	for _, check := range checks {
		result := check(utils)
		results = append(results, result)
		printCheckResult(w, result)
	}

	fmt.Fprintln(w)
	summary := summarizeResults(results)
	printSummary(w, summary)

	if summary.FailCount > 0 {
		return fmt.Errorf("found %d issues that need attention", summary.FailCount)
	}

	return nil
}

func printCheckResult(w io.Writer, result checkResult) {
	var icon string
	switch result.Status {
	case "pass":
		icon = "✓"
	case "warn":
		icon = "⚠"
	case "fail":
		icon = "✗"
	}

	fmt.Fprintf(w, "%s %s\n", icon, result.Message)

	if result.Suggestion != "" {
		fmt.Fprintf(w, "  %s\n", result.Suggestion)
	}
}

type resultSummary struct {
	PassCount int
	WarnCount int
	FailCount int
}

func summarizeResults(results []checkResult) resultSummary {
	var summary resultSummary
	for _, r := range results {
		switch r.Status {
		case "pass":
			summary.PassCount++
		case "warn":
			summary.WarnCount++
		case "fail":
			summary.FailCount++
		}
	}
	return summary
}

func printSummary(w io.Writer, summary resultSummary) {
	if summary.FailCount > 0 {
		fmt.Fprintf(w, "❌ Found %d issue(s) that need attention\n", summary.FailCount)
		if summary.WarnCount > 0 {
			fmt.Fprintf(w, "⚠️  %d warning(s)\n", summary.WarnCount)
		}
	} else if summary.WarnCount > 0 {
		fmt.Fprintf(w, "✅ All critical checks passed!\n")
		fmt.Fprintf(w, "⚠️  %d optional warning(s)\n", summary.WarnCount)
		fmt.Fprintf(w, "💡 Run 'otlp-waterfall view FILE' to browse a trace\n")
	} else {
		fmt.Fprintf(w, "✅ All checks passed!\n")
		fmt.Fprintf(w, "💡 Run 'otlp-waterfall view FILE' to browse a trace\n")
	}
}

// Check 1: Binary location
func checkBinaryLocation(utils fsUtils) checkResult {
	executable, err := utils.Executable()
	if err != nil {
		return checkResult{
			Name:       "binary_location",
			Status:     "fail",
			Message:    "Could not determine binary location",
			Suggestion: fmt.Sprintf("Error: %v", err),
			IsCritical: true,
		}
	}

	absPath, err := filepath.Abs(executable)
	if err != nil {
		absPath = executable
	}

	return checkResult{
		Name:    "binary_location",
		Status:  "pass",
		Message: fmt.Sprintf("Binary location: %s", absPath),
	}
}

// Check 2: Global config
func checkGlobalConfig(utils fsUtils) checkResult {
	home, err := utils.UserHomeDir()
	if err != nil {
		return checkResult{
			Name:    "global_config",
			Status:  "warn",
			Message: "Could not determine home directory for the global config",
		}
	}
	path := globalConfigPath(home, utils.Stat)
	if !exists(path, utils.Stat) {
		return checkResult{
			Name:    "global_config",
			Status:  "pass",
			Message: "No global config (defaults in use)",
		}
	}
	return checkConfigFile(utils, "global_config", "Global", path)
}

// Check 3: Project config
func checkProjectConfig(utils fsUtils) checkResult {
	cwd, err := utils.Getwd()
	if err != nil {
		return checkResult{
			Name:    "project_config",
			Status:  "warn",
			Message: "Could not determine working directory for the project config",
		}
	}
	path, err := findProjectConfig(cwd, utils.Stat)
	if err != nil {
		return checkResult{
			Name:    "project_config",
			Status:  "pass",
			Message: "No project config",
		}
	}
	return checkConfigFile(utils, "project_config", "Project", path)
}

func checkConfigFile(utils fsUtils, name, label, path string) checkResult {
	data, err := utils.ReadFile(path)
	if err != nil {
		return checkResult{
			Name:       name,
			Status:     "fail",
			Message:    fmt.Sprintf("Could not read %s config", strings.ToLower(label)),
			Suggestion: fmt.Sprintf("Error reading %s: %v", path, err),
			IsCritical: true,
		}
	}
	cfg, err := parseConfig(path, data)
	if err != nil {
		return checkResult{
			Name:       name,
			Status:     "fail",
			Message:    fmt.Sprintf("%s config does not parse: %s", label, path),
			Suggestion: err.Error(),
			IsCritical: true,
		}
	}
	if _, err := MergeConfigs(DefaultConfig(), cfg).parse(); err != nil {
		return checkResult{
			Name:       name,
			Status:     "fail",
			Message:    fmt.Sprintf("%s config has invalid values: %s", label, path),
			Suggestion: err.Error(),
			IsCritical: true,
		}
	}
	return checkResult{
		Name:    name,
		Status:  "pass",
		Message: fmt.Sprintf("%s config found: %s", label, path),
	}
}

// Check 4: MCP configuration
func checkMCPConfig(utils fsUtils) checkResult {
	configPath := getMCPConfigPath(utils)
	if configPath == "" {
		return checkResult{
			Name:    "mcp_config",
			Status:  "warn",
			Message: "Could not determine MCP config locations",
		}
	}

	data, err := utils.ReadFile(configPath)
	if err != nil {
		executable, _ := utils.Executable()
		absPath, _ := filepath.Abs(executable)
		return checkResult{
			Name:    "mcp_config",
			Status:  "warn",
			Message: "Optional: MCP config not found",
			Suggestion: fmt.Sprintf(`To let agents drive the waterfall, add to %s:
  {
    "mcpServers": {
      "otlp-waterfall": {
        "command": "%s",
        "args": ["serve", "--mcp"]
      }
    }
  }`, configPath, absPath),
		}
	}

	var config map[string]interface{}
	if err := json.Unmarshal(data, &config); err != nil {
		return checkResult{
			Name:       "mcp_config",
			Status:     "fail",
			Message:    "MCP config is not valid JSON",
			Suggestion: fmt.Sprintf("Error parsing %s: %v", configPath, err),
			IsCritical: true,
		}
	}

	mcpServers, _ := config["mcpServers"].(map[string]interface{})
	if _, ok := mcpServers["otlp-waterfall"].(map[string]interface{}); !ok {
		return checkResult{
			Name:       "mcp_config",
			Status:     "warn",
			Message:    fmt.Sprintf("MCP config found: %s", configPath),
			Suggestion: "Config does not contain an 'otlp-waterfall' server entry",
		}
	}

	return checkResult{
		Name:    "mcp_config",
		Status:  "pass",
		Message: fmt.Sprintf("MCP config found: %s", configPath),
	}
}

// Check 5: Span file
func checkSpanFile(utils fsUtils, path string) checkResult {
	data, err := utils.ReadFile(path)
	if err != nil {
		return checkResult{
			Name:       "span_file",
			Status:     "fail",
			Message:    fmt.Sprintf("Could not read span file %s", path),
			Suggestion: fmt.Sprintf("Error: %v", err),
			IsCritical: true,
		}
	}

	spans, err := spanfile.DecodeBytes(data)
	if err != nil && len(spans) == 0 {
		return checkResult{
			Name:       "span_file",
			Status:     "fail",
			Message:    fmt.Sprintf("Span file does not decode: %s", path),
			Suggestion: err.Error(),
			IsCritical: true,
		}
	}

	t := trace.Build(spans)
	msg := fmt.Sprintf("Span file: %d spans, %d roots", t.Len(), len(t.Roots))
	switch {
	case err != nil:
		return checkResult{
			Name:       "span_file",
			Status:     "warn",
			Message:    msg,
			Suggestion: fmt.Sprintf("Some records were skipped: %v", err),
		}
	case len(t.Issues()) > 0:
		first := t.Issues()[0]
		return checkResult{
			Name:       "span_file",
			Status:     "warn",
			Message:    fmt.Sprintf("%s, %d issues", msg, len(t.Issues())),
			Suggestion: fmt.Sprintf("First issue: %v", first),
		}
	}
	return checkResult{
		Name:    "span_file",
		Status:  "pass",
		Message: msg,
	}
}

// getMCPConfigPaths returns possible MCP config file paths for various agents
func getMCPConfigPaths(utils fsUtils) []string {
	homeDir, err := utils.UserHomeDir()
	if err != nil {
		return nil
	}

	cwd, _ := utils.Getwd()

	var paths []string

	// Check project-level configs first (more specific)
	if cwd != "" {
		paths = append(paths,
			filepath.Join(cwd, ".gemini", "settings.json"),
			filepath.Join(cwd, ".claude", "settings.json"),
		)
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(homeDir, "AppData", "Roaming")
		}
		paths = append(paths, filepath.Join(appData, "Claude Code", "mcp_settings.json"))
	default:
		paths = append(paths, filepath.Join(homeDir, ".config", "claude-code", "mcp_settings.json"))
	}

	return paths
}

// getMCPConfigPath returns the first existing MCP config file path
func getMCPConfigPath(utils fsUtils) string {
	paths := getMCPConfigPaths(utils)
	for _, path := range paths {
		if _, err := utils.Stat(path); err == nil {
			return path
		}
	}
	// Return first path as default for error messages
	if len(paths) > 0 {
		return paths[0]
	}
	return ""
}
