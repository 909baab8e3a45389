// Package checker runs the external accessibility checker against a page.
package checker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"a11ywatch/internal/models"
)

var (
	// ErrSetup is returned when the checker could not be started.
	ErrSetup = errors.New("checker setup failed")
	// ErrRun is returned when the checker started but did not produce a report.
	ErrRun = errors.New("checker run failed")
)

// Options configures a single checker run. Timeout and Wait are milliseconds.
type Options struct {
	Standard     string
	Timeout      int
	Wait         int
	Ignore       []string
	Username     string
	Password     string
	Headers      map[string]string
	HideElements string
}

// Runner audits one URL.
type Runner interface {
	Run(ctx context.Context, url string, opts Options) ([]models.Issue, error)
}

// DefaultCommand is the checker executable looked up on PATH.
const DefaultCommand = "pa11y"

// exitIssuesFound is the exit status pa11y uses when the page has errors.
const exitIssuesFound = 2

// CLI runs the pa11y command line tool with the JSON reporter.
type CLI struct {
	Command string
	// Grace is added to the page timeout to bound the whole process.
	Grace time.Duration
}

// NewCLI creates a CLI runner. An empty command selects DefaultCommand.
func NewCLI(command string) *CLI {
	if command == "" {
		command = DefaultCommand
	}
	return &CLI{Command: command, Grace: 30 * time.Second}
}

// Run executes the checker and decodes its report.
func (c *CLI) Run(ctx context.Context, url string, opts Options) ([]models.Issue, error) {
	if !models.ValidStandard(opts.Standard) {
		return nil, fmt.Errorf("%w: unknown standard %q", ErrSetup, opts.Standard)
	}

	configPath, err := writeConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSetup, err)
	}
	if configPath != "" {
		defer os.Remove(configPath)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.Timeout+opts.Wait)*time.Millisecond+c.Grace)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Command, buildArgs(url, opts, configPath)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %v", ErrSetup, err)
		}
		if exitErr.ExitCode() != exitIssuesFound {
			return nil, fmt.Errorf("%w: exit status %d: %s", ErrRun, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
	}

	issues, err := ParseReport(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRun, err)
	}
	return issues, nil
}

func buildArgs(url string, opts Options, configPath string) []string {
	args := []string{"--reporter", "json", "--standard", opts.Standard}
	if opts.Timeout > 0 {
		args = append(args, "--timeout", strconv.Itoa(opts.Timeout))
	}
	if opts.Wait > 0 {
		args = append(args, "--wait", strconv.Itoa(opts.Wait))
	}
	for _, rule := range opts.Ignore {
		args = append(args, "--ignore", rule)
	}
	if opts.HideElements != "" {
		args = append(args, "--hide-elements", opts.HideElements)
	}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return append(args, url)
}

// requestHeaders merges custom headers with basic auth credentials. Both
// username and password must be set for credentials to be sent.
func requestHeaders(opts Options) map[string]string {
	if len(opts.Headers) == 0 && (opts.Username == "" || opts.Password == "") {
		return nil
	}
	headers := make(map[string]string, len(opts.Headers)+1)
	for k, v := range opts.Headers {
		headers[k] = v
	}
	if opts.Username != "" && opts.Password != "" {
		token := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers["Authorization"] = "Basic " + token
	}
	return headers
}

// writeConfig stores request headers in a temporary pa11y config file so they
// stay off the process command line. It returns "" when there is nothing to
// write.
func writeConfig(opts Options) (string, error) {
	headers := requestHeaders(opts)
	if headers == nil {
		return "", nil
	}
	data, err := json.Marshal(map[string]any{"headers": headers})
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", "a11ywatch-*.json")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// ParseReport decodes the JSON reporter output: either a bare issue array or
// an object carrying an "issues" array. Empty output is an empty report.
func ParseReport(data []byte) ([]models.Issue, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []models.Issue{}, nil
	}
	var issues []models.Issue
	if data[0] == '{' {
		var wrapped struct {
			Issues []models.Issue `json:"issues"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		issues = wrapped.Issues
	} else if err := json.Unmarshal(data, &issues); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if issues == nil {
		issues = []models.Issue{}
	}
	return issues, nil
}
