// SPDX-License-Identifier: MPL-2.0

package depcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"

	"github.com/tunegrab/tunegrab/internal/selfupdate"
)

const (
	// DefaultTimeout bounds one version endpoint request.
	DefaultTimeout = 10 * time.Second

	maxVersionResponseBytes = 8 << 20
	endpointAttempts        = 3
)

const (
	// KindNotInstalled means the tool could not be started.
	KindNotInstalled ErrorKind = "not_installed"
	// KindCommandFailed means the tool ran but its version output was unusable.
	KindCommandFailed ErrorKind = "command_failed"
	// KindEndpointFailed means the latest version could not be fetched or parsed.
	KindEndpointFailed ErrorKind = "endpoint_failed"
	// KindInstallFailed means the package-manager command failed.
	KindInstallFailed ErrorKind = "install_failed"
)

// ErrDependency is matched by every *VersionError.
var ErrDependency = errors.New("dependency check failed")

type (
	// ErrorKind categorizes dependency failures.
	ErrorKind string

	// VersionError wraps a dependency failure with its category.
	VersionError struct {
		Kind   ErrorKind
		Tool   string
		Detail string
		Err    error
	}

	// CommandRunner executes external commands, allowing tests to inject stubs.
	CommandRunner interface {
		Run(ctx context.Context, name string, args ...string) ([]byte, error)
	}

	// ExecRunner runs commands with os/exec and returns combined output.
	ExecRunner struct{}

	// Spec describes the tool being checked.
	Spec struct {
		Name           string
		VersionURL     string
		VersionArgs    []string
		InstallCommand []string
	}

	// Status is the result of a dependency check.
	Status struct {
		Name            string `json:"name" yaml:"name"`
		Installed       string `json:"installed,omitempty" yaml:"installed,omitempty"`
		Latest          string `json:"latest" yaml:"latest"`
		UpdateAvailable bool   `json:"update_available" yaml:"update_available"`
		Missing         bool   `json:"missing" yaml:"missing"`
	}

	// Checker reads installed and latest versions of one tool.
	Checker struct {
		spec   Spec
		runner CommandRunner
		client *http.Client
		logger *log.Logger
		// retryDelay is the first backoff interval between endpoint attempts.
		retryDelay time.Duration
	}

	// Option configures a Checker.
	Option func(*Checker)

	// versionDoc covers PyPI's {"info": {"version": ...}} and a flat {"version": ...}.
	versionDoc struct {
		Info struct {
			Version string `json:"version"`
		} `json:"info"`
		Version string `json:"version"`
	}
)

// Error implements the error interface.
func (e *VersionError) Error() string {
	var msg string
	switch e.Kind {
	case KindNotInstalled:
		msg = e.Tool + " is not installed"
	case KindCommandFailed:
		msg = "could not read the installed " + e.Tool + " version"
	case KindEndpointFailed:
		msg = "could not fetch the latest " + e.Tool + " version"
	case KindInstallFailed:
		msg = "upgrading " + e.Tool + " failed"
	default:
		msg = e.Tool + " check failed"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the wrapped error.
func (e *VersionError) Unwrap() error { return e.Err }

// Is reports whether target is ErrDependency.
func (e *VersionError) Is(target error) bool { return target == ErrDependency }

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// WithRunner replaces the command runner.
func WithRunner(r CommandRunner) Option {
	return func(c *Checker) { c.runner = r }
}

// WithHTTPClient replaces the client used for the version endpoint.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Checker) { c.client = hc }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

// withRetryDelay shortens endpoint retries, for tests.
func withRetryDelay(d time.Duration) Option {
	return func(c *Checker) { c.retryDelay = d }
}

// NewChecker creates a Checker for spec.
func NewChecker(spec Spec, opts ...Option) *Checker {
	c := &Checker{
		spec:       spec,
		runner:     ExecRunner{},
		client:     &http.Client{Timeout: DefaultTimeout},
		retryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "depcheck", Level: log.WarnLevel})
	}
	return c
}

// Spec returns the tool description.
func (c *Checker) Spec() Spec { return c.spec }

// InstalledVersion runs the tool with its version arguments and returns the
// first non-empty output line.
func (c *Checker) InstalledVersion(ctx context.Context) (string, error) {
	out, err := c.runner.Run(ctx, c.spec.Name, c.spec.VersionArgs...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return "", &VersionError{Kind: KindNotInstalled, Tool: c.spec.Name, Err: err}
		}
		return "", &VersionError{Kind: KindCommandFailed, Tool: c.spec.Name, Detail: firstLine(out), Err: err}
	}
	v := firstLine(out)
	if v == "" {
		return "", &VersionError{Kind: KindCommandFailed, Tool: c.spec.Name, Detail: "empty version output"}
	}
	return v, nil
}

// LatestVersion fetches the version endpoint. Server errors and transport
// failures are retried a few times; client errors are not.
func (c *Checker) LatestVersion(ctx context.Context) (string, error) {
	var version string
	op := func() error {
		v, err := c.fetchLatest(ctx)
		if err != nil {
			return err
		}
		version = v
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	notify := func(err error, next time.Duration) {
		c.logger.Debug("version endpoint failed, retrying", "url", c.spec.VersionURL, "in", next, "err", err)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, endpointAttempts-1), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return "", &VersionError{Kind: KindEndpointFailed, Tool: c.spec.Name, Err: err}
	}
	return version, nil
}

func (c *Checker) fetchLatest(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.spec.VersionURL, nil)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", backoff.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var doc versionDoc
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxVersionResponseBytes)).Decode(&doc); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decoding version document: %w", err))
	}
	v := strings.TrimSpace(doc.Info.Version)
	if v == "" {
		v = strings.TrimSpace(doc.Version)
	}
	if v == "" {
		return "", backoff.Permanent(errors.New("version document has no version field"))
	}
	return v, nil
}

// Check compares the installed and latest versions. A missing tool is not an
// error: the status reports Missing with UpdateAvailable set.
func (c *Checker) Check(ctx context.Context) (Status, error) {
	st := Status{Name: c.spec.Name}

	latest, err := c.LatestVersion(ctx)
	if err != nil {
		return st, err
	}
	st.Latest = latest

	installed, err := c.InstalledVersion(ctx)
	if err != nil {
		var ve *VersionError
		if errors.As(err, &ve) && ve.Kind == KindNotInstalled {
			st.Missing = true
			st.UpdateAvailable = true
			return st, nil
		}
		return st, err
	}
	st.Installed = installed
	st.UpdateAvailable = selfupdate.IsNewer(latest, installed)
	return st, nil
}

func firstLine(out []byte) string {
	for line := range strings.SplitSeq(string(out), "\n") {
		if s := strings.TrimSpace(line); s != "" {
			return s
		}
	}
	return ""
}
