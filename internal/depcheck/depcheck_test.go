// SPDX-License-Identifier: MPL-2.0

package depcheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRunner struct {
	mu       sync.Mutex
	versions []string // successive outputs of the version command
	notFound bool
	failWith error
	install  func() ([]byte, error)
	calls    []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))

	if name == "yt-dlp" {
		if f.notFound {
			return nil, fmt.Errorf("exec: %q: %w", name, exec.ErrNotFound)
		}
		if f.failWith != nil {
			return []byte("Traceback: boom\n"), f.failWith
		}
		v := f.versions[0]
		if len(f.versions) > 1 {
			f.versions = f.versions[1:]
		}
		return []byte(v), nil
	}
	if f.install != nil {
		out, err := f.install()
		if err == nil {
			f.notFound = false
		}
		return out, err
	}
	return nil, nil
}

func testSpec(url string) Spec {
	return Spec{
		Name:           "yt-dlp",
		VersionURL:     url,
		VersionArgs:    []string{"--version"},
		InstallCommand: []string{"python3", "-m", "pip", "install", "--upgrade", "yt-dlp"},
	}
}

func versionServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChecker_Check(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		installed   string
		wantLatest  string
		wantUpdate  bool
		wantInstall string
	}{
		{
			name:        "pypi document, update available",
			body:        `{"info": {"version": "2025.10.22"}}`,
			installed:   "2025.09.26\n",
			wantLatest:  "2025.10.22",
			wantUpdate:  true,
			wantInstall: "2025.09.26",
		},
		{
			name:        "flat document, up to date",
			body:        `{"version": "2025.10.22"}`,
			installed:   "\n2025.10.22\nextra line\n",
			wantLatest:  "2025.10.22",
			wantUpdate:  false,
			wantInstall: "2025.10.22",
		},
		{
			name:        "installed newer than published",
			body:        `{"info": {"version": "2025.1.1"}}`,
			installed:   "2025.10.22.232710",
			wantLatest:  "2025.1.1",
			wantUpdate:  false,
			wantInstall: "2025.10.22.232710",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := versionServer(t, tt.body)
			runner := &fakeRunner{versions: []string{tt.installed}}
			c := NewChecker(testSpec(srv.URL), WithRunner(runner))

			st, err := c.Check(t.Context())
			if err != nil {
				t.Fatalf("Check() returned error: %v", err)
			}
			if st.Name != "yt-dlp" || st.Latest != tt.wantLatest || st.Installed != tt.wantInstall {
				t.Errorf("Check() = %+v", st)
			}
			if st.UpdateAvailable != tt.wantUpdate {
				t.Errorf("UpdateAvailable = %v, want %v", st.UpdateAvailable, tt.wantUpdate)
			}
			if st.Missing {
				t.Error("Missing should be false")
			}
			if runner.calls[0] != "yt-dlp --version" {
				t.Errorf("version command = %q", runner.calls[0])
			}
		})
	}
}

func TestChecker_CheckMissingTool(t *testing.T) {
	t.Parallel()

	srv := versionServer(t, `{"info": {"version": "2025.10.22"}}`)
	c := NewChecker(testSpec(srv.URL), WithRunner(&fakeRunner{notFound: true}))

	st, err := c.Check(t.Context())
	if err != nil {
		t.Fatalf("Check() returned error: %v", err)
	}
	if !st.Missing || !st.UpdateAvailable || st.Installed != "" {
		t.Errorf("Check() = %+v, want missing with update available", st)
	}
}

func TestChecker_InstalledVersionErrors(t *testing.T) {
	t.Parallel()

	t.Run("not installed", func(t *testing.T) {
		t.Parallel()
		c := NewChecker(testSpec("http://unused"), WithRunner(&fakeRunner{notFound: true}))
		_, err := c.InstalledVersion(t.Context())
		if !isKind(err, KindNotInstalled) || !errors.Is(err, ErrDependency) {
			t.Errorf("error = %v, want not_installed", err)
		}
	})

	t.Run("command failed", func(t *testing.T) {
		t.Parallel()
		c := NewChecker(testSpec("http://unused"), WithRunner(&fakeRunner{failWith: errors.New("exit status 1")}))
		_, err := c.InstalledVersion(t.Context())
		if !isKind(err, KindCommandFailed) {
			t.Fatalf("error = %v, want command_failed", err)
		}
		if !strings.Contains(err.Error(), "Traceback: boom") {
			t.Errorf("error should carry the first output line, got: %v", err)
		}
	})

	t.Run("empty output", func(t *testing.T) {
		t.Parallel()
		c := NewChecker(testSpec("http://unused"), WithRunner(&fakeRunner{versions: []string{"  \n"}}))
		if _, err := c.InstalledVersion(t.Context()); !isKind(err, KindCommandFailed) {
			t.Errorf("error = %v, want command_failed", err)
		}
	})
}

func TestChecker_LatestVersionRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"info": {"version": "2025.10.22"}}`))
	}))
	t.Cleanup(srv.Close)

	c := NewChecker(testSpec(srv.URL), withRetryDelay(time.Millisecond))
	v, err := c.LatestVersion(t.Context())
	if err != nil {
		t.Fatalf("LatestVersion() returned error: %v", err)
	}
	if v != "2025.10.22" || hits.Load() != 3 {
		t.Errorf("LatestVersion() = %q after %d requests", v, hits.Load())
	}
}

func TestChecker_LatestVersionFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		wantHits int32
	}{
		{"not found is not retried", http.StatusNotFound, `{}`, 1},
		{"malformed json", http.StatusOK, `{"info":`, 1},
		{"no version field", http.StatusOK, `{"info": {}}`, 1},
		{"persistent server error", http.StatusServiceUnavailable, ``, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			c := NewChecker(testSpec(srv.URL), withRetryDelay(time.Millisecond))
			_, err := c.LatestVersion(t.Context())
			if !isKind(err, KindEndpointFailed) {
				t.Fatalf("error = %v, want endpoint_failed", err)
			}
			if hits.Load() != tt.wantHits {
				t.Errorf("requests = %d, want %d", hits.Load(), tt.wantHits)
			}
		})
	}
}

func TestInstaller_InstallLatestDependency(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		versions: []string{"2025.09.26", "2025.10.22"},
		install:  func() ([]byte, error) { return []byte("Successfully installed yt-dlp-2025.10.22\n"), nil },
	}
	c := NewChecker(testSpec("http://unused"), WithRunner(runner))

	res, err := NewInstaller(c).InstallLatestDependency(t.Context())
	if err != nil {
		t.Fatalf("InstallLatestDependency() returned error: %v", err)
	}
	if res.OldVersion != "2025.09.26" || res.NewVersion != "2025.10.22" {
		t.Errorf("Result = %+v", res)
	}
	want := []string{"yt-dlp --version", "python3 -m pip install --upgrade yt-dlp", "yt-dlp --version"}
	if strings.Join(runner.calls, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %q, want %q", runner.calls, want)
	}
}

func TestInstaller_FreshInstall(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		notFound: true,
		versions: []string{"2025.10.22"},
		install:  func() ([]byte, error) { return nil, nil },
	}
	c := NewChecker(testSpec("http://unused"), WithRunner(runner))

	res, err := NewInstaller(c).InstallLatestDependency(t.Context())
	if err != nil {
		t.Fatalf("InstallLatestDependency() returned error: %v", err)
	}
	if res.OldVersion != "" || res.NewVersion != "2025.10.22" {
		t.Errorf("Result = %+v", res)
	}
}

func TestInstaller_InstallCommandFails(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		versions: []string{"2025.09.26"},
		install: func() ([]byte, error) {
			return []byte("Collecting yt-dlp\nERROR: could not install packages\n"), errors.New("exit status 1")
		},
	}
	c := NewChecker(testSpec("http://unused"), WithRunner(runner))

	res, err := NewInstaller(c).InstallLatestDependency(t.Context())
	if !isKind(err, KindInstallFailed) {
		t.Fatalf("error = %v, want install_failed", err)
	}
	if !strings.Contains(err.Error(), "could not install packages") {
		t.Errorf("error should carry the last output line, got: %v", err)
	}
	if res.OldVersion != "2025.09.26" || res.NewVersion != "" {
		t.Errorf("Result = %+v", res)
	}
}

func TestInstaller_NoInstallCommand(t *testing.T) {
	t.Parallel()

	spec := testSpec("http://unused")
	spec.InstallCommand = nil
	_, err := NewInstaller(NewChecker(spec)).InstallLatestDependency(t.Context())
	if !isKind(err, KindInstallFailed) {
		t.Errorf("error = %v, want install_failed", err)
	}
}
