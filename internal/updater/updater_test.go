package updater

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestIsNewer(t *testing.T) {
	tests := []struct {
		name    string
		current string
		latest  string
		want    bool
	}{
		{"newer patch", "0.2.0", "0.2.1", true},
		{"newer minor", "0.2.0", "0.3.0", true},
		{"newer major", "0.2.0", "1.0.0", true},
		{"same version", "0.2.0", "0.2.0", false},
		{"older version", "0.3.0", "0.2.0", false},
		{"empty current", "", "0.2.0", false},
		{"empty latest", "0.2.0", "", false},
		{"dev current", "dev", "0.2.0", false},
		{"two part current", "0.2", "0.3.0", true},
		{"minor jump", "0.9.0", "0.10.0", true},
		{"prerelease latest", "0.2.0", "0.3.0-rc1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNewer(tt.current, tt.latest); got != tt.want {
				t.Errorf("isNewer(%q, %q) = %v, want %v", tt.current, tt.latest, got, tt.want)
			}
		})
	}
}

func TestBuildAssetName(t *testing.T) {
	tests := []struct {
		goos, goarch, want string
	}{
		{"linux", "amd64", "socrates_0.3.0_linux_amd64.tar.gz"},
		{"darwin", "arm64", "socrates_0.3.0_darwin_arm64.tar.gz"},
		{"windows", "amd64", "socrates_0.3.0_windows_amd64.zip"},
	}
	for _, tt := range tests {
		if got := buildAssetName("0.3.0", tt.goos, tt.goarch); got != tt.want {
			t.Errorf("buildAssetName(%s/%s) = %q, want %q", tt.goos, tt.goarch, got, tt.want)
		}
	}
}

// newTestUpdater points an Updater at a fake releases API. The archive,
// when non-nil, is served at /download/<asset>.
func newTestUpdater(t *testing.T, tag string, status int, archive []byte) (*Updater, string) {
	t.Helper()
	assetName := buildAssetName(normalizeVersion(tag), runtime.GOOS, runtime.GOARCH)

	mux := http.NewServeMux()
	mux.HandleFunc("/download/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		release := Release{
			TagName: tag,
			HTMLURL: "https://github.com/" + Repo + "/releases/tag/" + tag,
		}
		if archive != nil {
			release.Assets = []Asset{{Name: assetName, BrowserDownloadURL: "http://" + r.Host + "/download/" + assetName}}
		}
		_ = json.NewEncoder(w).Encode(release)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	bin := filepath.Join(t.TempDir(), BinaryName)
	if err := os.WriteFile(bin, []byte("old"), 0o755); err != nil {
		t.Fatal(err)
	}

	u := New(nil)
	u.endpoint = ts.URL
	u.client = ts.Client()
	u.execPath = func() (string, error) { return bin, nil }
	return u, bin
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		status  int
		current string
		want    bool
		wantErr bool
	}{
		{"update available", "v0.3.0", http.StatusOK, "v0.2.0", true, false},
		{"already latest", "v0.2.0", http.StatusOK, "v0.2.0", false, false},
		{"dev build", "v0.3.0", http.StatusOK, "dev", false, false},
		{"api error", "", http.StatusForbidden, "v0.2.0", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, _ := newTestUpdater(t, tt.tag, tt.status, nil)
			res, err := u.Check(context.Background(), tt.current)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if res.UpdateAvailable != tt.want {
				t.Errorf("UpdateAvailable = %v, want %v", res.UpdateAvailable, tt.want)
			}
			if res.CurrentVersion != normalizeVersion(tt.current) {
				t.Errorf("CurrentVersion = %q", res.CurrentVersion)
			}
		})
	}
}

func TestCheck_NetworkError(t *testing.T) {
	u, _ := newTestUpdater(t, "v0.3.0", http.StatusOK, nil)
	u.endpoint = "http://127.0.0.1:1/unreachable"
	res, err := u.Check(context.Background(), "v0.2.0")
	if err == nil || res.UpdateAvailable {
		t.Errorf("got %+v, %v; want an error and no update", res, err)
	}
}

func tarGz(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o755, Size: int64(len(content))}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zipArchive(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestApply_ReplacesBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("replacing a binary is exercised on unix only")
	}
	fresh := []byte("#!/bin/sh\necho updated\n")
	u, bin := newTestUpdater(t, "v0.3.0", http.StatusOK, tarGz(t, "dist/"+BinaryName, fresh))

	res, err := u.Apply(context.Background(), "v0.2.0")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.LatestVersion != "0.3.0" {
		t.Errorf("LatestVersion = %q", res.LatestVersion)
	}
	got, err := os.ReadFile(bin)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, fresh) {
		t.Errorf("binary = %q, want %q", got, fresh)
	}
	info, err := os.Stat(bin)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Errorf("mode = %v, want executable", info.Mode())
	}
}

func TestApply_UpToDateLeavesBinary(t *testing.T) {
	u, bin := newTestUpdater(t, "v0.2.0", http.StatusOK, tarGz(t, BinaryName, []byte("new")))

	_, err := u.Apply(context.Background(), "v0.2.0")
	if !errors.Is(err, ErrUpToDate) {
		t.Fatalf("err = %v, want ErrUpToDate", err)
	}
	got, _ := os.ReadFile(bin)
	if string(got) != "old" {
		t.Errorf("binary changed to %q", got)
	}
}

func TestApply_MissingAsset(t *testing.T) {
	u, _ := newTestUpdater(t, "v0.3.0", http.StatusOK, nil)
	if _, err := u.Apply(context.Background(), "v0.2.0"); err == nil {
		t.Fatal("expected an error when the release has no asset for this platform")
	}
}

func TestExtractBinary(t *testing.T) {
	want := []byte("payload")
	tests := []struct {
		name    string
		asset   string
		archive []byte
		wantErr bool
	}{
		{"tar.gz", "x.tar.gz", tarGz(t, "socrates", want), false},
		{"zip with exe", "x.zip", zipArchive(t, "bin/socrates.exe", want), false},
		{"tar.gz without binary", "x.tar.gz", tarGz(t, "README.md", want), true},
		{"zip without binary", "x.zip", zipArchive(t, "LICENSE", want), true},
		{"not gzip", "x.tar.gz", []byte("garbage"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractBinary(tt.archive, tt.asset)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !bytes.Equal(got, want) {
				t.Errorf("got %q, want %q", got, want)
			}
		})
	}
}
