// Package updater checks GitHub Releases for a newer socrates binary and
// can replace the running one in place.
//
// The check is best effort: serve runs it in the background and ignores
// failures. Replacement writes the new binary next to the old one and
// renames it over, so an interrupted update leaves the old binary intact.
package updater

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Nireus79/Socrates2-sub000/internal/rules"
	"github.com/natefinch/atomic"
)

const (
	// Repo is the GitHub repository releases are published to.
	Repo = "Nireus79/Socrates2-sub000"

	// BinaryName is the executable inside each release archive.
	BinaryName = "socrates"

	checkTimeout = 10 * time.Second

	// maxArchiveSize caps how much of a release asset is read.
	maxArchiveSize = 200 << 20
)

// ErrUpToDate is returned by Apply when no newer release exists.
var ErrUpToDate = errors.New("already at the latest version")

// Release holds the relevant fields from a GitHub release.
type Release struct {
	TagName string  `json:"tag_name"`
	HTMLURL string  `json:"html_url"`
	Assets  []Asset `json:"assets"`
}

// Asset represents a downloadable file in a GitHub release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Result is the outcome of a version check.
type Result struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	ReleaseURL      string
}

// Updater talks to the releases API.
type Updater struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
	// execPath returns the binary to replace.
	execPath func() (string, error)
}

// New returns an Updater for Repo.
func New(logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{
		endpoint: "https://api.github.com/repos/" + Repo + "/releases/latest",
		client:   &http.Client{Timeout: checkTimeout},
		logger:   logger,
		execPath: currentExecutable,
	}
}

// Check compares currentVersion with the latest release. A "dev" build
// never reports an update.
func (u *Updater) Check(ctx context.Context, currentVersion string) (*Result, error) {
	release, err := u.latest(ctx, currentVersion)
	if err != nil {
		return &Result{CurrentVersion: normalizeVersion(currentVersion)}, err
	}
	res := &Result{
		CurrentVersion: normalizeVersion(currentVersion),
		LatestVersion:  normalizeVersion(release.TagName),
		ReleaseURL:     release.HTMLURL,
	}
	res.UpdateAvailable = isNewer(res.CurrentVersion, res.LatestVersion)
	return res, nil
}

// Apply downloads the release asset for this OS and architecture and
// replaces the running executable with the binary inside it.
func (u *Updater) Apply(ctx context.Context, currentVersion string) (*Result, error) {
	release, err := u.latest(ctx, currentVersion)
	if err != nil {
		return nil, err
	}
	res := &Result{
		CurrentVersion: normalizeVersion(currentVersion),
		LatestVersion:  normalizeVersion(release.TagName),
		ReleaseURL:     release.HTMLURL,
	}
	if !isNewer(res.CurrentVersion, res.LatestVersion) {
		return res, ErrUpToDate
	}
	res.UpdateAvailable = true

	assetName := buildAssetName(res.LatestVersion, runtime.GOOS, runtime.GOARCH)
	var downloadURL string
	for _, a := range release.Assets {
		if a.Name == assetName {
			downloadURL = a.BrowserDownloadURL
			break
		}
	}
	if downloadURL == "" {
		return res, fmt.Errorf("no release asset %s for %s/%s", assetName, runtime.GOOS, runtime.GOARCH)
	}

	archive, err := u.download(ctx, downloadURL)
	if err != nil {
		return res, err
	}
	binary, err := extractBinary(archive, assetName)
	if err != nil {
		return res, fmt.Errorf("extracting binary: %w", err)
	}

	path, err := u.execPath()
	if err != nil {
		return res, fmt.Errorf("finding current executable: %w", err)
	}
	if err := replaceBinary(path, binary); err != nil {
		return res, err
	}
	u.logger.Info("binary updated", slog.String("path", path), slog.String("version", res.LatestVersion))
	return res, nil
}

func (u *Updater) latest(ctx context.Context, currentVersion string) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", BinaryName+"/"+currentVersion)

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checking latest release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned %d", resp.StatusCode)
	}
	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("parsing release info: %w", err)
	}
	return &release, nil
}

func (u *Updater) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveSize))
	if err != nil {
		return nil, fmt.Errorf("reading release: %w", err)
	}
	return data, nil
}

// replaceBinary swaps path for data. Windows cannot overwrite a running
// executable, so the old one is moved aside first.
func replaceBinary(path string, data []byte) error {
	if runtime.GOOS == "windows" {
		old := path + ".old"
		_ = os.Remove(old)
		if err := os.Rename(path, old); err != nil {
			return fmt.Errorf("backing up current binary: %w", err)
		}
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("replacing binary: %w", err)
	}
	if err := os.Chmod(path, 0o755); err != nil {
		return fmt.Errorf("marking binary executable: %w", err)
	}
	return nil
}

func currentExecutable() (string, error) {
	path, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(path)
}

// extractBinary returns the socrates binary from a .tar.gz or .zip archive.
func extractBinary(archive []byte, assetName string) ([]byte, error) {
	if strings.HasSuffix(assetName, ".zip") {
		return extractFromZip(archive)
	}
	return extractFromTarGz(archive)
}

func extractFromTarGz(archive []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return nil, fmt.Errorf("opening gzip: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar: %w", err)
		}
		if isBinary(header.Name) {
			return io.ReadAll(tr)
		}
	}
	return nil, fmt.Errorf("%s binary not found in archive", BinaryName)
}

func extractFromZip(archive []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("opening zip: %w", err)
	}
	for _, f := range zr.File {
		if !isBinary(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s binary not found in archive", BinaryName)
}

func isBinary(name string) bool {
	base := filepath.Base(name)
	return base == BinaryName || base == BinaryName+".exe"
}

// buildAssetName matches the GoReleaser archive name template.
func buildAssetName(version, goos, goarch string) string {
	ext := "tar.gz"
	if goos == "windows" {
		ext = "zip"
	}
	return fmt.Sprintf("%s_%s_%s_%s.%s", BinaryName, version, goos, goarch, ext)
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}

// isNewer reports whether latest is a higher release than current.
// Unparseable versions, including "dev", never compare as newer.
func isNewer(current, latest string) bool {
	cur, ok := rules.ParseVersion(current)
	if !ok {
		return false
	}
	lat, ok := rules.ParseVersion(latest)
	if !ok {
		return false
	}
	return cur.Less(lat)
}
