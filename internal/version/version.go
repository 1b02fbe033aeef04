// Package version reports the build version and checks for newer releases.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"mapkeep/internal/logging"
)

// Version is set at build time with -ldflags "-X mapkeep/internal/version.Version=...".
var Version = "0.3.0"

// Debug marks development builds.
var Debug = "false"

// DefaultManifestURL is the package manifest whose "version" field names
// the latest release.
const DefaultManifestURL = "https://raw.githubusercontent.com/mapkeep/mapkeep/main/package.json"

var leadingDigits = regexp.MustCompile(`\d+`)

// Current returns the build version.
func Current() string {
	return Version
}

// Name returns the version with a -dev suffix on development builds.
func Name() string {
	if Debug == "true" {
		return Version + "-dev"
	}
	return Version
}

// Compare compares dotted versions part by part and returns 1, 0 or -1.
// Each part counts its first run of digits; parts without digits and
// missing parts count as 0, so "1.2" equals "1.2.0" and "v2.0-beta"
// equals "2.0".
func Compare(a, b string) int {
	ap, bp := parts(a), parts(b)
	for i := 0; i < max(len(ap), len(bp)); i++ {
		var x, y int
		if i < len(ap) {
			x = ap[i]
		}
		if i < len(bp) {
			y = bp[i]
		}
		switch {
		case x > y:
			return 1
		case x < y:
			return -1
		}
	}
	return 0
}

func parts(v string) []int {
	fields := strings.Split(v, ".")
	out := make([]int, len(fields))
	for i, f := range fields {
		if m := leadingDigits.FindString(f); m != "" {
			n, err := strconv.Atoi(m)
			if err == nil {
				out[i] = n
			}
		}
	}
	return out
}

// Checker fetches the latest released version.
type Checker struct {
	URL    string
	Client *http.Client
}

// NewChecker returns a checker for manifestURL. An empty url uses
// DefaultManifestURL.
func NewChecker(manifestURL string) *Checker {
	if manifestURL == "" {
		manifestURL = DefaultManifestURL
	}
	return &Checker{URL: manifestURL, Client: &http.Client{Timeout: 15 * time.Second}}
}

// Latest fetches the manifest and returns its version field.
func (c *Checker) Latest(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch manifest: HTTP %d", resp.StatusCode)
	}

	var manifest struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&manifest); err != nil {
		return "", fmt.Errorf("parse manifest: %w", err)
	}
	if manifest.Version == "" {
		return "", fmt.Errorf("parse manifest: no version field")
	}
	logging.Get(logging.CategoryBoot).Debug("Fetched manifest %s: version %s", c.URL, manifest.Version)
	return manifest.Version, nil
}

// NeedsUpdate reports whether latest is newer than the running build. An
// empty latest is fetched first.
func (c *Checker) NeedsUpdate(ctx context.Context, latest string) (bool, string, error) {
	if latest == "" {
		var err error
		if latest, err = c.Latest(ctx); err != nil {
			return false, "", err
		}
	}
	return Compare(latest, Current()) > 0, latest, nil
}
