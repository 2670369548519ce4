package results

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Artifacts stores failure snapshots under <dir>/<run id>/artifacts, one
// <vehicle>_<step>.png and .html pair per failed vehicle.
type Artifacts struct {
	dir string
}

// NewArtifacts returns the artifact store for a run. The directory is
// created on first use.
func NewArtifacts(dir, runID string) *Artifacts {
	return &Artifacts{dir: filepath.Join(dir, runID, "artifacts")}
}

// Dir returns the directory artifacts are written to.
func (a *Artifacts) Dir() string { return a.dir }

// Save writes whichever of png and html is non-empty and returns the paths
// written. A second failure for the same vehicle and step overwrites the
// first.
func (a *Artifacts) Save(vehicleID, step string, png []byte, html string) ([]string, error) {
	if len(png) == 0 && html == "" {
		return nil, nil
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	base := filepath.Join(a.dir, fileSafe(vehicleID)+"_"+fileSafe(step))
	var written []string
	if len(png) > 0 {
		if err := os.WriteFile(base+".png", png, 0o644); err != nil {
			return written, fmt.Errorf("failed to write screenshot for %s: %w", vehicleID, err)
		}
		written = append(written, base+".png")
	}
	if html != "" {
		if err := os.WriteFile(base+".html", []byte(html), 0o644); err != nil {
			return written, fmt.Errorf("failed to write page source for %s: %w", vehicleID, err)
		}
		written = append(written, base+".html")
	}
	return written, nil
}

// fileSafe keeps letters, digits, dot, dash and underscore.
func fileSafe(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
	if s == "" || strings.Trim(s, ".") == "" {
		return "unknown"
	}
	return s
}
