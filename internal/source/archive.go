package source

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tingold/geocouple/internal/failure"
)

// archiveSearchOrder is the preference among geometry files found in an
// archive.
var archiveSearchOrder = []Format{FormatShapefile, FormatGeoJSON, FormatKML, FormatFlatGeobuf}

// errArchiveTooLarge is returned when an archive unpacks to more than the
// acquisition byte budget.
var errArchiveTooLarge = errors.New("archive expands beyond the size limit")

// extractZip unpacks data into dir, writing at most limit bytes in total.
// Entries resolving outside dir are rejected.
func extractZip(data []byte, dir string, limit int64) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}

	clean := filepath.Clean(dir)
	root := clean + string(os.PathSeparator)
	remaining := limit
	for _, zf := range zr.File {
		target := filepath.Join(dir, zf.Name)
		if target == clean {
			continue
		}
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("zip entry %q escapes the extraction directory", zf.Name)
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if zf.UncompressedSize64 > uint64(remaining) {
			return fmt.Errorf("%w (%d bytes)", errArchiveTooLarge, limit)
		}
		n, err := extractFile(zf, target, remaining)
		if err != nil {
			return fmt.Errorf("extract %s: %w", zf.Name, err)
		}
		remaining -= n
	}
	return nil
}

// extractFile copies one entry to target. The declared size is not
// trusted: more than limit bytes fails with errArchiveTooLarge.
func extractFile(zf *zip.File, target string, limit int64) (int64, error) {
	rc, err := zf.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, io.LimitReader(rc, limit+1))
	if err != nil {
		_ = out.Close()
		return n, err
	}
	if n > limit {
		_ = out.Close()
		return n, errArchiveTooLarge
	}
	return n, out.Close()
}

// findGeometryFile returns the preferred geometry file under dir. macOS
// resource forks are ignored.
func findGeometryFile(dir string) (string, Format, error) {
	found := make(map[Format]string)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "__MACOSX" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), "._") {
			return nil
		}
		f := FormatFromPath(p)
		if _, seen := found[f]; !seen && f != FormatUnknown {
			found[f] = p
		}
		return nil
	})
	if err != nil {
		return "", FormatUnknown, err
	}

	for _, f := range archiveSearchOrder {
		if p, ok := found[f]; ok {
			return p, f, nil
		}
	}
	return "", FormatUnknown, failure.New(failure.ErrArchiveMissingGeometry,
		"no .shp, .geojson, .json, .kml or .fgb file in archive")
}
