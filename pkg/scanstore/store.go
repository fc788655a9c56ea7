// Package scanstore persists LiDAR scans as one file per retained frame and
// reads them back for the viewer.
package scanstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	customlog "github.com/open-teleop/airscan/pkg/log"
	"github.com/open-teleop/airscan/pkg/pointcloud"
)

// ErrUnknownFormat is returned for a format or file extension with no codec.
var ErrUnknownFormat = errors.New("scanstore: unknown scan format")

// maxPreallocPoints caps slice capacity taken from a file header.
const maxPreallocPoints = 1 << 16

// Supported formats, also used as file extensions.
const (
	FormatXYZ = "xyz"
	FormatNPY = "npy"
	FormatLAS = "las"
)

// Formats lists every format this package can read and write.
var Formats = []string{FormatXYZ, FormatNPY, FormatLAS}

// FileName is scan_<frame>_<unix ms>.<format>, or scan_<frame>.<format>
// when tsMillis is not positive.
func FileName(frame int, tsMillis int64, format string) string {
	return ScanName(frame, tsMillis) + "." + format
}

// ScanName is FileName without the extension. It identifies a scan whatever
// format it was saved in.
func ScanName(frame int, tsMillis int64) string {
	if tsMillis > 0 {
		return fmt.Sprintf("scan_%05d_%d", frame, tsMillis)
	}
	return fmt.Sprintf("scan_%05d", frame)
}

// NameOf returns the ScanName part of a scan file path.
func NameOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func formatOf(path string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, f := range Formats {
		if ext == f {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Base(path))
}

// Write stores cloud at path in the format named by its extension.
func Write(path string, cloud *pointcloud.Cloud) error {
	format, err := formatOf(path)
	if err != nil {
		return err
	}
	switch format {
	case FormatXYZ:
		return writeFile(path, cloud, writeXYZ)
	case FormatNPY:
		return writeFile(path, cloud, writeNPY)
	default:
		return writeLAS(path, cloud)
	}
}

// Load reads the scan at path, choosing the codec by extension.
func Load(path string) (*pointcloud.Cloud, error) {
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatXYZ:
		return readFile(path, readXYZ)
	case FormatNPY:
		return readFile(path, readNPY)
	default:
		return readLAS(path)
	}
}

// IsScanFile reports whether name looks like a finished scan in a known format.
func IsScanFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	_, err := formatOf(base)
	return err == nil
}

// List returns the scan files in dir, sorted by name. A missing directory
// holds no scans.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list scans in '%s': %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsScanFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// SkippedFile is a scan that could not be loaded.
type SkippedFile struct {
	Path string
	Err  error
}

// Merged is the result of LoadAll.
type Merged struct {
	Cloud   *pointcloud.Cloud
	Files   []string
	Skipped []SkippedFile
}

// LoadFiles merges the given scans in order. Files that fail to load are
// reported in Skipped and otherwise ignored.
func LoadFiles(files []string) *Merged {
	m := &Merged{}
	clouds := make([]*pointcloud.Cloud, 0, len(files))
	for _, f := range files {
		c, err := Load(f)
		if err != nil {
			m.Skipped = append(m.Skipped, SkippedFile{Path: f, Err: err})
			continue
		}
		clouds = append(clouds, c)
		m.Files = append(m.Files, f)
	}
	m.Cloud = pointcloud.Merge(clouds...)
	return m
}

// LoadAll lists dir and merges every scan in it.
func LoadAll(dir string) (*Merged, error) {
	files, err := List(dir)
	if err != nil {
		return nil, err
	}
	return LoadFiles(files), nil
}

// Store writes scans into one directory in one format.
type Store struct {
	dir    string
	format string
	logger customlog.Logger
}

// New returns a store writing format files into dir.
func New(dir, format string, logger customlog.Logger) (*Store, error) {
	if _, err := formatOf("x." + format); err != nil {
		return nil, err
	}
	return &Store{dir: dir, format: format, logger: logger}, nil
}

// Dir is the scan directory.
func (s *Store) Dir() string { return s.dir }

// Format is the file format written by Save.
func (s *Store) Format() string { return s.format }

// Save writes cloud as frame's scan and returns its path. The file is written
// under a hidden name and renamed into place, so watchers never see a partial
// scan.
func (s *Store) Save(frame int, tsMillis int64, cloud *pointcloud.Cloud) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create scan directory '%s': %w", s.dir, err)
	}
	name := FileName(frame, tsMillis, s.format)
	path := filepath.Join(s.dir, name)
	tmp := filepath.Join(s.dir, ".tmp-"+name)

	if err := Write(tmp, cloud); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write scan %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to move scan %s into place: %w", name, err)
	}
	if s.logger != nil {
		s.logger.Debugf("Saved scan %s (%d points)", path, cloud.Len())
	}
	return path, nil
}
