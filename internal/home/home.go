package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the folio home directory.
	DefaultDirName = ".folio"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// TaxonomyFileName is the default taxonomy file name.
	TaxonomyFileName = "taxonomy.yaml"

	// DatabaseFileName is the sqlite database file name.
	DatabaseFileName = "folio.db"
)

// Dir represents the folio home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.folio).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}
	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// TaxonomyPath returns the path to the taxonomy file.
func (d *Dir) TaxonomyPath() string {
	return filepath.Join(d.path, TaxonomyFileName)
}

// DatabasePath returns the path to the sqlite database file.
func (d *Dir) DatabasePath() string {
	return filepath.Join(d.path, DatabaseFileName)
}

// PagesDir returns the directory holding rasterized pages for a document.
func (d *Dir) PagesDir(documentID string) string {
	return filepath.Join(d.path, "pages", documentID)
}

// PagePath returns the path to a specific page raster.
// Page numbers are 1-indexed.
func (d *Dir) PagePath(documentID string, pageNo int) string {
	return filepath.Join(d.PagesDir(documentID), fmt.Sprintf("page_%04d.png", pageNo))
}

// CropsDir returns the directory holding region crops for a document.
func (d *Dir) CropsDir(documentID string) string {
	return filepath.Join(d.path, "crops", documentID)
}

// CropPath returns the path for a region crop image.
func (d *Dir) CropPath(documentID, regionID string) string {
	return filepath.Join(d.CropsDir(documentID), fmt.Sprintf("crop_%s.png", regionID))
}

// EnsureExists creates the home directory if it doesn't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}
	return nil
}

// EnsurePagesDir creates the pages directory for a document.
func (d *Dir) EnsurePagesDir(documentID string) error {
	return os.MkdirAll(d.PagesDir(documentID), 0o755)
}

// EnsureCropsDir creates the crops directory for a document.
func (d *Dir) EnsureCropsDir(documentID string) error {
	return os.MkdirAll(d.CropsDir(documentID), 0o755)
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
