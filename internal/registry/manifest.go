package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	stdpath "path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Manifest is the YAML document an installed extension drops into the
// plugin manifest directory to declare its kernel client mappings:
//
//	name: my-extension
//	mappings:
//	  - provisioner: kernelbridge.provisioners.Slurm
//	    client: kernelbridge.clients.Direct
//	fallback: kernelbridge.clients.Direct
type Manifest struct {
	Name     string            `yaml:"name"`
	Mappings []ManifestMapping `yaml:"mappings"`
	Fallback string            `yaml:"fallback"`
}

// ManifestMapping is one provisioner-to-client pair in a manifest.
type ManifestMapping struct {
	Provisioner string `yaml:"provisioner"`
	Client      string `yaml:"client"`
}

// DirSource reads every *.yaml and *.yml manifest in a directory, in
// filename order. A manifest that fails to parse or validate contributes a
// per-file error and is skipped; entries from the remaining manifests still
// load. A missing directory is treated as empty: installing no extensions
// is not an error.
type DirSource struct {
	FS  fs.FS
	Dir string

	fallback string
}

// NewDirSource creates a DirSource over the given filesystem and directory.
func NewDirSource(fsys fs.FS, dir string) *DirSource {
	return &DirSource{FS: fsys, Dir: dir}
}

// Entries parses all manifests and returns their flattened pairs. The last
// manifest declaring a fallback determines FallbackClient.
func (s *DirSource) Entries() ([]Entry, error) {
	s.fallback = ""

	dirents, err := fs.ReadDir(s.FS, s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan plugin manifests: %w", err)
	}

	var entries []Entry
	var failed *multierror.Error
	for _, d := range dirents {
		if d.IsDir() || !isManifestName(d.Name()) {
			continue
		}

		path := stdpath.Join(s.Dir, d.Name())
		manifest, err := readManifest(s.FS, path)
		if err != nil {
			failed = multierror.Append(failed, err)
			continue
		}

		for _, m := range manifest.Mappings {
			entries = append(entries, Entry{Provisioner: m.Provisioner, Client: m.Client})
		}
		if manifest.Fallback != "" {
			s.fallback = manifest.Fallback
		}
	}
	return entries, failed.ErrorOrNil()
}

// FallbackClient returns the fallback proposed by the most recent Entries
// scan, if any manifest declared one.
func (s *DirSource) FallbackClient() (string, bool) {
	return s.fallback, s.fallback != ""
}

// FileSource loads mapping entries from a single manifest file on disk.
// It backs the mappings hot-reload path: a file watcher signals a change
// and the manager re-merges this source into the shared registry. A
// missing file is treated as empty.
type FileSource struct {
	Path string

	fallback string
}

// NewFileSource creates a FileSource for the manifest at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Entries parses the manifest and returns its pairs.
func (s *FileSource) Entries() ([]Entry, error) {
	s.fallback = ""

	manifest, err := readManifest(os.DirFS(filepath.Dir(s.Path)), filepath.Base(s.Path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	entries := make([]Entry, 0, len(manifest.Mappings))
	for _, m := range manifest.Mappings {
		entries = append(entries, Entry{Provisioner: m.Provisioner, Client: m.Client})
	}
	if manifest.Fallback != "" {
		s.fallback = manifest.Fallback
	}
	return entries, nil
}

// FallbackClient returns the fallback declared by the manifest, if any.
func (s *FileSource) FallbackClient() (string, bool) {
	return s.fallback, s.fallback != ""
}

// readManifest parses and validates a single manifest file.
func readManifest(fsys fs.FS, path string) (*Manifest, error) {
	content, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(content, &manifest); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	for i, m := range manifest.Mappings {
		if strings.TrimSpace(m.Provisioner) == "" || strings.TrimSpace(m.Client) == "" {
			return nil, fmt.Errorf("manifest %s: mapping %d: provisioner and client are both required", path, i)
		}
	}
	return &manifest, nil
}

// isManifestName reports whether a directory entry looks like a manifest.
func isManifestName(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
