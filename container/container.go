// Package container reads and writes wasirt packages: zip archives holding a
// manifest, one or more WebAssembly atoms and free-form metadata files.
//
// Archive layout:
//
//	manifest.json
//	atoms/<name>
//	metadata/<path>
//
// Unpacking produces manifest.json, atom/ and metadata/ in the destination.
package container

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	ManifestFile = "manifest.json"
	atomsDir     = "atoms/"
	metadataDir  = "metadata/"

	// Unpacked names.
	AtomDir     = "atom"
	MetadataDir = "metadata"
)

var (
	ErrInvalidPackage = errors.New("invalid package")
	ErrConflict       = errors.New("destination already exists")
	ErrUnknownAtom    = errors.New("unknown atom")
)

type Package struct {
	Name        string `json:"name" validate:"required"`
	Version     string `json:"version" validate:"required,semver"`
	Description string `json:"description,omitempty"`
}

// Atom describes one WebAssembly module in the package.
type Atom struct {
	SHA256 string `json:"sha256" validate:"required,len=64,hexadecimal"`
}

// Command runs an atom with fixed leading arguments.
type Command struct {
	Atom string   `json:"atom" validate:"required"`
	Args []string `json:"args,omitempty"`
}

type Manifest struct {
	Package    Package            `json:"package"`
	Entrypoint string             `json:"entrypoint,omitempty"`
	Atoms      map[string]Atom    `json:"atoms" validate:"required,min=1,dive,keys,required,endkeys"`
	Commands   map[string]Command `json:"commands,omitempty" validate:"omitempty,dive,keys,required,endkeys"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross references.
func (m *Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return err
	}
	for name := range m.Atoms {
		if !filepath.IsLocal(name) || strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("atom name %q is not a plain file name", name)
		}
	}
	for name, cmd := range m.Commands {
		if _, ok := m.Atoms[cmd.Atom]; !ok {
			return fmt.Errorf("command %s: %w %q", name, ErrUnknownAtom, cmd.Atom)
		}
	}
	if m.Entrypoint != "" {
		if _, ok := m.Commands[m.Entrypoint]; !ok {
			return fmt.Errorf("entrypoint %q is not a command", m.Entrypoint)
		}
	}
	return nil
}

// Container is an opened package.
type Container struct {
	zr       *zip.ReadCloser
	manifest Manifest
	rawMan   []byte
	atoms    map[string]*zip.File
	metadata []*zip.File
}

// Open reads and verifies the package at path. Every atom listed in the
// manifest must be present with a matching digest.
func Open(p string) (*Container, error) {
	zr, err := zip.OpenReader(p)
	if errors.Is(err, zip.ErrInsecurePath) {
		zr.Close()
		return nil, fmt.Errorf("%w: %w", ErrInvalidPackage, err)
	}
	if err != nil {
		return nil, err
	}

	c, err := load(zr)
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("%w: %w", ErrInvalidPackage, err)
	}
	return c, nil
}

func load(zr *zip.ReadCloser) (*Container, error) {
	c := &Container{zr: zr, atoms: make(map[string]*zip.File)}

	var manifestFile *zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !filepath.IsLocal(f.Name) {
			return nil, fmt.Errorf("entry %q escapes the package", f.Name)
		}
		switch {
		case f.Name == ManifestFile:
			manifestFile = f
		case strings.HasPrefix(f.Name, atomsDir):
			c.atoms[strings.TrimPrefix(f.Name, atomsDir)] = f
		case strings.HasPrefix(f.Name, metadataDir):
			c.metadata = append(c.metadata, f)
		}
	}
	if manifestFile == nil {
		return nil, fmt.Errorf("missing %s", ManifestFile)
	}

	raw, err := readFile(manifestFile)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &c.manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := c.manifest.Validate(); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	c.rawMan = raw

	for name, atom := range c.manifest.Atoms {
		f, ok := c.atoms[name]
		if !ok {
			return nil, fmt.Errorf("atom %s: missing from package", name)
		}
		data, err := readFile(f)
		if err != nil {
			return nil, err
		}
		if digest(data) != atom.SHA256 {
			return nil, fmt.Errorf("atom %s: digest mismatch", name)
		}
	}
	return c, nil
}

func (c *Container) Manifest() Manifest { return c.manifest }

// Atoms returns the atom names in sorted order.
func (c *Container) Atoms() []string {
	names := make([]string, 0, len(c.manifest.Atoms))
	for name := range c.manifest.Atoms {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Atom returns the bytes of the named atom.
func (c *Container) Atom(name string) ([]byte, error) {
	if _, ok := c.manifest.Atoms[name]; !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownAtom, name)
	}
	return readFile(c.atoms[name])
}

// Entrypoint returns the atom and arguments of the entrypoint command, or of
// the only atom when there is no entrypoint.
func (c *Container) Entrypoint() (atom string, args []string, err error) {
	if c.manifest.Entrypoint != "" {
		cmd := c.manifest.Commands[c.manifest.Entrypoint]
		return cmd.Atom, cmd.Args, nil
	}
	if len(c.manifest.Atoms) == 1 {
		return c.Atoms()[0], nil, nil
	}
	return "", nil, errors.New("package has no entrypoint")
}

func (c *Container) Close() error {
	return c.zr.Close()
}

// Unpack writes manifest.json, atom/ and metadata/ into dest, which must
// exist. Unless overwrite is set, nothing is written when any target already
// exists.
func (c *Container) Unpack(dest string, overwrite bool) error {
	type target struct {
		path string
		file *zip.File
		data []byte
	}

	targets := []target{{path: filepath.Join(dest, ManifestFile), data: c.rawMan}}
	for _, name := range c.Atoms() {
		targets = append(targets, target{path: filepath.Join(dest, AtomDir, name), file: c.atoms[name]})
	}
	for _, f := range c.metadata {
		rel := strings.TrimPrefix(f.Name, metadataDir)
		targets = append(targets, target{path: filepath.Join(dest, MetadataDir, filepath.FromSlash(rel)), file: f})
	}

	if !overwrite {
		for _, t := range targets {
			if _, err := os.Lstat(t.path); err == nil {
				return fmt.Errorf("%w: %s", ErrConflict, t.path)
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
	}

	// metadata/ exists even when the package carries no metadata files.
	if err := os.MkdirAll(filepath.Join(dest, MetadataDir), 0o755); err != nil {
		return err
	}

	for _, t := range targets {
		if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
			return err
		}
		if t.file != nil {
			if err := extractFile(t.file, t.path); err != nil {
				return err
			}
			continue
		}
		if err := os.WriteFile(t.path, t.data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Create writes a package to p. The atoms of m are replaced by the digests
// of atoms.
func Create(p string, m Manifest, atoms map[string][]byte, metadata map[string][]byte) error {
	m.Atoms = make(map[string]Atom, len(atoms))
	for name, data := range atoms {
		m.Atoms[name] = Atom{SHA256: digest(data)}
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPackage, err)
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	f, err := os.Create(p)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(f)
	entries := map[string][]byte{ManifestFile: raw}
	for name, data := range atoms {
		entries[atomsDir+name] = data
	}
	for name, data := range metadata {
		clean := path.Clean(filepath.ToSlash(name))
		if !filepath.IsLocal(clean) {
			zw.Close()
			f.Close()
			return fmt.Errorf("%w: metadata path %q escapes the package", ErrInvalidPackage, name)
		}
		entries[metadataDir+clean] = data
	}

	for _, name := range slices.Sorted(maps.Keys(entries)) {
		w, err := zw.Create(name)
		if err != nil {
			zw.Close()
			f.Close()
			return err
		}
		if _, err := w.Write(entries[name]); err != nil {
			zw.Close()
			f.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
