package classpath

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/l3aro/go-class-shrink/internal/scanner"
	"github.com/l3aro/go-class-shrink/pkg/classfile"
)

// IsArchive reports whether an output path names an archive rather than a
// directory.
func IsArchive(path string) bool {
	return scanner.DetectKind(filepath.Ext(path)) == scanner.KindArchive
}

// Write stores the program classes of p at out, as an archive when out has
// an archive extension and as a directory tree otherwise. Library classes
// are never written. It returns the number of classes written.
func Write(out string, p *classfile.Program) (int, error) {
	if IsArchive(out) {
		return WriteArchive(out, p)
	}
	return WriteDir(out, p)
}

func programClasses(p *classfile.Program) []*classfile.Class {
	var out []*classfile.Class
	for _, c := range p.Classes() {
		if !c.Library {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// WriteDir writes each program class to dir/<internal name>.class.
func WriteDir(dir string, p *classfile.Program) (int, error) {
	n := 0
	for _, c := range programClasses(p) {
		data, err := c.Bytes()
		if err != nil {
			return n, fmt.Errorf("failed to encode %s: %w", c.Name(), err)
		}
		path := filepath.Join(dir, filepath.FromSlash(c.Name())+".class")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return n, fmt.Errorf("failed to create directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return n, fmt.Errorf("failed to write %s: %w", path, err)
		}
		n++
	}
	return n, nil
}

// WriteArchive writes the program classes into a new zip archive, entries
// sorted by name.
func WriteArchive(path string, p *classfile.Program) (n int, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	zw := zip.NewWriter(file)
	for _, c := range programClasses(p) {
		data, err := c.Bytes()
		if err != nil {
			return n, fmt.Errorf("failed to encode %s: %w", c.Name(), err)
		}
		w, err := zw.Create(c.Name() + ".class")
		if err != nil {
			return n, fmt.Errorf("failed to add %s: %w", c.Name(), err)
		}
		if _, err := w.Write(data); err != nil {
			return n, fmt.Errorf("failed to write %s: %w", c.Name(), err)
		}
		n++
	}
	if err := zw.Close(); err != nil {
		return n, fmt.Errorf("failed to finish archive: %w", err)
	}
	return n, nil
}
