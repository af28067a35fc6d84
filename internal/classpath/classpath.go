// Package classpath loads class files from files, directories and archives
// into a program, and writes shrunk programs back out.
//
// Decoding runs in parallel. A unit that fails to decode is recorded and
// skipped; the rest of the batch still loads.
package classpath

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-class-shrink/internal/log"
	"github.com/l3aro/go-class-shrink/internal/scanner"
	"github.com/l3aro/go-class-shrink/pkg/classfile"
)

// UnitError is a class file that could not be read or decoded.
type UnitError struct {
	Source string
	Err    error
}

func (e *UnitError) Error() string { return e.Source + ": " + e.Err.Error() }

func (e *UnitError) Unwrap() error { return e.Err }

// Loaded is the outcome of a Load.
type Loaded struct {
	Program *classfile.Program
	// Sources maps each class name to the unit it was loaded from.
	Sources map[string]string
	// Failures lists the units that were skipped, in input order.
	Failures []*UnitError
	// Duplicates lists units whose class was already defined by an earlier unit.
	Duplicates []string
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger for load diagnostics.
func WithLogger(l log.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// WithParallelism bounds concurrent decoding. Values below 1 use GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(ld *Loader) { ld.parallelism = n }
}

// WithIgnore skips archive entries matching the list, in addition to what
// .gcsignore files exclude from directories.
func WithIgnore(list scanner.IgnoreList) Option {
	return func(ld *Loader) { ld.ignore = list }
}

// WithScanOptions sets how input directories are walked.
func WithScanOptions(opts scanner.Options) Option {
	return func(ld *Loader) { ld.scan = opts }
}

// Loader reads class path entries.
type Loader struct {
	logger      log.Logger
	parallelism int
	ignore      scanner.IgnoreList
	scan        scanner.Options
}

// NewLoader creates a loader.
func NewLoader(opts ...Option) *Loader {
	ld := &Loader{logger: log.Discard(), scan: scanner.DefaultOptions()}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

type unit struct {
	source  string
	library bool
	read    func() ([]byte, error)
}

type decoded struct {
	class *classfile.Class
	err   *UnitError
}

// Load decodes every class under the program inputs and the library inputs
// and links them into one program. Program classes take precedence over
// library classes of the same name. A missing input path is an error; a
// unit that fails to decode is reported in Loaded.Failures.
func (ld *Loader) Load(ctx context.Context, inputs, libraries []string) (*Loaded, error) {
	var units []unit
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	for _, group := range []struct {
		paths   []string
		library bool
	}{{inputs, false}, {libraries, true}} {
		for _, path := range group.paths {
			us, cl, err := ld.collect(path, group.library)
			if err != nil {
				return nil, err
			}
			units = append(units, us...)
			closers = append(closers, cl...)
		}
	}
	ld.logger.Debug("collected class path units", "units", len(units))

	results := make([]decoded, len(units))
	g, gctx := errgroup.WithContext(ctx)
	limit := ld.parallelism
	if limit < 1 {
		limit = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(limit)
	for i, u := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := decode(u)
			if err == nil {
				results[i].class = c
				return nil
			}
			if !errors.Is(err, classfile.ErrMalformedInput) && !isIO(err) {
				return fmt.Errorf("%s: %w", u.source, err)
			}
			results[i].err = &UnitError{Source: u.source, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Loaded{Program: classfile.NewProgram(), Sources: make(map[string]string)}
	for i, r := range results {
		if r.err != nil {
			ld.logger.Warn("skipping unreadable class", "source", r.err.Source, "error", r.err.Err)
			out.Failures = append(out.Failures, r.err)
			continue
		}
		name := r.class.Name()
		if first, dup := out.Sources[name]; dup {
			if !units[i].library {
				ld.logger.Warn("duplicate class definition", "class", name, "source", units[i].source, "kept", first)
			}
			out.Duplicates = append(out.Duplicates, units[i].source)
			continue
		}
		if _, err := out.Program.Add(r.class); err != nil {
			return nil, fmt.Errorf("%s: %w", units[i].source, err)
		}
		out.Sources[name] = units[i].source
	}
	out.Program.Link()
	ld.logger.Info("loaded class path",
		"classes", out.Program.Len(), "failures", len(out.Failures), "duplicates", len(out.Duplicates))
	return out, nil
}

type ioError struct{ err error }

func (e *ioError) Error() string { return e.err.Error() }
func (e *ioError) Unwrap() error { return e.err }

func isIO(err error) bool {
	var e *ioError
	return errors.As(err, &e)
}

func decode(u unit) (*classfile.Class, error) {
	data, err := u.read()
	if err != nil {
		return nil, &ioError{err}
	}
	return classfile.Parse(data, u.library)
}

// collect lists the units of one input path.
func (ld *Loader) collect(path string, library bool) ([]unit, []io.Closer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	if info.IsDir() {
		files, err := scanner.New(ld.scan).Scan(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan %s: %w", path, err)
		}
		var units []unit
		var closers []io.Closer
		for _, f := range files {
			us, cl, err := ld.collectFile(f.FullPath, f.Kind, library)
			if err != nil {
				for _, c := range closers {
					c.Close()
				}
				return nil, nil, err
			}
			units = append(units, us...)
			closers = append(closers, cl...)
		}
		return units, closers, nil
	}

	kind := scanner.DetectKind(filepath.Ext(path))
	if kind == scanner.KindUnknown {
		if kind, err = sniff(path); err != nil {
			return nil, nil, err
		}
	}
	return ld.collectFile(path, kind, library)
}

func sniff(path string) (scanner.Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return scanner.KindUnknown, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()
	header := make([]byte, 4)
	n, _ := io.ReadFull(f, header)
	kind := scanner.SniffKind(header[:n])
	if kind == scanner.KindUnknown {
		return kind, fmt.Errorf("%s is neither a class file nor an archive", path)
	}
	return kind, nil
}

func (ld *Loader) collectFile(path string, kind scanner.Kind, library bool) ([]unit, []io.Closer, error) {
	if kind == scanner.KindClass {
		return []unit{{source: path, library: library, read: func() ([]byte, error) { return os.ReadFile(path) }}}, nil, nil
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	var units []unit
	for _, f := range zr.File {
		name := f.Name
		if f.FileInfo().IsDir() || !strings.HasSuffix(name, ".class") || skipEntry(name) || ld.ignore.Ignored(name) {
			continue
		}
		units = append(units, unit{
			source:  path + "!/" + name,
			library: library,
			read:    readEntry(f),
		})
	}
	return units, []io.Closer{zr}, nil
}

// skipEntry drops entries that are not classes of the class path proper.
func skipEntry(name string) bool {
	base := name[strings.LastIndex(name, "/")+1:]
	return base == "module-info.class" || strings.HasPrefix(name, "META-INF/versions/")
}

func readEntry(f *zip.File) func() ([]byte, error) {
	return func() ([]byte, error) {
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
}
