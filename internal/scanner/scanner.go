// Package scanner provides file tree walking functionality with ignore pattern support.
// It respects .gcsignore files with gitignore-style patterns and picks out class
// files and archives by extension.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileInfo represents information about a discovered file.
type FileInfo struct {
	Path     string // Relative path from root
	FullPath string // Absolute path
	Kind     Kind   // Detected kind from extension
	Size     int64  // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	FollowSymlinks  bool     // Follow symlinks (within root only)
	DefaultExcludes []string // Default directories to exclude
	IgnoreFileName  string   // Name of the ignore file (default: .gcsignore)
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		FollowSymlinks: false,
		IgnoreFileName: ".gcsignore",
		DefaultExcludes: []string{
			".git",
			".gcs",
			".gradle",
			".idea",
			".hg",
			".svn",
			"node_modules",
		},
	}
}

// Scanner provides file tree scanning capabilities.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	return &Scanner{opts: opts}
}

// Scan recursively scans the directory at root and returns the class files
// and archives below it in walk order. It respects .gcsignore patterns,
// including nested ones, and default exclusions.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	ignore, err := s.loadIgnoreList(absRoot)
	if err != nil {
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}

	var files []FileInfo
	err = filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if s.opts.SkipHidden && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if s.isDefaultExcluded(info.Name()) || ignore.Ignored(relPath+"/") {
				return filepath.SkipDir
			}
			// nested ignore files use paths relative to the root
			nested, err := s.loadIgnoreList(path)
			if err == nil {
				for _, p := range nested {
					ignore = append(ignore, ParseIgnorePattern(rebase(p, relPath)))
				}
			}
			return nil
		}

		if ignore.Ignored(relPath) {
			return nil
		}
		kind := DetectKind(filepath.Ext(path))
		if kind == KindUnknown {
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			if !s.opts.FollowSymlinks {
				return nil
			}
			realPath, err := filepath.EvalSymlinks(path)
			if err != nil {
				return nil
			}
			realAbs, err := filepath.Abs(realPath)
			if err != nil {
				return nil
			}
			if !strings.HasPrefix(realAbs, absRoot+string(filepath.Separator)) {
				return nil
			}
			targetInfo, err := os.Stat(realPath)
			if err != nil || targetInfo.IsDir() {
				return nil
			}
			info = targetInfo
		}

		files = append(files, FileInfo{
			Path:     relPath,
			FullPath: path,
			Kind:     kind,
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return files, nil
}

// rebase anchors a pattern from a nested ignore file at its directory.
func rebase(p IgnorePattern, dir string) string {
	text := p.pattern
	neg := ""
	if p.isNegation {
		neg, text = "!", text[1:]
	}
	if !p.isAbsolute && len(p.segments) == 1 {
		text = "**/" + text
	}
	return neg + "/" + dir + "/" + strings.TrimPrefix(text, "/")
}

func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// loadIgnoreList loads patterns from the ignore file in dir, if any.
func (s *Scanner) loadIgnoreList(dir string) (IgnoreList, error) {
	file, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()
	return ParseIgnoreList(file)
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}
