package scanner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		fullPath := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
	}
}

func found(t *testing.T, results []FileInfo) map[string]Kind {
	t.Helper()
	out := make(map[string]Kind)
	for _, f := range results {
		out[f.Path] = f.Kind
		if !filepath.IsAbs(f.FullPath) {
			t.Errorf("FullPath %s is not absolute", f.FullPath)
		}
	}
	return out
}

func TestScannerScan(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"com/example/Main.class":       "\xca\xfe\xba\xbe",
		"com/example/Util$Inner.class": "\xca\xfe\xba\xbe",
		"lib/guava.jar":                "PK",
		"lib/extra.ZIP":                "PK",
		"README.md":                    "# Test",
		"com/example/Main.java":        "class Main {}",
		".hidden/Secret.class":         "\xca\xfe\xba\xbe",
		".gradle/cache/Cached.class":   "\xca\xfe\xba\xbe",
	})

	results, err := Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	got := found(t, results)

	expected := map[string]Kind{
		"com/example/Main.class":       KindClass,
		"com/example/Util$Inner.class": KindClass,
		"lib/guava.jar":                KindArchive,
		"lib/extra.ZIP":                KindArchive,
	}
	for path, kind := range expected {
		if got[path] != kind {
			t.Errorf("Expected %s to have kind %q, got %q", path, kind, got[path])
		}
	}
	if len(got) != len(expected) {
		t.Errorf("Scan found %d files, want %d: %v", len(got), len(expected), got)
	}
}

func TestScannerWithGcsignore(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		".gcsignore": `# generated sources
generated/
*Test.class
!KeepTest.class
`,
		"app/Main.class":           "",
		"app/MainTest.class":       "",
		"app/KeepTest.class":       "",
		"generated/Proto.class":    "",
		"vendored/.gcsignore":      "Old.class\n",
		"vendored/Old.class":       "",
		"vendored/New.class":       "",
		"other/vendored/Old.class": "",
	})

	results, err := New(DefaultOptions()).Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	got := found(t, results)

	for _, want := range []string{"app/Main.class", "app/KeepTest.class", "vendored/New.class", "other/vendored/Old.class"} {
		if _, ok := got[want]; !ok {
			t.Errorf("Expected to find %s", want)
		}
	}
	for _, ignored := range []string{"app/MainTest.class", "generated/Proto.class", "vendored/Old.class"} {
		if _, ok := got[ignored]; ok {
			t.Errorf("Expected %s to be ignored", ignored)
		}
	}
}

func TestScannerSkipHidden(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"Visible.class":        "",
		".hidden/Hidden.class": "",
		".Shadow.class":        "",
	})

	opts := DefaultOptions()
	results, _ := New(opts).Scan(tmpDir)
	if len(results) != 1 || results[0].Path != "Visible.class" {
		t.Errorf("Should skip hidden files when SkipHidden=true, got %v", results)
	}

	opts.SkipHidden = false
	results, _ = New(opts).Scan(tmpDir)
	if len(results) != 3 {
		t.Errorf("Should find hidden files when SkipHidden=false, got %v", results)
	}
}

func TestKindDetection(t *testing.T) {
	tests := []struct {
		ext  string
		kind Kind
	}{
		{".class", KindClass},
		{".CLASS", KindClass},
		{".jar", KindArchive},
		{".war", KindArchive},
		{".java", KindUnknown},
		{"", KindUnknown},
	}
	for _, tt := range tests {
		if got := DetectKind(tt.ext); got != tt.kind {
			t.Errorf("DetectKind(%q) = %q, want %q", tt.ext, got, tt.kind)
		}
	}

	if got := SniffKind([]byte{0xca, 0xfe, 0xba, 0xbe, 0, 0}); got != KindClass {
		t.Errorf("SniffKind(class) = %q", got)
	}
	if got := SniffKind([]byte("PK\x03\x04rest")); got != KindArchive {
		t.Errorf("SniffKind(zip) = %q", got)
	}
	if got := SniffKind([]byte("PK")); got != KindUnknown {
		t.Errorf("SniffKind(short) = %q", got)
	}
}

func TestIgnorePattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		match   bool
	}{
		// Simple patterns
		{"*.class", "A.class", true},
		{"*.class", "com/example/A.class", true},
		{"*.class", "A.java", false},
		{"build/", "build/A.class", true},
		{"build/", "other/build/A.class", true},
		{"build/", "builder.class", false},

		// Absolute patterns
		{"/build/", "build/A.class", true},
		{"/build/", "src/build/A.class", false},

		// Glob patterns
		{"*Test.class", "FooTest.class", true},
		{"*Test.class", "deep/FooTest.class", true},
		{"com/*.class", "com/A.class", true},
		{"com/*.class", "com/deep/A.class", false},

		// Double asterisk
		{"**/test/**", "test/A.class", true},
		{"**/test/**", "src/test/A.class", true},
		{"**/test/**", "testing/A.class", false},
		{"META-INF/**", "META-INF/versions/9/A.class", true},

		// Character class and question mark
		{"A?.class", "A1.class", true},
		{"A?.class", "A12.class", false},
		{"[AB].class", "B.class", true},

		// Negation - pattern matches but is negation
		{"!*.class", "A.class", true},
	}

	for _, tt := range tests {
		pattern := ParseIgnorePattern(tt.pattern)
		if got := pattern.Match(tt.path); got != tt.match {
			t.Errorf("Pattern %q matching %q: got %v, want %v", tt.pattern, tt.path, got, tt.match)
		}
	}
}

func TestIgnoreList(t *testing.T) {
	list, err := ParseIgnoreList(strings.NewReader("# comment\n\n*.class\n!Keep.class\nKeep.class\n!/Keep.class\n"))
	if err != nil {
		t.Fatalf("ParseIgnoreList failed: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("ParseIgnoreList returned %d patterns, want 4", len(list))
	}

	tests := map[string]bool{
		"A.class":        true,
		"Keep.class":     false,
		"sub/Keep.class": true,
		"A.java":         false,
	}
	for path, want := range tests {
		if got := list.Ignored(path); got != want {
			t.Errorf("Ignored(%q) = %v, want %v", path, got, want)
		}
	}
}
