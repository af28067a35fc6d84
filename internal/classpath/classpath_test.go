package classpath

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-class-shrink/internal/scanner"
	"github.com/l3aro/go-class-shrink/pkg/classfile"
)

func classBytes(t *testing.T, name, super string) []byte {
	t.Helper()
	b := classfile.NewBuilder(name, super, classfile.AccPublic|classfile.AccSuper)
	code := classfile.NewCodeBuilder().Op(classfile.OpReturn)
	b.AddMethod(classfile.AccPublic|classfile.AccStatic, "run", "()V", b.Code(0, 0, code.MustBytes()))
	data, err := b.Build().Bytes()
	require.NoError(t, err)
	return data
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func writeJar(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	zw := zip.NewWriter(f)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(entries[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func classNames(p *classfile.Program) map[string]bool {
	out := make(map[string]bool)
	for _, c := range p.Classes() {
		out[c.Name()] = c.Library
	}
	return out
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	classes := filepath.Join(dir, "classes")
	writeFile(t, filepath.Join(classes, "app", "A.class"), classBytes(t, "app/A", "java/lang/Object"))
	writeFile(t, filepath.Join(classes, "app", "B.class"), classBytes(t, "app/B", "app/A"))
	writeFile(t, filepath.Join(classes, "app", "Broken.class"), []byte{0xca, 0xfe, 0xba, 0xbe, 0, 0})
	writeFile(t, filepath.Join(classes, "app", "notes.txt"), []byte("not a class"))

	appJar := filepath.Join(dir, "app.jar")
	writeJar(t, appJar, map[string][]byte{
		"app/C.class":                      classBytes(t, "app/C", "java/lang/Object"),
		"META-INF/MANIFEST.MF":             []byte("Manifest-Version: 1.0\n"),
		"META-INF/versions/11/app/C.class": classBytes(t, "app/C", "java/lang/Object"),
		"module-info.class":                []byte("ignored"),
	})

	rt := filepath.Join(dir, "rt.jar")
	writeJar(t, rt, map[string][]byte{
		"java/lang/Object.class": classBytes(t, "java/lang/Object", ""),
		"app/A.class":            classBytes(t, "app/A", "java/lang/Object"),
	})

	loaded, err := NewLoader(WithParallelism(2)).Load(context.Background(), []string{classes, appJar}, []string{rt})
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{
		"app/A":            false,
		"app/B":            false,
		"app/C":            false,
		"java/lang/Object": true,
	}, classNames(loaded.Program))
	assert.True(t, loaded.Program.Linked())
	assert.Empty(t, loaded.Program.Missing())

	require.Len(t, loaded.Failures, 1)
	assert.Equal(t, filepath.Join(classes, "app", "Broken.class"), loaded.Failures[0].Source)
	assert.True(t, errors.Is(loaded.Failures[0], classfile.ErrMalformedInput))

	assert.Equal(t, []string{rt + "!/app/A.class"}, loaded.Duplicates)
	assert.Equal(t, appJar+"!/app/C.class", loaded.Sources["app/C"])
}

func TestLoad_IgnoresArchiveEntries(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "app.jar")
	writeJar(t, jar, map[string][]byte{
		"app/Main.class":     classBytes(t, "app/Main", ""),
		"app/MainTest.class": classBytes(t, "app/MainTest", ""),
		"shaded/Other.class": classBytes(t, "shaded/Other", ""),
	})
	ignore, err := scanner.ParseIgnoreList(strings.NewReader("*Test.class\nshaded/\n"))
	require.NoError(t, err)

	loaded, err := NewLoader(WithIgnore(ignore)).Load(context.Background(), []string{jar}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"app/Main": false}, classNames(loaded.Program))
}

func TestLoad_SniffsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Main.bin")
	writeFile(t, path, classBytes(t, "Main", ""))
	loaded, err := NewLoader().Load(context.Background(), []string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Program.Len())

	text := filepath.Join(dir, "notes.txt")
	writeFile(t, text, []byte("hello"))
	_, err = NewLoader().Load(context.Background(), []string{text}, nil)
	assert.ErrorContains(t, err, "neither a class file nor an archive")
}

func TestLoad_Errors(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), []string{filepath.Join(t.TempDir(), "missing.jar")}, nil)
	assert.ErrorContains(t, err, "failed to open input")

	bad := filepath.Join(t.TempDir(), "bad.jar")
	writeFile(t, bad, []byte("PK not really"))
	_, err = NewLoader().Load(context.Background(), []string{bad}, nil)
	assert.ErrorContains(t, err, "failed to open archive")

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "A.class"), classBytes(t, "A", ""))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewLoader().Load(ctx, []string{dir}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWrite_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	writeFile(t, filepath.Join(in, "app", "A.class"), classBytes(t, "app/A", "java/lang/Object"))
	writeFile(t, filepath.Join(in, "app", "sub", "B.class"), classBytes(t, "app/sub/B", "app/A"))
	lib := filepath.Join(dir, "Object.class")
	writeFile(t, lib, classBytes(t, "java/lang/Object", ""))

	loaded, err := NewLoader().Load(context.Background(), []string{in}, []string{lib})
	require.NoError(t, err)

	for _, out := range []string{filepath.Join(dir, "out"), filepath.Join(dir, "out", "app.jar")} {
		t.Run(filepath.Base(out), func(t *testing.T) {
			n, err := Write(out, loaded.Program)
			require.NoError(t, err)
			assert.Equal(t, 2, n, "library classes are not written")

			again, err := NewLoader().Load(context.Background(), []string{out}, []string{lib})
			require.NoError(t, err)
			assert.Equal(t, classNames(loaded.Program), classNames(again.Program))
			for _, c := range loaded.Program.Classes() {
				if c.Library {
					continue
				}
				want, err := c.Bytes()
				require.NoError(t, err)
				got, err := again.Program.Class(again.Program.Lookup(c.Name())).Bytes()
				require.NoError(t, err)
				assert.Equal(t, want, got, c.Name())
			}
		})
	}
}
