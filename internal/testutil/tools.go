package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"golang.org/x/tools/txtar"
)

// fakeParserScript stands in for the compiled parser.
//
// Protocol: fake-parser <path> <size>. The size argument must match the
// file's byte count (exit 97 otherwise). The first word of the file decides
// the exit status: "accept" exits 0, "reject" exits 2, "crash" kills itself
// with SIGSEGV, "hang" sleeps. Anything else exits 1.
const fakeParserScript = `#!/bin/sh
if [ "$#" -lt 2 ]; then
	echo "usage: $0 <file> <size>" >&2
	exit 96
fi
actual=$(wc -c < "$1" | tr -d ' ')
if [ "$actual" != "$2" ]; then
	echo "size mismatch: got $2, file has $actual" >&2
	exit 97
fi
read -r word _ < "$1"
case "$word" in
	accept) exit 0 ;;
	reject) exit 2 ;;
	crash) kill -SEGV $$ ;;
	hang) sleep 30 ;;
esac
exit 1
`

// fakeCompilerScript stands in for gcc/clang.
//
// Invoked as fake-cc <src> <out>. If the source contains the text
// "syntax error" it fails like a compiler would; otherwise it installs the
// fake-parser script next to itself at <out>.
const fakeCompilerScript = `#!/bin/sh
src="$1"
out="$2"
if [ ! -f "$src" ]; then
	echo "fake-cc: error: no such file: $src" >&2
	exit 1
fi
if grep -q "syntax error" "$src"; then
	echo "$src:1:1: error: syntax error" >&2
	exit 1
fi
echo "fake-cc: compiling $src"
cp "$(dirname "$0")/fake-parser" "$out"
chmod +x "$out"
`

// RequirePOSIX skips tests that depend on /bin/sh scripts.
func RequirePOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake toolchain scripts require a POSIX shell")
	}
}

// Toolchain is a fake compiler and parser installed in a temp directory.
type Toolchain struct {
	// Dir holds both scripts.
	Dir string
	// Compiler is the fake-cc path.
	Compiler string
	// Parser is the fake-parser path.
	Parser string
}

// CompileCommand returns a DirectStrategy command template using the fake compiler.
func (tc *Toolchain) CompileCommand() string {
	return tc.Compiler + " {src} {out}"
}

// NewToolchain writes the fake compiler and parser scripts.
func NewToolchain(t *testing.T) *Toolchain {
	t.Helper()
	RequirePOSIX(t)

	dir := t.TempDir()
	tc := &Toolchain{
		Dir:      dir,
		Compiler: filepath.Join(dir, "fake-cc"),
		Parser:   filepath.Join(dir, "fake-parser"),
	}
	writeExecutable(t, tc.Compiler, fakeCompilerScript)
	writeExecutable(t, tc.Parser, fakeParserScript)
	return tc
}

// WriteParser installs the fake parser at path. Use it when a test needs an
// artifact without going through a build.
func WriteParser(t *testing.T, path string) {
	t.Helper()
	RequirePOSIX(t)
	writeExecutable(t, path, fakeParserScript)
}

func writeExecutable(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteTree materializes a txtar archive under root and returns root.
//
//	-- yes/y_basic_ok.json --
//	accept
//	-- no/n_basic_trailing_comma.json --
//	reject
//
// A file named "<dir>/.keep" creates dir without adding a fixture; the marker
// itself is removed after extraction so the directory is empty.
func WriteTree(t *testing.T, root, archive string) string {
	t.Helper()
	ar := txtar.Parse([]byte(archive))
	for _, f := range ar.Files {
		path := filepath.Join(root, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
		}
		if filepath.Base(path) == ".keep" {
			continue
		}
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return root
}
