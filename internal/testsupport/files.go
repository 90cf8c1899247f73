package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// pngHeader is the 8-byte PNG signature followed by the start of an IHDR
// chunk. Collaborators under test only ever see opaque bytes.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

// PNGBytes returns a small byte slice that starts with a PNG signature.
func PNGBytes() []byte {
	out := make([]byte, len(pngHeader)+16)
	copy(out, pngHeader)
	for i := len(pngHeader); i < len(out); i++ {
		out[i] = byte(i)
	}
	return out
}

// WriteImage writes PNG-looking bytes to dir/name and returns the full path.
func WriteImage(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	WriteBytes(t, path, PNGBytes())
	return path
}

// WriteBytes writes data to path, creating parent directories.
func WriteBytes(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
