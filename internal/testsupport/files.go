package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// placeholderMedia starts with an ISO BMFF ftyp box so the file looks like an
// MP4 to anything sniffing it. Content comes from Fakes, not from these bytes.
var placeholderMedia = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p',
	'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00,
	'i', 's', 'o', 'm', 'm', 'p', '4', '1',
}

// WriteMedia writes a placeholder media file at path, creating parent
// directories, and returns path.
func WriteMedia(t testing.TB, path string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, placeholderMedia, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
