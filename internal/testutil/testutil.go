package testutil

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// ZipEntry describes one entry for a programmatic test archive.
type ZipEntry struct {
	Name     string
	Body     []byte
	Mode     os.FileMode
	Modified time.Time
	Store    bool // use Store instead of Deflate
}

// BuildZipBytes builds a ZIP archive in memory. Entries with a trailing slash
// become directory entries.
func BuildZipBytes(t testing.TB, entries ...ZipEntry) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, e := range entries {
		hdr := &zip.FileHeader{
			Name:   e.Name,
			Method: zip.Deflate,
		}
		if e.Store {
			hdr.Method = zip.Store
		}
		if !e.Modified.IsZero() {
			hdr.Modified = e.Modified
		}
		if e.Mode != 0 {
			hdr.SetMode(e.Mode)
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", e.Name, err)
		}
		if len(e.Body) > 0 {
			if _, err := w.Write(e.Body); err != nil {
				t.Fatalf("write zip entry %s: %v", e.Name, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return buf.Bytes()
}

// BuildZip writes a ZIP archive with the given entries to path.
func BuildZip(t testing.TB, path string, entries ...ZipEntry) {
	t.Helper()

	data := BuildZipBytes(t, entries...)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir for zip fixture: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write zip fixture: %v", err)
	}
}

// BuildCorruptZip writes an archive whose first entry fails CRC verification.
// The entry is stored uncompressed so its payload can be located and flipped.
func BuildCorruptZip(t testing.TB, path, name string, body []byte) {
	t.Helper()

	if len(body) == 0 {
		t.Fatal("corrupt zip fixture needs a non-empty body")
	}
	data := BuildZipBytes(t, ZipEntry{Name: name, Body: body, Store: true})
	idx := bytes.Index(data, body)
	if idx < 0 {
		t.Fatal("could not locate stored payload in zip fixture")
	}
	data[idx] ^= 0xFF
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write corrupt zip fixture: %v", err)
	}
}
