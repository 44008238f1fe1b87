// Package archive validates and inspects ZIP containers before extraction.
// It never writes anything to disk.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// zipSignatures are the accepted magics for the first local file header or an
// empty archive's end-of-central-directory record.
var zipSignatures = [][]byte{
	{0x50, 0x4B, 0x03, 0x04},
	{0x50, 0x4B, 0x05, 0x06},
}

const (
	methodBzip2 = 12
	methodLZMA  = 14
)

// openReader opens the archive, tolerating entry names archive/zip considers
// insecure. Path safety is this package's own job, enforced per entry.
func openReader(path string) (*zip.ReadCloser, error) {
	zr, err := zip.OpenReader(path)
	if err != nil && errors.Is(err, zip.ErrInsecurePath) {
		return zr, nil
	}
	return zr, err
}

// Validate confirms that path points at a structurally sound ZIP archive.
// A nil return means the archive exists, carries the right signature and
// every entry's checksum verifies against its decompressed content.
func Validate(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", path)
		}
		return fmt.Errorf("cannot access file: %w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("path is not a file: %s", path)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("file is empty")
	}

	if ok, err := hasZipSignature(path); err != nil {
		return fmt.Errorf("error reading archive: %w", err)
	} else if !ok {
		return fmt.Errorf("file is not a valid ZIP archive")
	}

	zr, err := openReader(path)
	if err != nil {
		return fmt.Errorf("bad ZIP file: %w", err)
	}
	defer zr.Close()

	if bad := testArchive(&zr.Reader); bad != "" {
		return fmt.Errorf("corrupted file in archive: %s", bad)
	}
	return nil
}

func hasZipSignature(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return false, nil // shorter than any valid archive
	}
	for _, sig := range zipSignatures {
		if bytes.Equal(magic, sig) {
			return true, nil
		}
	}
	return false, nil
}

// testArchive decompresses every entry and reports the name of the first one
// whose checksum fails, or an empty string when all verify.
func testArchive(zr *zip.Reader) string {
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return f.Name
		}
		// archive/zip verifies the CRC against the decompressed stream at EOF.
		_, err = io.Copy(io.Discard, rc)
		_ = rc.Close()
		if err != nil {
			return f.Name
		}
	}
	return ""
}

// Inspect scans every entry once and returns summary metadata without
// extracting. It fails only when the file itself is unreachable; a broken
// container still yields partial info with IsValid cleared.
func Inspect(path string) (*Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("archive not found: %s", path)
	}

	info := &Info{
		Path:              path,
		FileSize:          fi.Size(),
		CompressionMethod: "unknown",
		IsValid:           true,
	}

	zr, err := openReader(path)
	if err != nil {
		info.IsValid = false
		info.ValidationErrors = append(info.ValidationErrors, fmt.Sprintf("bad ZIP file: %v", err))
		return info, nil
	}
	defer zr.Close()

	if len(zr.File) > 0 {
		info.CompressionMethod = compressionMethodName(zr.File[0].Method)
	}

	paths := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		// general purpose bit 0 marks the entry as encrypted
		if f.Flags&0x1 != 0 {
			info.HasPassword = true
		}

		entry := Entry{
			Path:           f.Name,
			Size:           int64(f.UncompressedSize64),
			CompressedSize: int64(f.CompressedSize64),
			IsDirectory:    f.FileInfo().IsDir(),
			CRC32:          f.CRC32,
		}
		if !f.Modified.IsZero() {
			entry.Modified = f.Modified
		}
		info.Entries = append(info.Entries, entry)
		info.UncompressedSize += entry.Size
		if !entry.IsDirectory {
			info.FileCount++
		}
		paths = append(paths, f.Name)
	}

	if bad := testArchive(&zr.Reader); bad != "" {
		info.IsValid = false
		info.ValidationErrors = append(info.ValidationErrors, fmt.Sprintf("corrupted file: %s", bad))
	}

	info.RootFolder = DetectRootFolder(paths)
	return info, nil
}

func compressionMethodName(method uint16) string {
	switch method {
	case zip.Store:
		return "stored"
	case zip.Deflate:
		return "deflate"
	case methodBzip2:
		return "bzip2"
	case methodLZMA:
		return "lzma"
	}
	return "unknown"
}

// DetectRootFolder returns the single first segment shared by every path, or
// an empty string when the paths disagree or the input is empty. Every
// normalized path must be exactly the candidate or start with it plus a
// separator, so a root-level file beside the candidate disqualifies detection.
func DetectRootFolder(paths []string) string {
	root := ""
	for _, p := range paths {
		normalized := strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
		if normalized == "" {
			continue
		}
		if root == "" {
			root, _, _ = strings.Cut(normalized, "/")
		}
		if normalized != root && !strings.HasPrefix(normalized, root+"/") {
			return ""
		}
	}
	return root
}

// DetectBomb flags archives whose uncompressed total exceeds maxRatio times
// the on-disk size. This is an advisory warning, so every error path fails
// open.
func DetectBomb(path string, maxRatio float64) bool {
	fi, err := os.Stat(path)
	if err != nil || fi.Size() == 0 {
		return false
	}

	zr, err := openReader(path)
	if err != nil {
		return false
	}
	defer zr.Close()

	var uncompressed int64
	for _, f := range zr.File {
		uncompressed += int64(f.UncompressedSize64)
	}
	if uncompressed == 0 {
		return false
	}

	return float64(uncompressed)/float64(fi.Size()) > maxRatio
}
