package archive

import "time"

// Entry describes one record in an archive's central directory.
type Entry struct {
	Path           string    `json:"path"`
	Size           int64     `json:"size"`
	CompressedSize int64     `json:"compressed_size"`
	IsDirectory    bool      `json:"is_directory"`
	Modified       time.Time `json:"modified,omitzero"`
	CRC32          uint32    `json:"crc32,omitempty"`
}

// Info is an immutable snapshot of an archive's contents produced by Inspect.
// FileCount excludes directory entries.
type Info struct {
	Path              string   `json:"path"`
	FileSize          int64    `json:"file_size"`
	UncompressedSize  int64    `json:"uncompressed_size"`
	FileCount         int      `json:"file_count"`
	CompressionMethod string   `json:"compression_method"`
	HasPassword       bool     `json:"has_password"`
	RootFolder        string   `json:"root_folder,omitempty"`
	IsValid           bool     `json:"is_valid"`
	ValidationErrors  []string `json:"validation_errors,omitempty"`
	Entries           []Entry  `json:"entries,omitempty"`
}

// CompressionRatio returns the percentage of space saved,
// (uncompressed - compressed) / uncompressed * 100, 0 when uncompressed is 0.
func (i *Info) CompressionRatio() float64 {
	if i.UncompressedSize == 0 {
		return 0.0
	}
	return float64(i.UncompressedSize-i.FileSize) / float64(i.UncompressedSize) * 100.0
}
