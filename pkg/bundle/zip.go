package bundle

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"time"
)

// Compression selects the per-entry compression method for DeterministicZip.
type Compression uint16

const (
	CompressionStored   Compression = Compression(zip.Store)
	CompressionDeflated Compression = Compression(zip.Deflate)
)

// DeterministicZip archives files into a byte-stable zip: a fixed mtime
// for every entry, a single caller-chosen compression method, entry
// names written in ascending byte order, and no extra fields or
// comments. Two calls with the same files, mtime, and compression
// produce byte-identical output.
func DeterministicZip(files map[string][]byte, mtime time.Time, compression Compression) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	// Only the MS-DOS date/time fields are set: a non-zero Modified would
	// make archive/zip append an extended-timestamp extra field.
	t := mtime.UTC()
	dosDate := uint16(t.Day() + int(t.Month())<<5 + (t.Year()-1980)<<9)
	dosTime := uint16(t.Second()/2 + t.Minute()<<5 + t.Hour()<<11)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		hdr := &zip.FileHeader{
			Name:         name,
			Method:       uint16(compression),
			ModifiedDate: dosDate,
			ModifiedTime: dosTime,
		}
		hdr.SetMode(0o644)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("bundle: zip header for %q: %w", name, err)
		}
		if _, err := w.Write(files[name]); err != nil {
			return nil, fmt.Errorf("bundle: zip write for %q: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("bundle: close zip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// ExtractZip reads a zip archive into a name→bytes map, the deterministic
// in-memory equivalent of extracting to a temp directory: entries are
// read back in the archive's own order, which DeterministicZip guarantees
// to be ascending byte order.
func ExtractZip(data []byte) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("bundle: open zip: %w", err)
	}
	out := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("bundle: open zip entry %q: %w", f.Name, err)
		}
		buf := make([]byte, 0, f.UncompressedSize64)
		b := bytes.NewBuffer(buf)
		if _, err := b.ReadFrom(rc); err != nil {
			rc.Close()
			return nil, fmt.Errorf("bundle: read zip entry %q: %w", f.Name, err)
		}
		rc.Close()
		out[f.Name] = b.Bytes()
	}
	return out, nil
}
