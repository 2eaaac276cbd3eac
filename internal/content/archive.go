package content

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
)

const (
	// MaxArchiveEntries bounds the number of entries an uploaded archive
	// may declare.
	MaxArchiveEntries = 100

	// MaxArchiveUncompressed bounds the declared uncompressed total. The
	// check never inflates anything, so an archive bomb is rejected from
	// metadata alone.
	MaxArchiveUncompressed = 100 * 1024 * 1024
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

var skipBasenames = map[string]bool{
	".DS_Store": true,
	"Thumbs.db": true,
}

const macOSMetadataPrefix = "__MACOSX/"

// OpenArchive opens an in-memory ZIP payload.
func OpenArchive(data []byte) (*zip.Reader, error) {
	return zip.NewReader(bytes.NewReader(data), int64(len(data)))
}

// ValidateArchive checks an uploaded archive against the safety policy, in
// fixed order: entry count, declared uncompressed size, path traversal, then
// the exactly-one-document rule. The first failure wins.
func ValidateArchive(zr *zip.Reader) error {
	if len(zr.File) > MaxArchiveEntries {
		return fmt.Errorf("archive has too many entries (max %d)", MaxArchiveEntries)
	}

	var total uint64
	for _, f := range zr.File {
		// Sizes come straight from the central directory, so each entry is
		// bounded on its own before summing to keep the total from wrapping.
		if f.UncompressedSize64 > MaxArchiveUncompressed {
			return fmt.Errorf("archive uncompressed size too large (max %dMB)", MaxArchiveUncompressed/(1024*1024))
		}
		total += f.UncompressedSize64
		if total > MaxArchiveUncompressed {
			return fmt.Errorf("archive uncompressed size too large (max %dMB)", MaxArchiveUncompressed/(1024*1024))
		}
	}

	for _, f := range zr.File {
		if strings.Contains(f.Name, "..") || strings.HasPrefix(f.Name, "/") {
			return fmt.Errorf("archive contains a disallowed path: %s", f.Name)
		}
	}

	docs := documentEntries(zr)
	if len(docs) == 0 {
		return errors.New("archive contains no .md document")
	}
	if len(docs) > 1 {
		return fmt.Errorf("archive contains %d .md documents, expected exactly one", len(docs))
	}

	return nil
}

// isValidEntry filters out OS metadata: __MACOSX/ payloads, hidden files,
// and well-known junk basenames. Skipped entries still count toward the
// entry and size limits.
func isValidEntry(name string) bool {
	if strings.HasPrefix(name, macOSMetadataPrefix) || strings.HasPrefix(name, ".") {
		return false
	}
	base := path.Base(name)
	if skipBasenames[base] || strings.HasPrefix(base, ".") {
		return false
	}
	return true
}

func documentEntries(zr *zip.Reader) []*zip.File {
	var docs []*zip.File
	for _, f := range zr.File {
		if isValidEntry(f.Name) && strings.HasSuffix(strings.ToLower(f.Name), ".md") {
			docs = append(docs, f)
		}
	}
	return docs
}

// Document returns the single Markdown entry of a validated archive.
func Document(zr *zip.Reader) (*zip.File, error) {
	docs := documentEntries(zr)
	if len(docs) != 1 {
		return nil, errors.New("archive contains no .md document")
	}
	return docs[0], nil
}

// AssetSink persists one extracted asset and returns its public URL. Writes
// must be atomic per asset so a partially written object is never reachable.
type AssetSink interface {
	SaveAsset(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// ExtractAssets copies every permitted image entry out of the archive into
// the sink under a fresh unguessable name. The returned mapping is keyed by
// the full archive-relative path and, when not already taken, by the bare
// basename, so document references using either form resolve.
func ExtractAssets(ctx context.Context, zr *zip.Reader, sink AssetSink) (map[string]string, error) {
	mapping := make(map[string]string)

	for _, f := range zr.File {
		if !isValidEntry(f.Name) || strings.HasSuffix(f.Name, "/") {
			continue
		}
		ext := strings.ToLower(path.Ext(f.Name))
		if !imageExtensions[ext] {
			continue
		}

		data, err := ReadEntry(f)
		if err != nil {
			return nil, fmt.Errorf("reading archive entry %s: %w", f.Name, err)
		}

		newName := randomHex(12) + ext
		url, err := sink.SaveAsset(ctx, newName, data, mimeTypeForExtension(ext))
		if err != nil {
			return nil, fmt.Errorf("storing asset %s: %w", f.Name, err)
		}

		mapping[f.Name] = url
		if base := path.Base(f.Name); mapping[base] == "" {
			mapping[base] = url
		}
	}

	return mapping, nil
}

// ReadEntry inflates a single archive entry into memory. Inflation is capped
// at the declared size: the zip format does not force the stream to match the
// central directory, so an entry that keeps producing data past its declared
// length is cut off rather than trusted.
func ReadEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, int64(f.UncompressedSize64)+1))
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > f.UncompressedSize64 {
		return nil, fmt.Errorf("entry %s inflates past its declared size", f.Name)
	}
	return data, nil
}

func randomHex(length int) string {
	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)[:length]
}

func mimeTypeForExtension(ext string) string {
	switch ext {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

var imageRefPattern = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)

// RewriteImagePaths substitutes image references in a Markdown body using
// the extraction mapping. Absolute http(s) URLs are never touched and
// unmatched references are left as-is.
func RewriteImagePaths(body string, mapping map[string]string) string {
	return imageRefPattern.ReplaceAllStringFunc(body, func(ref string) string {
		groups := imageRefPattern.FindStringSubmatch(ref)
		alt, target := groups[1], groups[2]

		if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
			return ref
		}
		if url, ok := mapping[target]; ok {
			return fmt.Sprintf("![%s](%s)", alt, url)
		}
		if url, ok := mapping[path.Base(target)]; ok {
			return fmt.Sprintf("![%s](%s)", alt, url)
		}
		return ref
	})
}
