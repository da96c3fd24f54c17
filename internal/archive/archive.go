// Package archive prepares generated images for download: resizing to the
// requested output size and bundling into a ZIP with a README manifest.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const ManifestName = "README.txt"

type File struct {
	Name string
	Data []byte
}

type Manifest struct {
	ProductName string
	CreatedAt   time.Time
	// Notes are extra lines, e.g. failed items.
	Notes []string
}

// FileName names the n-th (1-based) image of a shot.
func FileName(shotID, label string, n int) string {
	return fmt.Sprintf("%s_%s_%d.png", shotID, label, n)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9]+`)

// BundleName is the download name of the archive.
func BundleName(product string, day time.Time) string {
	slug := strings.Trim(unsafeChars.ReplaceAllString(product, "-"), "-")
	if slug == "" {
		slug = "product"
	}
	if len(slug) > 40 {
		slug = strings.TrimRight(slug[:40], "-")
	}
	return fmt.Sprintf("productshot_%s_%s.zip", strings.ToLower(slug), day.Format(time.DateOnly))
}

// Build writes files and the manifest into a deflated ZIP.
func Build(m Manifest, files []File) ([]byte, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to archive")
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("duplicate archive entry %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if err := writeEntry(zw, f.Name, f.Data, m.CreatedAt); err != nil {
			return nil, err
		}
	}
	if err := writeEntry(zw, ManifestName, []byte(Readme(m, files)), m.CreatedAt); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// Readme renders the manifest text.
func Readme(m Manifest, files []File) string {
	var b strings.Builder
	b.WriteString("Product shots\n\n")
	fmt.Fprintf(&b, "Generated: %s\n", m.CreatedAt.Format(time.DateOnly))
	fmt.Fprintf(&b, "Product: %s\n", m.ProductName)
	fmt.Fprintf(&b, "Images: %d\n\n", len(files))
	b.WriteString("Files:\n")
	for _, f := range files {
		fmt.Fprintf(&b, "- %s\n", f.Name)
	}
	if len(m.Notes) > 0 {
		b.WriteString("\nNotes:\n")
		for _, n := range m.Notes {
			fmt.Fprintf(&b, "- %s\n", n)
		}
	}
	return b.String()
}

func writeEntry(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write zip entry %s: %w", name, err)
	}
	return nil
}
