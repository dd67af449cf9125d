package bundle

import (
	"archive/zip"
	"bytes"
	"fmt"
	"time"

	"github.com/yungbote/planforge-backend/internal/pipeline/errs"
)

const archiveSlugMax = 40

// Zip writes entries, in order, into an in-memory zip archive.
func Zip(entries []Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, errs.AssemblyFailure("nothing to archive")
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.Path, Method: zip.Deflate})
		if err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("zip %s: %w", e.Path, err)
		}
		if _, err := w.Write([]byte(e.Content)); err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("zip %s: %w", e.Path, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip close: %w", err)
	}
	return buf.Bytes(), nil
}

// ArchiveName is "<slug>-building-plan-YYYY-MM-DD.zip" with the description
// slug cut to 40 characters, or "building-plan-YYYY-MM-DD.zip" when the
// description has nothing sluggable.
func ArchiveName(description string, date time.Time) string {
	slug := Slugify(description)
	if len(slug) > archiveSlugMax {
		slug = Slugify(slug[:archiveSlugMax])
	}
	day := date.UTC().Format("2006-01-02")
	if slug == "" {
		return "building-plan-" + day + ".zip"
	}
	return slug + "-building-plan-" + day + ".zip"
}
