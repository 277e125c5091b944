package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Bundle zips the named files, in order, relative to baseDir. Entry order in
// the archive is the declared order, which Unbundle preserves on the other
// end. Directories among the names are stored as explicit empty entries so
// adapters that rely on empty output directories get them back.
func Bundle(baseDir string, names []string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for _, name := range names {
		rel, err := relName(baseDir, name)
		if err != nil {
			return nil, err
		}
		full := name
		if !filepath.IsAbs(full) {
			full = filepath.Join(baseDir, name)
		}
		info, err := os.Stat(full)
		if err != nil {
			return nil, fmt.Errorf("failed to stat bundle entry %s: %w", name, err)
		}
		if info.IsDir() {
			if _, err := w.Create(rel + "/"); err != nil {
				return nil, fmt.Errorf("failed to add directory entry %s: %w", rel, err)
			}
			continue
		}
		entry, err := w.Create(rel)
		if err != nil {
			return nil, fmt.Errorf("failed to add bundle entry %s: %w", rel, err)
		}
		f, err := os.Open(full)
		if err != nil {
			return nil, fmt.Errorf("failed to open bundle entry %s: %w", name, err)
		}
		_, err = io.Copy(entry, f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to copy bundle entry %s: %w", name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize bundle: %w", err)
	}
	return buf.Bytes(), nil
}

// Unbundle extracts a bundle into destDir and returns the extracted file
// paths (not directories) in archive order.
func Unbundle(bundle []byte, destDir string) ([]string, error) {
	r, err := zip.NewReader(bytes.NewReader(bundle), int64(len(bundle)))
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}

	var files []string
	for _, entry := range r.File {
		dest, err := sanitizedJoin(destDir, entry.Name)
		if err != nil {
			return nil, err
		}
		if strings.HasSuffix(entry.Name, "/") {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", entry.Name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", entry.Name, err)
		}
		src, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open bundle entry %s: %w", entry.Name, err)
		}
		out, err := os.Create(dest)
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("failed to create %s: %w", dest, err)
		}
		_, err = io.Copy(out, src)
		src.Close()
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("failed to extract %s: %w", entry.Name, err)
		}
		files = append(files, dest)
	}
	return files, nil
}

// relName picks the archive entry name: relative names are kept as-is,
// absolute names under baseDir keep their relative structure, and absolute
// names from elsewhere (user selections fed to send) flatten to their base
// name.
func relName(baseDir, name string) (string, error) {
	if !filepath.IsAbs(name) {
		return filepath.ToSlash(filepath.Clean(name)), nil
	}
	if baseDir != "" {
		if rel, err := filepath.Rel(baseDir, name); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel), nil
		}
	}
	return filepath.Base(name), nil
}

// sanitizedJoin rejects entries that would escape destDir.
func sanitizedJoin(destDir, name string) (string, error) {
	dest := filepath.Join(destDir, filepath.FromSlash(name))
	if !strings.HasPrefix(dest, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("bundle entry %s escapes extraction directory", name)
	}
	return dest, nil
}
