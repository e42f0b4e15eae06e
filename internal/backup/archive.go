package backup

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"
)

const maxDocumentSize = 64 << 20

// writeArchive bundles each document as <kind>.json in a gzip'd tarball.
// Entries are written in kind order so archives are reproducible.
func writeArchive(docs map[string][]byte, modTime time.Time) ([]byte, error) {
	kinds := make([]string, 0, len(docs))
	for k := range docs {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, kind := range kinds {
		doc := docs[kind]
		hdr := &tar.Header{
			Name:    kind + ".json",
			Mode:    0o644,
			Size:    int64(len(doc)),
			ModTime: modTime,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("write header %s: %w", kind, err)
		}
		if _, err := tw.Write(doc); err != nil {
			return nil, fmt.Errorf("write %s: %w", kind, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}
	return buf.Bytes(), nil
}

// readArchive returns the documents in an archive keyed by kind. Entries
// that are not top-level .json files are ignored.
func readArchive(data []byte) (map[string][]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	docs := make(map[string][]byte)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := path.Clean(hdr.Name)
		if strings.Contains(name, "/") || path.Ext(name) != ".json" {
			continue
		}
		if hdr.Size > maxDocumentSize {
			return nil, fmt.Errorf("%s exceeds %d bytes", name, maxDocumentSize)
		}
		doc, err := io.ReadAll(io.LimitReader(tr, maxDocumentSize))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		docs[strings.TrimSuffix(name, ".json")] = doc
	}
	return docs, nil
}
