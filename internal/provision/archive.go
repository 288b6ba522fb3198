// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provision

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var errMemberNotFound = errors.New("executable not found in archive")

// extractMember copies the archive member whose base name is member into w.
// Directory structure inside the archive is ignored.
func extractMember(archivePath, member string, w io.Writer) error {
	if strings.HasSuffix(archivePath, ".zip") {
		return extractZipMember(archivePath, member, w)
	}
	return extractTarGzMember(archivePath, member, w)
}

func extractTarGzMember(archivePath, member string, w io.Writer) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return errMemberNotFound
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}

		if header.Typeflag != tar.TypeReg || memberBase(header.Name) != member {
			continue
		}
		if _, err := io.Copy(w, tr); err != nil {
			return fmt.Errorf("extract %s: %w", header.Name, err)
		}
		return nil
	}
}

func extractZipMember(archivePath, member string, w io.Writer) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || memberBase(f.Name) != member {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", f.Name, err)
		}
		_, err = io.Copy(w, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
		return nil
	}
	return errMemberNotFound
}

// memberBase returns the last element of an archive member name, which may
// use either slash style.
func memberBase(name string) string {
	return path.Base(strings.ReplaceAll(name, "\\", "/"))
}
