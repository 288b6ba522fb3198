// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/jeranaias/agenttools/internal/pathguard"
	"github.com/jeranaias/agenttools/internal/session"
)

const (
	maxMediaBytes   = 100 << 20
	dataURLPreview  = 100
	mediaKindImage  = "image"
	mediaKindVideo  = "video"
	coordinatesNote = "If you need to output coordinates, output relative coordinates first and compute absolute coordinates using the original image size."
)

var (
	imageExtensions = map[string]string{
		".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".png": "image/png",
		".gif": "image/gif", ".webp": "image/webp", ".bmp": "image/bmp",
		".svg": "image/svg+xml",
	}
	videoExtensions = map[string]string{
		".mp4": "video/mp4", ".webm": "video/webm", ".mov": "video/quicktime",
		".avi": "video/x-msvideo", ".mkv": "video/x-matroska", ".m4v": "video/x-m4v",
	}
)

func newReadMediaFileTool(sess *session.Session) *Tool {
	return &Tool{
		Name: "read_media_file",
		Description: `Read an image or video file.

The content is returned as a base64 data URL together with its media type and,
for images, the original pixel size. The maximum file size is 100MB. Use
read_file for text files.`,
		Schema: Schema{
			Parameters: []Parameter{
				{
					Name:        "path",
					Type:        "string",
					Required:    true,
					Description: "The path to the file to read. Absolute paths are required when reading files outside the working directory.",
				},
			},
		},
		Group:     GroupFile,
		RiskLevel: RiskLow,
		Executor:  &MediaExecutor{sess: sess},
	}
}

// MediaExecutor implements read_media_file.
type MediaExecutor struct {
	sess *session.Session
}

// Execute loads a media file.
func (e *MediaExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	path := getStringParam(params, "path", "")
	if path == "" {
		return failure("File path cannot be empty."), nil
	}

	resolved, err := e.sess.Resolve(path)
	if err != nil {
		return fromError(err), nil
	}
	if err := pathguard.RequireFile(resolved); err != nil {
		return fromError(err), nil
	}

	info, err := os.Stat(resolved.Path)
	if err != nil {
		return failure("Failed to read %s. Error: %v", path, err), nil
	}
	switch size := info.Size(); {
	case size == 0:
		return failure("`%s` is empty.", path), nil
	case size > maxMediaBytes:
		return failure("`%s` is %d bytes, which exceeds the max %dMB for media files.", path, size, maxMediaBytes>>20), nil
	}

	data, err := os.ReadFile(resolved.Path)
	if err != nil {
		return failure("Failed to read %s. Error: %v", path, err), nil
	}

	kind, mimeType, ok := detectMedia(resolved.Path, data)
	if !ok {
		return failure("`%s` is not a recognized image or video file. Use read_file for text files or appropriate shell commands for other formats.", path), nil
	}

	sizeHint := ""
	if kind == mediaKindImage {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			sizeHint = fmt.Sprintf(", original size %dx%dpx", cfg.Width, cfg.Height)
		}
	}

	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	if len(dataURL) > dataURLPreview {
		dataURL = dataURL[:dataURLPreview]
	}

	message := fmt.Sprintf("Loaded %s file `%s` (%s, %d bytes%s). %s",
		kind, resolved.Path, mimeType, info.Size(), sizeHint, coordinatesNote)
	out := fmt.Sprintf("[Media: %s]\nData URL: %s...(truncated for display)", kind, dataURL)
	return success(out, message), nil
}

// detectMedia classifies a file by extension first and content second.
func detectMedia(path string, data []byte) (kind, mimeType string, ok bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if m, found := imageExtensions[ext]; found {
		return mediaKindImage, mimeOr(ext, m), true
	}
	if m, found := videoExtensions[ext]; found {
		return mediaKindVideo, mimeOr(ext, m), true
	}

	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "image/"):
			return mediaKindImage, detected.String(), true
		case strings.HasPrefix(m.String(), "video/"):
			return mediaKindVideo, detected.String(), true
		}
	}
	return "", "", false
}

func mimeOr(ext, fallback string) string {
	if m := mime.TypeByExtension(ext); m != "" {
		if i := strings.IndexByte(m, ';'); i >= 0 {
			m = m[:i]
		}
		return m
	}
	return fallback
}
