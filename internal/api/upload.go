package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// allowedImageExts is the extension allowlist for meal photo uploads.
var allowedImageExts = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".webp": {},
	".bmp":  {},
	".tiff": {},
}

// uploadHandler serves POST /api/v1/upload-image. Files are stored under a
// random hex name so a client can never choose the path it reads back.
type uploadHandler struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
}

func (h *uploadHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload_too_large",
			fmt.Sprintf("upload must be at most %d bytes", h.maxBytes))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file", "multipart field 'file' is required")
		return
	}
	defer func() { _ = file.Close() }()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := allowedImageExts[ext]; !ok {
		writeError(w, http.StatusBadRequest, "unsupported_type",
			"file extension must be one of: png, jpg, jpeg, gif, webp, bmp, tiff")
		return
	}

	// 32 hex chars, matching what the chat endpoint accepts back.
	name := strings.ReplaceAll(uuid.NewString(), "-", "") + ext

	if err := os.MkdirAll(h.dir, 0o750); err != nil {
		h.logger.Error("creating upload directory failed", "error", err)
		writeError(w, http.StatusInternalServerError, "upload_failed", "failed to store upload")
		return
	}

	dst, err := os.OpenFile(filepath.Join(h.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		h.logger.Error("creating upload file failed", "error", err)
		writeError(w, http.StatusInternalServerError, "upload_failed", "failed to store upload")
		return
	}

	if _, err := io.Copy(dst, file); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		h.logger.Error("writing upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "upload_failed", "failed to store upload")
		return
	}
	if err := dst.Close(); err != nil {
		h.logger.Error("closing upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "upload_failed", "failed to store upload")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"image_url": "/uploads/" + name})
}
