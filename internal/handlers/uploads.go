package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/middleware"
)

const maxUploadSize = 10 << 20

var allowedUploadExts = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

type UploadsHandler struct {
	db      *database.DB
	dataDir string
}

func NewUploadsHandler(db *database.DB, dataDir string) *UploadsHandler {
	return &UploadsHandler{db: db, dataDir: dataDir}
}

func (h *UploadsHandler) uploadsDir() string {
	return filepath.Join(h.dataDir, "uploads")
}

type uploadResponse struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Upload stores a listing photo or document. With a property_id form value
// the file URL is appended to that property's images.
func (h *UploadsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large (max 10MB)")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	contentType, ok := allowedUploadExts[ext]
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported file type")
		return
	}
	if !validateMagicBytes(file, ext) {
		writeError(w, http.StatusBadRequest, "file content does not match its extension")
		return
	}

	if err := os.MkdirAll(h.uploadsDir(), 0755); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create storage directory")
		return
	}

	id := uuid.New().String()
	diskName := id + ext
	diskPath := filepath.Join(h.uploadsDir(), diskName)
	dst, err := os.Create(diskPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create file")
		return
	}
	written, err := io.Copy(dst, file)
	dst.Close()
	if err != nil {
		os.Remove(diskPath)
		writeError(w, http.StatusInternalServerError, "failed to write file")
		return
	}

	resp := uploadResponse{
		ID:          id,
		Filename:    header.Filename,
		URL:         "/api/v1/uploads/" + diskName,
		Size:        written,
		ContentType: contentType,
	}

	if propertyID := r.FormValue("property_id"); propertyID != "" {
		p, err := h.db.GetProperty(propertyID)
		if err != nil {
			os.Remove(diskPath)
			writeStoreError(w, "property", err)
			return
		}
		p.Images = append(p.Images, resp.URL)
		if err := h.db.UpdateProperty(p); err != nil {
			os.Remove(diskPath)
			writeStoreError(w, "property", err)
			return
		}
	}

	h.db.LogAudit(middleware.GetUserID(r.Context()), "file_uploaded", "uploads", "file", id, header.Filename)
	writeJSON(w, http.StatusCreated, resp)
}

// Serve returns a stored upload by its disk name.
func (h *UploadsHandler) Serve(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(chi.URLParam(r, "filename"))
	if name == "." || name == "/" || strings.HasPrefix(name, ".") {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	path := filepath.Join(h.uploadsDir(), name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if ct, ok := allowedUploadExts[strings.ToLower(filepath.Ext(name))]; ok {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeFile(w, r, path)
}

// validateMagicBytes checks that the file content matches the expected type
// based on the extension. The file position is reset after reading.
func validateMagicBytes(file multipart.File, ext string) bool {
	buf := make([]byte, 12)
	n, _ := file.Read(buf)
	buf = buf[:n]
	file.Seek(0, io.SeekStart)

	switch ext {
	case ".png":
		return n >= 4 && buf[0] == 0x89 && buf[1] == 0x50 && buf[2] == 0x4E && buf[3] == 0x47
	case ".jpg":
		return n >= 3 && buf[0] == 0xFF && buf[1] == 0xD8 && buf[2] == 0xFF
	case ".webp":
		return n >= 12 && string(buf[0:4]) == "RIFF" && string(buf[8:12]) == "WEBP"
	case ".pdf":
		return n >= 4 && string(buf[0:4]) == "%PDF"
	}
	return false
}
