package extract

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/unidoc/unioffice/document"

	"github.com/askbox/askbox/pkg/logger"
)

const maxUploadBytes = 32 << 20 // 32MB per file

// textExts lists extensions read through as plain text without extraction.
var textExts = map[string]bool{
	".txt": true, ".md": true, ".csv": true, ".log": true,
	".json": true, ".xml": true, ".html": true, ".yaml": true, ".yml": true,
}

// Server implements the extraction endpoint the widget consumes:
// POST /upload with a single "file" field, returning extracted text,
// filename and an opaque upload id. Extracted text is persisted under
// storageDir keyed by upload id so it can be fetched or deleted later.
type Server struct {
	storageDir string
}

func NewServer(storageDir string) *Server {
	return &Server{storageDir: storageDir}
}

func (s *Server) Routes(r *gin.Engine) {
	r.POST("/upload", s.handleUpload)
	r.GET("/uploads/:id", s.handleGet)
	r.DELETE("/uploads/:id", s.handleDelete)
}

// Non-success responses are plain text: the widget surfaces the body to the
// user as-is.
func (s *Server) handleUpload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.String(http.StatusBadRequest, "no file provided")
		return
	}
	if header.Size > maxUploadBytes {
		c.String(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file too large: %d bytes (limit %d)", header.Size, maxUploadBytes))
		return
	}

	f, err := header.Open()
	if err != nil {
		c.String(http.StatusBadRequest, "could not read uploaded file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.String(http.StatusBadRequest, "could not read uploaded file")
		return
	}

	text, err := extractText(header.Filename, data)
	if err != nil {
		logger.ErrorCF("extractd", "Extraction failed", map[string]interface{}{
			"filename": header.Filename,
			"error":    err.Error(),
		})
		c.String(http.StatusUnprocessableEntity, fmt.Sprintf("could not extract text from %s", header.Filename))
		return
	}

	uploadID := uuid.NewString()
	if err := s.store(uploadID, text); err != nil {
		logger.ErrorCF("extractd", "Failed to persist extracted text", map[string]interface{}{
			"uploadId": uploadID,
			"error":    err.Error(),
		})
		c.String(http.StatusInternalServerError, "failed to store extracted text")
		return
	}

	logger.InfoCF("extractd", "Processed upload", map[string]interface{}{
		"filename":   header.Filename,
		"uploadId":   uploadID,
		"textLength": len(text),
	})

	c.JSON(http.StatusOK, Result{
		ExtractedText: text,
		Filename:      header.Filename,
		UploadID:      uploadID,
	})
}

func (s *Server) handleGet(c *gin.Context) {
	path, ok := s.uploadPath(c)
	if !ok {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		c.String(http.StatusNotFound, "upload not found")
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

func (s *Server) handleDelete(c *gin.Context) {
	path, ok := s.uploadPath(c)
	if !ok {
		return
	}
	if err := os.Remove(path); err != nil {
		c.String(http.StatusNotFound, "upload not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// uploadPath validates the id as a UUID so path traversal is impossible.
func (s *Server) uploadPath(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.String(http.StatusBadRequest, "invalid upload id")
		return "", false
	}
	return filepath.Join(s.storageDir, id+".txt"), true
}

func (s *Server) store(uploadID, text string) error {
	if err := os.MkdirAll(s.storageDir, 0755); err != nil {
		return fmt.Errorf("creating storage dir: %w", err)
	}
	path := filepath.Join(s.storageDir, uploadID+".txt")
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// extractText picks an extractor by extension. Unrecognized binary formats
// yield empty text rather than an error: the upload is still confirmed to
// the user with its filename and id.
func extractText(name string, data []byte) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".pdf":
		return extractPDF(data)
	case ".docx":
		return extractDocx(data)
	default:
		if textExts[ext] || looksLikeText(data) {
			return string(data), nil
		}
		logger.WarnCF("extractd", "No extractor for file, returning empty text", map[string]interface{}{
			"filename": name,
		})
		return "", nil
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var text strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			logger.WarnCF("extractd", "Failed to extract pdf page", map[string]interface{}{
				"page":  i,
				"error": err.Error(),
			})
			continue
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}
	return strings.TrimSpace(text.String()), nil
}

func extractDocx(data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "*.docx")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(data); err != nil {
		return "", fmt.Errorf("writing temp docx: %w", err)
	}

	doc, err := document.Open(tmp.Name())
	if err != nil {
		return "", fmt.Errorf("opening docx: %w", err)
	}
	defer doc.Close()

	var text strings.Builder
	for _, para := range doc.Paragraphs() {
		for _, run := range para.Runs() {
			text.WriteString(run.Text())
		}
		text.WriteString("\n")
	}
	return strings.TrimSpace(text.String()), nil
}

// looksLikeText sniffs the leading bytes for extensionless uploads.
func looksLikeText(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	ct := http.DetectContentType(head)
	return strings.HasPrefix(ct, "text/") || ct == "application/json"
}
