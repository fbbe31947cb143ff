package httpapi

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/queue"
)

const uploadField = "documents"

var allowedExts = map[string]bool{".pdf": true, ".txt": true, ".md": true, ".rtf": true}

type enqueueResponse struct {
	BatchID   string `json:"batch_id"`
	Status    string `json:"status"`
	Documents int    `json:"documents"`
}

type pathsRequest struct {
	Paths []string `json:"paths"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		docs []model.Document
		err  error
	)
	if mediaType == "multipart/form-data" {
		docs, err = s.saveUploads(w, r)
	} else {
		docs, err = s.localDocuments(r)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := s.queue.Enqueue(docs)
	writeJSON(w, http.StatusAccepted, enqueueResponse{
		BatchID:   id,
		Status:    string(model.BatchStatusQueued),
		Documents: len(docs),
	})
}

func (s *Server) maxFiles() int {
	if s.docs.MaxFiles <= 0 {
		return 5
	}
	return s.docs.MaxFiles
}

func (s *Server) saveUploads(w http.ResponseWriter, r *http.Request) ([]model.Document, error) {
	perFile := int64(s.docs.MaxUploadMB) << 20
	if perFile <= 0 {
		perFile = 25 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, perFile*int64(s.maxFiles())+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, eris.Wrap(err, "invalid multipart form")
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File[uploadField]
	if len(files) == 0 {
		return nil, eris.Errorf("no files in %q field", uploadField)
	}
	if len(files) > s.maxFiles() {
		return nil, eris.Errorf("at most %d files per batch", s.maxFiles())
	}
	for _, fh := range files {
		if fh.Size > perFile {
			return nil, eris.Errorf("%s exceeds %d MB", fh.Filename, s.docs.MaxUploadMB)
		}
		if !allowedExts[strings.ToLower(filepath.Ext(fh.Filename))] {
			return nil, eris.Errorf("%s: unsupported file type", fh.Filename)
		}
	}

	if err := os.MkdirAll(s.docs.UploadDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "create upload dir")
	}

	docs := make([]model.Document, 0, len(files))
	for _, fh := range files {
		doc, err := s.saveUpload(fh)
		if err != nil {
			removeFiles(docs)
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *Server) saveUpload(fh *multipart.FileHeader) (model.Document, error) {
	id := uuid.NewString()
	name := filepath.Base(fh.Filename)
	path := filepath.Join(s.docs.UploadDir, id+strings.ToLower(filepath.Ext(name)))

	src, err := fh.Open()
	if err != nil {
		return model.Document{}, eris.Wrapf(err, "open upload %s", name)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(path)
	if err != nil {
		return model.Document{}, eris.Wrapf(err, "store upload %s", name)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return model.Document{}, eris.Wrapf(err, "store upload %s", name)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return model.Document{}, eris.Wrapf(err, "store upload %s", name)
	}

	return model.Document{
		ID:          id,
		Name:        name,
		Path:        path,
		ContentType: fh.Header.Get("Content-Type"),
	}, nil
}

// localDocuments accepts {"paths": [...]} naming files under the configured
// local root. Relative paths resolve against the root; symlinks are
// followed before the containment check.
func (s *Server) localDocuments(r *http.Request) ([]model.Document, error) {
	if s.docs.LocalRoot == "" {
		return nil, eris.New("local paths are disabled")
	}
	root, err := resolvePath(s.docs.LocalRoot)
	if err != nil {
		return nil, eris.Wrap(err, "local root")
	}

	var req pathsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTextBytes)).Decode(&req); err != nil {
		return nil, eris.Wrap(err, "invalid request body")
	}
	if len(req.Paths) == 0 {
		return nil, eris.New("paths is required")
	}
	if len(req.Paths) > s.maxFiles() {
		return nil, eris.Errorf("at most %d files per batch", s.maxFiles())
	}

	docs := make([]model.Document, 0, len(req.Paths))
	for _, p := range req.Paths {
		path, err := confine(root, p)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, eris.Wrapf(err, "document %s", p)
		}
		if info.IsDir() {
			return nil, eris.Errorf("document %s is a directory", p)
		}
		docs = append(docs, model.Document{ID: uuid.NewString(), Name: filepath.Base(path), Path: path})
	}
	return docs, nil
}

// confine resolves p and rejects it unless it lies inside root.
func confine(root, p string) (string, error) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	path, err := resolvePath(p)
	if err != nil {
		return "", eris.Wrapf(err, "document %s", p)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", eris.Errorf("document %s is outside the local root", p)
	}
	return path, nil
}

func resolvePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := s.queue.Status(id)
	if !ok {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.queue.Result(id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case eris.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, "batch not found")
	case eris.Is(err, queue.ErrNotCompleted):
		snap, _ := s.queue.Status(id)
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "batch not completed",
			"status": snap.Status,
			"detail": snap.Error,
		})
	default:
		zap.L().Error("http: fetch result", zap.String("batch_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// RemoveUploads returns a queue finish hook that deletes a batch's uploaded
// files. Documents outside uploadDir are left alone.
func RemoveUploads(uploadDir string) func(string, []model.Document) {
	root, err := filepath.Abs(uploadDir)
	if err != nil {
		root = filepath.Clean(uploadDir)
	}
	return func(batchID string, docs []model.Document) {
		var owned []model.Document
		for _, d := range docs {
			p, err := filepath.Abs(d.Path)
			if err == nil && filepath.Dir(p) == root {
				owned = append(owned, d)
			}
		}
		removeFiles(owned)
		if len(owned) > 0 {
			zap.L().Debug("http: removed uploads", zap.String("batch_id", batchID), zap.Int("files", len(owned)))
		}
	}
}

func removeFiles(docs []model.Document) {
	for _, d := range docs {
		if err := os.Remove(d.Path); err != nil && !os.IsNotExist(err) {
			zap.L().Warn("http: remove upload", zap.String("path", d.Path), zap.Error(err))
		}
	}
}
