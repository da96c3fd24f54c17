package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/digkill/productshot/internal/archive"
	"github.com/digkill/productshot/internal/imagegen"
	"github.com/digkill/productshot/internal/service"
)

var allowedReferenceTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

type generationRequest struct {
	preflightRequest
	Shots         []service.ShotSelection `json:"shots"`
	StyleStrength *float64                `json:"style_strength"`
	Size          string                  `json:"size"`
	Analyze       bool                    `json:"analyze"`
}

type generationResponse struct {
	*service.GenerationResult
	ArchivePath string `json:"archive_path,omitempty"`
}

// finishedRun is what the archive endpoint serves back to the run's owner.
type finishedRun struct {
	userID  string
	name    string
	archive []byte
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", "expected multipart form within upload limit")
		return
	}

	var req generationRequest
	if err := json.Unmarshal([]byte(r.FormValue("request")), &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request field must be JSON")
		return
	}
	size, err := archive.ParseSize(req.Size)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ref, mime, err := readReference(r, s.opts.MaxUploadBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_image", err.Error())
		return
	}

	strength := imagegen.DefaultStyleStrength
	if req.StyleStrength != nil {
		strength = *req.StyleStrength
	}

	res, err := s.generations.Generate(r.Context(), service.GenerationRequest{
		PreflightInput: req.input(),
		UserID:         sess.UserID,
		APIKey:         sess.APIKey,
		Shots:          req.Shots,
		StyleStrength:  strength,
		OutputSize:     size,
		Reference:      ref,
		ReferenceMIME:  mime,
		Analyze:        req.Analyze,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	out := generationResponse{GenerationResult: res}
	if len(res.Archive) > 0 {
		s.runs.SetDefault(res.RunID, &finishedRun{userID: sess.UserID, name: res.ArchiveName, archive: res.Archive})
		out.ArchivePath = "/api/runs/" + res.RunID + "/archive"
	}
	writeJSON(w, http.StatusOK, out)
}

func readReference(r *http.Request, limit int64) ([]byte, string, error) {
	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, "", errors.New("image file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, "", fmt.Errorf("image larger than %d bytes", limit)
	}
	mime := http.DetectContentType(data)
	if !allowedReferenceTypes[mime] {
		return nil, "", fmt.Errorf("unsupported image type %s", mime)
	}
	return data, mime, nil
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	id := chi.URLParam(r, "id")

	v, ok := s.runs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "run not found or expired")
		return
	}
	run := v.(*finishedRun)
	if run.userID != sess.UserID {
		writeError(w, http.StatusNotFound, "not_found", "run not found or expired")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", strings.ReplaceAll(run.name, `"`, "")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(run.archive)
}
