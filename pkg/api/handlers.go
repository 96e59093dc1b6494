package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/palletscan/palletscan/pkg/health"
	"github.com/palletscan/palletscan/pkg/metrics"
	"github.com/palletscan/palletscan/pkg/storage"
	"github.com/palletscan/palletscan/pkg/types"
)

const (
	maxListLimit   = 100
	maxPeriodLimit = 1000
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
}

// handleUpload accepts a multipart image, persists it and enqueues a
// processing job
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize)

	if err := r.ParseMultipartForm(s.cfg.MaxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the maximum upload size")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported content type %q", contentType))
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file extension %q", ext))
		return
	}

	if header.Size > s.cfg.MaxUploadSize {
		writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the maximum upload size")
		return
	}

	if err := os.MkdirAll(s.cfg.UploadsDir, 0o755); err != nil {
		s.logger.Error().Err(err).Msg("Failed to create uploads directory")
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	path := filepath.Join(s.cfg.UploadsDir, uuid.New().String()+ext)
	dst, err := os.Create(path)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create upload file")
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	written, err := io.Copy(dst, file)
	dst.Close()
	if err != nil {
		os.Remove(path)
		s.logger.Error().Err(err).Msg("Failed to write upload file")
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	metadata := types.UploadMetadata{
		OriginalFilename: header.Filename,
		UploadedAt:       time.Now().UTC().Format(time.RFC3339),
		FileSize:         written,
		ContentType:      contentType,
		ClientTag:        r.FormValue("client_tag"),
	}

	taskID, err := s.bus.Enqueue(r.Context(), path, metadata.Map(), nil)
	if err != nil {
		os.Remove(path)
		s.logger.Error().Err(err).Msg("Failed to enqueue job")
		writeError(w, http.StatusInternalServerError, "failed to enqueue task")
		return
	}

	metrics.UploadBytes.Observe(float64(written))
	s.logger.Info().Str("task_id", taskID).Str("filename", header.Filename).Msg("Upload accepted")

	writeJSON(w, http.StatusOK, map[string]string{
		"task_id": taskID,
		"status":  string(types.TaskStatusPending),
		"message": "image accepted for processing",
	})
}

// handleGetResult answers polling queries with the three-tier
// fallback: durable result, task row, then transient progress state
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "task_id")

	payload, err := s.store.GetResult(ctx, taskID)
	if err == nil {
		writeJSON(w, http.StatusOK, formatResult(taskID, payload))
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to read result")
		writeError(w, http.StatusInternalServerError, "failed to read result")
		return
	}

	meta, err := s.store.GetTaskMetadata(ctx, taskID)
	if err == nil {
		if !meta.Status.IsTerminal() {
			writeInProgress(w, taskID, meta.Status)
			return
		}
		// Terminal row without a result is an invariant violation;
		// answer as unknown rather than fabricating a payload
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to read task metadata")
		writeError(w, http.StatusInternalServerError, "failed to read task")
		return
	}

	state, ok, err := s.cache.GetProgress(ctx, taskID)
	if err != nil {
		// Cache errors are swallowed; treat as a miss
		s.logger.Warn().Err(err).Str("task_id", taskID).Msg("Transient state read failed")
	}
	if ok && (state == types.ProgressPending || state == types.ProgressProcessing) {
		writeInProgress(w, taskID, types.TaskStatusPending)
		return
	}

	writeError(w, http.StatusNotFound, "task not found")
}

// handleListResults lists task metadata with optional status and
// period filters
func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	page := parsePositiveInt(q.Get("page"), 1)
	limit := parsePositiveInt(q.Get("limit"), 10)
	if limit > maxListLimit {
		limit = maxListLimit
	}

	status := types.TaskStatus(q.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
		return
	}

	startRaw, endRaw := q.Get("start_date"), q.Get("end_date")

	var rows []*types.TaskMetadata
	var total int
	var err error

	if startRaw != "" || endRaw != "" {
		start, end, perr := parsePeriod(startRaw, endRaw)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		rows, err = s.store.ListResultsByPeriod(ctx, start, end, maxPeriodLimit)
		if err == nil && status != "" {
			rows = filterByStatus(rows, status)
		}
		total = len(rows)
	} else if status != "" {
		rows, err = s.store.ListResultsByStatus(ctx, status, maxPeriodLimit)
		if err == nil {
			total, err = s.store.CountTasks(ctx, status)
		}
	} else {
		rows, err = s.store.ListAllResults(ctx, maxPeriodLimit)
		if err == nil {
			total, err = s.store.CountTasks(ctx, "")
		}
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list tasks")
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": paginate(rows, page, limit),
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// handleHealth aggregates the dependency probes
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := health.Aggregate(r.Context(), s.healthCheckers()...)
	writeJSON(w, http.StatusOK, report)
}

// handleStats reports storage aggregates and queue depth
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStorageStats(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read storage stats")
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}

	queue := map[string]interface{}{}
	if messages, consumers, err := s.bus.InspectWorkers(); err == nil {
		queue["messages"] = messages
		queue["consumers"] = consumers
	} else {
		queue["error"] = err.Error()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"storage":   stats,
		"queue":     queue,
		"timestamp": time.Now().UTC(),
	})
}

func writeInProgress(w http.ResponseWriter, taskID string, status types.TaskStatus) {
	writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id": taskID,
		"status":  string(status),
		"message": "task is being processed",
	})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// parsePeriod accepts RFC 3339 timestamps or bare dates. A missing
// end defaults to now; a bare end date covers the whole day.
func parsePeriod(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := parseDate(startRaw, false)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date %q", startRaw)
	}
	if endRaw == "" {
		return start, time.Now().UTC(), nil
	}
	end, err := parseDate(endRaw, true)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date %q", endRaw)
	}
	return start, end, nil
}

func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func filterByStatus(rows []*types.TaskMetadata, status types.TaskStatus) []*types.TaskMetadata {
	out := rows[:0]
	for _, row := range rows {
		if row.Status == status {
			out = append(out, row)
		}
	}
	return out
}

func paginate(rows []*types.TaskMetadata, page, limit int) []*types.TaskMetadata {
	offset := (page - 1) * limit
	if offset >= len(rows) {
		return []*types.TaskMetadata{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}
