package museumtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/tendant/necronet/pkg/necronet"
	"github.com/tendant/necronet/pkg/necronet/validation"
)

const (
	defaultListLimit = 50
	maxMemory        = 32 << 20
)

// ErrorResponse is the error body the service answers with.
type ErrorResponse struct {
	Detail string `json:"detail,omitempty"`
}

// Routes returns the service routes.
func (b *Backend) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", b.Health)
	r.Route("/api/artifacts", func(r chi.Router) {
		r.Post("/upload", b.Upload)
		r.Post("/migrate", b.MigrationPlan)
		r.Get("/", b.List)
		r.Get("/{id}", b.Get)
	})
	return r
}

// Health reports the service as alive.
func (b *Backend) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, necronet.Health{
		Status:    "alive",
		Timestamp: b.now().UTC().Format(time.RFC3339),
		Supabase:  "not_configured",
		S3:        "memory",
		TTS:       "not_configured",
	})
}

// Upload stores the multipart "file" field as a new artifact.
func (b *Backend) Upload(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.uploads++
	failure := b.uploadFailure
	delay := b.uploadDelay
	b.mu.Unlock()

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "file field is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "file field is required")
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		writeError(w, r, http.StatusBadRequest, "could not read upload")
		return
	}

	if !wait(r, delay) {
		return
	}
	if failure != nil {
		b.answer(w, r, *failure)
		return
	}

	name := path.Base(header.Filename)
	if buf.Len() == 0 {
		writeError(w, r, http.StatusBadRequest, "File is empty")
		return
	}

	id := b.newID()
	artifactType := validation.ClassifyByExtension(name)
	a := necronet.Artifact{
		ID:         id,
		Name:       name,
		Type:       artifactType,
		StorageKey: fmt.Sprintf("artifacts/%s/%s/%s", artifactType, id, name),
		CreatedAt:  necronet.Timestamp{Time: b.now().UTC()},
		Status:     necronet.StatusUploaded,
	}

	b.mu.Lock()
	b.artifacts[id] = &a
	b.order = append(b.order, id)
	b.blobs[a.StorageKey] = buf.Bytes()
	if b.afterUpload != nil {
		if steps := b.afterUpload(a); len(steps) > 0 {
			b.scripts[id] = steps
		}
	}
	b.mu.Unlock()

	b.logger.Debug("artifact uploaded", "artifact_id", id, "name", name, "size", buf.Len())
	render.JSON(w, r, a)
}

// Get returns one artifact, advancing its script if it has one.
func (b *Backend) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b.mu.Lock()
	b.gets[id]++
	step, scripted := b.nextStep(id)
	b.mu.Unlock()

	if scripted {
		if !wait(r, step.Delay) {
			return
		}
		if step.Drop || step.FailStatus != 0 {
			b.answer(w, r, step)
			return
		}
	}

	b.mu.Lock()
	stored, ok := b.artifacts[id]
	if ok && scripted {
		apply(stored, step)
	}
	var a necronet.Artifact
	if ok {
		a = *stored
	}
	b.mu.Unlock()

	if !ok {
		writeError(w, r, http.StatusNotFound, "Artifact not found")
		return
	}
	render.JSON(w, r, a)
}

// List returns a page of artifacts, newest first.
func (b *Backend) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit < 1 {
		writeError(w, r, http.StatusUnprocessableEntity, "limit must be a positive integer")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, r, http.StatusUnprocessableEntity, "offset must be a non-negative integer")
		return
	}

	b.mu.Lock()
	failure := b.listFailure
	artifacts, total := b.page(limit, offset)
	b.mu.Unlock()

	if failure != nil {
		if !wait(r, failure.Delay) {
			return
		}
		b.answer(w, r, *failure)
		return
	}
	render.JSON(w, r, necronet.ArtifactList{Artifacts: artifacts, Total: total})
}

// MigrationPlan answers with the fixed plan for the requested artifact type.
func (b *Backend) MigrationPlan(w http.ResponseWriter, r *http.Request) {
	var req necronet.MigrationPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, r, http.StatusUnprocessableEntity, "name is required")
		return
	}
	render.JSON(w, r, PlanFor(b.newID(), req.ArtifactType))
}

// PlanFor returns the migration plan the service proposes for t.
func PlanFor(id string, t necronet.ArtifactType) necronet.MigrationPlan {
	plan := necronet.MigrationPlan{ArtifactID: id, ArtifactType: t}
	switch t {
	case necronet.ArtifactTypeFlash:
		plan.Strategy = "ruffle_embed"
		plan.Steps = []string{"1. Extract SWF metadata", "2. Wrap in Ruffle player", "3. Generate ghost narration"}
		plan.EstimatedDurationSeconds = 45
	case necronet.ArtifactTypeHTML:
		plan.Strategy = "html_sanitize"
		plan.Steps = []string{"1. Parse document", "2. Rewrite legacy tags", "3. Generate ghost narration"}
		plan.EstimatedDurationSeconds = 30
	case necronet.ArtifactTypeImage:
		plan.Strategy = "image_optimize"
		plan.Steps = []string{"1. Decode image", "2. Convert to web format", "3. Generate ghost narration"}
		plan.EstimatedDurationSeconds = 20
	default:
		plan.Strategy = "generic"
		plan.Steps = []string{"1. Analyze", "2. Store", "3. Narrate"}
		plan.EstimatedDurationSeconds = 15
	}
	return plan
}

// answer writes a scripted failure or drops the connection.
func (b *Backend) answer(w http.ResponseWriter, r *http.Request, step Step) {
	if step.Drop {
		hj, ok := w.(http.Hijacker)
		if !ok {
			panic("museumtest: response writer does not support hijacking")
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			b.logger.Error("hijack failed", "err", err)
			return
		}
		conn.Close()
		return
	}
	status := step.FailStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	writeError(w, r, status, step.FailDetail)
}

func apply(a *necronet.Artifact, step Step) {
	if step.Status != "" {
		a.Status = step.Status
	}
	if step.NarrationURL != "" {
		u := step.NarrationURL
		a.NarrationURL = &u
	}
	if step.ErrorMessage != "" {
		msg := step.ErrorMessage
		a.ErrorMessage = &msg
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Detail: detail})
}

// wait blocks for d or until the client goes away. It reports whether the
// handler should keep going.
func wait(r *http.Request, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.Context().Done():
		return false
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
