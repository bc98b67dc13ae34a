package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/toccatech/coffre"
	"github.com/toccatech/coffre/schema"
)

// maxFieldMemory bounds how much of a multipart body is held in memory
// before spooling to disk.
const maxFieldMemory = 32 << 20

// uploadSchema is the declarative schema for the upload form fields.
// Anything not listed here is rejected as "field not accepted".
var uploadSchema = schema.Schema{
	"resource": {
		Type:     schema.TypeString,
		Required: true,
		MinLen:   1,
		Message:  "The field 'resource' is required!",
	},
	"visibility": {
		Type:     schema.TypeString,
		Required: true,
		In:       []string{"public", "unlisted", "private", "application"},
		Message:  "The field 'visibility' is required and must be one of: public, unlisted, private, application!",
	},
	"sharedWith": {
		Type:     schema.TypeStringSlice,
		Required: true,
		Message:  "The field 'sharedWith' is required and must be a valid list of profile ids!",
	},
	"category": {
		Type:   schema.TypeString,
		MaxLen: 64,
	},
}

// Service is the file lifecycle surface the handlers drive.
type Service interface {
	Upload(ctx context.Context, req coffre.UploadRequest, content io.Reader) (coffre.FileRecord, error)
	Fetch(ctx context.Context, id string, caller *coffre.Identity) (coffre.FileRecord, io.ReadSeekCloser, error)
	Info(ctx context.Context, id string, caller *coffre.Identity) (coffre.FileRecord, error)
	Update(ctx context.Context, id string, caller *coffre.Identity, patch coffre.FilePatch) (coffre.FileRecord, error)
	Delete(ctx context.Context, id string, caller *coffre.Identity) error
}

// ResourceLookup resolves upload target resources by name.
// Satisfied by coffre.MetadataStore.
type ResourceLookup interface {
	ResourceByName(ctx context.Context, name string) (coffre.Resource, error)
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type HandlerConfig struct {
	Resolver      IdentityResolver
	CORS          CORSConfig
	MaxUploadSize int64
}

// Handler provides the HTTP surface for file upload, download, info,
// update, and deletion.
type Handler struct {
	config    HandlerConfig
	service   Service
	resources ResourceLookup
}

// NewHandler creates a new Handler with the given configuration, service,
// and resource lookup.
func NewHandler(config *HandlerConfig, service Service, resources ResourceLookup) *Handler {
	return &Handler{
		config:    *config,
		service:   service,
		resources: resources,
	}
}

// Router builds the route table. Every request passes the identity
// resolver once; write routes additionally require authentication, read
// routes leave the decision to the per-record visibility gate.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	if h.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORS.AllowedOrigins,
			AllowedMethods:   h.config.CORS.AllowedMethods,
			AllowedHeaders:   h.config.CORS.AllowedHeaders,
			ExposedHeaders:   h.config.CORS.ExposedHeaders,
			AllowCredentials: h.config.CORS.AllowCredentials,
			MaxAge:           h.config.CORS.MaxAge,
		}))
	}

	r.Use(ResolveIdentity(h.config.Resolver))

	r.Get("/", h.handleWelcome)

	r.Route("/files", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Get("/{id}", h.handleDownload)
			r.Get("/{id}/info", h.handleInfo)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth)
			r.Post("/upload", h.handleUpload)
			r.Patch("/{id}", h.handleUpdate)
			r.Delete("/{id}", h.handleDelete)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusNotFound, "unknown_route", "This route does not exist")
	})

	return r
}

func (h *Handler) handleWelcome(w http.ResponseWriter, _ *http.Request) {
	_ = WriteJSON(w, http.StatusOK, map[string]string{
		"msg": "Welcome to Coffre! This API enables applications to upload users' files to a secure storage, and manage them easily.",
	})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if h.config.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadSize)
	}

	if err := r.ParseMultipartForm(maxFieldMemory); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_input", "Request body must be valid multipart form data")
		return
	}

	fields := make(map[string]string, len(r.MultipartForm.Value))
	for name, vals := range r.MultipartForm.Value {
		if len(vals) > 0 {
			fields[name] = vals[0]
		}
	}

	values, fieldErrs := uploadSchema.Validate(fields)
	if fieldErrs != nil {
		WriteFieldErrors(w, fieldErrs)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "no_file", "No file provided")
		return
	}
	defer func() { _ = file.Close() }()

	declared, _, err := mime.ParseMediaType(header.Header.Get("Content-Type"))
	if err != nil || declared == "" {
		WriteError(w, http.StatusBadRequest, "no_content_type", "The uploaded file must declare a content type")
		return
	}

	resource, err := h.resources.ResourceByName(r.Context(), values.String("resource"))
	if err != nil {
		if errors.Is(err, coffre.ErrNotFound) {
			WriteError(w, http.StatusBadRequest, "unknown_resource", "The requested resource does not exist")
			return
		}
		HandleError(w, err)
		return
	}

	// Schema already constrained visibility to the enum.
	visibility := coffre.Visibility(values.String("visibility"))
	caller := IdentityFromContext(r.Context())

	req := coffre.UploadRequest{
		Resource:     resource,
		Caller:       *caller,
		OriginalName: header.Filename,
		StoredName:   coffre.StoredName(header.Filename, time.Now()),
		Size:         header.Size,
		DeclaredType: declared,
		Visibility:   visibility,
		SharedWith:   values.Strings("sharedWith"),
	}

	record, err := h.service.Upload(r.Context(), req, file)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusCreated, map[string]any{
		"msg":    "The file was successfully uploaded!",
		"fileId": record.ID,
		"file":   record,
	})
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := IdentityFromContext(r.Context())

	record, content, err := h.service.Fetch(r.Context(), id, caller)
	if err != nil {
		HandleError(w, err)
		return
	}
	defer func() { _ = content.Close() }()

	w.Header().Set("Content-Type", record.MIMEType)

	if r.URL.Query().Get("attachment") == "true" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
			"filename": record.OriginalName,
		}))
	} else {
		// Stored blobs are immutable, so inline responses cache for a year.
		w.Header().Set("Cache-Control", "public, max-age=31536000")
	}

	http.ServeContent(w, r, record.StoredName, record.CreatedAt, content)
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := IdentityFromContext(r.Context())

	record, err := h.service.Info(r.Context(), id, caller)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"msg":  "All right, here is all about the file you requested!",
		"file": record,
	})
}

// patchBody is the decodable shape of a PATCH request. Decoding with
// DisallowUnknownFields rejects the whole patch when it touches anything
// beyond the two mutable fields.
type patchBody struct {
	Category   *string `json:"category"`
	Visibility *string `json:"visibility"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := IdentityFromContext(r.Context())

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var body patchBody
	if err := dec.Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_patch", "Only 'category' and 'visibility' can be updated")
		return
	}

	patch := coffre.FilePatch{Category: body.Category}
	if body.Visibility != nil {
		visibility, err := coffre.ParseVisibility(*body.Visibility)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_patch", err.Error())
			return
		}
		patch.Visibility = &visibility
	}

	record, err := h.service.Update(r.Context(), id, caller, patch)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"msg":  "The file was successfully updated!",
		"file": record,
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := IdentityFromContext(r.Context())

	if err := h.service.Delete(r.Context(), id, caller); err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]string{
		"msg": "The file was successfully deleted!",
	})
}
