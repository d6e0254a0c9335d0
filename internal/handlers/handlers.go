package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Brownie44l1/leafcheck/internal/apierr"
	"github.com/Brownie44l1/leafcheck/internal/service"
	"github.com/Brownie44l1/leafcheck/internal/store"
	"github.com/Brownie44l1/leafcheck/internal/uploads"
	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
)

const (
	FileField   = "file"
	UserField   = "user_id"
	UserHeader  = "X-User-ID"
	UploadsPath = "/uploads/"

	// room for multipart boundaries, part headers and form fields on top of
	// the file itself
	multipartOverhead = 1 << 20
)

type Handler struct {
	detector  *service.DetectorService
	storage   *uploads.Storage
	maxUpload int64
}

func NewHandler(detector *service.DetectorService, storage *uploads.Storage, maxUpload int64) *Handler {
	return &Handler{
		detector:  detector,
		storage:   storage,
		maxUpload: maxUpload,
	}
}

func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()
	r.StrictSlash(true)
	r.Methods(http.MethodGet).Path("/health").HandlerFunc(h.Health)
	r.Methods(http.MethodPost).Path("/upload").HandlerFunc(h.Upload)
	r.Methods(http.MethodGet).Path("/history").HandlerFunc(h.History)
	r.Methods(http.MethodDelete).Path("/history").HandlerFunc(h.DeleteHistory)
	r.Methods(http.MethodGet).Path("/detections").HandlerFunc(h.ListDetections)
	r.Methods(http.MethodDelete).Path("/detections").HandlerFunc(h.DeleteAllDetections)
	r.Methods(http.MethodDelete).Path("/detections/{id}").HandlerFunc(h.DeleteDetection)
	r.Methods(http.MethodGet).Path(UploadsPath + "{path:.+}").HandlerFunc(h.ServeUpload)
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	state := "ready"
	if !h.detector.ModelReady() {
		state = "degraded"
	}
	apierr.ResponseOK(w, map[string]string{"status": "ok", "model": state})
}

// Upload accepts a multipart image under the "file" field and answers with
// the prediction. The model being unavailable is not an HTTP error; the
// prediction status says so.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	log := logr.FromContextOrDiscard(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)

	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierr.ResponseError(w, apierr.NewFileTooLargeError(h.maxUpload))
			return
		}
		apierr.ResponseError(w, apierr.NewParameterInvalidError("failed to parse form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(FileField)
	if err != nil {
		apierr.ResponseError(w, apierr.NewFileMissingError(FileField))
		return
	}
	defer file.Close()
	if header.Filename == "" {
		apierr.ResponseError(w, apierr.NewFileMissingError(FileField))
		return
	}
	if header.Size > h.maxUpload {
		apierr.ResponseError(w, apierr.NewFileTooLargeError(h.maxUpload))
		return
	}

	log.Info("received file", "name", header.Filename, "size", header.Size)

	result, err := h.detector.Detect(r.Context(), service.DetectRequest{
		UserID:   userID(r),
		Filename: header.Filename,
		Body:     file,
	})
	if err != nil {
		apierr.ResponseError(w, err)
		return
	}
	resp := uploadResponse{DetectResult: *result}
	if result.ImagePath != "" {
		resp.ImageURL = UploadsPath + result.ImagePath
	}
	apierr.ResponseOK(w, resp)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	detections, err := h.detector.History(r.Context(), userID(r))
	if err != nil {
		apierr.ResponseError(w, err)
		return
	}
	apierr.ResponseOK(w, withURLs(detections))
}

func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	result, err := h.detector.DeleteHistory(r.Context(), userID(r))
	if err != nil {
		apierr.ResponseError(w, err)
		return
	}
	apierr.ResponseOK(w, result)
}

func (h *Handler) ListDetections(w http.ResponseWriter, r *http.Request) {
	detections, err := h.detector.Detections(r.Context())
	if err != nil {
		apierr.ResponseError(w, apierr.NewInternalError(err))
		return
	}
	apierr.ResponseOK(w, withURLs(detections))
}

func (h *Handler) DeleteDetection(w http.ResponseWriter, r *http.Request) {
	result, err := h.detector.Delete(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		apierr.ResponseError(w, err)
		return
	}
	apierr.ResponseOK(w, result)
}

func (h *Handler) DeleteAllDetections(w http.ResponseWriter, r *http.Request) {
	result, err := h.detector.DeleteAll(r.Context())
	if err != nil {
		apierr.ResponseError(w, err)
		return
	}
	apierr.ResponseOK(w, result)
}

func (h *Handler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	abs, err := h.storage.Abs(mux.Vars(r)["path"])
	if err != nil {
		apierr.ResponseError(w, apierr.NewNotFoundError("file"))
		return
	}
	http.ServeFile(w, r, abs)
}

type uploadResponse struct {
	service.DetectResult
	ImageURL string `json:"image_url,omitempty"`
}

type detectionView struct {
	store.Detection
	ImageURL string `json:"image_url,omitempty"`
}

func withURLs(detections []store.Detection) []detectionView {
	views := make([]detectionView, len(detections))
	for i, d := range detections {
		views[i] = detectionView{Detection: d}
		if d.ImagePath != "" {
			views[i].ImageURL = UploadsPath + d.ImagePath
		}
	}
	return views
}

func userID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(UserHeader)); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.FormValue(UserField)); id != "" {
		return id
	}
	return ""
}
