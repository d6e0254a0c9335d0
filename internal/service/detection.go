package service

import (
	"context"
	"errors"
	"io"
	"path"
	"time"

	"github.com/Brownie44l1/leafcheck/internal/apierr"
	"github.com/Brownie44l1/leafcheck/internal/classifier"
	"github.com/Brownie44l1/leafcheck/internal/store"
	"github.com/Brownie44l1/leafcheck/internal/uploads"
	"github.com/go-logr/logr"
)

type Classifier interface {
	Classify(path string) classifier.Prediction
	Ready() bool
}

type History interface {
	Save(ctx context.Context, d *store.Detection) error
	ListByUser(ctx context.Context, userID string) ([]store.Detection, error)
	List(ctx context.Context) ([]store.Detection, error)
	Delete(ctx context.Context, id string) (*store.Detection, error)
	DeleteAll(ctx context.Context) ([]store.Detection, error)
	DeleteByUser(ctx context.Context, userID string) ([]store.Detection, error)
}

type DetectRequest struct {
	UserID   string
	Filename string
	Body     io.Reader
}

type DetectResult struct {
	Prediction  classifier.Prediction `json:"result"`
	DetectionID string                `json:"detection_id,omitempty"`
	ImagePath   string                `json:"image_path,omitempty"`
}

type PurgeResult struct {
	Detections   int      `json:"detections"`
	FilesRemoved int      `json:"files_removed"`
	FilesFailed  []string `json:"files_failed,omitempty"`
}

type DetectorService struct {
	classifier Classifier
	history    History
	storage    *uploads.Storage
	timeout    time.Duration
}

// NewDetectorService wires the pipeline to storage. history may be nil, in
// which case nothing is persisted. A zero timeout waits for the classifier.
func NewDetectorService(c Classifier, history History, storage *uploads.Storage, timeout time.Duration) *DetectorService {
	return &DetectorService{
		classifier: c,
		history:    history,
		storage:    storage,
		timeout:    timeout,
	}
}

func (s *DetectorService) ModelReady() bool {
	return s.classifier.Ready()
}

// Detect stores the upload, classifies it and, for a known user and a
// successful prediction, records it in the history. Recording failures are
// logged and do not affect the returned prediction. A file without an image
// extension is not stored and gets the invalid-image prediction.
func (s *DetectorService) Detect(ctx context.Context, req DetectRequest) (*DetectResult, error) {
	log := logr.FromContextOrDiscard(ctx)

	if !uploads.Allowed(req.Filename) {
		log.Info("not an image upload", "file", req.Filename, "ext", path.Ext(req.Filename))
		return &DetectResult{Prediction: classifier.InvalidImage()}, nil
	}
	rel, abs, err := s.storage.Save(req.Filename, req.Body)
	if err != nil {
		return nil, apierr.NewInternalError(err)
	}
	log.Info("upload stored", "file", req.Filename, "path", rel)

	result := &DetectResult{
		Prediction: s.classify(ctx, abs),
		ImagePath:  rel,
	}

	if req.UserID == "" || s.history == nil {
		return result, nil
	}
	if !result.Prediction.OK() {
		log.Info("prediction not recorded", "status", result.Prediction.Status, "user", req.UserID)
		return result, nil
	}
	detection := &store.Detection{
		UserID:     req.UserID,
		ImagePath:  rel,
		Class:      result.Prediction.Class,
		Label:      result.Prediction.Label,
		Color:      result.Prediction.Color,
		Confidence: result.Prediction.Confidence,
	}
	// the request may be gone by now; the record should still land
	if err := s.history.Save(context.WithoutCancel(ctx), detection); err != nil {
		log.Error(err, "failed to record detection", "user", req.UserID, "path", rel)
		return result, nil
	}
	result.DetectionID = detection.ID
	return result, nil
}

// classify runs the pipeline under the configured timeout. A timed out call
// counts as an unreadable image.
func (s *DetectorService) classify(ctx context.Context, path string) classifier.Prediction {
	if s.timeout <= 0 {
		return s.classifier.Classify(path)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan classifier.Prediction, 1)
	go func() {
		done <- s.classifier.Classify(path)
	}()
	select {
	case pred := <-done:
		return pred
	case <-ctx.Done():
		logr.FromContextOrDiscard(ctx).Error(ctx.Err(), "classification abandoned", "path", path, "timeout", s.timeout)
		return classifier.InvalidImage()
	}
}

func (s *DetectorService) History(ctx context.Context, userID string) ([]store.Detection, error) {
	if userID == "" {
		return nil, apierr.NewUserRequiredError()
	}
	if s.history == nil {
		return []store.Detection{}, nil
	}
	return s.history.ListByUser(ctx, userID)
}

func (s *DetectorService) Detections(ctx context.Context) ([]store.Detection, error) {
	if s.history == nil {
		return []store.Detection{}, nil
	}
	return s.history.List(ctx)
}

// Delete removes a detection and its image. A file that cannot be removed
// is logged; the record is gone either way.
func (s *DetectorService) Delete(ctx context.Context, id string) (*PurgeResult, error) {
	if s.history == nil {
		return nil, apierr.NewDetectionUnknownError(id)
	}
	d, err := s.history.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierr.NewDetectionUnknownError(id)
		}
		return nil, apierr.NewInternalError(err)
	}
	return s.removeFiles(ctx, []store.Detection{*d}), nil
}

// DeleteHistory removes every detection of userID along with the images.
func (s *DetectorService) DeleteHistory(ctx context.Context, userID string) (*PurgeResult, error) {
	if userID == "" {
		return nil, apierr.NewUserRequiredError()
	}
	if s.history == nil {
		return &PurgeResult{}, nil
	}
	mine, err := s.history.DeleteByUser(ctx, userID)
	if err != nil {
		return nil, apierr.NewInternalError(err)
	}
	return s.removeFiles(ctx, mine), nil
}

func (s *DetectorService) DeleteAll(ctx context.Context) (*PurgeResult, error) {
	if s.history == nil {
		return &PurgeResult{}, nil
	}
	all, err := s.history.DeleteAll(ctx)
	if err != nil {
		return nil, apierr.NewInternalError(err)
	}
	return s.removeFiles(ctx, all), nil
}

func (s *DetectorService) removeFiles(ctx context.Context, detections []store.Detection) *PurgeResult {
	log := logr.FromContextOrDiscard(ctx)
	result := &PurgeResult{Detections: len(detections)}
	for _, d := range detections {
		if d.ImagePath == "" {
			continue
		}
		if err := s.storage.Remove(d.ImagePath); err != nil {
			log.Error(err, "failed to remove image", "path", d.ImagePath)
			result.FilesFailed = append(result.FilesFailed, path.Base(d.ImagePath))
			continue
		}
		result.FilesRemoved++
	}
	return result
}
