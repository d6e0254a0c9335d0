package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Brownie44l1/leafcheck/internal/apierr"
	"github.com/Brownie44l1/leafcheck/internal/classifier"
	"github.com/Brownie44l1/leafcheck/internal/store"
	"github.com/Brownie44l1/leafcheck/internal/uploads"
)

type fakeClassifier struct {
	pred  classifier.Prediction
	block chan struct{}
	paths []string
}

func (f *fakeClassifier) Classify(path string) classifier.Prediction {
	f.paths = append(f.paths, path)
	if f.block != nil {
		<-f.block
	}
	return f.pred
}

func (f *fakeClassifier) Ready() bool { return true }

var healthy = classifier.Prediction{Status: classifier.StatusOK, Class: "Tomato___healthy", Label: "Healthy", Color: "green", Confidence: 0.93}

func newTestService(t *testing.T, c Classifier, timeout time.Duration) (*DetectorService, *store.Store, *uploads.Storage) {
	t.Helper()
	dir := t.TempDir()
	storage, err := uploads.New(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatal(err)
	}
	history, err := store.Open(filepath.Join(dir, "history"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { history.Close() })
	return NewDetectorService(c, history, storage, timeout), history, storage
}

func TestDetectRecordsForUser(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClassifier{pred: healthy}
	svc, history, storage := newTestService(t, fc, 0)

	res, err := svc.Detect(ctx, DetectRequest{UserID: "42", Filename: "leaf.jpg", Body: strings.NewReader("jpeg")})
	if err != nil {
		t.Fatal(err)
	}
	if res.Prediction != healthy {
		t.Errorf("prediction = %+v", res.Prediction)
	}
	if res.DetectionID == "" {
		t.Fatal("detection not recorded")
	}
	abs, _ := storage.Abs(res.ImagePath)
	if len(fc.paths) != 1 || fc.paths[0] != abs {
		t.Errorf("classified %v, want [%s]", fc.paths, abs)
	}

	saved, err := history.Get(ctx, res.DetectionID)
	if err != nil {
		t.Fatal(err)
	}
	if saved.UserID != "42" || saved.Label != "Healthy" || saved.ImagePath != res.ImagePath {
		t.Errorf("saved = %+v", saved)
	}

	list, err := svc.History(ctx, "42")
	if err != nil || len(list) != 1 {
		t.Errorf("History() = %v, %v", list, err)
	}
}

func TestDetectAnonymousAndFailures(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		userID string
		pred   classifier.Prediction
	}{
		{name: "anonymous", userID: "", pred: healthy},
		{name: "invalid image", userID: "42", pred: classifier.InvalidImage()},
		{name: "model unavailable", userID: "42", pred: classifier.ModelUnavailable()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, history, _ := newTestService(t, &fakeClassifier{pred: tt.pred}, 0)
			res, err := svc.Detect(ctx, DetectRequest{UserID: tt.userID, Filename: "leaf.png", Body: strings.NewReader("x")})
			if err != nil {
				t.Fatal(err)
			}
			if res.Prediction != tt.pred || res.DetectionID != "" {
				t.Errorf("Detect() = %+v", res)
			}
			all, _ := history.List(ctx)
			if len(all) != 0 {
				t.Errorf("recorded %d detections", len(all))
			}
		})
	}
}

func TestDetectNonImageExtension(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClassifier{pred: healthy}
	svc, history, storage := newTestService(t, fc, 0)

	res, err := svc.Detect(ctx, DetectRequest{UserID: "42", Filename: "script.sh", Body: strings.NewReader("#!")})
	if err != nil {
		t.Fatal(err)
	}
	if res.Prediction != classifier.InvalidImage() {
		t.Errorf("prediction = %+v, want invalid image", res.Prediction)
	}
	if res.DetectionID != "" || res.ImagePath != "" {
		t.Errorf("Detect() = %+v", res)
	}
	if len(fc.paths) != 0 {
		t.Error("classifier should not run")
	}
	stored, _ := os.ReadDir(filepath.Join(storage.Root(), uploads.RawDir))
	if len(stored) != 0 {
		t.Errorf("stored %d files", len(stored))
	}
	all, _ := history.List(ctx)
	if len(all) != 0 {
		t.Errorf("recorded %d detections", len(all))
	}
}

func TestDetectTimeout(t *testing.T) {
	fc := &fakeClassifier{pred: healthy, block: make(chan struct{})}
	defer close(fc.block)
	svc, _, _ := newTestService(t, fc, 20*time.Millisecond)

	res, err := svc.Detect(context.Background(), DetectRequest{UserID: "1", Filename: "leaf.jpg", Body: strings.NewReader("x")})
	if err != nil {
		t.Fatal(err)
	}
	if res.Prediction != classifier.InvalidImage() {
		t.Errorf("prediction = %+v, want invalid image", res.Prediction)
	}
	if res.DetectionID != "" {
		t.Error("timed out prediction was recorded")
	}
}

func TestHistoryRequiresUser(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeClassifier{pred: healthy}, 0)
	if _, err := svc.History(context.Background(), ""); !apierr.IsErrCode(err, apierr.ErrCodeUserRequired) {
		t.Errorf("History() error = %v", err)
	}
}

func TestDeleteRemovesImages(t *testing.T) {
	ctx := context.Background()
	svc, _, storage := newTestService(t, &fakeClassifier{pred: healthy}, 0)

	var results []*DetectResult
	for i := 0; i < 3; i++ {
		res, err := svc.Detect(ctx, DetectRequest{UserID: "u", Filename: "leaf.jpg", Body: strings.NewReader("x")})
		if err != nil {
			t.Fatal(err)
		}
		results = append(results, res)
	}

	purged, err := svc.Delete(ctx, results[0].DetectionID)
	if err != nil {
		t.Fatal(err)
	}
	if purged.Detections != 1 || purged.FilesRemoved != 1 {
		t.Errorf("Delete() = %+v", purged)
	}
	abs, _ := storage.Abs(results[0].ImagePath)
	if _, err := os.Stat(abs); !errors.Is(err, os.ErrNotExist) {
		t.Error("image not removed")
	}

	if _, err := svc.Delete(ctx, results[0].DetectionID); !apierr.IsErrCode(err, apierr.ErrCodeDetectionUnknown) {
		t.Errorf("second Delete() error = %v", err)
	}

	purged, err = svc.DeleteAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if purged.Detections != 2 || purged.FilesRemoved != 2 || len(purged.FilesFailed) != 0 {
		t.Errorf("DeleteAll() = %+v", purged)
	}
	left, _ := svc.Detections(ctx)
	if len(left) != 0 {
		t.Errorf("Detections() = %d left", len(left))
	}
}

func TestDeleteHistory(t *testing.T) {
	ctx := context.Background()
	svc, _, storage := newTestService(t, &fakeClassifier{pred: healthy}, 0)

	var mine []*DetectResult
	for _, user := range []string{"a", "b", "a"} {
		res, err := svc.Detect(ctx, DetectRequest{UserID: user, Filename: "leaf.jpg", Body: strings.NewReader("x")})
		if err != nil {
			t.Fatal(err)
		}
		if user == "a" {
			mine = append(mine, res)
		}
	}

	if _, err := svc.DeleteHistory(ctx, ""); !apierr.IsErrCode(err, apierr.ErrCodeUserRequired) {
		t.Errorf("DeleteHistory(\"\") error = %v", err)
	}

	purged, err := svc.DeleteHistory(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if purged.Detections != 2 || purged.FilesRemoved != 2 {
		t.Errorf("DeleteHistory() = %+v", purged)
	}
	for _, res := range mine {
		abs, _ := storage.Abs(res.ImagePath)
		if _, err := os.Stat(abs); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("image %s not removed", res.ImagePath)
		}
	}
	if left, _ := svc.History(ctx, "a"); len(left) != 0 {
		t.Errorf("History(a) = %d left", len(left))
	}
	if other, _ := svc.History(ctx, "b"); len(other) != 1 {
		t.Errorf("History(b) = %d, want 1", len(other))
	}
}
