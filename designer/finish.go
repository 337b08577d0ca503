package designer

import (
	"context"
	"fmt"
	"time"

	"garment-designer/core"

	"github.com/sirupsen/logrus"
)

// Stage is a step of the finish pipeline.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageCapturing  Stage = "capturing"
	StageUploading  Stage = "uploading"
	StagePersisting Stage = "persisting"
	StageFailed     Stage = "failed"
)

// DefaultFinishTimeout bounds the whole capture, upload and persist chain.
const DefaultFinishTimeout = 30 * time.Second

// Capturer rasterizes a document without decorations.
type Capturer interface {
	Capture(ctx context.Context, canvas Canvas, doc Document) ([]byte, error)
}

// Finisher turns an editing session into a persisted design: capture the
// canvas, upload the bitmap, then write one record. Nothing is written to
// the design store unless the upload succeeded.
type Finisher struct {
	Capturer Capturer
	Images   core.ImageStore
	Designs  core.DesignStore
	Timeout  time.Duration
	// OnStage, when set, observes every stage transition.
	OnStage func(Stage)

	now func() time.Time
}

// NewFinisher wires a finisher with the default timeout.
func NewFinisher(capturer Capturer, images core.ImageStore, designs core.DesignStore) *Finisher {
	return &Finisher{
		Capturer: capturer,
		Images:   images,
		Designs:  designs,
		Timeout:  DefaultFinishTimeout,
		now:      time.Now,
	}
}

func (f *Finisher) enter(s Stage) {
	if f.OnStage != nil {
		f.OnStage(s)
	}
}

func (f *Finisher) clock() time.Time {
	if f.now == nil {
		return time.Now()
	}
	return f.now()
}

// Finish captures, uploads and persists the editor's design for user. name
// defaults to "Custom Design - <date>". On success the editor's preview URL
// is updated and the new record id returned. Any failure leaves the editor
// untouched.
func (f *Finisher) Finish(ctx context.Context, e *Editor, user *core.User, name string) (string, error) {
	if user == nil || user.Subject == "" {
		return "", ErrNotAuthenticated
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultFinishTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := logrus.WithFields(logrus.Fields{
		"user_id":  user.Subject,
		"elements": len(e.elements),
	})

	fail := func(err error) (string, error) {
		f.enter(StageFailed)
		f.enter(StageIdle)
		log.WithError(err).Error("Failed to finish design")
		return "", err
	}

	doc := e.Document()
	started := f.clock()

	f.enter(StageCapturing)
	if f.Capturer == nil || !e.canvas.Ready() {
		return fail(fmt.Errorf("%w: render surface not ready", ErrCaptureUnavailable))
	}
	png, err := f.Capturer.Capture(ctx, e.canvas, doc)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrCaptureUnavailable, err))
	}

	f.enter(StageUploading)
	fileName := fmt.Sprintf("design-%s-%d.png", user.Subject, started.UnixMilli())
	imageURL, err := f.Images.Upload(ctx, fileName, "image/png", png)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrUploadFailed, err))
	}
	log = log.WithField("image_url", imageURL)

	f.enter(StagePersisting)
	elementsJSON, err := Serialize(doc.Elements)
	if err != nil {
		f.discard(imageURL)
		return fail(fmt.Errorf("%w: %v", ErrPersistFailed, err))
	}
	if name == "" {
		name = "Custom Design - " + started.Format("2006-01-02")
	}
	record := &core.DesignRecord{
		OwnerID:      user.Subject,
		Name:         name,
		ImageURL:     imageURL,
		ElementsJSON: elementsJSON,
		GarmentColor: doc.GarmentColor,
		StickerCount: CountStickers(doc.Elements),
		CreatedAt:    started,
	}
	id, err := f.Designs.Create(ctx, record)
	if err != nil {
		f.discard(imageURL)
		return fail(fmt.Errorf("%w: %v", ErrPersistFailed, err))
	}

	e.setPreviewImageURL(imageURL)
	f.enter(StageIdle)
	log.WithField("design_id", id).Info("Design finished successfully")
	return id, nil
}

// discard removes an uploaded image whose record could not be written.
func (f *Finisher) discard(url string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.Images.Delete(ctx, url); err != nil {
		logrus.WithFields(logrus.Fields{
			"image_url": url,
			"error":     err,
		}).Warn("Failed to remove orphaned design image")
	}
}
