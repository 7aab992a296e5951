package service

import (
	"context"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/zarlabs/zar/internal/logger"
	"github.com/zarlabs/zar/internal/storage"
)

const (
	maxConcurrentQRUploads = 4
	qrImageSize            = 256
	qrUploadTimeout        = 10 * time.Second
)

// qrObjectKey is deterministic so the public URL can be derived without
// storing it alongside the row.
func qrObjectKey(urlID int) string { return fmt.Sprintf("zar/qrcode/%d.png", urlID) }

// QRUploader renders QR PNGs for freshly shortened URLs and pushes them to
// the object store. Uploads are fire-and-forget: failures are logged and the
// short URL works regardless.
type QRUploader struct {
	store storage.ObjectStore
	sem   chan struct{}
	log   *logger.Logger
}

// NewQRUploader wraps an object store with the bounded upload pipeline. A
// nil store yields a nil uploader, which is a safe no-op.
func NewQRUploader(store storage.ObjectStore, log *logger.Logger) *QRUploader {
	if store == nil {
		return nil
	}
	return &QRUploader{
		store: store,
		sem:   make(chan struct{}, maxConcurrentQRUploads),
		log:   log,
	}
}

// Enqueue schedules the QR render and upload for one short URL. When all
// worker slots are busy the upload is skipped rather than queued.
func (q *QRUploader) Enqueue(urlID int, shortURL string) {
	if q == nil {
		return
	}

	select {
	case q.sem <- struct{}{}:
	default:
		q.log.Warnw("qr upload slots busy, skipping", "url_id", urlID)
		return
	}

	go func() {
		defer func() { <-q.sem }()
		if err := q.upload(urlID, shortURL); err != nil {
			q.log.Warnw("qr upload failed", "url_id", urlID, "error", err)
		}
	}()
}

func (q *QRUploader) upload(urlID int, shortURL string) error {
	png, err := qrcode.Encode(shortURL, qrcode.Medium, qrImageSize)
	if err != nil {
		return fmt.Errorf("render qr: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), qrUploadTimeout)
	defer cancel()
	return q.store.Upload(ctx, qrObjectKey(urlID), "image/png", png)
}

// PublicURL returns the browsable URL of a URL's QR image, or "" when
// uploads are disabled or no public base is configured.
func (q *QRUploader) PublicURL(urlID int) string {
	if q == nil {
		return ""
	}
	return q.store.PublicURL(qrObjectKey(urlID))
}
