package events

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

// S3API is the subset of the S3 client used by Archiver.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver copies every delivered event to S3, one object per event, so the
// scheduling history outlives the outbox table.
type Archiver struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewArchiver creates an archiver. With an empty bucket Handle is a no-op.
func NewArchiver(s3Client S3API, bucket string, logger *logging.Logger) *Archiver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Archiver{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled reports whether a bucket is configured.
func (a *Archiver) Enabled() bool {
	return a != nil && a.bucket != "" && a.s3Client != nil
}

// ArchiveKey is the object key for entry, partitioned by org and creation date.
func ArchiveKey(entry OutboxEntry) string {
	at := entry.CreatedAt.UTC()
	return fmt.Sprintf("events/v1/%s/%d/%02d/%02d/%s.json", entry.OrgID, at.Year(), at.Month(), at.Day(), entry.ID)
}

func (a *Archiver) Handle(ctx context.Context, entry OutboxEntry) error {
	if !a.Enabled() {
		return nil
	}
	key := ArchiveKey(entry)
	_, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(entry.Payload),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"event-type": entry.Type,
			"org-id":     entry.OrgID,
		},
	})
	if err != nil {
		return fmt.Errorf("events: archive %s: %w", key, err)
	}
	a.logger.Debug("archived event", "event_id", entry.ID, "s3_key", key)
	return nil
}

// Fanout delivers an entry to every handler. The entry counts as delivered
// only when all handlers succeed, so a partial failure is retried in full;
// handlers must tolerate duplicates.
type Fanout []DeliveryHandler

func (f Fanout) Handle(ctx context.Context, entry OutboxEntry) error {
	var errs []error
	for _, h := range f {
		if err := h.Handle(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
