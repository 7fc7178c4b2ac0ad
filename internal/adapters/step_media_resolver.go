package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zapflow_backend/internal/adapters/storage"
	seqports "zapflow_backend/internal/sequences/ports"
	"zapflow_backend/platform/apperr"
)

// StepMediaResolver turns a step's media object key into a presigned URL
// the gateway can fetch. Keys that are already absolute URLs pass through.
type StepMediaResolver struct {
	storage   storage.StorageService
	bucket    string
	ttl       time.Duration
	checkType bool
}

// NewStepMediaResolver creates a resolver for bucket. With checkType set the
// stored content type must be one the gateway can send.
func NewStepMediaResolver(storageSvc storage.StorageService, bucket string, ttl time.Duration, checkType bool) *StepMediaResolver {
	return &StepMediaResolver{storage: storageSvc, bucket: bucket, ttl: ttl, checkType: checkType}
}

func (r *StepMediaResolver) ResolveURL(ctx context.Context, objectKey string) (string, error) {
	key := strings.TrimSpace(objectKey)
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key, nil
	}
	if err := storage.ValidateObjectKey(key); err != nil {
		return "", apperr.Validation(err.Error())
	}

	if r.checkType {
		contentType, err := r.storage.ContentType(ctx, r.bucket, key)
		if err != nil {
			return "", apperr.Unavailable("stat step media", err)
		}
		if !storage.IsSendable(contentType) {
			return "", apperr.Validation(fmt.Sprintf("media type %q cannot be sent", contentType))
		}
	}

	presigned, err := r.storage.GenerateDownloadURL(ctx, r.bucket, key, r.ttl)
	if err != nil {
		return "", apperr.Unavailable("presign step media", err)
	}
	return presigned.URL, nil
}

var _ seqports.MediaResolver = (*StepMediaResolver)(nil)
