package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapflow_backend/internal/adapters/storage"
	autoports "zapflow_backend/internal/automation/ports"
	seqdomain "zapflow_backend/internal/sequences/domain"
	seqports "zapflow_backend/internal/sequences/ports"
	seqsvc "zapflow_backend/internal/sequences/service"
	"zapflow_backend/internal/whatsapp"
	"zapflow_backend/platform/apperr"
)

type fakeSender struct {
	sent []whatsapp.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg whatsapp.Message) (whatsapp.SendResult, error) {
	if f.err != nil {
		return whatsapp.SendResult{}, f.err
	}
	f.sent = append(f.sent, msg)
	return whatsapp.SendResult{MessageID: "wamid-1", Status: "sent"}, nil
}

func TestSequenceDispatcherForwardsMedia(t *testing.T) {
	sender := &fakeSender{}
	d := NewSequenceDispatcher(sender)

	res, err := d.Send(context.Background(), seqports.OutboundMessage{
		Phone:    "+5511912345678",
		Text:     "Olá",
		MediaURL: "https://cdn.example.com/a.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "wamid-1", res.ProviderMessageID)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "https://cdn.example.com/a.png", sender.sent[0].MediaURL)
}

func TestAutomationDispatcherPropagatesError(t *testing.T) {
	d := NewAutomationDispatcher(&fakeSender{err: whatsapp.ErrNotConfigured})
	_, err := d.SendMessage(context.Background(), autoports.OutboundMessage{Phone: "1", Text: "x"})
	assert.ErrorIs(t, err, whatsapp.ErrNotConfigured)
}

type fakeEnrollService struct {
	got seqsvc.EnrollInput
	sub seqdomain.Subscription
	err error
}

func (f *fakeEnrollService) Enroll(_ context.Context, in seqsvc.EnrollInput) (seqdomain.Subscription, error) {
	f.got = in
	return f.sub, f.err
}

func TestSequenceEnrollerReturnsSubscriptionID(t *testing.T) {
	id := uuid.New()
	svc := &fakeEnrollService{sub: seqdomain.Subscription{ID: id}}
	req := autoports.EnrollRequest{ConnectionID: uuid.New(), SequenceID: uuid.New(), ContactID: uuid.New()}

	got, err := NewSequenceEnroller(svc).Enroll(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, req.SequenceID, svc.got.SequenceID)
	assert.Equal(t, req.ConnectionID, svc.got.ConnectionID)
}

func TestSequenceEnrollerMapsConflict(t *testing.T) {
	svc := &fakeEnrollService{err: apperr.Conflict("contact is already enrolled in this sequence")}
	_, err := NewSequenceEnroller(svc).Enroll(context.Background(), autoports.EnrollRequest{})
	assert.ErrorIs(t, err, autoports.ErrAlreadyEnrolled)
}

func TestSequenceEnrollerKeepsOtherErrors(t *testing.T) {
	svc := &fakeEnrollService{err: apperr.NotFound("sequence not found")}
	_, err := NewSequenceEnroller(svc).Enroll(context.Background(), autoports.EnrollRequest{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, autoports.ErrAlreadyEnrolled))
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

type fakeStorage struct {
	contentType string
	presignErr  error
	presigned   []string
}

func (f *fakeStorage) GenerateDownloadURL(_ context.Context, bucket, key string, ttl time.Duration) (*storage.PresignedURL, error) {
	if f.presignErr != nil {
		return nil, f.presignErr
	}
	f.presigned = append(f.presigned, bucket+"/"+key)
	return &storage.PresignedURL{URL: "https://minio.local/" + bucket + "/" + key + "?sig=1", FileKey: key, ExpiresAt: time.Now().Add(ttl)}, nil
}

func (f *fakeStorage) ContentType(context.Context, string, string) (string, error) {
	return f.contentType, nil
}

func (f *fakeStorage) EnsureBucketExists(context.Context, string) error { return nil }

func TestStepMediaResolverPassesThroughURLs(t *testing.T) {
	st := &fakeStorage{}
	r := NewStepMediaResolver(st, "media", time.Hour, true)

	got, err := r.ResolveURL(context.Background(), "https://cdn.example.com/promo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/promo.jpg", got)
	assert.Empty(t, st.presigned)
}

func TestStepMediaResolverPresignsKeys(t *testing.T) {
	st := &fakeStorage{contentType: "image/png"}
	r := NewStepMediaResolver(st, "media", time.Hour, true)

	got, err := r.ResolveURL(context.Background(), "conn/step-1.png")
	require.NoError(t, err)
	assert.Contains(t, got, "media/conn/step-1.png")
	assert.Equal(t, []string{"media/conn/step-1.png"}, st.presigned)
}

func TestStepMediaResolverRejectsBadKeysAndTypes(t *testing.T) {
	st := &fakeStorage{contentType: "application/pdf"}
	r := NewStepMediaResolver(st, "media", time.Hour, true)

	_, err := r.ResolveURL(context.Background(), "../secret")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = r.ResolveURL(context.Background(), "conn/brochure.pdf")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestStepMediaResolverPresignFailureIsUnavailable(t *testing.T) {
	st := &fakeStorage{presignErr: errors.New("minio down")}
	r := NewStepMediaResolver(st, "media", time.Hour, false)

	_, err := r.ResolveURL(context.Background(), "conn/a.png")
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))
}
