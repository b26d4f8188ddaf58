package events

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type putCall struct {
	bucket string
	key    string
	body   []byte
	meta   map[string]string
}

type mockS3 struct {
	calls []putCall
	err   error
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	body, _ := io.ReadAll(in.Body)
	m.calls = append(m.calls, putCall{bucket: *in.Bucket, key: *in.Key, body: body, meta: in.Metadata})
	return &s3.PutObjectOutput{}, nil
}

func archiveEntry() OutboxEntry {
	return OutboxEntry{
		ID:        uuid.MustParse("7b0c6d8e-1f2a-4b3c-9d4e-5f6a7b8c9d0e"),
		OrgID:     "salon-1",
		Type:      TypeActionExecuted,
		Payload:   []byte(`{"action_id":"a-1"}`),
		CreatedAt: time.Date(2025, 6, 2, 23, 30, 0, 0, time.UTC),
	}
}

func TestArchiverWritesOneObjectPerEvent(t *testing.T) {
	client := &mockS3{}
	archiver := NewArchiver(client, "salon-events", nil)

	require.NoError(t, archiver.Handle(context.Background(), archiveEntry()))

	require.Len(t, client.calls, 1)
	call := client.calls[0]
	assert.Equal(t, "salon-events", call.bucket)
	assert.Equal(t, "events/v1/salon-1/2025/06/02/7b0c6d8e-1f2a-4b3c-9d4e-5f6a7b8c9d0e.json", call.key)
	assert.JSONEq(t, `{"action_id":"a-1"}`, string(call.body))
	assert.Equal(t, TypeActionExecuted, call.meta["event-type"])
}

func TestArchiverDisabledWithoutBucket(t *testing.T) {
	archiver := NewArchiver(&mockS3{}, "", nil)
	assert.False(t, archiver.Enabled())
	assert.NoError(t, archiver.Handle(context.Background(), archiveEntry()))
}

type countingHandler struct {
	n   int
	err error
}

func (h *countingHandler) Handle(context.Context, OutboxEntry) error {
	h.n++
	return h.err
}

func TestFanoutCallsEveryHandlerAndJoinsErrors(t *testing.T) {
	ok := &countingHandler{}
	broken := &countingHandler{err: errors.New("queue down")}
	after := &countingHandler{}

	err := Fanout{ok, broken, after}.Handle(context.Background(), archiveEntry())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue down")
	assert.Equal(t, 1, ok.n)
	assert.Equal(t, 1, after.n)
}
