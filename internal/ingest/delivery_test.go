package ingest_test

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/myysophia/replay-ingest/internal/ingest"
	"github.com/myysophia/replay-ingest/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromS3Record(t *testing.T) {
	record := events.S3EventRecord{S3: events.S3Entity{
		Bucket: events.S3Bucket{Name: rawBucket},
		Object: events.S3Object{Key: "raw/2024/03/07/09/05/" + shortID + ".power.log"},
	}}

	d := ingest.FromS3Record(record)
	assert.Equal(t, ingest.Delivery{Source: ingest.SourceS3, Bucket: rawBucket, LogKey: newLog}, d)

	record.S3.Object.URLDecodedKey = "raw/decoded.power.log"
	assert.Equal(t, "raw/decoded.power.log", ingest.FromS3Record(record).LogKey)
}

func TestFromSNSMessage(t *testing.T) {
	t.Run("Key field", func(t *testing.T) {
		d, err := ingest.FromSNSMessage(events.SNSEntity{Message: `{"bucket":"` + rawBucket + `","key":"` + failedLog + `"}`})
		require.NoError(t, err)
		assert.Equal(t, ingest.SourceSNS, d.Source)
		assert.Equal(t, failedLog, d.LogKey)
		assert.True(t, d.AttemptReprocessing)
	})

	t.Run("Explicit flag", func(t *testing.T) {
		d, err := ingest.FromSNSMessage(events.SNSEntity{Message: `{"bucket":"b","log_key":"` + newLog + `","attempt_reprocessing":false}`})
		require.NoError(t, err)
		assert.Equal(t, newLog, d.LogKey)
		assert.False(t, d.AttemptReprocessing)
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := ingest.FromSNSMessage(events.SNSEntity{Message: `not json`})
		assert.ErrorIs(t, err, stream.ErrMalformedRecord)

		_, err = ingest.FromSNSMessage(events.SNSEntity{Message: `{"bucket":"b"}`})
		assert.ErrorIs(t, err, stream.ErrMalformedRecord)
	})
}

func TestFromStreamRecord(t *testing.T) {
	d, err := ingest.FromStreamRecord([]byte(`{"bucket":"` + rawBucket + `","log_key":"` + newLog + `","attempt_reprocessing":true}`))
	require.NoError(t, err)
	assert.Equal(t, ingest.Delivery{Source: ingest.SourceStream, Bucket: rawBucket, LogKey: newLog, AttemptReprocessing: true}, d)

	_, err = ingest.FromStreamRecord([]byte(`{"bucket":""}`))
	assert.ErrorIs(t, err, stream.ErrMalformedRecord)
}

func TestFromOSSEvent(t *testing.T) {
	payload := `{"events":[{"eventName":"ObjectCreated:PutObject","oss":{"bucket":{"name":"` + rawBucket +
		`"},"object":{"key":"` + newLog + `","size":1024}}}]}`

	deliveries, err := ingest.FromOSSEvent([]byte(payload))
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, ingest.Delivery{Source: ingest.SourceOSS, Bucket: rawBucket, LogKey: newLog}, deliveries[0])

	_, err = ingest.FromOSSEvent([]byte(`[`))
	assert.ErrorIs(t, err, stream.ErrMalformedRecord)
}
