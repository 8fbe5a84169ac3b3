package ingest_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/myysophia/replay-ingest/internal/ingest"
	"github.com/myysophia/replay-ingest/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu         sync.Mutex
	deliveries []ingest.Delivery
	failKey    string
}

func (p *recordingProcessor) ProcessDelivery(_ context.Context, d ingest.Delivery) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deliveries = append(p.deliveries, d)
	if d.LogKey == p.failKey {
		return errors.New("处理失败")
	}
	return nil
}

func (p *recordingProcessor) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var keys []string
	for _, d := range p.deliveries {
		keys = append(keys, d.LogKey)
	}
	sort.Strings(keys)
	return keys
}

func TestFanOutRunsEveryChild(t *testing.T) {
	var done atomic.Int32
	items := []int{1, 2, 3, 4, 5, 6}
	boom := errors.New("boom")

	err := ingest.FanOut(context.Background(), items, 2, func(_ context.Context, i int) error {
		time.Sleep(time.Millisecond)
		done.Add(1)
		if i == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(len(items)), done.Load())
}

func TestFanOutLimit(t *testing.T) {
	var running, peak atomic.Int32
	items := make([]int, 20)

	err := ingest.FanOut(context.Background(), items, 3, func(context.Context, int) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestHandleKinesisEvent(t *testing.T) {
	p := &recordingProcessor{failKey: "raw/b.power.log"}
	h := ingest.NewHandler(p, 4)

	event := events.KinesisEvent{Records: []events.KinesisEventRecord{
		{EventID: "1", Kinesis: events.KinesisRecord{Data: []byte(`{"bucket":"r","log_key":"raw/a.power.log"}`)}},
		{EventID: "2", Kinesis: events.KinesisRecord{Data: []byte(`garbage`)}},
		{EventID: "3", Kinesis: events.KinesisRecord{Data: []byte(`{"bucket":"r","log_key":"raw/b.power.log"}`)}},
		{EventID: "4", Kinesis: events.KinesisRecord{Data: []byte(`{"bucket":"r","log_key":"raw/c.power.log"}`)}},
	}}

	err := h.HandleKinesisEvent(context.Background(), event)
	assert.Error(t, err)
	// 格式错误的记录被跳过，其余全部处理
	assert.Equal(t, []string{"raw/a.power.log", "raw/b.power.log", "raw/c.power.log"}, p.keys())
}

func TestHandleRecords(t *testing.T) {
	p := &recordingProcessor{}
	h := ingest.NewHandler(p, 0)

	err := h.HandleRecords(context.Background(), []stream.Record{
		{Bucket: "r", LogKey: "raw/a.power.log", AttemptReprocessing: true},
	})
	require.NoError(t, err)
	require.Len(t, p.deliveries, 1)
	assert.Equal(t, ingest.SourceStream, p.deliveries[0].Source)
	assert.True(t, p.deliveries[0].AttemptReprocessing)
}

func TestHandleS3AndSNSEvents(t *testing.T) {
	p := &recordingProcessor{}
	h := ingest.NewHandler(p, 0)
	ctx := context.Background()

	require.NoError(t, h.HandleS3Event(ctx, events.S3Event{Records: []events.S3EventRecord{
		{S3: events.S3Entity{Bucket: events.S3Bucket{Name: "r"}, Object: events.S3Object{Key: "raw/s3.power.log"}}},
	}}))
	require.NoError(t, h.HandleSNSEvent(ctx, events.SNSEvent{Records: []events.SNSEventRecord{
		{SNS: events.SNSEntity{MessageID: "m1", Message: `{"bucket":"r","key":"failed/sns.power.log"}`}},
		{SNS: events.SNSEntity{MessageID: "m2", Message: `{}`}},
	}}))
	require.NoError(t, h.HandleOSSEvent(ctx, []byte(`{"events":[{"oss":{"bucket":{"name":"r"},"object":{"key":"raw/oss.power.log"}}}]}`)))

	assert.Equal(t, []string{"failed/sns.power.log", "raw/oss.power.log", "raw/s3.power.log"}, p.keys())
}

func TestHandleEmptyBatch(t *testing.T) {
	p := &recordingProcessor{}
	require.NoError(t, ingest.NewHandler(p, 0).Handle(context.Background(), nil))
	assert.Empty(t, p.deliveries)
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		payload string
		key     string
	}{
		{
			"kinesis",
			`{"Records":[{"eventSource":"aws:kinesis","eventID":"1","kinesis":{"partitionKey":"a","data":"eyJidWNrZXQiOiJyIiwibG9nX2tleSI6InJhdy9rLnBvd2VyLmxvZyJ9"}}]}`,
			"raw/k.power.log",
		},
		{
			"s3",
			`{"Records":[{"eventSource":"aws:s3","s3":{"bucket":{"name":"r"},"object":{"key":"raw/s3.power.log"}}}]}`,
			"raw/s3.power.log",
		},
		{
			"sns",
			`{"Records":[{"EventSource":"aws:sns","Sns":{"MessageId":"m1","Message":"{\"bucket\":\"r\",\"key\":\"failed/sns.power.log\"}"}}]}`,
			"failed/sns.power.log",
		},
		{
			"oss",
			`{"events":[{"eventSource":"acs:oss","eventName":"ObjectCreated:PutObject","oss":{"bucket":{"name":"r"},"object":{"key":"raw/oss.power.log"}}}]}`,
			"raw/oss.power.log",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &recordingProcessor{}
			require.NoError(t, ingest.NewHandler(p, 0).Dispatch(ctx, []byte(tt.payload)))
			assert.Equal(t, []string{tt.key}, p.keys())
		})
	}

	h := ingest.NewHandler(&recordingProcessor{}, 0)
	assert.NoError(t, h.Dispatch(ctx, []byte(`{"Records":[]}`)))
	assert.ErrorIs(t, h.Dispatch(ctx, []byte(`{"Records":[{"eventSource":"aws:sqs"}]}`)), ingest.ErrUnknownEvent)
	assert.ErrorIs(t, h.Dispatch(ctx, []byte(`[`)), ingest.ErrUnknownEvent)
}
