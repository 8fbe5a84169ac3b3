package canary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/myysophia/replay-ingest/internal/db/models"
	"github.com/myysophia/replay-ingest/internal/tests/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var periodStart = time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC)

type fakeRequeuer struct {
	events []models.UploadEvent
	err    error
}

func (r *fakeRequeuer) RequeueEvents(_ context.Context, events []models.UploadEvent) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.events = append(r.events, events...)
	return len(events), nil
}

type harness struct {
	deployer *mocks.MockDeployer
	events   *mocks.EventRepository
	requeuer *fakeRequeuer
	clock    time.Time
	sleeps   int
}

func newHarness(t *testing.T) *harness {
	ctrl := gomock.NewController(t)
	return &harness{
		deployer: mocks.NewMockDeployer(ctrl),
		events:   mocks.NewEventRepository(),
		requeuer: &fakeRequeuer{},
		clock:    periodStart,
	}
}

func (h *harness) controller(minUploads int) *Controller {
	c := NewController(h.deployer, h.events, h.requeuer, nil, Options{
		ProdAlias:    "PROD",
		CanaryAlias:  "CANARY",
		MinUploads:   minUploads,
		MaxWait:      30 * time.Second,
		PollInterval: 5 * time.Second,
	})
	c.now = func() time.Time { return h.clock }
	c.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps++
		h.clock = h.clock.Add(d)
		return nil
	}
	return c
}

// expectCanarySwitch PROD=4, CANARY=3，发布出版本 5
func (h *harness) expectCanarySwitch() {
	h.deployer.EXPECT().AliasVersion(gomock.Any(), "PROD").Return("4", nil)
	h.deployer.EXPECT().AliasVersion(gomock.Any(), "CANARY").Return("3", nil)
	h.deployer.EXPECT().PublishVersion(gomock.Any(), gomock.Any()).Return("5", nil)
	h.deployer.EXPECT().UpdateAlias(gomock.Any(), "CANARY", "5").Return(nil)
}

func canaryUpload(id string, status models.UploadStatus) models.UploadEvent {
	return models.UploadEvent{
		ShortID:   id,
		Status:    status,
		Canary:    true,
		CreatedAt: periodStart.Add(time.Second),
		LogBucket: "replay-uploads",
		LogKey:    "uploads/2024/03/07/09/00/" + id + ".power.log",
	}
}

func TestDeployPromotes(t *testing.T) {
	h := newHarness(t)
	h.expectCanarySwitch()
	h.deployer.EXPECT().ConsumerEnabled(gomock.Any()).Return(true, nil)
	h.deployer.EXPECT().UpdateAlias(gomock.Any(), "PROD", "5").Return(nil)

	h.events.Seed(
		canaryUpload("aaaaaaaaaaaaaaaaaaaaaa", models.UploadStatusSuccess),
		canaryUpload("bbbbbbbbbbbbbbbbbbbbbb", models.UploadStatusUnsupported),
		canaryUpload("cccccccccccccccccccccc", models.UploadStatusUnsupportedClient),
		// 非金丝雀与处理中的上传不参与判定
		models.UploadEvent{ShortID: "dddddddddddddddddddddd", Status: models.UploadStatusServerError, CreatedAt: periodStart.Add(time.Second)},
		models.UploadEvent{ShortID: "eeeeeeeeeeeeeeeeeeeeee", Status: models.UploadStatusProcessing, Canary: true, CreatedAt: periodStart.Add(time.Second)},
	)

	run, err := h.controller(3).Deploy(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "4", run.ProdVersion)
	assert.Equal(t, "3", run.CanaryVersion)
	assert.Equal(t, "5", run.NewVersion)
	assert.Len(t, run.Uploads, 3)
	assert.Empty(t, run.Failures)
	assert.Empty(t, h.requeuer.events)
}

func TestDeployTimeout(t *testing.T) {
	h := newHarness(t)
	h.expectCanarySwitch()
	h.deployer.EXPECT().ConsumerEnabled(gomock.Any()).Return(true, nil)
	// 只回退金丝雀，不触碰生产别名
	h.deployer.EXPECT().UpdateAlias(gomock.Any(), "CANARY", "4").Return(nil)

	h.events.Seed(
		canaryUpload("aaaaaaaaaaaaaaaaaaaaaa", models.UploadStatusSuccess),
		canaryUpload("bbbbbbbbbbbbbbbbbbbbbb", models.UploadStatusSuccess),
	)

	run, err := h.controller(3).Deploy(context.Background(), false)
	assert.ErrorIs(t, err, ErrCanaryTimeout)
	assert.Len(t, run.Uploads, 2)
	assert.Equal(t, 6, h.sleeps)
	assert.Empty(t, h.requeuer.events)
}

func TestDeployRollback(t *testing.T) {
	h := newHarness(t)
	h.expectCanarySwitch()
	h.deployer.EXPECT().ConsumerEnabled(gomock.Any()).Return(true, nil)
	h.deployer.EXPECT().UpdateAlias(gomock.Any(), "CANARY", "4").Return(nil)

	failing := canaryUpload("cccccccccccccccccccccc", models.UploadStatusServerError)
	h.events.Seed(
		canaryUpload("aaaaaaaaaaaaaaaaaaaaaa", models.UploadStatusSuccess),
		canaryUpload("bbbbbbbbbbbbbbbbbbbbbb", models.UploadStatusSuccess),
		failing,
	)

	run, err := h.controller(3).Deploy(context.Background(), false)
	assert.ErrorIs(t, err, ErrCanaryFailed)
	require.Len(t, run.Failures, 1)
	assert.Equal(t, failing.ShortID, run.Failures[0].ShortID)
	assert.Equal(t, 1, run.Requeued)
	require.Len(t, h.requeuer.events, 1)
	assert.Equal(t, failing.LogKey, h.requeuer.events[0].LogKey)
}

func TestDeployRollbackRequeueError(t *testing.T) {
	h := newHarness(t)
	h.expectCanarySwitch()
	h.deployer.EXPECT().ConsumerEnabled(gomock.Any()).Return(true, nil)
	h.deployer.EXPECT().UpdateAlias(gomock.Any(), "CANARY", "4").Return(nil)
	h.requeuer.err = errors.New("stream unavailable")
	h.events.Seed(canaryUpload("aaaaaaaaaaaaaaaaaaaaaa", models.UploadStatusParsingError))

	_, err := h.controller(1).Deploy(context.Background(), false)
	assert.ErrorIs(t, err, ErrCanaryFailed)
	assert.ErrorIs(t, err, h.requeuer.err)
}

func TestDeployBypass(t *testing.T) {
	h := newHarness(t)
	h.expectCanarySwitch()
	h.deployer.EXPECT().UpdateAlias(gomock.Any(), "PROD", "5").Return(nil)

	run, err := h.controller(3).Deploy(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, run.Bypassed)
	assert.Zero(t, h.sleeps)
}

func TestDeployConsumerDisabled(t *testing.T) {
	h := newHarness(t)
	h.expectCanarySwitch()
	h.deployer.EXPECT().ConsumerEnabled(gomock.Any()).Return(false, nil)
	h.deployer.EXPECT().UpdateAlias(gomock.Any(), "PROD", "5").Return(nil)

	run, err := h.controller(3).Deploy(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, run.Bypassed)
}

func TestDeployPublishError(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("CodeStorageExceededException")
	h.deployer.EXPECT().AliasVersion(gomock.Any(), "PROD").Return("4", nil)
	h.deployer.EXPECT().AliasVersion(gomock.Any(), "CANARY").Return("3", nil)
	h.deployer.EXPECT().PublishVersion(gomock.Any(), gomock.Any()).Return("", boom)

	_, err := h.controller(3).Deploy(context.Background(), false)
	assert.ErrorIs(t, err, boom)
}
