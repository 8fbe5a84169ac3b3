package function

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aliyun/fc-go-sdk"
	"github.com/myysophia/replay-ingest/internal/config"
	"github.com/myysophia/replay-ingest/internal/db/models"
	"github.com/myysophia/replay-ingest/internal/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFC struct {
	aliases map[string]string
	next    string
	payload []byte
	header  http.Header
	invoked *fc.InvokeFunctionInput
	err     error
}

func (f *fakeFC) PublishServiceVersion(*fc.PublishServiceVersionInput) (*fc.PublishServiceVersionOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := &fc.PublishServiceVersionOutput{}
	out.VersionID = &f.next
	return out, nil
}

func (f *fakeFC) GetAlias(in *fc.GetAliasInput) (*fc.GetAliasOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := &fc.GetAliasOutput{}
	if v, ok := f.aliases[*in.AliasName]; ok {
		out.VersionID = &v
	}
	return out, nil
}

func (f *fakeFC) UpdateAlias(in *fc.UpdateAliasInput) (*fc.UpdateAliasOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.aliases[*in.AliasName] = *in.VersionID
	return &fc.UpdateAliasOutput{}, nil
}

func (f *fakeFC) InvokeFunction(in *fc.InvokeFunctionInput) (*fc.InvokeFunctionOutput, error) {
	f.invoked = in
	if f.err != nil {
		return nil, f.err
	}
	return &fc.InvokeFunctionOutput{Header: f.header, Payload: f.payload}, nil
}

func TestFCDeployer(t *testing.T) {
	ctx := context.Background()
	api := &fakeFC{aliases: map[string]string{"PROD": "1"}, next: "2"}
	d := NewFCDeployer(api, "replay")

	version, err := d.PublishVersion(ctx, "canary")
	require.NoError(t, err)
	assert.Equal(t, "2", version)

	require.NoError(t, d.UpdateAlias(ctx, "CANARY", version))
	got, err := d.AliasVersion(ctx, "CANARY")
	require.NoError(t, err)
	assert.Equal(t, "2", got)

	_, err = d.AliasVersion(ctx, "MISSING")
	assert.Error(t, err)

	enabled, err := d.ConsumerEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.ErrorIs(t, d.SetConsumerEnabled(ctx, false), ErrUnsupported)
}

func TestFCInvoker(t *testing.T) {
	ctx := context.Background()
	event := &models.UploadEvent{ShortID: "aBcDeFgHiJkLmNoPqRsTuV"}

	t.Run("Success", func(t *testing.T) {
		api := &fakeFC{header: http.Header{}, payload: []byte(`{"result_type":"SUCCESS"}`)}
		require.NoError(t, NewFCInvoker(api, "replay", "process-replay", "PROD").ProcessUpload(ctx, event))
		assert.Equal(t, "process-replay", *api.invoked.FunctionName)
		assert.Equal(t, "PROD", *api.invoked.Qualifier)
	})

	t.Run("Unhandled error", func(t *testing.T) {
		header := http.Header{}
		header.Set("X-Fc-Error-Type", "UnhandledInvocationError")
		api := &fakeFC{header: header, payload: []byte(`{"errorMessage":"boom","errorType":"Error"}`)}

		err := NewFCInvoker(api, "replay", "process-replay", "").ProcessUpload(ctx, event)
		var perr *ingest.ProcessingError
		require.ErrorAs(t, err, &perr)
		assert.Contains(t, perr.Error(), "boom")
	})

	t.Run("Parsing error", func(t *testing.T) {
		api := &fakeFC{header: http.Header{}, payload: []byte(`{"result_type":"PARSING_ERROR","error":"bad"}`)}
		err := NewFCInvoker(api, "replay", "process-replay", "").ProcessUpload(ctx, event)
		assert.ErrorIs(t, err, ingest.ErrParsing)
	})

	t.Run("Transport error", func(t *testing.T) {
		api := &fakeFC{err: errors.New("dial tcp")}
		err := NewFCInvoker(api, "replay", "process-replay", "").ProcessUpload(ctx, event)
		assert.ErrorIs(t, err, api.err)
	})
}

func TestNewDeployerUnknownProvider(t *testing.T) {
	_, err := NewDeployer(context.Background(), &config.FunctionConfig{Provider: "gcp"})
	assert.Error(t, err)
	_, err = NewInvoker(context.Background(), &config.FunctionConfig{Provider: "gcp"}, "PROD")
	assert.Error(t, err)
}
