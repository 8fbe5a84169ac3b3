package oss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listPage = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
<Name>raw</Name><Prefix>raw/</Prefix><KeyCount>1</KeyCount><MaxKeys>1000</MaxKeys>
<IsTruncated>%t</IsTruncated>%s
<Contents><Key>%s</Key><Size>4</Size></Contents>
</ListBucketResult>`

func newTestS3Store(t *testing.T, handler http.HandlerFunc) *S3Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
	})
	return NewS3StoreFromClient(client)
}

func TestS3Store_ListAllFollowsContinuation(t *testing.T) {
	var calls int32
	store := newTestS3Store(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/xml")
		if r.URL.Query().Get("continuation-token") == "" {
			fmt.Fprintf(w, listPage, true, "<NextContinuationToken>page2</NextContinuationToken>", "raw/a.power.log")
			return
		}
		fmt.Fprintf(w, listPage, false, "", "raw/b.power.log")
	})

	seq := store.ListAll(context.Background(), "raw", "raw/")

	var keys []string
	for obj, err := range seq {
		require.NoError(t, err)
		keys = append(keys, obj.Key)
	}
	assert.Equal(t, []string{"raw/a.power.log", "raw/b.power.log"}, keys)

	// 再次遍历会从第一页重新开始
	keys = keys[:0]
	for obj, err := range seq {
		require.NoError(t, err)
		keys = append(keys, obj.Key)
	}
	assert.Len(t, keys, 2)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestS3Store_GetNotFound(t *testing.T) {
	store := newTestS3Store(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
	})

	_, err := store.Get(context.Background(), "raw", "raw/missing.descriptor.json")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)

	exists, err := Exists(context.Background(), store, "raw", "raw/missing.descriptor.json")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestS3Store_ServerErrorIsUnavailable(t *testing.T) {
	store := newTestS3Store(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
	})

	err := store.Put(context.Background(), "raw", "raw/x.power.log", []byte("data"))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestS3Store_CopySameKeyIsNoop(t *testing.T) {
	var calls int32
	store := newTestS3Store(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	err := store.Copy(context.Background(), "b", "uploads/k", "b", "uploads/k")
	assert.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestS3Store_PresignPut(t *testing.T) {
	store := newTestS3Store(t, func(w http.ResponseWriter, r *http.Request) {})

	u, err := store.PresignPut(context.Background(), "raw", "raw/2024/01/02/03/04/abc.power.log", "", 0)
	require.NoError(t, err)
	assert.True(t, strings.Contains(u, "/raw/raw/2024/01/02/03/04/abc.power.log"))
	assert.Contains(t, u, "X-Amz-Signature")
}

func TestChunk(t *testing.T) {
	keys := make([]string, 2500)
	batches := chunk(keys, maxDeleteBatch)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 1000)
	assert.Len(t, batches[2], 500)
	assert.Empty(t, chunk(nil, maxDeleteBatch))
}

func TestFactoryUnsupportedType(t *testing.T) {
	_, err := NewStoreFactory(nil).GetStore(context.Background(), "FTP")
	assert.Error(t, err)
}
