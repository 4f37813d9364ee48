package archive

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/rota/am"
	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/result"
	"github.com/teranos/rota/solver"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func entry() Entry {
	return Entry{
		TenantID:      "t1",
		ScheduleDefID: "ward-a",
		JobID:         "job-1",
		Fingerprint:   "abc",
		GeneratedAt:   time.Date(2025, 6, 1, 9, 30, 0, 0, time.FixedZone("JST", 9*3600)),
		Result:        result.Result{Summary: result.Summary{Verdict: solver.StatusOptimal}},
	}
}

func TestUpload(t *testing.T) {
	fake := &fakePutter{}
	a := NewWithClient(fake, "bucket", "rota", nil)

	key, err := a.Upload(context.Background(), entry())
	require.NoError(t, err)
	assert.Equal(t, "rota/t1/ward-a/20250601T003000Z.json", key)

	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "bucket", aws.ToString(fake.inputs[0].Bucket))
	assert.Equal(t, int64(len(fake.bodies[0])), aws.ToInt64(fake.inputs[0].ContentLength))

	var got Entry
	require.NoError(t, json.Unmarshal(fake.bodies[0], &got))
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, solver.StatusOptimal, got.Result.Summary.Verdict)
}

func TestUploadError(t *testing.T) {
	fake := &fakePutter{err: &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "gone"}}
	a := NewWithClient(fake, "bucket", "", nil)

	_, err := a.Upload(context.Background(), entry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://bucket/t1/ward-a/")
	assert.Contains(t, errors.FlattenDetails(err), "NoSuchBucket")
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), am.ArchiveConfig{}, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
