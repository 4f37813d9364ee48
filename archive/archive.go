// Package archive uploads published schedules to S3 or an S3-compatible
// store so tenants keep a history outside the spreadsheet.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/teranos/rota/am"
	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/logger"
	"github.com/teranos/rota/result"
)

// DefaultAWSRegion is used for AWS S3 when neither config nor environment names one.
const DefaultAWSRegion = "us-east-1"

// ObjectPutter is the slice of the S3 client the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Entry is one archived run.
type Entry struct {
	TenantID      string        `json:"tenant_id"`
	ScheduleDefID string        `json:"schedule_def_id"`
	JobID         string        `json:"job_id"`
	Fingerprint   string        `json:"fingerprint"`
	GeneratedAt   time.Time     `json:"generated_at"`
	Result        result.Result `json:"result"`
}

// Archive writes entries under <prefix>/<tenant>/<schedule>/.
type Archive struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *zap.SugaredLogger
}

// New builds an S3 client from cfg using the AWS default credential chain
// unless static keys are configured.
func New(ctx context.Context, cfg am.ArchiveConfig, log *zap.SugaredLogger) (*Archive, error) {
	if !cfg.Enabled() {
		return nil, errors.NewInvalidRequestError("archive.bucket is not set")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load AWS config")
	}
	// S3-compatible endpoints ignore the region; AWS needs one.
	if awsCfg.Region == "" && cfg.Endpoint == "" {
		awsCfg.Region = DefaultAWSRegion
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix, log), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client ObjectPutter, bucket, prefix string, log *zap.SugaredLogger) *Archive {
	return &Archive{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.OrNop(log),
	}
}

// Key is the object key for e.
func (a *Archive) Key(e Entry) string {
	name := e.GeneratedAt.UTC().Format("20060102T150405Z") + ".json"
	return path.Join(a.prefix, e.TenantID, e.ScheduleDefID, name)
}

// Upload stores e as JSON and returns its key.
func (a *Archive) Upload(ctx context.Context, e Entry) (string, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return "", errors.Wrap(err, "encode archive entry")
	}
	key := a.Key(e)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		wrapped := errors.Wrapf(err, "put s3://%s/%s", a.bucket, key)
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			wrapped = errors.WithDetailf(wrapped, "s3 error code: %s", apiErr.ErrorCode())
			if apiErr.ErrorCode() == "NoSuchBucket" || apiErr.ErrorCode() == "AccessDenied" {
				wrapped = errors.WithHint(wrapped, "check archive.bucket and the credentials' write access")
			}
		}
		return "", wrapped
	}
	a.logger.Infow("Archived schedule",
		logger.FieldScheduleDefID, e.ScheduleDefID,
		logger.FieldJobID, e.JobID,
		"key", key)
	return key, nil
}
