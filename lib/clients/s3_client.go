package clients

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectStore is the slice of S3 used for request attachments.
type ObjectStore interface {
	GenerateUploadURL(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	GenerateDownloadURL(ctx context.Context, key, downloadName string, expiry time.Duration) (string, error)
	DeleteObject(ctx context.Context, key string) error
	// ObjectSize returns the stored size and false when the key does not exist.
	ObjectSize(ctx context.Context, key string) (int64, bool, error)
}

type S3Client struct {
	svc           *s3.Client
	presignClient *s3.PresignClient
	bucket        string
}

func NewS3Client(isLocal bool, bucket string) *S3Client {
	svc := s3.NewFromConfig(loadAWSConfig(isLocal), func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &S3Client{
		svc:           svc,
		presignClient: s3.NewPresignClient(svc),
		bucket:        bucket,
	}
}

// GenerateUploadURL presigns a PUT. The content type is part of the
// signature, so the browser must send the same header.
func (client *S3Client) GenerateUploadURL(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	presignResult, err := client.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(client.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", err
	}
	return presignResult.URL, nil
}

func (client *S3Client) GenerateDownloadURL(ctx context.Context, key, downloadName string, expiry time.Duration) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(client.bucket),
		Key:    aws.String(key),
	}
	if downloadName != "" {
		input.ResponseContentDisposition = aws.String(`attachment; filename="` + downloadName + `"`)
	}

	presignResult, err := client.presignClient.PresignGetObject(ctx, input, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", err
	}
	return presignResult.URL, nil
}

func (client *S3Client) DeleteObject(ctx context.Context, key string) error {
	_, err := client.svc.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(client.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (client *S3Client) ObjectSize(ctx context.Context, key string) (int64, bool, error) {
	out, err := client.svc.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(client.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return aws.ToInt64(out.ContentLength), true, nil
}
