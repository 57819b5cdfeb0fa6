// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"game-session-system/models"
)

// ObjectPutter is the slice of the S3 API the archiver uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// R2Archiver uploads final match snapshots to a Cloudflare R2 bucket.
type R2Archiver struct {
	client ObjectPutter
	bucket string
}

// R2Options are the credentials for the R2 account.
type R2Options struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

func NewR2Archiver(ctx context.Context, opts R2Options) (*R2Archiver, error) {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", opts.AccountID)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID, opts.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, eris.Wrap(err, "failed to load R2 config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	return NewR2ArchiverWithClient(client, opts.Bucket), nil
}

func NewR2ArchiverWithClient(client ObjectPutter, bucket string) *R2Archiver {
	return &R2Archiver{client: client, bucket: bucket}
}

// ArchiveKey is the object key of a match snapshot.
func ArchiveKey(matchID string) string {
	return fmt.Sprintf("matches/%s.json", matchID)
}

// Archive writes the snapshot as JSON to matches/<matchId>.json.
func (a *R2Archiver) Archive(ctx context.Context, snapshot *models.LiveMatch) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return eris.Wrap(err, "failed to encode match snapshot")
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(ArchiveKey(snapshot.ID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return eris.Wrapf(err, "failed to upload match %s to R2", snapshot.ID)
	}
	return nil
}
