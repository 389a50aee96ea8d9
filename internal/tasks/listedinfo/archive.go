package listedinfo

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Archiver uploads each date's fetched records (validated, market-
// filtered, and re-encoded in the API's response shape; see
// Task.fetchDate) to
// s3://<bucket>/listed-info/raw/<date>/<market-or-all>.json, the archival
// feature this spec's expansion adds on top of spec §4.8 (see
// SPEC_FULL.md's Task Implementations entry).
type S3Archiver struct {
	uploader *manager.Uploader
	bucket   string
}

func NewS3Archiver(client *s3.Client, bucket string) *S3Archiver {
	return &S3Archiver{uploader: manager.NewUploader(client), bucket: bucket}
}

func (a *S3Archiver) Archive(ctx context.Context, date, market string, raw []byte) error {
	key := fmt.Sprintf("listed-info/raw/%s/%s.json", date, market)
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &a.bucket,
		Key:    &key,
		Body:   bytes.NewReader(raw),
	})
	if err != nil {
		return fmt.Errorf("s3archiver: upload %s: %w", key, err)
	}
	return nil
}
