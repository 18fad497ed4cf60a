package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	docvault_errors "docvault/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// DigestMetadataKey is the user metadata entry carrying the hex SHA-256.
const DigestMetadataKey = "sha256"

const abortTimeout = 30 * time.Second

var ErrObjectNotFound = docvault_errors.ErrObjectNotFound

// Body is a file that can be streamed whole or read part by part.
type Body interface {
	io.ReadSeeker
	io.ReaderAt
}

type UploadInput struct {
	Key         string
	Body        Body
	Size        int64
	ContentType string
	Digest      string
	Multipart   bool
}

type UploadOutput struct {
	ObjectID     string
	ReportedSize int64
	ETag         string
}

type ObjectMetadata struct {
	Size         int64
	Digest       string
	ContentType  string
	LastModified time.Time
	AccessLinks  []string
}

func (m ObjectMetadata) HasDigest() bool {
	return m.Digest != ""
}

// Upload stores the body under in.Key. onProgress receives whole percents,
// never decreasing, and may be nil.
func (c *Client) Upload(ctx context.Context, in UploadInput, onProgress func(int)) (UploadOutput, error) {
	if in.Key == "" {
		return UploadOutput{}, errors.New("object key is required")
	}
	tracker := newProgressTracker(in.Size, onProgress)

	if in.Multipart && in.Size > c.cfg.PartSize {
		return c.uploadMultipart(ctx, in, tracker)
	}
	return c.uploadSingle(ctx, in, tracker)
}

func (c *Client) uploadSingle(ctx context.Context, in UploadInput, tracker *progressTracker) (UploadOutput, error) {
	if _, err := in.Body.Seek(0, io.SeekStart); err != nil {
		return UploadOutput{}, fmt.Errorf("rewind body: %w", err)
	}

	out, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.cfg.Bucket),
		Key:           aws.String(in.Key),
		Body:          tracker.reader(in.Body, 0),
		ContentLength: aws.Int64(in.Size),
		ContentType:   contentType(in.ContentType),
		Metadata:      digestMetadata(in.Digest),
	}, unsignedPayload)
	if err != nil {
		return UploadOutput{}, fmt.Errorf("put object %s: %w", in.Key, err)
	}
	tracker.finish()

	return UploadOutput{
		ObjectID:     in.Key,
		ReportedSize: in.Size,
		ETag:         aws.ToString(out.ETag),
	}, nil
}

func (c *Client) uploadMultipart(ctx context.Context, in UploadInput, tracker *progressTracker) (UploadOutput, error) {
	created, err := c.s3.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(c.cfg.Bucket),
		Key:         aws.String(in.Key),
		ContentType: contentType(in.ContentType),
		Metadata:    digestMetadata(in.Digest),
	})
	if err != nil {
		return UploadOutput{}, fmt.Errorf("create multipart upload %s: %w", in.Key, err)
	}
	uploadID := created.UploadId

	parts, err := c.uploadParts(ctx, in, uploadID, tracker)
	if err != nil {
		c.abortMultipart(ctx, in.Key, uploadID)
		return UploadOutput{}, err
	}

	out, err := c.s3.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(c.cfg.Bucket),
		Key:             aws.String(in.Key),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		c.abortMultipart(ctx, in.Key, uploadID)
		return UploadOutput{}, fmt.Errorf("complete multipart upload %s: %w", in.Key, err)
	}
	tracker.finish()

	return UploadOutput{
		ObjectID:     in.Key,
		ReportedSize: in.Size,
		ETag:         aws.ToString(out.ETag),
	}, nil
}

func (c *Client) uploadParts(ctx context.Context, in UploadInput, uploadID *string, tracker *progressTracker) ([]types.CompletedPart, error) {
	var parts []types.CompletedPart

	for offset, number := int64(0), int32(1); offset < in.Size; offset, number = offset+c.cfg.PartSize, number+1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		length := min(c.cfg.PartSize, in.Size-offset)
		section := io.NewSectionReader(in.Body, offset, length)

		out, err := c.s3.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(c.cfg.Bucket),
			Key:           aws.String(in.Key),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(number),
			Body:          tracker.reader(section, offset),
			ContentLength: aws.Int64(length),
		}, unsignedPayload)
		if err != nil {
			return nil, fmt.Errorf("upload part %d of %s: %w", number, in.Key, err)
		}

		parts = append(parts, types.CompletedPart{
			ETag:       out.ETag,
			PartNumber: aws.Int32(number),
		})
	}

	return parts, nil
}

// abortMultipart runs detached from ctx so a cancelled transfer still
// releases its parts.
func (c *Client) abortMultipart(ctx context.Context, key string, uploadID *string) {
	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()

	_, _ = c.s3.AbortMultipartUpload(abortCtx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(c.cfg.Bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
	})
}

// GetObjectMetadata returns size, embedded digest and access links of key.
// A missing object yields ErrObjectNotFound.
func (c *Client) GetObjectMetadata(ctx context.Context, key string) (ObjectMetadata, error) {
	out, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return ObjectMetadata{}, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
		}
		return ObjectMetadata{}, fmt.Errorf("head object %s: %w", key, err)
	}

	meta := ObjectMetadata{
		Size:         aws.ToInt64(out.ContentLength),
		Digest:       out.Metadata[DigestMetadataKey],
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}

	if link, err := c.PresignGet(ctx, key); err == nil {
		meta.AccessLinks = append(meta.AccessLinks, link)
	}
	if public := c.FileURL(key); public != "" {
		meta.AccessLinks = append(meta.AccessLinks, public)
	}

	return meta, nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}

	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

func contentType(v string) *string {
	if v == "" {
		return aws.String("application/octet-stream")
	}
	return aws.String(v)
}

func digestMetadata(digest string) map[string]string {
	if digest == "" {
		return nil
	}
	return map[string]string{DigestMetadataKey: digest}
}
