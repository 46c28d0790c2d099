package sync

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// albumMarker is written under a prefix to make an empty album visible.
const albumMarker = ".album"

// S3Destination stores albums as key prefixes of an S3 bucket:
//
//	<prefix>/<album title>/<filename>
//
// Recommended storage classes for infrequent access (cheapest first):
//
//	GLACIER_IR   – Glacier Instant Retrieval ($0.004/GB, millisecond access)
//	STANDARD_IA  – Standard Infrequent Access ($0.0125/GB, millisecond access)
//	STANDARD     – Standard ($0.023/GB, always available)
type S3Destination struct {
	client       *s3.Client
	uploader     *manager.Uploader
	bucket       string
	prefix       string
	storageClass types.StorageClass
}

var _ Destination = (*S3Destination)(nil)

// NewS3Destination creates a new S3Destination.
func NewS3Destination(client *s3.Client, bucket, prefix string, storageClass types.StorageClass) *S3Destination {
	return &S3Destination{
		client:       client,
		uploader:     manager.NewUploader(client),
		bucket:       bucket,
		prefix:       prefix,
		storageClass: storageClass,
	}
}

func (d *S3Destination) fullKey(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if d.prefix == "" {
		return rel
	}
	return strings.TrimSuffix(d.prefix, "/") + "/" + rel
}

func (d *S3Destination) relKey(full string) string {
	if d.prefix == "" {
		return full
	}
	return strings.TrimPrefix(full, strings.TrimSuffix(d.prefix, "/")+"/")
}

// albumPrefix is the full key prefix holding the items of an album.
func (d *S3Destination) albumPrefix(title string) string {
	return d.fullKey(title) + "/"
}

func (d *S3Destination) Login(ctx context.Context) error {
	_, err := d.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(d.bucket)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", d.bucket, err)
	}
	return nil
}

func (d *S3Destination) ListAlbums(ctx context.Context) ([]Album, error) {
	prefix := d.prefix
	if prefix != "" {
		prefix = strings.TrimSuffix(prefix, "/") + "/"
	}

	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(d.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var albums []Album
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list albums: %w", err)
		}
		for _, p := range page.CommonPrefixes {
			title := strings.TrimSuffix(d.relKey(aws.ToString(p.Prefix)), "/")
			albums = append(albums, Album{ID: title, Title: title})
		}
	}
	return albums, nil
}

func (d *S3Destination) AlbumByTitle(ctx context.Context, title string) (*Album, error) {
	if err := validAlbumTitle(title); err != nil {
		return nil, err
	}
	out, err := d.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(d.bucket),
		Prefix:  aws.String(d.albumPrefix(title)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("get album %s: %w", title, err)
	}
	if len(out.Contents) == 0 {
		return nil, nil
	}
	return &Album{ID: title, Title: title}, nil
}

func (d *S3Destination) CreateAlbum(ctx context.Context, title string) (*Album, error) {
	if err := validAlbumTitle(title); err != nil {
		return nil, err
	}
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.albumPrefix(title) + albumMarker),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return nil, fmt.Errorf("create album %s: %w", title, err)
	}
	return &Album{ID: title, Title: title}, nil
}

func (d *S3Destination) MediaItems(ctx context.Context, albumID string) ([]MediaItem, error) {
	albumPrefix := d.albumPrefix(albumID)
	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(albumPrefix),
	})

	var items []MediaItem
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			full := aws.ToString(obj.Key)
			key := d.relKey(full)
			// the rest of the key is the filename, separators included
			name := strings.TrimPrefix(full, albumPrefix)
			if name == albumMarker {
				continue
			}
			items = append(items, MediaItem{ID: key, Filename: name})
		}
	}
	return items, nil
}

func (d *S3Destination) UploadSingle(ctx context.Context, file, name, albumID string) (*UploadResult, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	out, err := d.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(d.bucket),
		Key:          aws.String(d.albumPrefix(albumID) + name),
		Body:         f,
		StorageClass: d.storageClass,
		Metadata: map[string]string{
			"mtime": strconv.FormatInt(info.ModTime().Unix(), 10),
			"size":  strconv.FormatInt(info.Size(), 10),
		},
	})
	if err != nil {
		return nil, err
	}

	return &UploadResult{
		Filename: name,
		Status: UploadStatus{
			Code:    200,
			Status:  "OK",
			Message: out.Location,
		},
	}, nil
}

func validAlbumTitle(title string) error {
	if title == "" || strings.Contains(title, "/") {
		return fmt.Errorf("invalid album title %q", title)
	}
	return nil
}
