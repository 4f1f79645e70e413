package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/dkmeans/blobstore"
	"github.com/hupe1980/dkmeans/blobstore/minio"
	"github.com/hupe1980/dkmeans/blobstore/s3"
)

// openStore returns the result store selected by the flags, or nil when
// results are not persisted.
func openStore(ctx context.Context, o *options) (blobstore.BlobStore, error) {
	switch {
	case o.s3Bucket != "":
		return openS3(ctx, o)
	case o.minioEndpoint != "":
		return openMinio(ctx, o)
	case o.out != "":
		return blobstore.NewLocalStore(o.out), nil
	default:
		return nil, nil
	}
}

func openS3(ctx context.Context, o *options) (blobstore.BlobStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	prefix := strings.Trim(o.s3Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	store := s3.NewStore(awss3.NewFromConfig(cfg), o.s3Bucket, prefix)
	if o.ddbTable == "" {
		return store, nil
	}

	baseURI := "s3://" + o.s3Bucket + "/" + strings.TrimSuffix(prefix, "/")
	return s3.NewCommitStore(store, dynamodb.NewFromConfig(cfg), o.ddbTable, baseURI), nil
}

// openMinio reads credentials from MINIO_ACCESS_KEY and MINIO_SECRET_KEY.
func openMinio(ctx context.Context, o *options) (blobstore.BlobStore, error) {
	client, err := miniogo.New(o.minioEndpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), ""),
		Secure: o.minioSecure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	store := minio.NewStore(client, o.minioBucket, "")
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("minio bucket %s: %w", o.minioBucket, err)
	}
	return store, nil
}
