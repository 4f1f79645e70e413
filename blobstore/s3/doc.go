// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
// # Usage
//
//	store, err := s3.New(ctx, "kmeans-runs",
//	    s3.WithPrefix("experiments/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
// CommitStore layers a DynamoDB-guarded CURRENT pointer over any store so
// that several coordinators may publish results to one prefix.
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads for large blobs
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
