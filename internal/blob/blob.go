// Package blob stores meter images behind an opaque identifier.
package blob

import (
	"context"
	"errors"
)

// Driver identifies a concrete blob storage backend.
type Driver string

const (
	// DriverDatabase stores images in a table of the record database.
	DriverDatabase Driver = "database"
	// DriverS3 stores images in an S3 / MinIO compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps images in process memory (tests, local dev).
	DriverMemory Driver = "memory"
)

// ErrNotFound is returned by Get when no blob exists for the id.
var ErrNotFound = errors.New("blob: not found")

// PutOptions carries the metadata stored alongside a payload.
type PutOptions struct {
	Filename    string
	ContentType string
}

// Object is a stored payload and its metadata.
type Object struct {
	ID          string
	Filename    string
	ContentType string
	Data        []byte
}

// Store puts, gets and deletes payloads by id. Ids have no meaning beyond
// round-tripping through Get and Delete. Deleting an absent id is not an error.
type Store interface {
	Put(ctx context.Context, data []byte, opts PutOptions) (string, error)
	Get(ctx context.Context, id string) (*Object, error)
	Delete(ctx context.Context, id string) error
	Driver() Driver
}

const defaultContentType = "application/octet-stream"

func contentTypeOrDefault(ct string) string {
	if ct == "" {
		return defaultContentType
	}
	return ct
}
