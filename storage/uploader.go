package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)

	Delete(ctx context.Context, key string) error

	GetPublicURL(key string) string
}

const ProofContentType = "image/jpeg"

// ProofKey is the object key of a proof photo:
// {raceID}/{teamID}/{waypointID}_{unixMillis}.jpg
func ProofKey(raceID, teamID, waypointID string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s_%d.jpg", raceID, teamID, waypointID, at.UnixMilli())
}
