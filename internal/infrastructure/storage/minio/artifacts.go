package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/MetaNet-Generalizer/internal/generalization"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

const (
	contentTypeJSON = "application/json"
	resultObject    = "result.json"
)

var ErrArtifactNotFound = errors.New(errors.ErrCodeNotFound, "artifact not found")

// ArtifactStore archives one result document per run.
type ArtifactStore interface {
	// Put stores res and returns the object key.
	Put(ctx context.Context, runID string, res *generalization.Result) (string, error)
	Get(ctx context.Context, key string) (*generalization.Result, error)
	Delete(ctx context.Context, key string) error
	// URL returns a presigned download link valid for expiry.
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type artifactStore struct {
	client *Client
	logger logging.Logger
}

func NewArtifactStore(client *Client, log logging.Logger) ArtifactStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &artifactStore{client: client, logger: log}
}

// ArtifactKey lays objects out as runs/<network>/<run>/result.json.
func ArtifactKey(networkID, runID string) string {
	return fmt.Sprintf("runs/%s/%s/%s", networkID, runID, resultObject)
}

func (s *artifactStore) Put(ctx context.Context, runID string, res *generalization.Result) (string, error) {
	if s.client.isClosed() {
		return "", ErrClientClosed
	}
	if runID == "" || res == nil {
		return "", errors.New(errors.ErrCodeValidation, "run id and result are required")
	}

	data, err := json.Marshal(res)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode result")
	}

	key := ArtifactKey(res.NetworkID, runID)
	info, err := s.client.api.PutObject(ctx, s.client.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  contentTypeJSON,
			UserMetadata: map[string]string{"network-id": res.NetworkID, "run-id": runID},
			UserTags:     map[string]string{"kind": "generalization-result"},
		})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArtifactFailed, "failed to upload result").WithDetail(key)
	}

	s.logger.Debug("Archived result",
		logging.String("key", key),
		logging.Int64("size", info.Size),
		logging.String("etag", info.ETag))
	return key, nil
}

func (s *artifactStore) Get(ctx context.Context, key string) (*generalization.Result, error) {
	if s.client.isClosed() {
		return nil, ErrClientClosed
	}

	obj, err := s.client.api.GetObject(ctx, s.client.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.readError(err, key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.readError(err, key)
	}

	var res generalization.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode result").WithDetail(key)
	}
	return &res, nil
}

func (s *artifactStore) readError(err error, key string) error {
	if isNotFound(err) {
		return ErrArtifactNotFound.WithDetail(key)
	}
	return errors.Wrap(err, errors.ErrCodeArtifactFailed, "failed to download result").WithDetail(key)
}

func (s *artifactStore) Delete(ctx context.Context, key string) error {
	if err := s.client.api.RemoveObject(ctx, s.client.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeArtifactFailed, "failed to delete result").WithDetail(key)
	}
	return nil
}

func (s *artifactStore) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = time.Hour
	}
	if _, err := s.client.api.StatObject(ctx, s.client.bucket, key, minio.StatObjectOptions{}); err != nil {
		return "", s.readError(err, key)
	}
	u, err := s.client.api.PresignedGetObject(ctx, s.client.bucket, key, expiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArtifactFailed, "failed to presign result url").WithDetail(key)
	}
	return u.String(), nil
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return true
	}
	return false
}
