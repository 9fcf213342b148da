package minio

import (
	"context"
	"errors"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
)

type MockObjectAPI struct {
	mock.Mock
}

func (m *MockObjectAPI) ListBuckets(ctx context.Context) ([]minio.BucketInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]minio.BucketInfo), args.Error(1)
}

func (m *MockObjectAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucketName, opts).Error(0)
}

func (m *MockObjectAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockObjectAPI) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockObjectAPI) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func (m *MockObjectAPI) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return m.Called(ctx, bucketName, objectName, opts).Error(0)
}

func (m *MockObjectAPI) PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucketName, objectName, expiry, reqParams)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*url.URL), args.Error(1)
}

func (s *StoreTestSuite) TestEnsureBucket_Exists() {
	s.api.On("BucketExists", mock.Anything, "metanet-artifacts").Return(true, nil)
	s.NoError(s.client.EnsureBucket(context.Background()))
	s.api.AssertNotCalled(s.T(), "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
}

func (s *StoreTestSuite) TestEnsureBucket_Creates() {
	s.api.On("BucketExists", mock.Anything, "metanet-artifacts").Return(false, nil)
	s.api.On("MakeBucket", mock.Anything, "metanet-artifacts", minio.MakeBucketOptions{Region: "us-east-1"}).Return(nil)
	s.NoError(s.client.EnsureBucket(context.Background()))
	s.api.AssertExpectations(s.T())
}

func (s *StoreTestSuite) TestHealthCheck() {
	s.api.On("ListBuckets", mock.Anything).Return([]minio.BucketInfo{{Name: "metanet-artifacts"}}, nil)
	s.api.On("BucketExists", mock.Anything, "metanet-artifacts").Return(true, nil)
	s.NoError(s.client.HealthCheck(context.Background()))
}

func (s *StoreTestSuite) TestHealthCheck_Unreachable() {
	s.api.On("ListBuckets", mock.Anything).Return(nil, errors.New("connection refused"))
	s.Error(s.client.HealthCheck(context.Background()))
}

func (s *StoreTestSuite) TestHealthCheck_Closed() {
	s.NoError(s.client.Close())
	s.Equal(ErrClientClosed, s.client.HealthCheck(context.Background()))
}
