// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/reportcast/api/schemas"
	"github.com/xkilldash9x/reportcast/internal/browser"
)

// -- Artifact Sink Mock --

// MockSink mocks artifacts.Sink.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Store(ctx context.Context, name string, data []byte) (string, error) {
	args := m.Called(ctx, name, data)
	return args.String(0), args.Error(1)
}

// -- S3 Client Mock --

// MockObjectPutter mocks the S3 PutObject call.
type MockObjectPutter struct {
	mock.Mock
}

func (m *MockObjectPutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

// -- Delivery Mock --

// MockDeliverer mocks delivery.Deliverer.
type MockDeliverer struct {
	mock.Mock
}

func (m *MockDeliverer) Deliver(ctx context.Context, image []byte, endpoint string) schemas.DeliveryOutcome {
	args := m.Called(ctx, image, endpoint)
	return args.Get(0).(schemas.DeliveryOutcome)
}

// -- Run History Mock --

// MockRecorder mocks pipeline.Recorder.
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordRun(ctx context.Context, summary *schemas.RunSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

// -- Browser Mock --

// MockBrowser mocks the page factory consumed by the capture orchestrator.
type MockBrowser struct {
	mock.Mock
}

func (m *MockBrowser) NewPage(ctx context.Context) (browser.Page, error) {
	args := m.Called(ctx)
	page, _ := args.Get(0).(browser.Page)
	return page, args.Error(1)
}

// -- Capturer Mock --

// MockCapturer mocks pipeline.Capturer.
type MockCapturer struct {
	mock.Mock
}

func (m *MockCapturer) Capture(ctx context.Context, req schemas.CaptureRequest) ([]schemas.CaptureResult, error) {
	args := m.Called(ctx, req)
	results, _ := args.Get(0).([]schemas.CaptureResult)
	return results, args.Error(1)
}
