// File: internal/mocks/mocks_test.go
package mocks_test

import (
	"github.com/xkilldash9x/reportcast/internal/artifacts"
	"github.com/xkilldash9x/reportcast/internal/capture"
	"github.com/xkilldash9x/reportcast/internal/delivery"
	"github.com/xkilldash9x/reportcast/internal/mocks"
	"github.com/xkilldash9x/reportcast/internal/pipeline"
)

// The mocks must keep satisfying the interfaces they stand in for.
var (
	_ artifacts.Sink         = (*mocks.MockSink)(nil)
	_ artifacts.ObjectPutter = (*mocks.MockObjectPutter)(nil)
	_ delivery.Deliverer     = (*mocks.MockDeliverer)(nil)
	_ pipeline.Recorder      = (*mocks.MockRecorder)(nil)
	_ pipeline.Capturer      = (*mocks.MockCapturer)(nil)
	_ capture.Browser        = (*mocks.MockBrowser)(nil)
)
