package selftest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderwoll/mockup-pipeline/internal/pipeline"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
	"github.com/wanderwoll/mockup-pipeline/pkg/testutil"
)

func mockSetup(configure func(*testutil.Set)) Setup {
	return func() (*pipeline.Orchestrator, error) {
		mocks := testutil.NewSet().SimulateLatency(time.Millisecond)
		if configure != nil {
			configure(mocks)
		}
		o := pipeline.New(pipeline.DefaultConfig(), nil, logger.NewDiscard())
		o.RegisterConnectors(mocks.Connectors())
		return o, nil
	}
}

func TestRunAllPassWithMocks(t *testing.T) {
	suite := New(mockSetup(nil), logger.NewDiscard())

	report, err := suite.Run(context.Background())
	require.NoError(t, err)

	for _, name := range report.Order {
		assert.True(t, report.Tests[name].Success, "%s: %+v", name, report.Tests[name])
	}
	assert.Equal(t, Summary{TotalTests: 7, PassedTests: 7, Success: true, SuccessRate: "100%"}, report.Summary)
	assert.Equal(t, []string{
		"healthCheck", "fallbackMechanisms", "designUpload", "modelProcessing",
		"productMockups", "shopifyIntegration", "caching",
	}, report.Order)
	assert.Equal(t, "Fallback mechanism worked correctly", report.Tests["fallbackMechanisms"].Message)
}

func TestRunReportsFailures(t *testing.T) {
	suite := New(mockSetup(func(s *testutil.Set) {
		s.Shopify.FailWith(errors.New("401 Unauthorized"))
		s.Mockey.FailWith(errors.New("mockey down"))
	}), logger.NewDiscard())

	report, err := suite.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Tests["healthCheck"].Success)
	assert.Equal(t, "Unhealthy connectors: mockey, shopify", report.Tests["healthCheck"].Message)
	assert.False(t, report.Tests["fallbackMechanisms"].Success)
	assert.Contains(t, report.Tests["fallbackMechanisms"].Error, ErrSimulatedFailure.Error())
	assert.False(t, report.Tests["shopifyIntegration"].Success)
	assert.True(t, report.Tests["designUpload"].Success)

	assert.Equal(t, 7, report.Summary.TotalTests)
	assert.Equal(t, 4, report.Summary.PassedTests)
	assert.Equal(t, "57%", report.Summary.SuccessRate)
	assert.False(t, report.Summary.Success)
}

func TestRunSetupError(t *testing.T) {
	suite := New(func() (*pipeline.Orchestrator, error) {
		return nil, errors.New("no connectors")
	}, logger.NewDiscard())

	_, err := suite.Run(context.Background())
	assert.EqualError(t, err, "set up pipeline: no connectors")
}
