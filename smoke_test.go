package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdani7777/Soothsayer/internal/config"
	"github.com/kdani7777/Soothsayer/internal/testutils"
)

func TestSmoke_Startup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping smoke test in short mode")
	}

	// 1. Start Infrastructure
	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	// 2. Configure App to use Infrastructure
	cfg := suite.GetAppConfig()
	cfg.EnableAPI = true
	cfg.ServerPort = 8081

	// 3. Run App in Background
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, suite.Logger())
	}()

	// 4. Wait for Health Check
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://localhost:8081/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 500*time.Millisecond)

	// 5. Graceful shutdown
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestParseFilters(t *testing.T) {
	got, err := parseFilters([]string{"state=CA", "distances=10K"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"state": "CA", "distances": "10K"}, got)

	got, err = parseFilters(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseFilters([]string{"CA"})
	assert.ErrorIs(t, err, config.ErrInvalid)
}
