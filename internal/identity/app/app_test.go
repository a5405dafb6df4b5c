package app

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, port int) Config {
	t.Helper()

	dir := t.TempDir()
	return Config{
		Issuer:               "openshelf-test",
		Algorithm:            "EdDSA",
		DatabaseFile:         filepath.Join(dir, "identity.db"),
		PepperFile:           filepath.Join(dir, "pepper"),
		AccessTTL:            15 * time.Minute,
		PendingTTL:           10 * time.Minute,
		RefreshTTL:           7 * 24 * time.Hour,
		Env:                  "dev",
		LogLevel:             "error",
		LogFormat:            "text",
		Port:                 port,
		ShutdownGracePeriod:  time.Second,
		HousekeepingInterval: time.Hour,
		RetentionWindow:      30 * 24 * time.Hour,
	}
}

func TestRunCleansUpOnServerFailure(t *testing.T) {
	// Occupy a port so ListenAndServe fails immediately.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	application, err := New(testConfig(t, port))
	require.NoError(t, err)

	err = application.Run()
	require.Error(t, err)

	// The failure path must have run the same teardown as a signal:
	// housekeeping stopped and the database closed.
	require.Error(t, application.db.Ping(context.Background()))
	select {
	case <-application.housekeepingService.Stopped():
	default:
		t.Fatal("housekeeping still running after server failure")
	}
}
