package logsink

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_MirrorsToFileAndWriter(t *testing.T) {
	// GIVEN a sink over a temp file with a buffer mirror
	path := filepath.Join(t.TempDir(), "edsim.log")
	var mirror bytes.Buffer
	sink, err := Open(path, &mirror, logrus.InfoLevel)
	require.NoError(t, err)

	// WHEN an entry is logged and the sink closed
	sink.Logger.WithField("event", "shutdown").Info("all workers joined")
	sink.Logger.Debug("below level")
	require.NoError(t, sink.Close())

	// THEN both destinations hold the same single line
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, mirror.String(), string(data))
	assert.Contains(t, string(data), "event=shutdown")
	assert.Contains(t, string(data), `msg="all workers joined"`)
	assert.NotContains(t, string(data), "below level")
	assert.Equal(t, path, sink.Path())
}

func TestOpen_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edsim.log")
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0o644))

	sink, err := Open(path, nil, logrus.InfoLevel)
	require.NoError(t, err)
	sink.Logger.Info("next run")
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "previous run\n")
	assert.Contains(t, string(data), "next run")
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "edsim.log"), nil, logrus.InfoLevel)
	assert.Error(t, err)
}
