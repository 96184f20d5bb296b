package server

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/hierview/pkg/models"
)

func TestWriteEventFrameFormat(t *testing.T) {
	var buf bytes.Buffer

	node := &models.Issue{Key: "RFE-1", Type: models.TypeRFE, Summary: "A feature"}
	require.NoError(t, writeEvent(&buf, models.NodeAdded(node, "", false)))

	frame := buf.String()
	assert.Contains(t, frame, "event: node-added\n")
	assert.Contains(t, frame, `"key":"RFE-1"`)
	assert.True(t, len(frame) > 2 && frame[len(frame)-2:] == "\n\n",
		"frame must end with a blank line, got %q", frame)
}

func TestWriteEventLevelComplete(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeEvent(&buf, models.LevelComplete(2)))

	assert.Equal(t, "event: level-complete\ndata: {\"level\":2}\n\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, assert.AnError
}

func TestWriteEventPropagatesWriteFailure(t *testing.T) {
	err := writeEvent(failingWriter{}, models.LevelComplete(0))
	require.Error(t, err)
}
