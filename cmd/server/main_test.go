package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type syncBuffer struct {
	bytes.Buffer
	syncs int
}

func (b *syncBuffer) Sync() error {
	b.syncs++
	return nil
}

func bufferedLogger(out *syncBuffer) *zap.Logger {
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zap.New(zapcore.NewCore(enc, out, zapcore.InfoLevel))
}

func TestExitCode_FailedRunIsLoggedAndFlushed(t *testing.T) {
	var out syncBuffer
	log := bufferedLogger(&out)

	code := exitCode(log, errors.New("listen tcp :8080: address already in use"))

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "server failed")
	assert.Contains(t, out.String(), "address already in use")
	assert.Equal(t, 1, out.syncs)
}

func TestExitCode_CleanShutdown(t *testing.T) {
	var out syncBuffer
	log := bufferedLogger(&out)

	assert.Equal(t, 0, exitCode(log, nil))
	assert.Empty(t, out.String())
	assert.Equal(t, 1, out.syncs)
}
