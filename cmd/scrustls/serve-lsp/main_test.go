package serve_lsp

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/scrustls/pkg/lsp/protocol"
)

func TestRunServesUntilExit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proj/.scrustls.hcl", []byte("language_id = \"scr\"\n"), 0o644))

	serverReader, clientWriter := io.Pipe()
	clientReader, serverWriter := io.Pipe()

	stderr := &bytes.Buffer{}
	h := &Handler{
		debug:      true,
		configPath: "/proj/.scrustls.hcl",
		logFile:    "/logs/scrustls.log",
		version:    "v1.2.3",
		fs:         fs,
		stdin:      serverReader,
		stdout:     serverWriter,
		stderr:     stderr,
	}

	done := make(chan error, 1)
	go func() {
		done <- h.Run(ctx)
	}()

	client := jrpc2.NewClient(channel.LSP(clientReader, clientWriter), nil)
	defer client.Close()

	var result protocol.InitializeResult
	require.NoError(t, client.CallResult(ctx, "initialize", &protocol.ParamInitialize{ProcessID: 1}, &result))
	require.NotNil(t, result.ServerInfo)
	assert.Equal(t, "v1.2.3", result.ServerInfo.Version)

	_, err := client.Call(ctx, "shutdown", nil)
	require.NoError(t, err)
	require.NoError(t, client.Notify(ctx, "exit", nil))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("server did not stop after exit")
	}

	logs, err := afero.ReadFile(fs, "/logs/scrustls.log")
	require.NoError(t, err)
	assert.Contains(t, string(logs), "initializing server")
	assert.Empty(t, stderr.String(), "logs belong in the log file")
}

func TestRunInvalidConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proj/.scrustls.hcl", []byte("file_patterns = [\"[\"]\n"), 0o644))

	h := &Handler{
		configPath: "/proj/.scrustls.hcl",
		fs:         fs,
		stdin:      bytes.NewReader(nil),
		stdout:     nopWriteCloser{io.Discard},
		stderr:     io.Discard,
	}

	err := h.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
