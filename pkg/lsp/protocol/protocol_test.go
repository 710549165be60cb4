package protocol

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/creachadair/jrpc2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func TestToRPCError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode jrpc2.Code
	}{
		{
			name:     "cancelled",
			err:      errors.Errorf("generating semantic tokens: %w", context.Canceled),
			wantCode: RequestCancelled,
		},
		{
			name:     "deadline",
			err:      errors.Errorf("generating semantic tokens: %w", context.DeadlineExceeded),
			wantCode: RequestCancelled,
		},
		{
			name:     "wrapped_invalid_params",
			err:      errors.Errorf("loading: %w", NewInvalidParamsError(errors.New("document not found"))),
			wantCode: codeInvalidParams,
		},
		{
			name:     "invalid_request",
			err:      NewInvalidRequestError(errors.New("server is shutting down")),
			wantCode: codeInvalidRequest,
		},
		{
			name:     "anything_else",
			err:      errors.New("boom"),
			wantCode: codeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toRPCError(tt.err)

			var rpcErr *jrpc2.Error
			require.True(t, errors.As(got, &rpcErr))
			assert.Equal(t, tt.wantCode, rpcErr.Code)
			assert.Equal(t, tt.err.Error(), rpcErr.Message)
		})
	}
}

func TestDocumentURIPath(t *testing.T) {
	assert.Equal(t, "/home/me/main.scrust", DocumentURI("file:///home/me/main.scrust").Path())
	assert.Equal(t, "/home/me/my file.scrust", DocumentURI("file:///home/me/my%20file.scrust").Path())
	assert.Equal(t, "untitled:Untitled-1", DocumentURI("untitled:Untitled-1").Path())
}

func TestParseMessageTypeFromZerolog(t *testing.T) {
	assert.Equal(t, Error, ParseMessageTypeFromZerolog(zerolog.ErrorLevel))
	assert.Equal(t, Error, ParseMessageTypeFromZerolog(zerolog.FatalLevel))
	assert.Equal(t, Warning, ParseMessageTypeFromZerolog(zerolog.WarnLevel))
	assert.Equal(t, Info, ParseMessageTypeFromZerolog(zerolog.InfoLevel))
	assert.Equal(t, Debug, ParseMessageTypeFromZerolog(zerolog.DebugLevel))
	assert.Equal(t, Log, ParseMessageTypeFromZerolog(zerolog.TraceLevel))
}

type recordingCallbacker struct {
	mu        sync.Mutex
	notified  []string
	called    []string
	params    []any
	notifyErr error
}

func (r *recordingCallbacker) Callback(ctx context.Context, method string, params interface{}) (*jrpc2.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.called = append(r.called, method)
	r.params = append(r.params, params)
	return nil, nil
}

func (r *recordingCallbacker) Notify(ctx context.Context, method string, params interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notified = append(r.notified, method)
	r.params = append(r.params, params)
	return r.notifyErr
}

func TestCallbackClient(t *testing.T) {
	rec := &recordingCallbacker{}
	client := NewCallbackClient(rec)

	require.NoError(t, client.RegisterCapability(context.Background(), &RegistrationParams{}))
	require.NoError(t, client.LogMessage(context.Background(), &LogMessageParams{Type: Info, Message: "hi"}))

	assert.Equal(t, []string{"client/registerCapability"}, rec.called)
	assert.Equal(t, []string{"window/logMessage"}, rec.notified)
}

func TestLogMessageHook(t *testing.T) {
	rec := &recordingCallbacker{}
	hook := NewLogMessageHook(context.Background(), nil)
	logger := zerolog.New(io.Discard).Hook(hook)

	logger.Info().Msg("before the client exists")
	assert.Empty(t, rec.notified)

	hook.SetClient(NewCallbackClient(rec))

	logger.Info().Msg("hello")
	logger.Warn().Str("uri", "file:///a.scrust").Msg("careful")
	logger.Trace().Msg("rpc request")
	logger.Info().Msg("")

	require.Len(t, rec.params, 2)
	assert.Equal(t, &LogMessageParams{Type: Info, Message: "hello"}, rec.params[0])
	assert.Equal(t, &LogMessageParams{Type: Warning, Message: "careful"}, rec.params[1])

	rec.notifyErr = errors.New("connection closed")
	logger.Error().Msg("lost")
	logger.Error().Msg("still lost")
	assert.Len(t, rec.notified, 3, "forwarding stops after the first failed notification")
}
