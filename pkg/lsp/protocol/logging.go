package protocol

import (
	"context"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/rs/zerolog"
)

// LogMessageHook forwards log events to the editor as window/logMessage
// notifications, so server logs show up in the client's output panel.
type LogMessageHook struct {
	ctx    context.Context
	client Client

	mu       sync.Mutex
	disabled bool
}

var _ zerolog.Hook = (*LogMessageHook)(nil)

func NewLogMessageHook(ctx context.Context, client Client) *LogMessageHook {
	return &LogMessageHook{ctx: ctx, client: client}
}

// SetClient attaches the client once the connection exists. Events logged
// before then are dropped.
func (h *LogMessageHook) SetClient(client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.client = client
	h.disabled = false
}

func (h *LogMessageHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	// trace events include the rpc traffic itself
	if msg == "" || level < zerolog.DebugLevel || level == zerolog.NoLevel || level == zerolog.Disabled {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.disabled || h.client == nil {
		return
	}

	err := h.client.LogMessage(h.ctx, &LogMessageParams{
		Type:    ParseMessageTypeFromZerolog(level),
		Message: msg,
	})
	if err != nil {
		// the connection is gone; later events would fail the same way
		h.disabled = true
	}
}

// ParseMessageTypeFromZerolog converts zerolog level to LSP MessageType
func ParseMessageTypeFromZerolog(level zerolog.Level) MessageType {
	switch level {
	case zerolog.PanicLevel, zerolog.FatalLevel, zerolog.ErrorLevel:
		return Error
	case zerolog.WarnLevel:
		return Warning
	case zerolog.InfoLevel:
		return Info
	case zerolog.DebugLevel:
		return Debug
	default:
		return Log
	}
}

// RPCLogger traces every request and response at trace level.
type RPCLogger struct{}

var _ jrpc2.RPCLogger = RPCLogger{}

func (RPCLogger) LogRequest(ctx context.Context, req *jrpc2.Request) {
	zerolog.Ctx(ctx).Trace().
		Str("rpc_method", req.Method()).
		Str("rpc_id", req.ID()).
		Bool("notification", req.IsNotification()).
		Msg("rpc request")
}

func (RPCLogger) LogResponse(ctx context.Context, rsp *jrpc2.Response) {
	evt := zerolog.Ctx(ctx).Trace().Str("rpc_id", rsp.ID())
	if err := rsp.Error(); err != nil {
		evt = evt.Int32("rpc_error_code", int32(err.Code)).Str("rpc_error", err.Message)
	}
	evt.Msg("rpc response")
}
