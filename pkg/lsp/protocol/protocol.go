package protocol

import (
	"context"
	"encoding/json"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

const (
	codeInvalidRequest jrpc2.Code = -32600
	codeInvalidParams  jrpc2.Code = -32602
	codeInternalError  jrpc2.Code = -32603

	// RequestCancelled is returned for requests the client cancelled.
	RequestCancelled jrpc2.Code = -32800
)

// Server is the set of LSP methods the language server handles.
type Server interface {
	Initialize(ctx context.Context, params *ParamInitialize) (*InitializeResult, error)
	Initialized(ctx context.Context, params *InitializedParams) error
	Shutdown(ctx context.Context) error
	Exit(ctx context.Context) error
	SetTrace(ctx context.Context, params *SetTraceParams) error
	DidChangeConfiguration(ctx context.Context, params *DidChangeConfigurationParams) error

	DidOpen(ctx context.Context, params *DidOpenTextDocumentParams) error
	DidChange(ctx context.Context, params *DidChangeTextDocumentParams) error
	DidClose(ctx context.Context, params *DidCloseTextDocumentParams) error
	DidSave(ctx context.Context, params *DidSaveTextDocumentParams) error

	SemanticTokensFull(ctx context.Context, params *SemanticTokensParams) (*SemanticTokens, error)
	SemanticTokensRange(ctx context.Context, params *SemanticTokensRangeParams) (*SemanticTokens, error)
}

// Client is the set of server-to-client messages the language server sends.
type Client interface {
	RegisterCapability(ctx context.Context, params *RegistrationParams) error
	LogMessage(ctx context.Context, params *LogMessageParams) error
}

func buildServerDispatchMap(server Server) handler.Map {
	return handler.Map{
		"initialize":                       createHandler(server.Initialize),
		"initialized":                      createEmptyResultHandler(server.Initialized),
		"shutdown":                         createEmptyHandler(server.Shutdown),
		"exit":                             createEmptyHandler(server.Exit),
		"$/setTrace":                       createEmptyResultHandler(server.SetTrace),
		"$/cancelRequest":                  handler.New(cancelRequest),
		"workspace/didChangeConfiguration": createEmptyResultHandler(server.DidChangeConfiguration),

		"textDocument/didOpen":   createEmptyResultHandler(server.DidOpen),
		"textDocument/didChange": createEmptyResultHandler(server.DidChange),
		"textDocument/didClose":  createEmptyResultHandler(server.DidClose),
		"textDocument/didSave":   createEmptyResultHandler(server.DidSave),

		"textDocument/semanticTokens/full":  createHandler(server.SemanticTokensFull),
		"textDocument/semanticTokens/range": createHandler(server.SemanticTokensRange),
	}
}

// Callbacker sends messages back to the client over an open connection.
type Callbacker interface {
	Callback(ctx context.Context, method string, params interface{}) (*jrpc2.Response, error)
	Notify(ctx context.Context, method string, params interface{}) error
}

// CallbackClient implements Client on top of a push-enabled jrpc2 server.
type CallbackClient struct {
	client Callbacker
}

var _ Client = (*CallbackClient)(nil)

func NewCallbackClient(server Callbacker) *CallbackClient {
	return &CallbackClient{client: server}
}

func (c *CallbackClient) RegisterCapability(ctx context.Context, params *RegistrationParams) error {
	_, err := c.client.Callback(ctx, "client/registerCapability", params)
	return err
}

func (c *CallbackClient) LogMessage(ctx context.Context, params *LogMessageParams) error {
	return c.client.Notify(ctx, "window/logMessage", params)
}

// NewServerServer builds a jrpc2 server dispatching to server. Handler
// contexts derive from ctx, so the logger stored in ctx reaches every handler.
func NewServerServer(ctx context.Context, server Server, opts *jrpc2.ServerOptions) (*jrpc2.Server, *CallbackClient) {
	if opts == nil {
		opts = &jrpc2.ServerOptions{}
	}

	opts.AllowPush = true
	opts.NewContext = func() context.Context {
		return ctx
	}

	result := jrpc2.NewServer(buildServerDispatchMap(server), opts)

	return result, NewCallbackClient(result)
}

// cancelRequest handles $/cancelRequest. jrpc2 keys in-flight requests by the
// raw JSON text of their id, so the id is passed through undecoded.
func cancelRequest(ctx context.Context, req *jrpc2.Request) (interface{}, error) {
	var params struct {
		ID json.RawMessage `json:"id"`
	}
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, newParseError(err)
	}
	if len(params.ID) == 0 {
		return nil, nil
	}

	if srv := jrpc2.ServerFromContext(ctx); srv != nil {
		zerolog.Ctx(ctx).Debug().Str("cancel_id", string(params.ID)).Msg("cancelling request")
		srv.CancelRequest(string(params.ID))
	}
	return nil, nil
}

func ApplyRequestToZerolog(ctx context.Context, req *jrpc2.Request) context.Context {
	ctx = zerolog.Ctx(ctx).With().Str("rpc_method", req.Method()).Str("rpc_id", req.ID()).Logger().WithContext(ctx)
	return ctx
}

func newParseError(err error) *jrpc2.Error {
	return &jrpc2.Error{
		Code:    codeInvalidParams,
		Message: err.Error(),
	}
}

// NewInvalidParamsError marks err as the client's fault. The code survives
// further wrapping with errors.Errorf.
func NewInvalidParamsError(err error) error {
	return &jrpc2.Error{
		Code:    codeInvalidParams,
		Message: err.Error(),
	}
}

// NewInvalidRequestError reports a request the server cannot accept in its current state.
func NewInvalidRequestError(err error) error {
	return &jrpc2.Error{
		Code:    codeInvalidRequest,
		Message: err.Error(),
	}
}

// toRPCError converts a handler error into the error sent to the client.
func toRPCError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &jrpc2.Error{Code: RequestCancelled, Message: err.Error()}
	}

	var rpcErr *jrpc2.Error
	if errors.As(err, &rpcErr) {
		return &jrpc2.Error{Code: rpcErr.Code, Message: err.Error()}
	}

	return &jrpc2.Error{Code: codeInternalError, Message: err.Error()}
}

func createHandler[T any, O any](method func(ctx context.Context, params *T) (O, error)) handler.Func {
	return handler.New(func(ctx context.Context, r *jrpc2.Request) (interface{}, error) {
		ctx = ApplyRequestToZerolog(ctx, r)
		var params T
		if err := r.UnmarshalParams(&params); err != nil {
			return nil, newParseError(err)
		}
		result, err := method(ctx, &params)
		if err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("request failed")
			return nil, toRPCError(err)
		}
		return result, nil
	})
}

func createEmptyResultHandler[T any](method func(ctx context.Context, params *T) error) handler.Func {
	return handler.New(func(ctx context.Context, r *jrpc2.Request) (interface{}, error) {
		ctx = ApplyRequestToZerolog(ctx, r)
		var params T
		if err := r.UnmarshalParams(&params); err != nil {
			return nil, newParseError(err)
		}
		if err := method(ctx, &params); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("handler failed")
			return nil, toRPCError(err)
		}
		return nil, nil
	})
}

func createEmptyHandler(method func(ctx context.Context) error) handler.Func {
	return handler.New(func(ctx context.Context, r *jrpc2.Request) (interface{}, error) {
		ctx = ApplyRequestToZerolog(ctx, r)
		if err := method(ctx); err != nil {
			return nil, toRPCError(err)
		}
		return nil, nil
	})
}
