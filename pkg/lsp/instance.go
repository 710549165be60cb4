package lsp

import (
	"context"
	"io"
	"runtime"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/rs/zerolog"
	"github.com/walteh/scrustls/pkg/lsp/protocol"
	"gitlab.com/tozd/go/errors"
)

// ServerInstance is a Server bound to one jrpc2 connection.
type ServerInstance struct {
	ctx     context.Context
	server  *Server
	rpc     *jrpc2.Server
	client  *protocol.CallbackClient
	logHook *protocol.LogMessageHook
}

// BuildServerInstance wires the server to a jrpc2 dispatcher. The logger in
// ctx is used for every handler; when client_log is set it also forwards to
// the editor.
func (s *Server) BuildServerInstance(ctx context.Context, opts *jrpc2.ServerOptions) *ServerInstance {
	if opts == nil {
		opts = &jrpc2.ServerOptions{}
	}
	if opts.RPCLog == nil {
		opts.RPCLog = protocol.RPCLogger{}
	}
	if opts.Concurrency <= 0 {
		// $/cancelRequest needs a free slot while a long request is running
		opts.Concurrency = max(runtime.NumCPU(), 2)
	}

	logger := zerolog.Ctx(ctx).With().Str("server_id", s.id).Logger()

	var hook *protocol.LogMessageHook
	if s.config.ClientLog {
		hook = protocol.NewLogMessageHook(context.WithoutCancel(ctx), nil)
		logger = logger.Hook(hook)
	}

	ctx = logger.WithContext(ctx)

	rpc, client := protocol.NewServerServer(ctx, s, opts)
	s.SetCallbackClient(client)
	if hook != nil {
		hook.SetClient(client)
	}

	return &ServerInstance{
		ctx:     ctx,
		server:  s,
		rpc:     rpc,
		client:  client,
		logHook: hook,
	}
}

// StartAndWait serves LSP framed messages on r and w until the client sends
// exit, the connection closes, or the context is cancelled.
func (i *ServerInstance) StartAndWait(r io.Reader, w io.WriteCloser) error {
	logger := zerolog.Ctx(i.ctx)

	i.rpc.Start(channel.LSP(r, w))
	logger.Info().Msg("language server started")

	done := make(chan error, 1)
	go func() {
		done <- i.rpc.Wait()
	}()

	var err error
	select {
	case err = <-done:
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
			err = nil
		}
	case <-i.server.Exited():
		i.rpc.Stop()
		<-done
	case <-i.ctx.Done():
		i.rpc.Stop()
		<-done
		err = i.ctx.Err()
	}

	if i.logHook != nil {
		i.logHook.SetClient(nil)
	}

	if err != nil {
		return errors.Errorf("serving language server: %w", err)
	}

	logger.Info().Bool("clean_shutdown", i.server.isShutdown()).Msg("language server stopped")

	if !i.server.isShutdown() {
		select {
		case <-i.server.Exited():
			return errors.Errorf("exit received before shutdown")
		default:
		}
	}

	return nil
}
