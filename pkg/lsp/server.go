package lsp

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/walteh/scrustls/pkg/config"
	"github.com/walteh/scrustls/pkg/lsp/protocol"
	"github.com/walteh/scrustls/pkg/position"
	"github.com/walteh/scrustls/pkg/semtok"
	"gitlab.com/tozd/go/errors"
)

const (
	ServerName = "scrustls"

	semanticTokensRegistrationID = "semantic-tokens"
)

var errShuttingDown = errors.Base("server is shutting down")

var _ protocol.Server = (*Server)(nil)

// Server represents an LSP server instance
type Server struct {
	// Document management
	documents *DocumentManager

	config  *config.Config
	version string

	// Server identification
	id string

	// guards the state below
	mu sync.RWMutex

	// Server state
	initialized bool
	shutdown    bool

	// LSP capabilities
	clientCapabilities protocol.ClientCapabilities

	// LSP client for registrations and log forwarding
	callbackClient protocol.Client

	exited   chan struct{}
	exitOnce sync.Once
}

func NewServer(ctx context.Context, cfg *config.Config, version string) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Server{
		id:        xid.New().String(),
		documents: NewDocumentManager(),
		config:    cfg,
		version:   version,
		exited:    make(chan struct{}),
	}
}

func (s *Server) ID() string {
	return s.id
}

func (s *Server) SetCallbackClient(client protocol.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbackClient = client
}

func (s *Server) Documents() *DocumentManager {
	return s.documents
}

// Exited is closed once the client sends exit.
func (s *Server) Exited() <-chan struct{} {
	return s.exited
}

func (s *Server) isShutdown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shutdown
}

func (s *Server) dynamicRegistration() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.clientCapabilities.TextDocument.SemanticTokens
	return st != nil && st.DynamicRegistration
}

func (s *Server) legend() protocol.SemanticTokensLegend {
	types, modifiers := semtok.Legend()
	return protocol.SemanticTokensLegend{
		TokenTypes:     types,
		TokenModifiers: modifiers,
	}
}

func (s *Server) Initialize(ctx context.Context, params *protocol.ParamInitialize) (*protocol.InitializeResult, error) {
	logger := zerolog.Ctx(ctx)

	if s.isShutdown() {
		return nil, protocol.NewInvalidRequestError(errShuttingDown)
	}

	s.mu.Lock()
	s.clientCapabilities = params.Capabilities
	s.mu.Unlock()

	if params.ClientInfo != nil {
		logger.Info().Str("client", params.ClientInfo.Name).Str("client_version", params.ClientInfo.Version).Msg("initializing server")
	} else {
		logger.Info().Msg("initializing server")
	}

	capabilities := protocol.ServerCapabilities{
		TextDocumentSync: &protocol.TextDocumentSyncOptions{
			OpenClose: true,
			Change:    protocol.Incremental,
			Save:      &protocol.SaveOptions{IncludeText: true},
		},
	}

	// clients that register dynamically get the provider in initialized instead
	if !s.dynamicRegistration() {
		capabilities.SemanticTokensProvider = &protocol.SemanticTokensOptions{
			Legend: s.legend(),
			Full:   true,
			Range:  true,
		}
	}

	return &protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.ServerInfo{
			Name:    ServerName,
			Version: s.version,
		},
	}, nil
}

func (s *Server) Initialized(ctx context.Context, params *protocol.InitializedParams) error {
	logger := zerolog.Ctx(ctx)

	s.mu.Lock()
	s.initialized = true
	client := s.callbackClient
	s.mu.Unlock()

	if !s.dynamicRegistration() {
		logger.Debug().Msg("client does not support dynamic registration of semantic tokens, using static registration")
		return nil
	}

	if client == nil {
		logger.Warn().Msg("no callback client available for dynamic registration")
		return nil
	}

	err := client.RegisterCapability(ctx, &protocol.RegistrationParams{
		Registrations: []protocol.Registration{
			{
				ID:     semanticTokensRegistrationID,
				Method: "textDocument/semanticTokens",
				RegisterOptions: &protocol.SemanticTokensRegistrationOptions{
					TextDocumentRegistrationOptions: protocol.TextDocumentRegistrationOptions{
						DocumentSelector: s.documentSelector(),
					},
					SemanticTokensOptions: protocol.SemanticTokensOptions{
						Legend: s.legend(),
						Full:   true,
						Range:  true,
					},
				},
			},
		},
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to register semantic tokens provider")
		return errors.Errorf("registering semantic tokens provider: %w", err)
	}

	logger.Debug().Msg("registered semantic tokens provider")
	return nil
}

// documentSelector matches documents by language id, or by file pattern for
// files the editor has not assigned a language.
func (s *Server) documentSelector() []protocol.DocumentFilter {
	filters := []protocol.DocumentFilter{{Language: s.config.LanguageID}}
	for _, pattern := range s.config.FilePatterns {
		filters = append(filters, protocol.DocumentFilter{Scheme: "file", Pattern: pattern})
	}
	return filters
}

func (s *Server) Shutdown(ctx context.Context) error {
	zerolog.Ctx(ctx).Info().Msg("shutting down")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	return nil
}

func (s *Server) Exit(ctx context.Context) error {
	zerolog.Ctx(ctx).Info().Bool("after_shutdown", s.isShutdown()).Msg("exit received")
	s.exitOnce.Do(func() {
		close(s.exited)
	})
	return nil
}

func (s *Server) SetTrace(ctx context.Context, params *protocol.SetTraceParams) error {
	return nil
}

func (s *Server) DidChangeConfiguration(ctx context.Context, params *protocol.DidChangeConfigurationParams) error {
	return nil
}

func (s *Server) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("uri", string(params.TextDocument.URI)).Int32("version", params.TextDocument.Version).Msg("document opened")

	if s.isShutdown() {
		return nil
	}

	if string(params.TextDocument.LanguageID) != s.config.LanguageID && !s.config.Matches(params.TextDocument.URI.Path()) {
		logger.Debug().
			Str("language_id", string(params.TextDocument.LanguageID)).
			Str("path", params.TextDocument.URI.Path()).
			Msg("document matches neither the language id nor the file patterns")
	}

	s.documents.Store(&Document{
		URI:        params.TextDocument.URI,
		LanguageID: params.TextDocument.LanguageID,
		Version:    params.TextDocument.Version,
		Content:    params.TextDocument.Text,
	})

	return nil
}

func (s *Server) DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("uri", string(params.TextDocument.URI)).Int("changes", len(params.ContentChanges)).Msg("document changed")

	if s.isShutdown() {
		return nil
	}

	err := s.documents.Update(params.TextDocument.URI, func(doc *Document) error {
		for i, change := range params.ContentChanges {
			content, err := applyContentChange(doc.Content, change)
			if err != nil {
				return errors.Errorf("applying change %d: %w", i, err)
			}
			doc.Content = content
		}
		doc.Version = params.TextDocument.Version
		return nil
	})
	if err != nil {
		return errors.Errorf("updating document: %w", err)
	}

	return nil
}

func (s *Server) DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	zerolog.Ctx(ctx).Debug().Str("uri", string(params.TextDocument.URI)).Msg("document closed")

	s.documents.Delete(params.TextDocument.URI)
	return nil
}

func (s *Server) DidSave(ctx context.Context, params *protocol.DidSaveTextDocumentParams) error {
	zerolog.Ctx(ctx).Debug().Str("uri", string(params.TextDocument.URI)).Msg("document saved")

	if params.Text == nil || s.isShutdown() {
		return nil
	}

	err := s.documents.Update(params.TextDocument.URI, func(doc *Document) error {
		doc.Content = *params.Text
		return nil
	})
	if err != nil {
		return errors.Errorf("updating document: %w", err)
	}

	return nil
}

// document loads the current snapshot of an open document for a request.
func (s *Server) document(uri protocol.DocumentURI) (*Document, error) {
	if s.isShutdown() {
		return nil, protocol.NewInvalidRequestError(errShuttingDown)
	}

	doc, ok := s.documents.Get(uri)
	if !ok {
		return nil, protocol.NewInvalidParamsError(errors.Errorf("%w: %s", ErrDocumentNotFound, uri))
	}

	return doc, nil
}

func (s *Server) SemanticTokensFull(ctx context.Context, params *protocol.SemanticTokensParams) (*protocol.SemanticTokens, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("uri", string(params.TextDocument.URI)).Msg("semantic tokens request received")

	doc, err := s.document(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}

	tokens, err := semtok.GetTokensForText(ctx, []byte(doc.Content))
	if err != nil {
		return nil, errors.Errorf("full document %s: %w", doc.URI, err)
	}

	result := s.convertToLSPTokens(tokens, doc.Content)
	logger.Debug().Int("token_count", len(tokens)).Int32("version", doc.Version).Msg("generated semantic tokens")

	return result, nil
}

func (s *Server) SemanticTokensRange(ctx context.Context, params *protocol.SemanticTokensRangeParams) (*protocol.SemanticTokens, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().
		Str("uri", string(params.TextDocument.URI)).
		Interface("range", params.Range).
		Msg("semantic tokens range request received")

	doc, err := s.document(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}

	m := position.NewMapper(doc.Content)
	start := m.OffsetAt(toPlace(params.Range.Start))
	end := m.OffsetAt(toPlace(params.Range.End))
	if end < start {
		return nil, protocol.NewInvalidParamsError(errors.Errorf("invalid range: end is before start"))
	}

	tokens, err := semtok.GetTokensForRange(ctx, []byte(doc.Content), position.NewBasicPosition(doc.Content[start:end], start))
	if err != nil {
		return nil, errors.Errorf("range of document %s: %w", doc.URI, err)
	}

	return s.convertToLSPTokens(tokens, doc.Content), nil
}

func (s *Server) convertToLSPTokens(tokens []semtok.Token, content string) *protocol.SemanticTokens {
	return &protocol.SemanticTokens{
		ResultID: uuid.NewString(),
		Data:     semtok.Encode(tokens, content),
	}
}
