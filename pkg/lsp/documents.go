package lsp

import (
	"strings"
	"sync"

	"github.com/walteh/scrustls/pkg/lsp/protocol"
	"github.com/walteh/scrustls/pkg/position"
	"gitlab.com/tozd/go/errors"
)

var ErrDocumentNotFound = errors.Base("document not found")

// Document is an immutable snapshot of an open text document. Edits replace
// the stored snapshot, so a request can keep reading the one it loaded.
type Document struct {
	URI        protocol.DocumentURI
	LanguageID protocol.LanguageKind
	Version    int32
	Content    string
}

// DocumentManager holds the open documents, keyed by normalized URI.
type DocumentManager struct {
	store *sync.Map // map[string]*Document

	// serializes read-modify-write edits
	editMu sync.Mutex
}

func NewDocumentManager() *DocumentManager {
	return &DocumentManager{
		store: &sync.Map{},
	}
}

// normalizeURI maps equivalent spellings of a file URI to one key.
func normalizeURI(uri protocol.DocumentURI) string {
	s := string(uri)
	s = strings.TrimPrefix(s, "file://")
	s = strings.TrimPrefix(s, "file:")
	return s
}

func (m *DocumentManager) Get(uri protocol.DocumentURI) (*Document, bool) {
	content, ok := m.store.Load(normalizeURI(uri))
	if !ok {
		return nil, false
	}
	doc, ok := content.(*Document)
	return doc, ok
}

func (m *DocumentManager) Store(doc *Document) {
	m.store.Store(normalizeURI(doc.URI), doc)
}

func (m *DocumentManager) Delete(uri protocol.DocumentURI) {
	m.store.Delete(normalizeURI(uri))
}

// Update replaces the document at uri with the result of fn applied to a copy
// of it. The stored snapshot is left untouched when fn fails.
func (m *DocumentManager) Update(uri protocol.DocumentURI, fn func(doc *Document) error) error {
	m.editMu.Lock()
	defer m.editMu.Unlock()

	current, ok := m.Get(uri)
	if !ok {
		return errors.Errorf("%w: %s", ErrDocumentNotFound, uri)
	}

	next := *current
	if err := fn(&next); err != nil {
		return err
	}

	m.Store(&next)
	return nil
}

// applyContentChange applies one didChange event to content. A change without
// a range replaces the whole text; a ranged change replaces the UTF-16 range.
func applyContentChange(content string, change protocol.TextDocumentContentChangeEvent) (string, error) {
	if change.Range == nil {
		return change.Text, nil
	}

	m := position.NewMapper(content)
	start := m.OffsetAt(toPlace(change.Range.Start))
	end := m.OffsetAt(toPlace(change.Range.End))
	if end < start {
		return "", errors.Errorf("invalid change range: end %d:%d is before start %d:%d",
			change.Range.End.Line, change.Range.End.Character,
			change.Range.Start.Line, change.Range.Start.Character)
	}

	return content[:start] + change.Text + content[end:], nil
}

func toPlace(p protocol.Position) position.Place {
	return position.Place{Line: int(p.Line), Character: int(p.Character)}
}
