// Package history keeps the ordered conversation log for one page session:
// user turns, assistant turns that may still be streaming, and the fix each
// assistant turn produced. The in-memory log is the source of truth; a
// Persister mirrors it after every mutation.
package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/sunmer/checkra/idgen"
	"github.com/sunmer/checkra/patch"
)

// Roles of a conversation item.
const (
	RoleUser         = "user"
	RoleAssistant    = "assistant"
	RoleSystemNotice = "systemNotice"
	RoleError        = "error"
)

// Item is one turn of the conversation.
type Item struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Text string `json:"text"`

	// Streaming marks an assistant turn whose text is still arriving.
	Streaming bool `json:"streaming"`

	// Fix links the turn to the patch it produced, attached at finalize.
	Fix *patch.Snapshot `json:"fix,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Persister mirrors the full ordered log after each mutation. The in-memory
// shape is authoritative; the persister only stores and reloads it.
type Persister interface {
	SaveAll(ctx context.Context, items []Item) error
	Load(ctx context.Context) ([]Item, error)
}

// Log is the conversation history for one session. Not safe for concurrent
// use; the coordinator serialises access.
type Log struct {
	logger  *slog.Logger
	idgen   idgen.Generator
	persist Persister
	items   []Item
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Log) { h.logger = l }
}

// WithPersister mirrors the log to p after every mutation.
func WithPersister(p Persister) Option {
	return func(h *Log) { h.persist = p }
}

// WithIDGenerator overrides the item id generator.
func WithIDGenerator(g idgen.Generator) Option {
	return func(h *Log) { h.idgen = g }
}

// New creates an empty Log.
func New(opts ...Option) *Log {
	h := &Log{
		logger: slog.Default(),
		idgen:  idgen.Prefixed("msg_", idgen.Default),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// AddUser appends a user turn.
func (h *Log) AddUser(ctx context.Context, text string) *Item {
	return h.append(ctx, Item{Role: RoleUser, Text: text})
}

// AddAssistant appends an assistant turn. It starts in streaming state;
// callers with complete text follow up with FinalizeLast.
func (h *Log) AddAssistant(ctx context.Context, text string) *Item {
	return h.append(ctx, Item{Role: RoleAssistant, Text: text, Streaming: true})
}

// AddError appends an error turn, surfacing a failed cycle in the transcript.
func (h *Log) AddError(ctx context.Context, text string) *Item {
	return h.append(ctx, Item{Role: RoleError, Text: text})
}

// Save appends an arbitrary item. Assistant turns default to streaming
// unless the item carries an attached fix, which only a finalized turn has.
func (h *Log) Save(ctx context.Context, item Item) *Item {
	if item.Role == RoleAssistant && item.Fix == nil {
		item.Streaming = true
	}
	return h.append(ctx, item)
}

func (h *Log) append(ctx context.Context, item Item) *Item {
	if item.ID == "" {
		item.ID = h.idgen()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	h.items = append(h.items, item)
	h.flush(ctx)
	return &h.items[len(h.items)-1]
}

// UpdateStreaming replaces the text and streaming flag of the last item,
// but only when it is an assistant turn. The canonical sink for incremental
// generation chunks.
func (h *Log) UpdateStreaming(ctx context.Context, newText string, stillStreaming bool) {
	last := h.last()
	if last == nil || last.Role != RoleAssistant {
		return
	}
	last.Text = newText
	last.Streaming = stillStreaming
	h.flush(ctx)
}

// FinalizeLast marks the last item as no longer streaming and attaches the
// fix snapshot, if any. No-op unless the last item is an in-flight
// assistant turn.
func (h *Log) FinalizeLast(ctx context.Context, snap *patch.Snapshot) {
	last := h.last()
	if last == nil || last.Role != RoleAssistant || !last.Streaming {
		return
	}
	last.Streaming = false
	if snap != nil {
		last.Fix = snap
	}
	h.flush(ctx)
}

// ActiveStreamingItem returns the last item if and only if it is an
// assistant turn still streaming. The canonical way callers know where to
// route incremental text.
func (h *Log) ActiveStreamingItem() *Item {
	last := h.last()
	if last == nil || last.Role != RoleAssistant || !last.Streaming {
		return nil
	}
	return last
}

// Items returns a copy of the ordered log.
func (h *Log) Items() []Item {
	out := make([]Item, len(h.items))
	copy(out, h.items)
	return out
}

// Len returns the number of items.
func (h *Log) Len() int { return len(h.items) }

// Reload replaces the in-memory log with the persisted one. Used when
// reconstructing a session after a restart.
func (h *Log) Reload(ctx context.Context) error {
	if h.persist == nil {
		return nil
	}
	items, err := h.persist.Load(ctx)
	if err != nil {
		return err
	}
	h.items = items
	return nil
}

func (h *Log) last() *Item {
	if len(h.items) == 0 {
		return nil
	}
	return &h.items[len(h.items)-1]
}

// flush mirrors the log to the persister. Persistence failures degrade to a
// warning; the session keeps its in-memory history.
func (h *Log) flush(ctx context.Context) {
	if h.persist == nil {
		return
	}
	if err := h.persist.SaveAll(ctx, h.items); err != nil {
		h.logger.Warn("history: persist failed", "error", err, "items", len(h.items))
	}
}
