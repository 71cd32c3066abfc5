package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/trellis"
	"github.com/xraph/trellis/id"
)

// Kind identifies which mutation an operation performs.
type Kind string

// Kind constants for all node mutations.
const (
	KindCreate     Kind = "create"
	KindUpdate     Kind = "update"
	KindDelete     Kind = "delete"
	KindMove       Kind = "move"
	KindComplete   Kind = "complete"
	KindUncomplete Kind = "uncomplete"
)

// Params is the kind-specific payload of an operation. It is a closed
// set: exactly one implementation exists per [Kind], and external
// packages cannot add more, so dispatch can rely on the payload and the
// kind agreeing.
type Params interface {
	// Kind reports which mutation the payload belongs to.
	Kind() Kind

	// target returns the node the operation addresses, Nil for creations.
	target() id.NodeID

	// body returns the request body fields, excluding the node id.
	body() map[string]any

	// validate checks payload completeness before any token is spent.
	validate() error
}

// CreateParams creates a new node.
type CreateParams struct {
	// Name is the node text. Required.
	Name string

	// Note is an optional note shown under the name.
	Note string

	// ParentID is the parent node; the Nil ID targets the root.
	ParentID id.NodeID

	// Priority positions the node among its siblings (0 = first).
	// Nil lets the server append at the end.
	Priority *int
}

// Kind implements Params.
func (CreateParams) Kind() Kind { return KindCreate }

func (CreateParams) target() id.NodeID { return id.Nil }

func (p CreateParams) validate() error {
	if p.Name == "" {
		return trellis.ErrMissingName
	}

	return nil
}

func (p CreateParams) body() map[string]any {
	b := map[string]any{"name": p.Name}
	if p.Note != "" {
		b["note"] = p.Note
	}
	if !p.ParentID.IsNil() {
		b["parent_id"] = p.ParentID.String()
	}
	if p.Priority != nil {
		b["priority"] = *p.Priority
	}

	return b
}

// UpdateParams edits the text of an existing node.
type UpdateParams struct {
	// NodeID is the node to edit. Required.
	NodeID id.NodeID

	// Name replaces the node text when non-nil.
	Name *string

	// Note replaces the note when non-nil; an empty string clears it.
	Note *string
}

// Kind implements Params.
func (UpdateParams) Kind() Kind { return KindUpdate }

func (p UpdateParams) target() id.NodeID { return p.NodeID }

func (p UpdateParams) validate() error {
	if p.NodeID.IsNil() {
		return trellis.ErrMissingNodeID
	}

	return nil
}

func (p UpdateParams) body() map[string]any {
	b := map[string]any{}
	if p.Name != nil {
		b["name"] = *p.Name
	}
	if p.Note != nil {
		b["note"] = *p.Note
	}

	return b
}

// DeleteParams permanently removes a node and its descendants.
type DeleteParams struct {
	// NodeID is the node to delete. Required.
	NodeID id.NodeID
}

// Kind implements Params.
func (DeleteParams) Kind() Kind { return KindDelete }

func (p DeleteParams) target() id.NodeID { return p.NodeID }

func (p DeleteParams) validate() error {
	if p.NodeID.IsNil() {
		return trellis.ErrMissingNodeID
	}

	return nil
}

func (DeleteParams) body() map[string]any { return nil }

// MoveParams reparents or reorders a node.
type MoveParams struct {
	// NodeID is the node to move. Required.
	NodeID id.NodeID

	// ParentID is the destination parent; the Nil ID keeps the current
	// parent, so priority-only moves reorder in place.
	ParentID id.NodeID

	// Priority positions the node among its new siblings (0 = first).
	// Nil lets the server append at the end.
	Priority *int
}

// Kind implements Params.
func (MoveParams) Kind() Kind { return KindMove }

func (p MoveParams) target() id.NodeID { return p.NodeID }

func (p MoveParams) validate() error {
	if p.NodeID.IsNil() {
		return trellis.ErrMissingNodeID
	}

	return nil
}

func (p MoveParams) body() map[string]any {
	b := map[string]any{}
	if !p.ParentID.IsNil() {
		b["parent_id"] = p.ParentID.String()
	}
	if p.Priority != nil {
		b["priority"] = *p.Priority
	}

	return b
}

// CompleteParams marks a node as completed.
type CompleteParams struct {
	// NodeID is the node to complete. Required.
	NodeID id.NodeID
}

// Kind implements Params.
func (CompleteParams) Kind() Kind { return KindComplete }

func (p CompleteParams) target() id.NodeID { return p.NodeID }

func (p CompleteParams) validate() error {
	if p.NodeID.IsNil() {
		return trellis.ErrMissingNodeID
	}

	return nil
}

func (CompleteParams) body() map[string]any { return nil }

// UncompleteParams clears a node's completed state.
type UncompleteParams struct {
	// NodeID is the node to uncomplete. Required.
	NodeID id.NodeID
}

// Kind implements Params.
func (UncompleteParams) Kind() Kind { return KindUncomplete }

func (p UncompleteParams) target() id.NodeID { return p.NodeID }

func (p UncompleteParams) validate() error {
	if p.NodeID.IsNil() {
		return trellis.ErrMissingNodeID
	}

	return nil
}

func (UncompleteParams) body() map[string]any { return nil }

// ---------------------------------------------------------------------------
// Operation
// ---------------------------------------------------------------------------

// Operation is a single queued mutation with its identity and payload.
// Operations are created by the queue; middleware receives them read-only.
type Operation struct {
	// ID uniquely identifies this operation instance.
	ID id.OpID

	// Kind says which mutation this is. It always matches Params.Kind
	// for operations built by the queue.
	Kind Kind

	// Params carries the kind-specific payload.
	Params Params

	// EnqueuedAt is when the operation entered the backlog, in UTC.
	EnqueuedAt time.Time

	handle *Handle
}

// Target returns the node this operation mutates, or the Nil ID for
// creations. The read cache uses it to invalidate acknowledged writes.
func (o *Operation) Target() id.NodeID {
	return o.Params.target()
}

// request resolves the operation into its wire form. Unroutable kinds
// and incomplete payloads fail here, before rate limiting or dispatch.
func (o *Operation) request() (Request, error) {
	rt, ok := routes[o.Kind]
	if !ok {
		return Request{}, fmt.Errorf("%w: %q", trellis.ErrUnknownKind, o.Kind)
	}

	if err := o.Params.validate(); err != nil {
		return Request{}, err
	}

	endpoint := rt.path
	if rt.itemScoped {
		endpoint = fmt.Sprintf(rt.path, o.Params.target())
	}

	return Request{Method: rt.method, Endpoint: endpoint, Body: o.Params.body()}, nil
}

// route maps an operation kind onto the REST surface.
type route struct {
	method     string
	path       string // format string receiving the node id when itemScoped
	itemScoped bool
}

var routes = map[Kind]route{
	KindCreate:     {method: http.MethodPost, path: "/nodes"},
	KindUpdate:     {method: http.MethodPost, path: "/nodes/%s", itemScoped: true},
	KindDelete:     {method: http.MethodDelete, path: "/nodes/%s", itemScoped: true},
	KindMove:       {method: http.MethodPost, path: "/nodes/%s", itemScoped: true},
	KindComplete:   {method: http.MethodPost, path: "/nodes/%s/complete", itemScoped: true},
	KindUncomplete: {method: http.MethodPost, path: "/nodes/%s/uncomplete", itemScoped: true},
}

// ---------------------------------------------------------------------------
// Executor
// ---------------------------------------------------------------------------

// Request is the transport-level shape of one operation: an HTTP method,
// an endpoint path relative to the API base URL, and the body fields.
// A nil Body means the request carries no payload.
type Request struct {
	Method   string
	Endpoint string
	Body     map[string]any
}

// Executor performs a single mutation request against the service and
// returns the raw response document.
type Executor interface {
	Execute(ctx context.Context, req Request) (json.RawMessage, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req Request) (json.RawMessage, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	return f(ctx, req)
}

// ---------------------------------------------------------------------------
// Pointer helpers for optional fields
// ---------------------------------------------------------------------------

// Int returns a pointer to i, for optional priority fields.
func Int(i int) *int { return &i }

// String returns a pointer to s, for optional update fields.
func String(s string) *string { return &s }
