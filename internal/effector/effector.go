package effector

import (
	"context"

	"github.com/seantiz/conductor/internal/model"
)

// Entity is a managed thing effectors act on. Entities are used directly as
// tags, so implementations must be comparable; pointers are typical.
type Entity interface {
	ID() string
	DisplayName() string
}

// BasicEntity is a minimal Entity.
type BasicEntity struct {
	id   string
	name string
}

// NewEntity creates an entity with a fresh id.
func NewEntity(name string) *BasicEntity {
	return &BasicEntity{id: model.NewID(), name: name}
}

func (e *BasicEntity) ID() string          { return e.id }
func (e *BasicEntity) DisplayName() string { return e.name }
func (e *BasicEntity) String() string      { return e.name }

type effectorTag struct{}

func (effectorTag) String() string { return "effector" }

// EffectorTag marks every effector invocation task.
var EffectorTag = effectorTag{}

// NameTag tags an effector invocation task with the effector name.
type NameTag string

func (n NameTag) String() string { return "effector:" + string(n) }

// Parameter describes one named effector argument.
type Parameter struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
	Required    bool   `json:"required"`
}

// Body implements an effector. It runs as the primary job of a dynamic
// composition and may queue further tasks with engine.Queue.
type Body func(ctx context.Context, entity Entity, args Args) (any, error)

// Effector is a named management operation on an entity.
type Effector struct {
	Name        string
	Description string
	Parameters  []Parameter
	Body        Body
}
