package effector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/seantiz/conductor/internal/engine"
)

var (
	ErrEntityNotFound   = errors.New("entity not found")
	ErrEffectorNotFound = errors.New("effector not found")
)

// EffectorInfo describes a registered effector.
type EffectorInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  []Parameter `json:"parameters"`
}

// EntityInfo pairs an entity with its effectors.
type EntityInfo struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Effectors []EffectorInfo `json:"effectors"`
}

type registration struct {
	entity    Entity
	ec        *engine.ExecutionContext
	effectors map[string]*Effector
}

// Registry holds the managed entities, their effectors and the execution
// context each entity's work is submitted through.
type Registry struct {
	manager *engine.Manager
	logger  *slog.Logger

	mu       sync.RWMutex
	entities map[string]*registration
}

// NewRegistry creates an empty registry submitting to m.
func NewRegistry(m *engine.Manager, logger *slog.Logger) *Registry {
	return &Registry{
		manager:  m,
		logger:   logger,
		entities: make(map[string]*registration),
	}
}

// Register adds entity with effs, or adds effs to an entity already
// registered. It returns the entity's execution context.
func (r *Registry) Register(entity Entity, effs ...*Effector) *engine.ExecutionContext {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.entities[entity.ID()]
	if !ok {
		reg = &registration{
			entity:    entity,
			ec:        engine.NewExecutionContext(r.manager, entity),
			effectors: make(map[string]*Effector),
		}
		r.entities[entity.ID()] = reg
	}
	for _, eff := range effs {
		reg.effectors[eff.Name] = eff
	}
	return reg.ec
}

// Unregister removes the entity and cancels every unfinished task tagged
// with it. It reports the number of tasks cancelled.
func (r *Registry) Unregister(entityID string) (int, error) {
	r.mu.Lock()
	reg, ok := r.entities[entityID]
	delete(r.entities, entityID)
	r.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("unregister %s: %w", entityID, ErrEntityNotFound)
	}

	var n int
	for _, t := range r.manager.GetTasksWithTag(reg.entity) {
		if t.Cancel() {
			n++
		}
	}
	r.logger.Info("entity unregistered", "entity", reg.entity.DisplayName(), "cancelled", n)
	return n, nil
}

// Entity returns the registered entity with the given id.
func (r *Registry) Entity(id string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entities[id]
	if !ok {
		return nil, false
	}
	return reg.entity, true
}

// ExecutionContext returns the execution context of the given entity.
func (r *Registry) ExecutionContext(id string) (*engine.ExecutionContext, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entities[id]
	if !ok {
		return nil, false
	}
	return reg.ec, true
}

// Resolve returns the entity and effector registered under the given names.
func (r *Registry) Resolve(entityID, name string) (Entity, *Effector, *engine.ExecutionContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entities[entityID]
	if !ok {
		return nil, nil, nil, fmt.Errorf("entity %q: %w", entityID, ErrEntityNotFound)
	}
	eff, ok := reg.effectors[name]
	if !ok {
		return nil, nil, nil, fmt.Errorf("effector %q on %s: %w", name, reg.entity.DisplayName(), ErrEffectorNotFound)
	}
	return reg.entity, eff, reg.ec, nil
}

// Invoke runs the named effector and waits for its value.
func (r *Registry) Invoke(ctx context.Context, entityID, name string, raw map[string]any) (any, error) {
	entity, eff, ec, err := r.Resolve(entityID, name)
	if err != nil {
		return nil, err
	}
	return invoke(ctx, ec, entity, eff, raw, r.logger)
}

// InvokeAsync submits the named effector and returns its task.
func (r *Registry) InvokeAsync(ctx context.Context, entityID, name string, raw map[string]any) (*engine.Task, error) {
	entity, eff, ec, err := r.Resolve(entityID, name)
	if err != nil {
		return nil, err
	}
	t, err := invokeAsync(ctx, ec, entity, eff, raw, r.logger)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("effector submitted", "entity", entity.DisplayName(), "effector", name, "task_id", t.ID())
	return t, nil
}

// List returns all registered entities and their effectors, sorted by name
// for a stable API response.
func (r *Registry) List() []EntityInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]EntityInfo, 0, len(r.entities))
	for _, reg := range r.entities {
		info := EntityInfo{
			ID:        reg.entity.ID(),
			Name:      reg.entity.DisplayName(),
			Effectors: make([]EffectorInfo, 0, len(reg.effectors)),
		}
		for _, eff := range reg.effectors {
			params := eff.Parameters
			if params == nil {
				params = []Parameter{}
			}
			info.Effectors = append(info.Effectors, EffectorInfo{
				Name:        eff.Name,
				Description: eff.Description,
				Parameters:  params,
			})
		}
		sort.Slice(info.Effectors, func(i, j int) bool {
			return info.Effectors[i].Name < info.Effectors[j].Name
		})
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Name != infos[j].Name {
			return infos[i].Name < infos[j].Name
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}
