// Package effector binds management operations ("effectors") on entities to
// the task engine. Each invocation runs as a dynamic composition tagged with
// the entity and the effector name, so everything happening to an entity can
// be found through the manager's tag index.
package effector
