// Package engine is the task execution core. A Manager runs tasks on
// workers, indexes them by arbitrary comparable tags and retains or forgets
// them when they end. ExecutionContext scopes submissions to an owner, and
// dynamic compositions let a running body queue further tasks that run one
// at a time in queue order.
//
// The running task, its execution context and its queueing context travel in
// the context.Context passed to each body.
package engine
