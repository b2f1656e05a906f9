package engine

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// tagIndex maps tags to the tasks carrying them. Buckets are created lazily
// and each has its own lock, so submissions under different tags never
// contend. Empty buckets are kept and skipped by readers.
type tagIndex struct {
	buckets sync.Map // Tag -> *tagBucket
}

type tagBucket struct {
	mu    sync.RWMutex
	tasks map[*Task]struct{}
}

func validateTag(tag Tag) error {
	if tag == nil {
		return fmt.Errorf("%w: nil", ErrInvalidTag)
	}
	if !reflect.TypeOf(tag).Comparable() {
		return fmt.Errorf("%w: %T is not comparable", ErrInvalidTag, tag)
	}
	return nil
}

// sameTag compares tags without panicking on values that cannot be compared.
func sameTag(a, b Tag) bool {
	if validateTag(a) != nil || validateTag(b) != nil {
		return false
	}
	return a == b
}

func (ix *tagIndex) bucket(tag Tag, create bool) *tagBucket {
	if validateTag(tag) != nil {
		return nil
	}
	if b, ok := ix.buckets.Load(tag); ok {
		return b.(*tagBucket)
	}
	if !create {
		return nil
	}
	b, _ := ix.buckets.LoadOrStore(tag, &tagBucket{tasks: make(map[*Task]struct{})})
	return b.(*tagBucket)
}

func (ix *tagIndex) add(tag Tag, t *Task) {
	b := ix.bucket(tag, true)
	if b == nil {
		return
	}
	b.mu.Lock()
	b.tasks[t] = struct{}{}
	b.mu.Unlock()
}

func (ix *tagIndex) remove(tag Tag, t *Task) {
	b := ix.bucket(tag, false)
	if b == nil {
		return
	}
	b.mu.Lock()
	delete(b.tasks, t)
	b.mu.Unlock()
}

func (b *tagBucket) contains(t *Task) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.tasks[t]
	return ok
}

func (b *tagBucket) snapshot() []*Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Task, 0, len(b.tasks))
	for t := range b.tasks {
		out = append(out, t)
	}
	return out
}

func (b *tagBucket) size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.tasks)
}

// withTag returns the tasks carrying tag.
func (ix *tagIndex) withTag(tag Tag) []*Task {
	b := ix.bucket(tag, false)
	if b == nil {
		return []*Task{}
	}
	return sortTasks(b.snapshot())
}

// withAnyTag returns the union of the tasks carrying any of tags.
func (ix *tagIndex) withAnyTag(tags []Tag) []*Task {
	seen := make(map[*Task]struct{})
	out := []*Task{}
	for _, tag := range tags {
		b := ix.bucket(tag, false)
		if b == nil {
			continue
		}
		for _, t := range b.snapshot() {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return sortTasks(out)
}

// withAllTags returns the tasks carrying every one of tags, scanning the
// smallest bucket and probing the others.
func (ix *tagIndex) withAllTags(tags []Tag) []*Task {
	if len(tags) == 0 {
		return []*Task{}
	}
	buckets := make([]*tagBucket, 0, len(tags))
	smallest, least := 0, -1
	for _, tag := range tags {
		b := ix.bucket(tag, false)
		if b == nil {
			return []*Task{}
		}
		if n := b.size(); least < 0 || n < least {
			smallest, least = len(buckets), n
		}
		buckets = append(buckets, b)
	}
	buckets[0], buckets[smallest] = buckets[smallest], buckets[0]

	out := []*Task{}
	for _, t := range buckets[0].snapshot() {
		match := true
		for _, b := range buckets[1:] {
			if !b.contains(t) {
				match = false
				break
			}
		}
		if match {
			out = append(out, t)
		}
	}
	return sortTasks(out)
}

// tags returns every tag that currently indexes at least one task.
func (ix *tagIndex) tags() []Tag {
	var out []Tag
	ix.buckets.Range(func(k, v any) bool {
		if v.(*tagBucket).size() > 0 {
			out = append(out, k)
		}
		return true
	})
	return out
}

// sortTasks orders tasks by submit time, then id, for stable listings.
func sortTasks(tasks []*Task) []*Task {
	sort.Slice(tasks, func(i, j int) bool {
		ti, tj := tasks[i].SubmitTime(), tasks[j].SubmitTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return tasks[i].id < tasks[j].id
	})
	return tasks
}
