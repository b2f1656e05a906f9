package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/seantiz/conductor/internal/engine"
	"github.com/seantiz/conductor/internal/model"
)

type taskListResponse struct {
	Tasks  []model.TaskRecord `json:"tasks"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

type taskDetailResponse struct {
	model.TaskRecord
	Detail   string             `json:"detail"`
	Children []model.TaskRecord `json:"children"`
}

type tagResponse struct {
	Name  string `json:"name"`
	Tasks int    `json:"tasks"`
}

func (s *Server) handleListTags(w http.ResponseWriter, _ *http.Request) {
	counts := make(map[string]int)
	var names []string
	for _, tag := range s.manager.GetTaskTags() {
		name := engine.TagName(tag)
		if _, seen := counts[name]; !seen {
			names = append(names, name)
		}
		counts[name] += len(s.manager.GetTasksWithTag(tag))
	}

	sort.Strings(names)

	tags := make([]tagResponse, 0, len(names))
	for _, name := range names {
		tags = append(tags, tagResponse{Name: name, Tasks: counts[name]})
	}
	s.writeJSON(w, http.StatusOK, tags)
}

// tagsNamed returns the live tags rendering as name. Distinct tags may share
// a display name.
func (s *Server) tagsNamed(name string) []engine.Tag {
	var out []engine.Tag
	for _, tag := range s.manager.GetTaskTags() {
		if engine.TagName(tag) == name {
			out = append(out, tag)
		}
	}
	return out
}

func hasAnyTag(t *engine.Task, tags []engine.Tag) bool {
	for _, tag := range tags {
		if t.HasTag(tag) {
			return true
		}
	}
	return false
}

func filterTasks(tasks []*engine.Task, keep func(*engine.Task) bool) []*engine.Task {
	out := tasks[:0:0]
	for _, t := range tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// queryTasks selects retained tasks from the tag, all, any and entity query
// parameters. Each tag and all name must be carried; at least one any name
// must be carried.
func (s *Server) queryTasks(r *http.Request) []*engine.Task {
	q := r.URL.Query()
	var required [][]engine.Tag

	if id := q.Get("entity"); id != "" {
		e, ok := s.registry.Entity(id)
		if !ok {
			return nil
		}
		required = append(required, []engine.Tag{e})
	}

	names := parseListQuery(r, "all")
	if tag := q.Get("tag"); tag != "" {
		names = append(names, tag)
	}
	for _, name := range names {
		tags := s.tagsNamed(name)
		if len(tags) == 0 {
			return nil
		}
		required = append(required, tags)
	}

	var anyTags []engine.Tag
	anyNames := parseListQuery(r, "any")
	for _, name := range anyNames {
		anyTags = append(anyTags, s.tagsNamed(name)...)
	}
	if len(anyNames) > 0 && len(anyTags) == 0 {
		return nil
	}

	var tasks []*engine.Task
	switch {
	case len(required) > 0:
		tasks = s.manager.GetTasksWithAnyTag(required[0]...)
		for _, group := range required[1:] {
			tasks = filterTasks(tasks, func(t *engine.Task) bool { return hasAnyTag(t, group) })
		}
		if len(anyTags) > 0 {
			tasks = filterTasks(tasks, func(t *engine.Task) bool { return hasAnyTag(t, anyTags) })
		}
	case len(anyTags) > 0:
		tasks = s.manager.GetTasksWithAnyTag(anyTags...)
	default:
		tasks = s.manager.GetAllTasks()
	}

	if status := q.Get("status"); status != "" {
		tasks = filterTasks(tasks, func(t *engine.Task) bool { return t.Status() == status })
	}
	return tasks
}

func records(tasks []*engine.Task) []model.TaskRecord {
	out := make([]model.TaskRecord, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Record())
	}
	return out
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	tasks := s.queryTasks(r)

	total := len(tasks)
	page := tasks[min(offset, total):min(offset+limit, total)]

	s.writeJSON(w, http.StatusOK, taskListResponse{
		Tasks:  records(page),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, ok := s.manager.GetTask(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}

	var children []*engine.Task
	if t.IsDynamic() {
		children = t.Queued()
	} else {
		children = s.manager.Children(t)
	}

	s.writeJSON(w, http.StatusOK, taskDetailResponse{
		TaskRecord: t.Record(),
		Detail:     t.StatusDetail(true),
		Children:   records(children),
	})
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	t, ok := s.manager.GetTask(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if !t.Cancel() {
		s.writeError(w, http.StatusConflict, "task already ended")
		return
	}
	s.logger.Info("task cancelled", "task_id", t.ID(), "request_id", middleware.GetReqID(r.Context()))
	s.writeJSON(w, http.StatusAccepted, t.Record())
}
