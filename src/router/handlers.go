package router

import (
	"fmt"

	"github.com/meetscribe/realtime/src/cache"
	"github.com/meetscribe/realtime/src/types"
)

func (r *Router) handleTaskProgress(msg types.Message) {
	status, _ := msg.Data["status"].(string)
	taskType, _ := msg.Data["task_type"].(string)
	label := r.taskLabel(taskType)

	switch status {
	case "completed":
		r.deps.Notifier.Notify(types.NotifySuccess,
			r.translate("tasks.completed", map[string]string{"task": label}, label+" completed"))
	case "failed", "error":
		r.deps.Notifier.Notify(types.NotifyError,
			r.translate("tasks.failed", map[string]string{"task": label}, label+" failed"))
	case "running":
		// Only the very first progress report announces the start.
		if progress, ok := msg.Data["progress"].(float64); ok && progress == 0 {
			r.deps.Notifier.Notify(types.NotifyInfo,
				r.translate("tasks.started", map[string]string{"task": label}, label+" started"))
		}
	}
}

func (r *Router) handleNotification(msg types.Message) {
	text := ""
	if eventType, ok := msg.Data["event_type"].(string); ok && eventType != "" {
		if resolved, ok := r.lookup("notifications."+eventType, nil); ok {
			text = resolved
		}
	}
	if text == "" {
		text, _ = msg.Data["message"].(string)
	}
	if text == "" {
		text = "You have a new notification"
	}

	r.deps.Notifier.NotifyIncoming(text)
	r.deps.Cache.Invalidate(cache.Notifications)
}

func (r *Router) handleUserJoined(msg types.Message) {
	userName := stringField(msg.Data, "user_name", "A user")
	projectName := stringField(msg.Data, "project_name", "the project")

	text := r.translate("projects.user_joined",
		map[string]string{"user": userName, "project": projectName},
		fmt.Sprintf("%s joined %s", userName, projectName))

	r.deps.Notifier.NotifyIncoming(text)
	r.invalidateProjectMembership(msg)
}

func (r *Router) handleUserRemoved(msg types.Message) {
	userName := stringField(msg.Data, "user_name", "A user")
	projectName := stringField(msg.Data, "project_name", "the project")
	selfRemoval, _ := msg.Data["self_removal"].(bool)

	var text string
	if selfRemoval {
		text = r.translate("projects.user_left",
			map[string]string{"user": userName, "project": projectName},
			fmt.Sprintf("%s left %s", userName, projectName))
	} else {
		text = r.translate("projects.user_removed",
			map[string]string{"user": userName, "project": projectName},
			fmt.Sprintf("%s was removed from %s", userName, projectName))
	}

	r.deps.Notifier.NotifyIncoming(text)
	r.invalidateProjectMembership(msg)
}

func (r *Router) handleMembershipChange(msg types.Message, added bool) {
	text, _ := msg.Data["message"].(string)
	if text == "" {
		if added {
			text = "You were added to a project"
		} else {
			text = "You were removed from a project"
		}
	}

	r.deps.Notifier.NotifyIncoming(text)
	r.deps.Cache.Invalidate(cache.Projects)
	if projectID, ok := msg.Data["project_id"].(string); ok && projectID != "" {
		r.deps.Cache.Invalidate(cache.Project(projectID))
	}
}

func (r *Router) handleAuthFailure(msg types.Message) {
	r.logger.Error().Str("type", msg.Type).Msg("authorization failure over realtime channel, forcing logout")
	if r.deps.Session != nil {
		r.deps.Session.Logout()
	}
}

// invalidateProjectMembership targets the caches a membership change
// makes stale: the specific project (when identified), the project
// list, the user list, and the empty-query user search.
func (r *Router) invalidateProjectMembership(msg types.Message) {
	if projectID, ok := msg.Data["project_id"].(string); ok && projectID != "" {
		r.deps.Cache.Invalidate(cache.Project(projectID))
	}
	r.deps.Cache.Invalidate(cache.Projects)
	r.deps.Cache.Invalidate(cache.Users)
	r.deps.Cache.Invalidate(cache.SearchUsers(""))
}

// taskLabel resolves a human-readable label for a task type.
func (r *Router) taskLabel(taskType string) string {
	if taskType == "" {
		return "Task"
	}
	if label, ok := r.lookup("tasks.types."+taskType, nil); ok {
		return label
	}
	return taskType
}

// translate resolves key through the translator, falling back to the
// literal text when the translator is absent or the key is missing.
func (r *Router) translate(key string, vars map[string]string, fallback string) string {
	if text, ok := r.lookup(key, vars); ok {
		return text
	}
	return fallback
}

func (r *Router) lookup(key string, vars map[string]string) (string, bool) {
	if r.deps.Translator == nil {
		return "", false
	}
	return r.deps.Translator.T(key, vars)
}

func stringField(data map[string]any, key, fallback string) string {
	if v, ok := data[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
