package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tazhate/taskcal/internal/domain"
)

// ListTasks returns legacy tasks between two dates, both inclusive.
func (c *Client) ListTasks(ctx context.Context, from, to time.Time) ([]domain.Task, error) {
	q := url.Values{}
	q.Set("start_date", from.Format(domain.DateLayout))
	q.Set("end_date", to.Format(domain.DateLayout))

	var tasks []domain.Task
	if err := c.getList(ctx, "/tasks/", q, &tasks); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// CreateTask creates a legacy task
func (c *Client) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	t.ID = ""
	var created domain.Task
	if err := c.doRequest(ctx, http.MethodPost, "/tasks/", nil, t, &created); err != nil {
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}
	return created, nil
}

// UpdateTask sends a partial update and returns the fields echoed back.
func (c *Client) UpdateTask(ctx context.Context, id domain.TaskID, patch domain.TaskPatch) (domain.TaskPatch, error) {
	var echoed domain.TaskPatch
	if err := c.doRequest(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id.String())+"/", nil, patch, &echoed); err != nil {
		return domain.TaskPatch{}, fmt.Errorf("update task %s: %w", id, err)
	}
	return echoed, nil
}

// DeleteTask deletes a legacy task
func (c *Client) DeleteTask(ctx context.Context, id domain.TaskID) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id.String())+"/", nil, nil, nil); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}
