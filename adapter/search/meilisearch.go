package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"

	"github.com/florinutz/binsync/event"
	"github.com/florinutz/binsync/internal/backoff"
)

const (
	taskPollMin = 10 * time.Millisecond
	taskPollMax = 500 * time.Millisecond
)

// commitMeilisearch sends one run. POST replaces documents, PUT merges them
// into existing ones, and deletes are batched by id. Meilisearch answers 202
// with a task id; the run counts as committed only once that task succeeded.
func (s *Sink) commitMeilisearch(ctx context.Context, run event.Batch) error {
	idx := url.PathEscape(s.target(run[0]))
	base := fmt.Sprintf("%s/indexes/%s/documents", s.url, idx)

	var (
		method = http.MethodPost
		u      = base + "?primaryKey=id"
		body   []byte
		err    error
	)
	switch run[0].Action {
	case event.ActionDelete:
		ids := make([]string, len(run))
		for i, op := range run {
			ids[i] = op.ID
		}
		u = base + "/delete-batch"
		body, err = json.Marshal(ids)
	default:
		if run[0].Action == event.ActionUpdate {
			method = http.MethodPut
		}
		docs := make([]event.Row, len(run))
		for i, op := range run {
			if docs[i], err = withID(op); err != nil {
				return err
			}
		}
		body, err = json.Marshal(docs)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", idx, err)
	}

	data, err := s.do(ctx, method, u, "application/json", body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", run[0].Action, idx, err)
	}
	var enq struct {
		TaskUID *int64 `json:"taskUid"`
	}
	if err := json.Unmarshal(data, &enq); err != nil || enq.TaskUID == nil {
		return fmt.Errorf("%s %s: no task id in response %q", run[0].Action, idx, data)
	}
	if err := s.waitTask(ctx, *enq.TaskUID); err != nil {
		return fmt.Errorf("%s %s: %w", run[0].Action, idx, err)
	}
	return nil
}

type meiliTask struct {
	Status string `json:"status"`
	Error  *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// waitTask polls a task until it leaves the queue. The wait is bounded by the
// request timeout.
func (s *Sink) waitTask(ctx context.Context, uid int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	u := fmt.Sprintf("%s/tasks/%d", s.url, uid)
	status := "enqueued"
	stuck := func() error {
		return fmt.Errorf("task %d still %s after %s", uid, status, s.cfg.Timeout)
	}
	delay := taskPollMin
	for {
		data, err := s.do(ctx, http.MethodGet, u, "", nil)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return stuck()
			}
			return fmt.Errorf("task %d: %w", uid, err)
		}
		var task meiliTask
		if err := json.Unmarshal(data, &task); err != nil {
			return fmt.Errorf("decode task %d: %w", uid, err)
		}

		status = task.Status
		switch status {
		case "succeeded":
			return nil
		case "failed", "canceled":
			msg := status
			if task.Error != nil {
				msg = fmt.Sprintf("%s: %s (%s)", status, task.Error.Message, task.Error.Code)
			}
			return fmt.Errorf("task %d %s", uid, msg)
		}

		if err := backoff.Sleep(ctx, delay); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return stuck()
			}
			return err
		}
		delay = min(2*delay, taskPollMax)
	}
}
