package cluster

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrProtocol marks a message that cannot be interpreted: an unknown task
// kind, the wrong number of payloads, or a declared length that does not
// match the values carried.
var ErrProtocol = errors.New("protocol error")

// TaskKind is the tag of the task union
type TaskKind string

const (
	// TaskSort asks the worker to sort one payload
	TaskSort TaskKind = "sort"
	// TaskMerge asks the worker to merge two sorted payloads
	TaskMerge TaskKind = "merge"
	// TaskIdle tells the worker there is no work this round
	TaskIdle TaskKind = "idle"
	// TaskDone tells the worker no further rounds follow
	TaskDone TaskKind = "done"
)

// payloadCount is the number of payloads each kind carries
var payloadCount = map[TaskKind]int{
	TaskSort:  1,
	TaskMerge: 2,
	TaskIdle:  0,
	TaskDone:  0,
}

// Payload is a length-framed run of integers
type Payload struct {
	Length int     `json:"length"`
	Values []int32 `json:"values"`
}

// NewPayload frames values. The slice is not copied: ownership moves with
// the message.
func NewPayload(values []int32) Payload {
	return Payload{Length: len(values), Values: values}
}

// Validate checks the declared length against the values
func (p Payload) Validate() error {
	if p.Length != len(p.Values) {
		return fmt.Errorf("%w: declared length %d, got %d values", ErrProtocol, p.Length, len(p.Values))
	}
	return nil
}

// Task is one message from the coordinator to a worker.
// Round is 0 for the sort round and counts merge rounds from 1.
type Task struct {
	Kind     TaskKind  `json:"kind"`
	Payloads []Payload `json:"payloads,omitempty"`
	Round    int       `json:"round"`
}

// Result is a worker's reply to a sort or merge task
type Result struct {
	Payload Payload `json:"payload"`
}

func SortTask(values []int32) Task {
	return Task{Kind: TaskSort, Payloads: []Payload{NewPayload(values)}}
}

func MergeTask(round int, a, b []int32) Task {
	return Task{Kind: TaskMerge, Round: round, Payloads: []Payload{NewPayload(a), NewPayload(b)}}
}

func IdleTask(round int) Task {
	return Task{Kind: TaskIdle, Round: round}
}

func DoneTask() Task {
	return Task{Kind: TaskDone}
}

// Validate checks the kind and the framing of every payload
func (t Task) Validate() error {
	want, ok := payloadCount[t.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown task kind %q", ErrProtocol, t.Kind)
	}
	if len(t.Payloads) != want {
		return fmt.Errorf("%w: %s task carries %d payloads, want %d", ErrProtocol, t.Kind, len(t.Payloads), want)
	}
	for _, p := range t.Payloads {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ExpectsReply reports whether the worker answers this task with a Result
func (t Task) ExpectsReply() bool {
	return t.Kind == TaskSort || t.Kind == TaskMerge
}

// Endpoint is the coordinator's handle on one worker. Exchange delivers a
// task and, for sort and merge, blocks until the result arrives; for idle
// and done it returns a nil Result once the task is delivered.
type Endpoint interface {
	Exchange(ctx context.Context, task Task) (*Result, error)
}

// HTTPEndpoint reaches a worker node through its /task handler
type HTTPEndpoint struct {
	Addr string
}

// Exchange implements Endpoint
func (e HTTPEndpoint) Exchange(ctx context.Context, task Task) (*Result, error) {
	url := strings.TrimRight(e.Addr, "/") + "/task"
	if !task.ExpectsReply() {
		return nil, postJSON(ctx, taskClient, url, task, nil)
	}

	var res Result
	if err := postJSON(ctx, taskClient, url, task, &res); err != nil {
		return nil, err
	}
	if err := res.Payload.Validate(); err != nil {
		return nil, err
	}
	return &res, nil
}
