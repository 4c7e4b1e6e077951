package cli

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/servicechange/jobs"
)

// Inspector is the subset of *asynq.Inspector used by JobsCLI.
type Inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for the background jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: client, inspector: asynq.NewInspector(opts)}, nil
}

// NewJobsCLIWith wires the helpers to existing collaborators.
func NewJobsCLIWith(client *jobs.Client, inspector Inspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		err = errors.CombineErrors(err, c.inspector.Close())
	}
	if c.client != nil {
		err = errors.CombineErrors(err, c.client.Close())
	}
	return err
}

// Trigger enqueues a supported job by name. referenceDate (YYYY-MM-DD) pins the day a
// transition run evaluates; empty means tomorrow in the configured zone. force repeats
// a day that already completed.
func (c *JobsCLI) Trigger(ctx context.Context, name, referenceDate string, force bool) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case "transition", jobs.TaskTypeTransition:
		info, err := c.client.EnqueueTransition(ctx, jobs.TransitionPayload{ReferenceDate: referenceDate, Force: force})
		if err != nil {
			return nil, errors.Wrap(err, "enqueue transition")
		}
		return info, nil
	default:
		return nil, errors.Newf("jobs cli: unsupported job %s", name)
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return stats, nil
	}
	if err != nil {
		return QueueStats{}, err
	}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// Run executes a jobs subcommand:
//
//	jobs trigger transition [-date YYYY-MM-DD] [-force]
//	jobs stats
//	jobs scheduled [-size N]
func (c *JobsCLI) Run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: jobs trigger|stats|scheduled")
	}
	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		date := fs.String("date", "", "reference date YYYY-MM-DD")
		force := fs.Bool("force", false, "repeat a day that already completed")
		if len(args) < 2 {
			return errors.New("usage: jobs trigger <job> [-date YYYY-MM-DD] [-force]")
		}
		if err := fs.Parse(args[2:]); err != nil {
			return errors.Wrap(err, "parse flags")
		}
		info, err := c.Trigger(ctx, args[1], *date, *force)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "enqueued %s as %s on queue %s\n", info.Type, info.ID, info.Queue)
		return err
	case "stats":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return err
	case "scheduled":
		fs := flag.NewFlagSet("jobs scheduled", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		size := fs.Int("size", 10, "page size")
		if err := fs.Parse(args[1:]); err != nil {
			return errors.Wrap(err, "parse flags")
		}
		tasks, err := c.ListScheduled(ctx, *size)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			if _, err := fmt.Fprintf(stdout, "%s\t%s\t%s\n", task.ID, task.Type, task.NextProcessAt.Format("2006-01-02 15:04:05")); err != nil {
				return err
			}
		}
		return nil
	default:
		return errors.Newf("jobs cli: unknown command %s", args[0])
	}
}
