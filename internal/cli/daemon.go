package cli

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marquev/sked/errors"
	"github.com/marquev/sked/job"
	"github.com/marquev/sked/logger"
	"github.com/marquev/sked/sched"
)

// NewDaemonCmd runs the scheduler until interrupted.
func NewDaemonCmd(setup func() (*env, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the scheduler daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			cfg := sched.Config{
				PollInterval:           e.cfg.PollInterval.Duration,
				WorkerCount:            e.cfg.WorkerCount,
				LockDeadline:           e.cfg.LockDeadline.Duration,
				MaxDispatchesPerMinute: e.cfg.MaxDispatchesPerMinute,
			}
			s := sched.New(e.st, cfg, logger.Logger.Named("sched"))

			if err := s.Register("shell", shellHandler); err != nil {
				return err
			}

			s.Start()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			received := <-sig
			logger.Infow("Shutting down", "signal", received.String())

			s.Stop()
			return nil
		},
	}
}

// shellPayload is the data contract for the built-in shell handler.
type shellPayload struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// shellHandler executes a command from the job payload and returns its
// combined output.
func shellHandler(ctx context.Context, data json.RawMessage) (json.RawMessage, error) {
	var payload shellPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errors.Wrap(err, "invalid shell payload")
	}
	if payload.Command == "" {
		return nil, errors.New("shell payload missing command")
	}

	out, err := exec.CommandContext(ctx, payload.Command, payload.Args...).CombinedOutput()
	if err != nil {
		return nil, errors.Wrapf(err, "command failed: %s", string(out))
	}

	result, err := json.Marshal(map[string]string{"output": string(out)})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode command output")
	}
	return result, nil
}

var _ job.HandlerFunc = shellHandler
