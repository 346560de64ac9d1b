package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/vehrelay/app"
	"github.com/kilianp07/vehrelay/core/model"
	"github.com/kilianp07/vehrelay/core/scheduler"
	"github.com/kilianp07/vehrelay/core/sim"
)

var publishOpts struct {
	payload     string
	interval    time.Duration
	count       int
	simulate    bool
	seed        int64
	stopOnError bool
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish vehicle parameters",
	Long: "Publish a vehicle parameters snapshot once, or repeatedly with --interval.\n" +
		"The payload is the built-in sample unless --payload names a JSON or YAML file.",
	RunE: runPublish,
}

func init() {
	f := publishCmd.Flags()
	f.StringVar(&publishOpts.payload, "payload", "", "payload file (.json, .yaml)")
	f.DurationVar(&publishOpts.interval, "interval", 0, "delay between publishes; 0 publishes once")
	f.IntVar(&publishOpts.count, "count", 0, "number of publishes; 0 runs until interrupted when --interval is set")
	f.BoolVar(&publishOpts.simulate, "simulate", false, "evolve the payload with the drive simulator")
	f.Int64Var(&publishOpts.seed, "seed", 1, "drive simulator seed")
	f.BoolVar(&publishOpts.stopOnError, "stop-on-error", false, "abort on the first failed publish")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	src, err := payloadSource()
	if err != nil {
		return err
	}
	sched := scheduler.Schedule{
		Interval:    publishOpts.interval,
		Count:       publishOpts.count,
		StopOnError: publishOpts.stopOnError,
	}
	return withService(func(ctx context.Context, svc *app.Service) error {
		sum, err := svc.RunPublisher(ctx, sched, src)
		fmt.Fprintf(cmd.OutOrStdout(), "published %d payload(s), %d failed\n", sum.Sent, sum.Failed)
		return err
	})
}

func payloadSource() (scheduler.Source, error) {
	p := model.Sample()
	if publishOpts.payload != "" {
		var err error
		if p, err = model.LoadFile(publishOpts.payload); err != nil {
			return nil, fmt.Errorf("load payload: %w", err)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if !publishOpts.simulate {
		return scheduler.Static(p), nil
	}
	tick := publishOpts.interval
	if tick <= 0 {
		tick = time.Second
	}
	return sim.NewDrive(publishOpts.seed, p, tick).Next, nil
}
