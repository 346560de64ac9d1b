package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/vehrelay/app"
	"github.com/kilianp07/vehrelay/core/model"
	"github.com/kilianp07/vehrelay/core/tracker"
)

var printPayloads bool

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Listen to vehicle parameters and report state changes",
	RunE:  runSubscribe,
}

func init() {
	subscribeCmd.Flags().BoolVar(&printPayloads, "print", false, "print every received payload")
	rootCmd.AddCommand(subscribeCmd)
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	return withService(func(ctx context.Context, svc *app.Service) error {
		var onMessage func(model.Payload)
		if printPayloads {
			onMessage = func(p model.Payload) {
				data, err := json.MarshalIndent(p, "", "  ")
				if err != nil {
					return
				}
				fmt.Fprintf(out, "Received message: %s\n", data)
			}
		}
		onEvent := func(ev tracker.Event) {
			switch ev.Kind {
			case tracker.Activated:
				fmt.Fprintf(out, "%s activated at speed %.1f\n", ev.Field, ev.Speed)
			case tracker.Deactivated:
				fmt.Fprintf(out, "%s deactivated\n", ev.Field)
			}
		}
		return svc.RunSubscriber(ctx, onMessage, onEvent)
	})
}
