package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

type processReply struct {
	ID                 int32  `json:"id"`
	Name               string `json:"name"`
	HasAudioCapability bool   `json:"hasAudioCapability"`
}

type processesReply struct {
	Processes []processReply `json:"processes"`
	Timestamp time.Time      `json:"timestamp"`
}

var processesCmd = &cobra.Command{
	Use:   "processes",
	Short: "List processes that can be recorded",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcesses(cmd.Context())
	},
}

func init() {
	addDaemonFlags(processesCmd)
	rootCmd.AddCommand(processesCmd)
}

func runProcesses(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var reply processesReply
	if err := callDaemon(ctx, "/processes", &reply); err != nil {
		return err
	}

	if len(reply.Processes) == 0 {
		fmt.Println("no recordable processes found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PID\tNAME\tAUDIO")
	for _, p := range reply.Processes {
		audioMark := "-"
		if p.HasAudioCapability {
			audioMark = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", p.ID, p.Name, audioMark)
	}
	return w.Flush()
}
