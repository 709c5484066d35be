package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type sessionReply struct {
	SessionID   string    `json:"sessionId"`
	ProcessID   int32     `json:"processId"`
	ProcessName string    `json:"processName"`
	StartTime   time.Time `json:"startTime"`
	FilePath    string    `json:"filePath"`
	Status      string    `json:"status"`
}

type statusReply struct {
	Status         string        `json:"status"`
	CurrentSession *sessionReply `json:"currentSession"`
	ElapsedTime    *float64      `json:"elapsedTime"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current recording status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context())
	},
}

func init() {
	addDaemonFlags(statusCmd)
	rootCmd.AddCommand(statusCmd)
}

func runStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var reply statusReply
	if err := callDaemon(ctx, "/recording/status", &reply); err != nil {
		return err
	}

	if reply.CurrentSession == nil {
		fmt.Println("idle")
		return nil
	}

	sess := reply.CurrentSession
	fmt.Printf("recording %s (pid %d)\n", sess.ProcessName, sess.ProcessID)
	fmt.Printf("  session: %s\n", sess.SessionID)
	fmt.Printf("  file:    %s\n", sess.FilePath)
	fmt.Printf("  started: %s\n", sess.StartTime.Local().Format(time.RFC3339))
	if reply.ElapsedTime != nil {
		elapsed := time.Duration(*reply.ElapsedTime * float64(time.Second))
		fmt.Printf("  elapsed: %s\n", elapsed.Round(time.Second))
	}
	return nil
}
