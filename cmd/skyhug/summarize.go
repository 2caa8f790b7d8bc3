package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSummarizeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "summarize <conversation_id>",
		Short: "Write the memory summary for one conversation",
		Long:  "Summarizes a conversation into a short phrase and stores it. Conversations with fewer than four replies are left alone.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummarize(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Skyhug config file")
	return cmd
}

func runSummarize(cmd *cobra.Command, configPath, conversationID string) error {
	a, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer a.log.Sync() //nolint:errcheck

	svc, err := a.summarizer(nil)
	if err != nil {
		return err
	}
	if err := svc.SummarizeAndStore(cmd.Context(), conversationID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Summarized conversation %s\n", conversationID)
	return nil
}

func newCleanupCmd() *cobra.Command {
	var (
		configPath string
		idle       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Summarize and end inactive conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(cmd, configPath, idle)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Skyhug config file")
	cmd.Flags().DurationVar(&idle, "idle", 0, "idle age to close (defaults to summarizer.interval_hours)")
	return cmd
}

func runCleanup(cmd *cobra.Command, configPath string, idle time.Duration) error {
	a, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer a.log.Sync() //nolint:errcheck

	if idle <= 0 {
		idle = a.cfg.Summarizer.Interval()
	}
	svc, err := a.summarizer(nil)
	if err != nil {
		return err
	}
	if err := svc.CloseInactive(cmd.Context(), idle); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Closed conversations idle for more than %s\n", idle)
	return nil
}
