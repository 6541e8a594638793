package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/taskloom/taskloom/internal/config"
	"github.com/taskloom/taskloom/internal/state"
	"github.com/taskloom/taskloom/internal/storage"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ taskloom Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var tasksShowID string

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List recorded tasks from the history index",
	RunE:  listTasks,
}

func init() {
	tasksCmd.Flags().StringVar(&tasksShowID, "show", "", "Show the recorded event log of one task")
}

func listTasks(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := storage.NewTaskStore(cfg.Paths.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	if tasksShowID != "" {
		return showTask(store, tasksShowID)
	}

	records, err := store.ListTaskIndex()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No tasks recorded yet.")
		return nil
	}

	printHeader("🗂 taskloom Tasks")
	for _, rec := range records {
		when := time.UnixMilli(rec.Ts).Format("2006-01-02 15:04")
		title := rec.Task
		if len(title) > 60 {
			title = title[:57] + "..."
		}
		fmt.Printf("%s  %s  %s\n", color.CyanString(rec.ID[:8]), when, title)
		fmt.Printf("          tokens in/out %d/%d  cost $%.4f  size %dB\n",
			rec.TokensIn, rec.TokensOut, rec.TotalCost, rec.Size)
		if rec.CheckpointError != "" {
			fmt.Printf("          %s %s\n", color.YellowString("checkpoints:"), rec.CheckpointError)
		}
	}
	return nil
}

func showTask(store *storage.TaskStore, id string) error {
	events, err := store.LoadUIEvents(id)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Printf("No event log for task %s.\n", id)
		return nil
	}
	for _, ev := range events {
		when := time.UnixMilli(ev.Ts).Format("15:04:05")
		label := ev.Say
		if ev.Kind == state.KindAsk {
			label = "ask:" + ev.Ask
		}
		fmt.Printf("%s  %-24s %s\n", when, label, ev.Text)
	}
	return nil
}
