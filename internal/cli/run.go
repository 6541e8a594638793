package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskloom/taskloom/internal/config"
	"github.com/taskloom/taskloom/internal/phase"
	"github.com/taskloom/taskloom/internal/provider"
	"github.com/taskloom/taskloom/internal/secrets"
	"github.com/taskloom/taskloom/internal/storage"
	"github.com/taskloom/taskloom/internal/task"
	"github.com/taskloom/taskloom/internal/ui"
)

var (
	runPrompt     string
	runPhasesFile string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an agent task",
	RunE:  runTask,
}

func init() {
	runCmd.Flags().StringVarP(&runPrompt, "prompt", "p", "", "Task prompt (reads stdin if omitted)")
	runCmd.Flags().StringVar(&runPhasesFile, "phases", "", "JSON file with a phase plan")
}

func runTask(cmd *cobra.Command, args []string) error {
	printHeader("🧵 taskloom Run")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	prompt := strings.TrimSpace(runPrompt)
	if prompt == "" && len(args) > 0 {
		prompt = strings.TrimSpace(strings.Join(args, " "))
	}
	if prompt == "" {
		return fmt.Errorf("no prompt given: pass --prompt or arguments")
	}

	apiKey, err := secrets.ResolveAPIKey(cfg.Provider.APIKey)
	if err != nil {
		return err
	}

	var phases []phase.Phase
	if runPhasesFile != "" {
		data, err := os.ReadFile(runPhasesFile)
		if err != nil {
			return fmt.Errorf("read phase plan: %w", err)
		}
		if err := json.Unmarshal(data, &phases); err != nil {
			return fmt.Errorf("parse phase plan: %w", err)
		}
	}

	store, err := storage.NewTaskStore(cfg.Paths.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	transport := provider.NewOpenAIProvider(apiKey, cfg.Provider.APIBase, cfg.Model.Name,
		cfg.Model.MaxTokens, cfg.Model.Temperature, cfg.Provider.Timeout)
	console := ui.NewConsole(os.Stdin, os.Stdout)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := task.New(cfg, transport, console, store, phases)
	defer t.Close()

	fmt.Printf("Task: %s\n\n", t.ID())
	return t.Run(ctx, prompt)
}
