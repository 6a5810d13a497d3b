package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/stewardhq/steward/internal/config"
	"github.com/stewardhq/steward/internal/domain"
	"github.com/stewardhq/steward/internal/taskstore"
)

var (
	listStatus    string
	addTags       []string
	addDesc       string
	respondAuthor string
	historyLimit  int
)

func init() {
	// status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show agent and queue status",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	// tasks command
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks",
		RunE:  runTasks,
	}
	tasksCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	rootCmd.AddCommand(tasksCmd)

	// add command
	addCmd := &cobra.Command{
		Use:   "add TITLE",
		Short: "Add a new task",
		Args:  cobra.ExactArgs(1),
		RunE:  runAdd,
	}
	addCmd.Flags().StringVar(&addDesc, "description", "", "task description")
	addCmd.Flags().StringSliceVar(&addTags, "tag", nil, "task tags")
	rootCmd.AddCommand(addCmd)

	// respond command
	respondCmd := &cobra.Command{
		Use:   "respond TASK TEXT",
		Short: "Answer a task that is waiting for human input",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runRespond,
	}
	respondCmd.Flags().StringVar(&respondAuthor, "author", "user", "comment author")
	rootCmd.AddCommand(respondCmd)

	// cancel command
	cancelCmd := &cobra.Command{
		Use:   "cancel TASK",
		Short: "Cancel a task",
		Args:  cobra.ExactArgs(1),
		RunE:  runCancel,
	}
	rootCmd.AddCommand(cancelCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent engine runs",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func openStore() (*taskstore.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return taskstore.New(cfg.General.DatabasePath)
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	state, err := store.LoadAgentState()
	if err != nil {
		return err
	}

	fmt.Printf("Agent: %s", state.State)
	if state.CurrentTaskID != "" {
		fmt.Printf(" (task %s)", state.CurrentTaskID)
	}
	fmt.Printf(" | %d tasks processed", state.ProcessedCount)
	if !state.UpdatedAt.IsZero() {
		fmt.Printf(" | updated %s", humanize.Time(state.UpdatedAt))
	}
	fmt.Println()
	if state.LastError != "" {
		fmt.Printf("Last error: %s\n", state.LastError)
	}

	tasks, err := store.ListTasks()
	if err != nil {
		return err
	}

	counts := map[domain.TaskStatus]int{}
	for _, t := range tasks {
		counts[t.Status]++
	}
	fmt.Printf("Tasks: %d total | %d new | %d in progress | %d needs review | %d waiting | %d done\n",
		len(tasks), counts[domain.StatusNew], counts[domain.StatusInProgress],
		counts[domain.StatusNeedsReview], counts[domain.StatusWaiting], counts[domain.StatusDone])

	return nil
}

func runTasks(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var tasks []*domain.Task
	if listStatus != "" {
		tasks, err = store.ListByStatus(domain.TaskStatus(listStatus))
	} else {
		tasks, err = store.ListTasks()
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tUPDATED")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			t.ID, t.Title, t.Status, humanize.Time(t.UpdatedAt))
	}
	w.Flush()

	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	task := &domain.Task{
		Title:       args[0],
		Description: addDesc,
		Status:      domain.StatusNew,
		Tags:        addTags,
	}
	if err := store.CreateTask(task); err != nil {
		return err
	}

	fmt.Printf("Created task %s\n", task.ID)
	return nil
}

func runRespond(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	taskID := args[0]
	body := strings.Join(args[1:], " ")

	task, err := store.GetTask(taskID)
	if err != nil {
		return err
	}

	if _, err := store.AppendComment(taskID, respondAuthor, body); err != nil {
		return err
	}

	// A reply to a review request makes the task eligible again. Replies
	// in other states just land as comments.
	if domain.CanTransition(task.Status, domain.StatusUserInputReceived) {
		if err := store.UpdateTaskStatus(taskID, domain.StatusUserInputReceived); err != nil {
			return err
		}
		fmt.Printf("Recorded reply; task %s is ready to resume\n", taskID)
		return nil
	}

	fmt.Printf("Recorded comment on task %s (status %s unchanged)\n", taskID, task.Status)
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	taskID := args[0]
	task, err := store.GetTask(taskID)
	if err != nil {
		return err
	}

	if err := domain.ValidateTransition(task.Status, domain.StatusCancelled); err != nil {
		return err
	}
	if err := store.UpdateTaskStatus(taskID, domain.StatusCancelled); err != nil {
		return err
	}

	fmt.Printf("Cancelled task %s\n", taskID)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.RecentRuns(historyLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tOUTCOME\tFINISHED\tDETAIL")
	for _, r := range runs {
		detail := r.Detail
		if len(detail) > 60 {
			detail = detail[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.TaskID, r.Outcome, humanize.Time(r.FinishedAt), detail)
	}
	w.Flush()

	return nil
}
