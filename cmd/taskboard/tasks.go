package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Joseda-hg/taskboard/internal/model"
)

func tasksCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Work with tasks without the dashboard",
	}
	cmd.AddCommand(tasksListCmd(flags))
	cmd.AddCommand(tasksAddCmd(flags))
	cmd.AddCommand(tasksStatusCmd(flags, "done", "Mark a task completed", true))
	cmd.AddCommand(tasksStatusCmd(flags, "undo", "Mark a task pending", false))
	cmd.AddCommand(tasksRemoveCmd(flags))
	cmd.AddCommand(tasksShowCmd(flags))
	return cmd
}

func tasksListCmd(flags *globalFlags) *cobra.Command {
	var (
		filters model.TaskFilters
		status  string
		prio    string
		sortBy  string
		order   string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*flags)
			if err != nil {
				return err
			}
			defer a.Close()

			filters.Status = model.Status(status)
			filters.Priority = model.Priority(prio)
			criteria := model.Criteria{
				Filters: filters,
				Sort:    model.TaskSort{By: model.SortField(sortBy), Order: model.SortOrder(order)},
			}

			before := a.collection.Criteria()
			if err := a.collection.SetCriteria(cmd.Context(), criteria); err != nil {
				return err
			}
			if a.collection.Criteria() == before {
				if err := a.collection.Refetch(cmd.Context()); err != nil {
					return err
				}
			}

			printTasks(cmd.OutOrStdout(), a.collection.State().Tasks, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending or completed")
	cmd.Flags().StringVar(&prio, "priority", "", "low, medium or high")
	cmd.Flags().StringVar(&filters.Tag, "tag", "", "only tasks with this tag")
	cmd.Flags().StringVarP(&filters.Search, "search", "s", "", "match title, description or tags")
	cmd.Flags().StringVar(&filters.DueFrom, "due-from", "", "earliest due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&filters.DueTo, "due-to", "", "latest due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&sortBy, "sort", string(model.SortByCreatedAt), "created_at, due_date, priority or title")
	cmd.Flags().StringVar(&order, "order", string(model.SortDesc), "asc or desc")
	return cmd
}

func tasksAddCmd(flags *globalFlags) *cobra.Command {
	var (
		description string
		priority    string
		tags        []string
		due         string
		recurrence  string
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*flags)
			if err != nil {
				return err
			}
			defer a.Close()

			input := model.TaskCreate{
				Title:      strings.Join(args, " "),
				Priority:   model.Priority(priority),
				Tags:       tags,
				Recurrence: model.Recurrence(recurrence),
			}
			if description != "" {
				input.Description = &description
			}
			if due != "" {
				parsed, err := model.ParseTimestamp(due)
				if err != nil {
					return fmt.Errorf("--due: %w", err)
				}
				input.DueDate = &parsed
			}

			created, err := a.mutations.Create(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task %d: %s\n", created.ID, created.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringVarP(&priority, "priority", "p", string(model.PriorityLow), "low, medium or high")
	cmd.Flags().StringSliceVarP(&tags, "tags", "t", nil, "comma separated tags")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&recurrence, "recurrence", "r", string(model.RecurrenceNone), "none, daily, weekly or monthly")
	return cmd
}

func tasksStatusCmd(flags *globalFlags, use, short string, completed bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(*flags)
			if err != nil {
				return err
			}
			defer a.Close()

			var task model.Task
			if completed {
				task, err = a.mutations.Complete(cmd.Context(), id)
			} else {
				task, err = a.mutations.Incomplete(cmd.Context(), id)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", checkbox(task), task.Title)
			return nil
		},
	}
}

func tasksRemoveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(*flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.mutations.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %d\n", id)
			return nil
		},
	}
}

func tasksShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(*flags)
			if err != nil {
				return err
			}
			defer a.Close()

			task, err := a.client.GetTask(cmd.Context(), id)
			if err != nil {
				return err
			}
			printTask(cmd.OutOrStdout(), task, time.Now())
			return nil
		},
	}
}

func parseTaskID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", value)
	}
	return id, nil
}

func checkbox(task model.Task) string {
	if task.Completed {
		return "[x]"
	}
	return "[ ]"
}

func dueText(task model.Task, now time.Time) string {
	if task.DueDate == nil {
		return "-"
	}
	text := humanize.RelTime(task.DueDate.Time, now, "ago", "from now")
	if model.TaskDueState(task, now) == model.DueOverdue {
		return "overdue " + text
	}
	return text
}

func printTasks(w io.Writer, list []model.Task, now time.Time) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No tasks")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDONE\tPRIORITY\tDUE\tTAGS\tTITLE")
	for _, task := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			task.ID, checkbox(task), task.Priority, dueText(task, now), strings.Join(task.Tags, ","), task.Title)
	}
	_ = tw.Flush()
}

func printTask(w io.Writer, task model.Task, now time.Time) {
	fmt.Fprintf(w, "%s %s\n", checkbox(task), task.Title)
	fmt.Fprintf(w, "  id:         %d\n", task.ID)
	fmt.Fprintf(w, "  priority:   %s\n", task.Priority)
	fmt.Fprintf(w, "  recurrence: %s\n", task.Recurrence)
	fmt.Fprintf(w, "  due:        %s\n", dueText(task, now))
	if len(task.Tags) > 0 {
		fmt.Fprintf(w, "  tags:       %s\n", strings.Join(task.Tags, ", "))
	}
	if !task.CreatedAt.IsZero() {
		fmt.Fprintf(w, "  created:    %s\n", humanize.Time(task.CreatedAt.Time))
	}
	if task.Description != nil && *task.Description != "" {
		fmt.Fprintf(w, "\n%s\n", *task.Description)
	}
}
