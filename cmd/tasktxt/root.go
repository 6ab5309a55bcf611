package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/msageha/tasktxt/internal/events"
	"github.com/msageha/tasktxt/internal/notify"
	"github.com/msageha/tasktxt/internal/setup"
	"github.com/msageha/tasktxt/internal/status"
	"github.com/msageha/tasktxt/internal/todotxt"
	"github.com/msageha/tasktxt/internal/view"
)

const (
	groupSetup = "setup"
	groupTask  = "task"
	groupInfo  = "info"
)

// notifyFunc is swapped out in tests.
var notifyFunc = notify.Send

// execute runs the command line args and releases everything the
// command opened.
func execute(args []string, stdout, stderr io.Writer) error {
	a := &app{stderr: stderr}
	defer a.close()

	root := newRootCommand(a, version)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}

func newRootCommand(a *app, version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "tasktxt",
		Short: "Manage a todo.txt task list",
		Long: `tasktxt reads and writes tasks in the todo.txt format.

Open tasks live in todo.txt and finished ones in done.txt. Every write
keeps a .bak copy of the previous file, and lines that cannot be read are
moved to a .rejected file instead of being lost.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default $TASKTXT_CONFIG or $XDG_CONFIG_HOME/tasktxt/config.yaml)")

	root.PersistentFlags().BoolVar(&a.strict, "strict", false, "fail on unreadable lines instead of skipping them")

	root.AddGroup(
		&cobra.Group{ID: groupSetup, Title: "Setup:"},
		&cobra.Group{ID: groupTask, Title: "Tasks:"},
		&cobra.Group{ID: groupInfo, Title: "Information:"},
	)

	for _, c := range []*cobra.Command{newInitCommand(a)} {
		c.GroupID = groupSetup
		root.AddCommand(c)
	}
	for _, c := range []*cobra.Command{
		newListCommand(a),
		newAddCommand(a),
		newDoCommand(a),
		newUndoCommand(a),
		newEditCommand(a),
		newNoteCommand(a),
		newTagCommand(a),
		newRestoreCommand(a),
	} {
		c.GroupID = groupTask
		root.AddCommand(c)
	}
	for _, c := range []*cobra.Command{
		newWordsCommand(a, "projects", "List projects of open tasks"),
		newWordsCommand(a, "contexts", "List contexts of open tasks"),
		newWordsCommand(a, "hashtags", "List hashtags of open tasks"),
		newStatusCommand(a),
		newWatchCommand(a),
		newHistoryCommand(a),
	} {
		c.GroupID = groupInfo
		root.AddCommand(c)
	}
	return root
}

func newInitCommand(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a config and create empty task files",
		Long: `Write a config file pointing at dir (default $TODO_DIR or ~/.todo)
and create todo.txt and done.txt there if they do not exist.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := setup.Options{ConfigPath: a.configPath, Force: force}
			if len(args) == 1 {
				opts.Dir = args[0]
			}
			res, err := setup.Run(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config written to %s\n", res.ConfigPath)
			for _, p := range res.Created {
				fmt.Fprintf(out, "  created %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")
	return cmd
}

func newListCommand(a *app) *cobra.Command {
	var all, done, deferred, hidden bool
	cmd := &cobra.Command{
		Use:   "list [view] [name|query]",
		Short: "List tasks",
		Long: `List the tasks of one view, sorted for display.

Views: inbox (default), agenda, flag, done, search <query>,
project <name>, context <name>, hashtag <name>.`,
		Aliases: []string{"ls"},
		Args:    cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			name := a.cfg.View.Default
			if len(args) > 0 {
				name = args[0]
			}
			arg := ""
			if len(args) > 1 {
				arg = args[1]
			}
			v, ok := view.ByName(name, arg)
			if !ok {
				return fmt.Errorf("unknown view %q", strings.TrimSpace(name+" "+arg))
			}

			policy := a.store.Policy()
			flags := cmd.Flags()
			if flags.Changed("done") || all {
				policy.Done = done || all
			}
			if flags.Changed("deferred") || all {
				policy.Deferred = deferred || all
			}
			if flags.Changed("hidden") || all {
				policy.Hidden = hidden || all
			}
			a.store.SetPolicy(policy)

			tasks := a.store.View(v)
			today := a.store.Today()
			st := newStyles(cmd.OutOrStdout())
			if _, isAgenda := v.(view.Agenda); isAgenda {
				st.agenda(cmd.OutOrStdout(), tasks, today)
			} else {
				st.list(cmd.OutOrStdout(), tasks, today)
			}
			st.summary(cmd.OutOrStdout(), len(tasks), a.store.Current().List.Len())
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVarP(&all, "all", "a", false, "show done, deferred and hidden tasks")
	f.BoolVar(&done, "done", false, "show finished tasks")
	f.BoolVar(&deferred, "deferred", false, "show tasks whose threshold date is in the future")
	f.BoolVar(&hidden, "hidden", false, "show tasks tagged h:1")
	return cmd
}

func newAddCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <text>...",
		Short: "Add a task",
		Long: `Add a task. Today's date is set as its creation date.

Example:
  tasktxt add "(A) call mom +family @phone due:2024-03-12 rec:+1w"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			t, err := a.store.Add(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added task %d: %s\n", t.ID, t.Line())
			return nil
		},
	}
}

func newDoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "do <id>...",
		Short: "Mark tasks done",
		Long: `Mark tasks done. Completing a task with a rec: tag adds its next
occurrence.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			// Ids shift after every write, so resolve them all first.
			lines, err := a.linesOf(ids)
			if err != nil {
				return err
			}
			for i, line := range lines {
				t, err := a.findOpen(line)
				if err != nil {
					return fmt.Errorf("task %d: %w", ids[i], err)
				}
				next, err := a.store.Complete(cmd.Context(), t.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Completed: %s\n", line)
				if next != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Next: %s\n", next.Line())
				}
			}
			return nil
		},
	}
}

func newUndoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "undo <id>",
		Short: "Mark a finished task as open again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			t, err := a.store.Current().List.Get(ids[0])
			if err != nil {
				return err
			}
			if !t.Finished {
				return fmt.Errorf("task %d is not done", ids[0])
			}
			if _, err := a.store.Complete(cmd.Context(), ids[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reopened: %s\n", t.Subject)
			return nil
		},
	}
}

func newEditCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <text>...",
		Short: "Replace the text of a task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[:1])
			if err != nil {
				return err
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			t, err := a.store.Edit(cmd.Context(), ids[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated: %s\n", t.Line())
			return nil
		},
	}
}

func newNoteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "note <id> [text]...",
		Short: "Show or replace the note of a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[:1])
			if err != nil {
				return err
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			if len(args) == 1 {
				t, err := a.store.Current().List.Get(ids[0])
				if err != nil {
					return err
				}
				content, err := t.Note.Content()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), content)
				return nil
			}
			t, err := a.store.SetNote(cmd.Context(), ids[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if p := t.Note.Path(); p != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Note saved to %s\n", p)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Note removed")
			}
			return nil
		},
	}
}

func newTagCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tag <id> <key> [value]",
		Short: "Set or remove a key:value tag",
		Long: `Set key:value on a task, or remove every key: tag when no value is
given. Dates, recurrence, h:, f: and the note tag are changed with edit.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[:1])
			if err != nil {
				return err
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			value := ""
			if len(args) == 3 {
				value = args[2]
			}
			t, err := a.store.SetTag(cmd.Context(), ids[0], args[1], value)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated: %s\n", t.Line())
			return nil
		},
	}
}

func newRestoreCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Put the .bak copies of the task files back",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			snap, err := a.store.Restore(cmd.Context())
			if snap == nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d task(s) after restore\n", snap.List.Len())
			return err
		},
	}
}

func newWordsCommand(a *app, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			l := a.store.Current().List
			var words []string
			switch name {
			case "projects":
				words = l.Projects()
			case "contexts":
				words = l.Contexts()
			default:
				words = l.Hashtags()
			}
			for _, w := range words {
				fmt.Fprintln(cmd.OutOrStdout(), w)
			}
			return nil
		},
	}
}

func newStatusCommand(a *app) *cobra.Command {
	var format string
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show task counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			if format == "" {
				format = a.cfg.Status.Format
			}
			if jsonOutput {
				format = "json"
			}
			s := status.Compute(a.store.Current().List, a.store.Today())
			return status.Write(cmd.OutOrStdout(), s, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "", "output format: text, json or yaml")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "same as --format json")
	return cmd
}

func newWatchCommand(a *app) *cobra.Command {
	var reload, desktop bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Report edits made to the task files by other programs",
		Long: `Watch todo.txt and done.txt and print a line whenever another
program changes them. With --reload the list is read again and the new
count printed; with --notify a desktop notification is shown too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.store.Watch(); err != nil {
				return err
			}
			changes, unsub := a.store.Changes()
			defer unsub()

			desktop = desktop || a.cfg.Notify.Enabled
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watching %s and %s (Ctrl-C to stop)\n", a.cfg.TodoFile, a.cfg.DoneFile)
			for {
				select {
				case <-ctx.Done():
					return nil
				case c, ok := <-changes:
					if !ok {
						return nil
					}
					msg := fmt.Sprintf("%s changed on disk", c.Path)
					if reload {
						snap, err := a.store.Reload(ctx)
						if err != nil {
							return err
						}
						msg = fmt.Sprintf("%s, reloaded %d task(s)", msg, snap.List.Len())
					} else {
						msg += "; run tasktxt list to see it"
					}
					fmt.Fprintf(out, "%s %s\n", c.At.Format("15:04:05"), msg)
					if desktop {
						if err := notifyFunc(a.cfg.Notify.Title, msg); err != nil {
							a.logger.Warnf("notification: %v", err)
						}
					}
				}
			}
		},
	}
	cmd.Flags().BoolVar(&reload, "reload", false, "reload the list after each change")
	cmd.Flags().BoolVar(&desktop, "notify", false, "show a desktop notification")
	return cmd
}

func newHistoryCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent saves and external edits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			if !a.cfg.History.Enabled {
				return errors.New("history is disabled; set history.enabled in the config")
			}
			entries, err := events.ReadJournal(a.cfg.History.File)
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			for _, e := range entries {
				line := fmt.Sprintf("%s %-15s %s", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.EventType, e.Op)
				if e.TaskID != nil {
					line += fmt.Sprintf(" #%d", *e.TaskID)
				}
				if e.Line != "" {
					line += " " + e.Line
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(line, " "))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show, 0 for all")
	return cmd
}

func parseIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, s := range args {
		id, err := strconv.Atoi(s)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("invalid task id %q", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// linesOf returns the stored lines of ids in the current snapshot.
func (a *app) linesOf(ids []int) ([]string, error) {
	l := a.store.Current().List
	lines := make([]string, len(ids))
	for i, id := range ids {
		t, err := l.Get(id)
		if err != nil {
			return nil, err
		}
		lines[i] = t.Line()
	}
	return lines, nil
}

// findOpen locates the first open task whose line is line.
func (a *app) findOpen(line string) (*todotxt.Task, error) {
	for _, t := range a.store.Current().Tasks() {
		if !t.Finished && t.Line() == line {
			return t, nil
		}
	}
	return nil, errors.New("not found or already done")
}
