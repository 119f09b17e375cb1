package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/collegeos/portal/internal/cli/client"
	"github.com/collegeos/portal/internal/cli/localstate"
	"github.com/collegeos/portal/internal/cli/poller"
)

var (
	ErrBroadcastAdminOnly = errors.New("only admins can post in broadcast rooms")
	ErrRoomNotFound       = errors.New("chat room not found")
)

type watchOptions struct {
	schedule string
	once     bool
}

func addWatchFlags(cmd *cobra.Command, opts *watchOptions) {
	cmd.Flags().StringVar(&opts.schedule, "schedule", "", "Poll schedule, e.g. '@every 10s' (default from COLLEGEOS_POLL_SCHEDULE)")
	cmd.Flags().BoolVar(&opts.once, "once", false, "Fetch once and exit")
}

// watch runs fn on the poll schedule until interrupted. Each tick only
// prints items not seen before.
func watch(ctx context.Context, a *App, name string, opts watchOptions, fn poller.TickFunc) error {
	if opts.once {
		return fn(ctx)
	}

	schedule := opts.schedule
	if schedule == "" {
		schedule = a.Config.CLI.PollSchedule
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	task, err := poller.Start(ctx, name, schedule, fn, a.Log)
	if err != nil {
		return err
	}
	<-ctx.Done()
	task.Stop()
	return nil
}

// NewAlertsCmd creates the alerts command group
func NewAlertsCmd(provide Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Campus alerts",
	}

	var opts watchOptions
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Print new alerts as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provide()
			if err != nil {
				return err
			}
			return runAlertsWatch(cmd.Context(), a, opts)
		},
	}
	addWatchFlags(watchCmd, &opts)

	cmd.AddCommand(watchCmd)
	return cmd
}

func runAlertsWatch(ctx context.Context, a *App, opts watchOptions) error {
	if _, err := a.RequireSession(ctx); err != nil {
		return err
	}
	st, err := a.LocalState()
	if err != nil {
		return err
	}

	var mu sync.Mutex
	return watch(ctx, a, "alerts", opts, func(ctx context.Context) error {
		alerts, err := a.Client.Alerts().List(ctx, nil)
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		for _, alert := range alerts {
			fresh, err := markFresh(st, "alert", alert.ID)
			if err != nil {
				return err
			}
			if !fresh {
				continue
			}
			severity := strings.ToUpper(alert.Severity)
			if severity == "" {
				severity = "INFO"
			}
			a.printf("[%s] %s %s: %s\n", alert.CreatedAt.Local().Format("Jan 02 15:04"), severity, alert.Title, alert.Message)
		}
		return nil
	})
}

// markFresh records an item as seen and reports whether it was new
func markFresh(st *localstate.Store, kind, id string) (bool, error) {
	seen, err := st.Seen(kind, id)
	if err != nil || seen {
		return false, err
	}
	return true, st.MarkSeen(kind, id)
}

// NewChatCmd creates the chat command group
func NewChatCmd(provide Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat rooms",
	}

	rooms := &cobra.Command{
		Use:   "rooms",
		Short: "List chat rooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provide()
			if err != nil {
				return err
			}
			return runChatRooms(cmd.Context(), a)
		},
	}

	var opts watchOptions
	watchCmd := &cobra.Command{
		Use:   "watch <room>",
		Short: "Print new messages in a room as they arrive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provide()
			if err != nil {
				return err
			}
			return runChatWatch(cmd.Context(), a, args[0], opts)
		},
	}
	addWatchFlags(watchCmd, &opts)

	send := &cobra.Command{
		Use:   "send <room> <message>",
		Short: "Post a message to a room",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provide()
			if err != nil {
				return err
			}
			return runChatSend(cmd.Context(), a, args[0], strings.Join(args[1:], " "))
		},
	}

	cmd.AddCommand(rooms, watchCmd, send)
	return cmd
}

func findRoom(ctx context.Context, a *App, ref string) (*client.ChatRoom, error) {
	rooms, err := a.Client.ChatRooms().List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat rooms: %w", err)
	}
	for i := range rooms {
		if rooms[i].ID == ref || strings.EqualFold(rooms[i].Name, ref) {
			return &rooms[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, ref)
}

func runChatRooms(ctx context.Context, a *App) error {
	if _, err := a.RequireSession(ctx); err != nil {
		return err
	}
	rooms, err := a.Client.ChatRooms().List(ctx, nil)
	if err != nil {
		return err
	}
	if len(rooms) == 0 {
		a.printf("No chat rooms found.\n")
		return nil
	}

	w := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMODE")
	for _, room := range rooms {
		mode := "open"
		if room.Broadcast {
			mode = "broadcast"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", room.ID, room.Name, mode)
	}
	return w.Flush()
}

func runChatWatch(ctx context.Context, a *App, ref string, opts watchOptions) error {
	if _, err := a.RequireSession(ctx); err != nil {
		return err
	}
	room, err := findRoom(ctx, a, ref)
	if err != nil {
		return err
	}
	st, err := a.LocalState()
	if err != nil {
		return err
	}

	kind := "chat:" + room.ID
	var mu sync.Mutex
	return watch(ctx, a, "chat "+room.Name, opts, func(ctx context.Context) error {
		messages, err := a.Client.ChatMessages(room.ID).List(ctx, nil)
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		for _, msg := range messages {
			fresh, err := markFresh(st, kind, msg.ID)
			if err != nil {
				return err
			}
			if fresh {
				a.printf("[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04"), msg.SenderName, msg.Content)
			}
		}
		return nil
	})
}

// runChatSend refuses to post into a broadcast room for non-admins before
// calling the backend, which enforces the same rule.
func runChatSend(ctx context.Context, a *App, ref, content string) error {
	sess, err := a.RequireSession(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return errors.New("message is empty")
	}

	room, err := findRoom(ctx, a, ref)
	if err != nil {
		return err
	}
	if room.Broadcast && !sess.IsAdmin() {
		return ErrBroadcastAdminOnly
	}

	if _, err := a.Client.ChatMessages(room.ID).Create(ctx, map[string]string{"content": content}); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	a.printf("✓ Sent to %s\n", room.Name)
	return nil
}
