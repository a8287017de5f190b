package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/client"
	"github.com/matheus3301/dmsync/internal/config"
	"github.com/matheus3301/dmsync/internal/instance"
	"github.com/matheus3301/dmsync/internal/lock"
	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/status"
	"github.com/matheus3301/dmsync/internal/syncstore"
)

var (
	flagRegion string
	flagID     string
	flagMedia  string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		name := instance.Resolve(flagInstance)
		info, running := lock.Read(instance.Dir(name))
		healthy := false
		if running {
			resp, err := http.Get(baseURL() + "/healthz")
			if err == nil {
				healthy = resp.StatusCode == http.StatusOK
				_ = resp.Body.Close()
			}
		}
		if flagJSON {
			return printJSON(map[string]any{
				"instance": name,
				"running":  running,
				"pid":      info.PID,
				"addr":     info.Addr,
				"healthy":  healthy,
			})
		}
		if !running {
			fmt.Printf("instance %s: not running\n", name)
			return nil
		}
		fmt.Printf("instance %s: running (pid %d, %s, healthy=%v)\n", name, info.PID, info.Addr, healthy)
		return nil
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage participants",
}

var usersAddCmd = &cobra.Command{
	Use:   "add <full name> <phone>",
	Short: "Register a participant",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := timeout()
		defer cancel()
		u, err := newClient().CreateUser(ctx, model.User{ID: flagID, FullName: args[0], PhoneNumber: args[1], Region: flagRegion})
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(u)
		}
		fmt.Printf("%s\t%s\t%s\n", u.ID, u.FullName, u.PhoneNumber)
		return nil
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:     "delete",
	Short:   "Remove the participant given by --as",
	Args:    cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error { return requireIdentity() },
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := timeout()
		defer cancel()
		return newClient().DeleteUser(ctx, flagAs)
	},
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Manage your contacts",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return requireIdentity()
	},
}

var contactsAddCmd = &cobra.Command{
	Use:   "add <name> <phone>",
	Short: "Add the participant registered with phone",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := timeout()
		defer cancel()
		c, err := newClient().AddContact(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(c)
		}
		fmt.Printf("%s\t%s\t%s\n", c.ContactID, c.Name, c.PhoneNumber)
		return nil
	},
}

var contactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := timeout()
		defer cancel()
		list, err := newClient().Contacts(ctx)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(list)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPHONE")
		for _, c := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.ContactID, c.Name, c.PhoneNumber)
		}
		return w.Flush()
	},
}

var chatsCmd = &cobra.Command{
	Use:     "chats",
	Short:   "List your conversations",
	PreRunE: func(cmd *cobra.Command, args []string) error { return requireIdentity() },
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := timeout()
		defer cancel()
		list, err := newClient().Chats(ctx)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(list)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PARTNER\tNAME\tUNREAD\tLAST")
		for _, c := range list {
			last := ""
			if c.LastMessage != nil {
				last = preview(*c.LastMessage)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.PartnerID, c.DisplayName, c.UnreadCount, last)
		}
		return w.Flush()
	},
}

var historyCmd = &cobra.Command{
	Use:     "history <partner>",
	Short:   "Print a conversation",
	Args:    cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error { return requireIdentity() },
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := timeout()
		defer cancel()
		msgs, err := newClient().History(ctx, args[0])
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(msgs)
		}
		for _, m := range msgs {
			fmt.Println(formatLine(m, flagAs))
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:     "send <partner> [text]",
	Short:   "Send a message",
	Args:    cobra.RangeArgs(1, 2),
	PreRunE: func(cmd *cobra.Command, args []string) error { return requireIdentity() },
	RunE: func(cmd *cobra.Command, args []string) error {
		text := ""
		if len(args) == 2 {
			text = args[1]
		}
		ctx, cancel := timeout()
		defer cancel()
		m, err := newClient().Send(ctx, args[0], text, flagMedia)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(m)
		}
		fmt.Println(m.ID)
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:     "read <sender>",
	Short:   "Mark everything from sender as read",
	Args:    cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error { return requireIdentity() },
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := timeout()
		defer cancel()
		n, err := newClient().MarkRead(ctx, args[0])
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(map[string]int64{"updatedCount": n})
		}
		fmt.Printf("%d marked read\n", n)
		return nil
	},
}

var presenceCmd = &cobra.Command{
	Use:     "presence",
	Short:   "List connected participants",
	PreRunE: func(cmd *cobra.Command, args []string) error { return requireIdentity() },
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := timeout()
		defer cancel()
		online, err := newClient().Presence(ctx)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(map[string][]string{"online": online})
		}
		for _, id := range online {
			fmt.Println(id)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:     "watch <partner>",
	Short:   "Open a live conversation; lines typed on stdin are sent",
	Args:    cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error { return requireIdentity() },
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(args[0])
	},
}

func init() {
	usersAddCmd.Flags().StringVar(&flagRegion, "region", "", "ISO region for the phone number (default: daemon default_region)")
	usersAddCmd.Flags().StringVar(&flagID, "id", "", "use this id instead of a generated one")
	sendCmd.Flags().StringVar(&flagMedia, "media", "", "media URL to attach")

	usersCmd.AddCommand(usersAddCmd, usersDeleteCmd)
	contactsCmd.AddCommand(contactsAddCmd, contactsListCmd)
	rootCmd.AddCommand(statusCmd, usersCmd, contactsCmd, chatsCmd, historyCmd, sendCmd, readCmd, presenceCmd, watchCmd)
}

type bellNotifier struct{}

func (bellNotifier) Notify(m model.Message) {
	fmt.Fprintf(os.Stderr, "\a[new message from %s] %s\n", m.SenderID, preview(m))
}

func runWatch(partner string) error {
	log := newLogger()
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base := baseURL()
	rt, err := client.Dial(ctx, base, flagAs, log)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	cfg, err := config.LoadOrDefault(instance.ConfigPath())
	if err != nil {
		return err
	}
	b := bus.New()
	states, unsub := b.Subscribe(status.KindStateChanged, 16)
	defer unsub()

	store := syncstore.New(syncstore.Config{
		Self:         flagAs,
		API:          client.New(base, flagAs),
		Events:       rt,
		Notifier:     bellNotifier{},
		ReadDebounce: cfg.ReadDebounce.Duration,
		Bus:          b,
		Logger:       log,
	})
	if err := store.Start(); err != nil {
		return err
	}
	defer store.Stop()

	if err := store.LoadSummaries(ctx); err != nil {
		log.Warn("load summaries", zap.Error(err))
	}
	if err := store.Open(ctx, partner); err != nil {
		return err
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if _, err := store.Send(sendCtx, line, ""); err != nil {
				fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			}
			cancel()
		}
	}()

	tr := newTranscript(flagAs)
	for _, line := range tr.update(store.Messages()) {
		fmt.Println(line)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-rt.Done():
			return fmt.Errorf("event channel closed: %w", rt.Err())
		case evt := <-states:
			if c, ok := evt.Payload.(status.StatusChange); ok {
				log.Debug("view state changed",
					zap.String("from", string(c.From)),
					zap.String("to", string(c.To)),
					zap.Uint64("epoch", c.Epoch),
				)
			}
		case <-store.RefreshCh():
			for _, line := range tr.update(store.Messages()) {
				fmt.Println(line)
			}
		}
	}
}

// transcript turns successive snapshots of the open conversation into
// append-only terminal output. Confirmed messages print once; an outgoing
// message that becomes read later gets a receipt line.
type transcript struct {
	self string
	read map[string]bool
}

func newTranscript(self string) *transcript {
	return &transcript{self: self, read: make(map[string]bool)}
}

func (tr *transcript) update(msgs []model.Message) []string {
	var out []string
	for _, m := range msgs {
		if m.Optimistic {
			continue
		}
		wasRead, seen := tr.read[m.ID]
		switch {
		case !seen:
			out = append(out, formatLine(m, tr.self))
		case !wasRead && m.Read && m.SenderID == tr.self:
			out = append(out, fmt.Sprintf("%s   ✓✓ read: %s", m.CreatedAt.Format(time.TimeOnly), preview(m)))
		}
		tr.read[m.ID] = m.Read
	}
	return out
}

func preview(m model.Message) string {
	if m.Text != "" {
		return m.Text
	}
	return "[media] " + m.Media
}

func formatLine(m model.Message, self string) string {
	dir := "<"
	if m.SenderID == self {
		dir = ">"
	}
	mark := ""
	if m.SenderID == self && m.Read {
		mark = " ✓✓"
	}
	return fmt.Sprintf("%s %s %s%s", m.CreatedAt.Format(time.TimeOnly), dir, preview(m), mark)
}
