package commands

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/knox/internal/projection"
	"github.com/systmms/knox/internal/session"
)

const browseHelp = `Commands:
  ls                     show the tree
  search [text]          filter by name or tag value (no text clears it)
  expand <key>           expand a vault or folder
  collapse <key>         collapse a vault or folder
  toggle <key>           flip a vault or folder
  show <vault#secret>    show a secret, value masked
  reveal <vault#secret>  show a secret with its value
  refresh                reload every vault
  help                   this text
  quit                   end the session

Keys: a vault is its name (corp-kv), a folder its path (corp-kv/Prod/DB),
a secret vault#name (corp-kv#db-password).
`

func NewBrowseCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse the secret tree interactively",
		Long: `Start an interactive shell over the folder tree of every configured vault.

Expand and collapse state is kept while searching and restored when the
search is cleared. With the idleMinutesClose setting the session ends after
that many minutes without input; a command already running is never
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			defer app.finish(cmd)

			for _, le := range s.LoadErrors() {
				fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", le.Vault, le.Err)
			}

			b := &browser{
				app:  app,
				cmd:  cmd,
				s:    s,
				out:  cmd.OutOrStdout(),
				view: projection.NewView(s.Sources(), s.ExpandedState()),
			}
			return b.run(app.idleTimeout(s))
		},
	}

	return cmd
}

// readLines feeds lines from r to the returned channel until r ends or done
// is closed. A read already blocked on r is not interrupted.
func readLines(r io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		br := bufio.NewReader(r)
		for {
			select {
			case <-done:
				return
			default:
			}
			line, err := readLine(br)
			if err != nil {
				return
			}
			select {
			case lines <- line:
			case <-done:
				return
			}
		}
	}()
	return lines
}

// idleTimeout is zero when the idle close is disabled.
func (a *App) idleTimeout(s *session.Session) time.Duration {
	unit := a.idleUnit
	if unit == 0 {
		unit = time.Minute
	}
	return time.Duration(s.Settings().IdleMinutesClose) * unit
}

type browser struct {
	app  *App
	cmd  *cobra.Command
	s    *session.Session
	out  io.Writer
	view *projection.View
}

func (b *browser) run(idle time.Duration) error {
	done := make(chan struct{})
	defer close(done)
	lines := readLines(b.cmd.InOrStdin(), done)

	var expired <-chan time.Time
	var timer *time.Timer
	if idle > 0 {
		timer = time.NewTimer(idle)
		defer timer.Stop()
		expired = timer.C
	}

	ctx := b.cmd.Context()
	if err := b.view.Render(b.out); err != nil {
		return err
	}
	for {
		fmt.Fprint(b.out, "knox> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(b.out)
			return nil
		case <-expired:
			fmt.Fprintf(b.out, "\nSession closed after %s without input\n", idle)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(b.out)
				return nil
			}
			if quit := b.exec(line); quit {
				return nil
			}
			if timer != nil {
				timer.Reset(idle)
			}
		}
	}
}

// exec runs one shell command and reports whether the session should end.
func (b *browser) exec(line string) bool {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg := strings.TrimSpace(rest)

	var err error
	switch strings.ToLower(verb) {
	case "":
	case "quit", "exit", "q":
		return true
	case "help", "?":
		fmt.Fprint(b.out, browseHelp)
	case "ls":
		err = b.view.Render(b.out)
	case "search":
		b.view.SetSearch(arg)
		err = b.view.Render(b.out)
	case "expand", "collapse":
		err = b.view.SetExpanded(arg, verb == "expand")
		if err == nil {
			err = b.view.Render(b.out)
		}
	case "toggle":
		_, err = b.view.Toggle(arg)
		if err == nil {
			err = b.view.Render(b.out)
		}
	case "show", "reveal":
		err = b.show(arg, verb == "reveal")
	case "refresh":
		err = b.refresh()
	default:
		err = fmt.Errorf("unknown command %q, type 'help' for a list", verb)
	}

	if err != nil {
		fmt.Fprintf(b.out, "✗ %v\n", err)
	}
	return false
}

func (b *browser) show(key string, reveal bool) error {
	ref, ok := b.view.Find(key)
	if !ok {
		return fmt.Errorf("no secret %q in the tree", key)
	}
	sr, ok := ref.(projection.SecretRef)
	if !ok {
		return fmt.Errorf("%q is a %s, not a secret", key, ref.Kind())
	}

	client, err := b.app.vault(b.s, sr.Vault)
	if err != nil {
		return err
	}
	sec, err := client.GetSecret(b.cmd.Context(), sr.Name)
	if err != nil {
		return b.app.storeError(sr.Vault, "Reading secret", err)
	}

	value := maskedValue
	if reveal {
		value = sec.Value
	}
	return writeSecretText(b.cmd, client.Name(), sec, value)
}

func (b *browser) refresh() error {
	for _, c := range b.s.Vaults() {
		if err := c.Refresh(b.cmd.Context()); err != nil {
			return b.app.storeError(c.Name(), "Refreshing vault", err)
		}
	}
	b.view.SetSources(b.s.Sources())
	return b.view.Render(b.out)
}
