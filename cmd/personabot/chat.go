package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/kalambet/personabot/internal/pipeline"
	"github.com/kalambet/personabot/internal/session"
)

// exitTokens end a console conversation. They are matched after trimming
// and lower-casing the input.
var exitTokens = map[string]struct{}{
	"exit":     {},
	"quit":     {},
	"bye":      {},
	"goodbye":  {},
	"good bye": {},
}

const resetCommand = "/reset"

func isExitToken(line string) bool {
	_, ok := exitTokens[strings.ToLower(strings.TrimSpace(line))]
	return ok
}

type lineReader interface {
	Readline() (string, error)
}

type responder interface {
	Respond(ctx context.Context, message string, history []session.Turn) (pipeline.Result, error)
}

// console is the interactive loop. It owns sess exclusively.
type console struct {
	in           lineReader
	out          io.Writer
	bot          responder
	sess         *session.Session
	name         string
	showDecision bool
}

// run reads lines until an exit token, EOF or interrupt. None of these is
// an error.
func (c *console) run(ctx context.Context) error {
	for {
		line, err := c.in.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case isExitToken(line):
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		case line == resetCommand:
			c.sess.Reset()
			fmt.Fprintln(c.out, colorize(colorCyan, "(conversation cleared)"))
			continue
		}

		res, err := c.bot.Respond(pipeline.WithSession(ctx, c.sess.ID), line, c.sess.History())
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			fmt.Fprintf(c.out, "%s %s\n", colorize(colorBold, c.name+":"),
				colorize(colorRed, "Sorry, I can't reach my language model right now. Please try again."))
			continue
		}

		fmt.Fprintf(c.out, "%s %s\n", colorize(colorBold, c.name+":"), res.Reply)
		if c.showDecision {
			d := string(res.Decision)
			fmt.Fprintf(c.out, "  %s\n", colorize(decisionColor(d), "["+d+"]"))
		}
		c.sess.Append(line, res.Reply)
	}
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the persona in the terminal",
	Long: `Start an interactive conversation. Type exit, quit, bye or goodbye to leave,
/reset to forget the conversation so far.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		showDecision, _ := cmd.Flags().GetBool("decisions")

		cfg, closeLog, err := loadConfigAndLogging()
		if err != nil {
			return err
		}
		defer closeLog()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		rl, err := readline.NewEx(&readline.Config{
			Prompt:          colorize(colorCyan, "You: "),
			HistoryFile:     filepath.Join(cfg.Storage.DataDir, "chat_history"),
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("starting console: %w", err)
		}
		defer rl.Close()

		welcome := a.governor.Welcome()
		fmt.Fprintf(os.Stdout, "%s %s\n", colorize(colorBold, a.botName+":"), welcome.Reply)

		c := &console{
			in:           rl,
			out:          os.Stdout,
			bot:          a.governor,
			sess:         session.New(cfg.Governance.HistoryWindow),
			name:         a.botName,
			showDecision: showDecision,
		}
		return c.run(ctx)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Ask the persona a single question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		message := strings.TrimSpace(strings.Join(args, " "))
		if message == "" {
			return errors.New("message required")
		}

		cfg, closeLog, err := loadConfigAndLogging()
		if err != nil {
			return err
		}
		defer closeLog()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.governor.Respond(pipeline.WithSession(ctx, "cli"), message, nil)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]string{"reply": res.Reply, "decision": string(res.Decision)})
		}
		fmt.Println(res.Reply)
		return nil
	},
}

func init() {
	chatCmd.Flags().Bool("decisions", false, "print the governance decision after each reply")
	askCmd.Flags().Bool("json", false, "print reply and decision as JSON")
}
