package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hazem-soussi-HA/hazoom/internal/apiclient"
	"github.com/hazem-soussi-HA/hazoom/internal/config"
	"github.com/hazem-soussi-HA/hazoom/internal/llm"
	"github.com/hazem-soussi-HA/hazoom/internal/sse"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat with a running HAZoom server",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("level")
		session, _ := cmd.Flags().GetString("session")
		user, _ := cmd.Flags().GetString("user")
		render, _ := cmd.Flags().GetBool("render")

		if level != "" {
			if _, err := llm.ParseLevel(level); err != nil {
				return err
			}
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client := newClient()
		client.Session = session
		client.User = user

		r := newREPL(cfg, client, os.Stdout, level)
		if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
			if w, _, err := term.GetSize(fd); err == nil {
				r.width = w
			}
		}
		if render {
			renderer, err := glamour.NewTermRenderer(
				glamour.WithStandardStyle("dark"),
				glamour.WithWordWrap(100),
			)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: markdown rendering disabled: %v\n", err)
			} else {
				r.renderer = renderer
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		fmt.Printf("HAZoom chat on %s. Type /help for commands.\n", serverURL)
		return r.run(ctx, os.Stdin)
	},
}

// repl is the line-oriented chat loop.
type repl struct {
	client   *apiclient.Client
	out      io.Writer
	level    string
	delay    time.Duration
	renderer *glamour.TermRenderer
	width    int // terminal columns, 0 when out is not a terminal
}

// newREPL returns a chat loop that types offline replies at the configured
// typing delay.
func newREPL(cfg *config.Config, client *apiclient.Client, out io.Writer, level string) *repl {
	return &repl{client: client, out: out, level: level, delay: cfg.TypingDelay}
}

// live reports whether tokens are printed as they arrive. Rendered replies
// are only streamed when the raw text can be erased afterwards.
func (r *repl) live() bool {
	return r.renderer == nil || r.width > 0
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if quit := r.command(ctx, input); quit {
				return nil
			}
			continue
		}
		if err := r.send(ctx, input); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(r.out, "Error: %v\n", err)
		}
	}
}

// command handles a slash command and reports whether the loop should stop.
func (r *repl) command(ctx context.Context, input string) bool {
	switch {
	case input == "/quit" || input == "/exit":
		return true

	case input == "/help":
		fmt.Fprintln(r.out, "Commands:")
		fmt.Fprintln(r.out, "  /level <nano|standard|super|quantum>  change intelligence level")
		fmt.Fprintln(r.out, "  /clear                                clear conversation history")
		fmt.Fprintln(r.out, "  /stats                                show session statistics")
		fmt.Fprintln(r.out, "  /quit                                 leave the chat")

	case input == "/level":
		fmt.Fprintln(r.out, "Usage: /level <nano|standard|super|quantum>")

	case strings.HasPrefix(input, "/level "):
		level := strings.TrimSpace(strings.TrimPrefix(input, "/level "))
		resp, err := r.client.SetLevel(ctx, level)
		if err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
			return false
		}
		r.level = resp.IntelligenceLevel
		fmt.Fprintln(r.out, resp.Message)

	case input == "/clear":
		if err := r.client.Clear(ctx); err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
			return false
		}
		fmt.Fprintln(r.out, "Conversation history cleared.")

	case input == "/stats":
		st, err := r.client.Stats(ctx)
		if err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
			return false
		}
		fmt.Fprintf(r.out, "Level:    %s\n", st.IntelligenceLevel)
		fmt.Fprintf(r.out, "Model:    %s\n", st.Stats.CurrentModel)
		fmt.Fprintf(r.out, "Messages: %d\n", st.ConversationLength)
		fmt.Fprintf(r.out, "Tokens:   %d used, %d available\n", st.Stats.ContextTokens, st.Stats.AvailableTokens)
		fmt.Fprintf(r.out, "Memories: %d\n", st.Stats.MemoryCount)

	default:
		fmt.Fprintf(r.out, "Unknown command %s. Type /help for commands.\n", input)
	}
	return false
}

// send streams one reply. When the server cannot be reached the offline
// notice is typed out locally instead.
func (r *repl) send(ctx context.Context, message string) error {
	events, err := r.client.StreamChat(ctx, message, r.level)
	if apiclient.IsUnreachable(err) {
		return r.offline(ctx, message)
	}
	if err != nil {
		return err
	}
	defer func() {
		for range events {
		}
	}()

	var full, printed strings.Builder
	for ev := range events {
		if ev.Err != nil {
			return ev.Err
		}
		switch ev.Name {
		case sse.EventToken:
			var p sse.TokenPayload
			if json.Unmarshal([]byte(ev.Data), &p) != nil {
				continue
			}
			full.WriteString(p.Token)
			if r.live() {
				printed.WriteString(p.Token)
				fmt.Fprint(r.out, p.Token)
			}
		case sse.EventEnd:
			var p sse.EndPayload
			if json.Unmarshal([]byte(ev.Data), &p) == nil && p.FullResponse != "" {
				full.Reset()
				full.WriteString(p.FullResponse)
			}
		case sse.EventError:
			var p sse.ErrorPayload
			json.Unmarshal([]byte(ev.Data), &p)
			return fmt.Errorf("server: %s", p.Error)
		}
	}

	r.finish(printed.String(), full.String())
	return nil
}

func (r *repl) offline(ctx context.Context, message string) error {
	text := llm.OfflineResponse(message)
	var printed strings.Builder
	if r.live() {
		err := llm.Type(ctx, text, r.delay, func(token string) error {
			printed.WriteString(token)
			_, err := fmt.Fprint(r.out, token)
			return err
		})
		if err != nil {
			fmt.Fprintln(r.out)
			return err
		}
	}
	r.finish(printed.String(), text)
	return nil
}

// finish ends the streamed reply. With a renderer the printed raw text is
// erased and the whole reply is redrawn as markdown.
func (r *repl) finish(printed, text string) {
	if r.renderer == nil {
		fmt.Fprintln(r.out)
		return
	}
	out, err := r.renderer.Render(text)
	if err != nil {
		out = text + "\n"
	}
	if printed != "" {
		r.erase(printed)
	}
	fmt.Fprint(r.out, out)
}

// erase moves the cursor back to the first row of printed and clears from
// there to the end of the screen.
func (r *repl) erase(printed string) {
	if up := r.rows(printed) - 1; up > 0 {
		fmt.Fprintf(r.out, "\x1b[%dA", up)
	}
	fmt.Fprint(r.out, "\r\x1b[J")
}

// rows is the number of terminal rows printed occupies at r.width.
func (r *repl) rows(printed string) int {
	n := 0
	for _, line := range strings.Split(printed, "\n") {
		cells := runewidth.StringWidth(line)
		if r.width <= 0 || cells <= r.width {
			n++
			continue
		}
		n += (cells + r.width - 1) / r.width
	}
	return n
}

func init() {
	chatCmd.Flags().String("level", "", "intelligence level (nano, standard, super, quantum)")
	chatCmd.Flags().String("session", "cli", "session ID")
	chatCmd.Flags().String("user", "", "user identifier")
	chatCmd.Flags().Bool("render", false, "render replies as markdown")
	rootCmd.AddCommand(chatCmd)
}
