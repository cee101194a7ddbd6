package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/session"
)

// Kind is the action of an input line.
type Kind int

const (
	KindMessage  Kind = iota // plain text sent to the tutor
	KindAnswer               // /answer N [solution]
	KindQuestion             // /ask text
	KindDone                 // /done ends the chat
	KindQuit                 // /quit or /exit
	KindHelp                 // /help
)

// Command is a parsed input line.
type Command struct {
	Kind Kind
	// Option is the zero-based option index of an answer.
	Option int
	Text   string
}

var errQuit = errors.New("quit")

// ParseCommand parses one input line. Lines that do not start with a known
// command are messages.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "/answer":
		num, solution, _ := strings.Cut(rest, " ")
		n, err := strconv.Atoi(num)
		if err != nil || n < 1 {
			return Command{}, fmt.Errorf("invalid option number %q", num)
		}
		return Command{Kind: KindAnswer, Option: n - 1, Text: strings.TrimSpace(solution)}, nil
	case "/ask":
		if rest == "" {
			return Command{}, errors.New("empty question")
		}
		return Command{Kind: KindQuestion, Text: rest}, nil
	case "/done":
		return Command{Kind: KindDone}, nil
	case "/quit", "/exit":
		return Command{Kind: KindQuit}, nil
	case "/help":
		return Command{Kind: KindHelp}, nil
	}
	return Command{Kind: KindMessage, Text: line}, nil
}

// Play loads the session task and then executes commands read from in
// until /quit, end of input or ctx is done. Input is read while the task is
// loading; /quit and /help act at once, other commands wait for the load.
func Play(ctx context.Context, o *session.Orchestrator, v *View, in io.Reader) error {
	g, ctx := errgroup.WithContext(ctx)

	lines := make(chan string)
	// The reader is not part of the group: a blocked Read cannot be
	// interrupted and must not hold up the return.
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			slog.Warn("read input", "error", err)
		}
	}()

	loaded := make(chan struct{})
	g.Go(func() error {
		defer close(loaded)
		if task, ok := o.Load(ctx); ok {
			slog.Debug("task loaded", "task_id", task.ID)
		}
		return nil
	})
	g.Go(func() error {
		for {
			var (
				line string
				ok   bool
			)
			select {
			case <-ctx.Done():
				return nil
			case line, ok = <-lines:
			}
			if !ok {
				<-loaded
				o.WaitTyping()
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			cmd, err := ParseCommand(line)
			if err != nil {
				v.Println(i18n.T(v.ctx, "ConsoleAnswerUsage"))
				continue
			}
			switch cmd.Kind {
			case KindQuit:
				return errQuit
			case KindHelp:
				v.Println(i18n.T(v.ctx, "ConsoleHelp"))
				continue
			}
			select {
			case <-loaded:
			case <-ctx.Done():
				return nil
			}
			run(ctx, o, v, cmd)
		}
	})

	err := g.Wait()
	if errors.Is(err, errQuit) {
		v.Println(i18n.T(v.ctx, "ConsoleBye"))
		return nil
	}
	return err
}

func run(ctx context.Context, o *session.Orchestrator, v *View, cmd Command) {
	before := v.Notices()
	var ok bool
	switch cmd.Kind {
	case KindAnswer:
		ok = o.SubmitAnswer(ctx, cmd.Option, cmd.Text)
	case KindQuestion:
		ok = o.SendMessage(ctx, cmd.Text, model.MarkerStudentQuestion)
	case KindDone:
		ok = o.EndChat(ctx)
	default:
		ok = o.SendMessage(ctx, cmd.Text, model.MarkerStudentAnswer)
	}
	o.WaitTyping()
	if !ok && ctx.Err() == nil && v.Notices() == before {
		v.Println(i18n.T(v.ctx, "ConsoleRejected"))
	}
}
