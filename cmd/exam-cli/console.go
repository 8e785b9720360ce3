package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/countdown"
	"github.com/stemsi/exstem-attempt/internal/examclient"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/poller"
	"github.com/stemsi/exstem-attempt/internal/session"
)

const helpText = `commands:
  register <last> <first> <phone> <faculty>   create an account
  login <phone>                               sign in
  start                                       begin the attempt
  state                                       blocks, progress and time left
  show <prog|math|ru>                         list a block
  answer <question_id> <option|->             select an option, "-" clears it
  lang <task_id> <python|cpp|node>            set the draft language
  code <task_id>                              edit code, finish with a line "."
  submit                                      flush saves and submit
  result                                      wait for the graded result
  quit                                        exit`

// console is a line-oriented front end over the session Store.
type console struct {
	in          *bufio.Scanner
	out         *bufio.Writer
	interactive bool
	client      *examclient.Client
	newStore    func() *session.Store
	store       *session.Store
	poller      *poller.Poller
	log         zerolog.Logger

	lines chan string
	outMu sync.Mutex
}

func (c *console) printf(format string, args ...any) {
	c.outMu.Lock()
	fmt.Fprintf(c.out, format, args...)
	c.outMu.Unlock()
}

func (c *console) flush() {
	c.outMu.Lock()
	c.out.Flush()
	c.outMu.Unlock()
}

// notify prints an asynchronous event from a timer or network goroutine.
func (c *console) notify(format string, args ...any) {
	c.printf("\n! "+format+"\n", args...)
	c.flush()
}

func (c *console) prompt() {
	if !c.interactive {
		return
	}
	if c.store.Status() == model.AttemptStatusInProgress {
		c.printf("[%s] > ", countdown.Format(c.store.Remaining()))
	} else {
		c.printf("> ")
	}
	c.flush()
}

func (c *console) readLine() (string, bool) {
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimRight(c.in.Text(), "\r"), true
}

// run reads commands until EOF, "quit" or cancellation.
func (c *console) run(ctx context.Context) error {
	c.lines = make(chan string)
	go func() {
		defer close(c.lines)
		for {
			line, ok := c.readLine()
			if !ok {
				return
			}
			select {
			case c.lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		c.prompt()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-c.lines:
			if !ok {
				return nil
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if fields[0] == "quit" || fields[0] == "exit" {
				return nil
			}
			if err := c.dispatch(ctx, fields[0], fields[1:]); err != nil {
				c.printf("error: %v\n", err)
			}
			c.flush()
		}
	}
}

func (c *console) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		c.printf("%s\n", helpText)
		return nil
	case "register":
		return c.register(ctx, args)
	case "login":
		return c.login(ctx, args)
	case "start":
		if err := c.store.Start(ctx); err != nil {
			return err
		}
		return c.showState()
	case "state":
		return c.showState()
	case "show":
		if len(args) != 1 {
			return errors.New("usage: show <prog|math|ru>")
		}
		return c.showBlock(model.Block(args[0]))
	case "answer":
		return c.answer(args)
	case "lang":
		if len(args) != 2 {
			return errors.New("usage: lang <task_id> <language>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return c.store.SetLanguage(id, args[1])
	case "code":
		return c.code(ctx, args)
	case "submit":
		return c.submit(ctx)
	case "result":
		return c.result(ctx)
	}
	return fmt.Errorf("unknown command %q, try \"help\"", cmd)
}

// ─── Auth ───────────────────────────────────────────────────────────────────

func (c *console) register(ctx context.Context, args []string) error {
	if len(args) < 4 {
		return errors.New("usage: register <last> <first> <phone> <faculty>")
	}
	tok, err := c.client.Register(ctx, model.RegisterRequest{
		LastName:  args[0],
		FirstName: args[1],
		Phone:     args[2],
		Faculty:   strings.Join(args[3:], " "),
	})
	if err != nil {
		return err
	}
	return c.signedIn(ctx, tok.AccessToken)
}

func (c *console) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: login <phone>")
	}
	phone := args[0]

	tok, err := c.client.Login(ctx, phone)
	if err != nil {
		return err
	}
	return c.signedIn(ctx, tok.AccessToken)
}

// signedIn swaps the credential and starts over with a fresh Store, since an
// invalidated Store never recovers.
func (c *console) signedIn(ctx context.Context, token string) error {
	c.client.SetToken(token)
	c.store.Close()
	c.store = c.newStore()

	me, err := c.client.Me(ctx)
	if err != nil {
		return err
	}
	c.printf("signed in as %s %s (%s)\n", me.LastName, me.FirstName, me.Faculty)

	if err := c.store.Load(ctx); err != nil {
		return err
	}
	if !c.store.HasAttempt() {
		c.printf("no attempt yet, type \"start\" to begin\n")
		return nil
	}
	return c.showState()
}

// ─── Exam ───────────────────────────────────────────────────────────────────

func (c *console) showState() error {
	st := c.store.Snapshot()
	if st == nil {
		return session.ErrNoAttempt
	}
	c.printf("attempt %s: %s\n", st.AttemptID, st.Status)
	if st.Status == model.AttemptStatusInProgress {
		c.printf("time left: %s (ends %s)\n", countdown.Format(c.store.Remaining()), st.EndsAt.Local().Format("15:04:05"))
	}
	for _, b := range model.Blocks {
		total := len(st.Questions(b))
		if b == model.BlockProg {
			total = len(st.ProgTasks)
		}
		c.printf("  %-5s %d/%d\n", b, c.store.AnsweredCount(b), total)
	}
	if n := c.store.Unsaved(); n > 0 {
		c.printf("unsaved edits: %d\n", n)
	}
	return nil
}

func (c *console) showBlock(b model.Block) error {
	st := c.store.Snapshot()
	if st == nil {
		return session.ErrNoAttempt
	}

	if b == model.BlockProg {
		for _, t := range st.ProgTasks {
			d := st.Drafts[t.ID]
			c.printf("#%d %s (%d pts) [%s, %d bytes]\n  %s\n", t.ID, t.Title, t.Points, d.Language, len(d.Code), t.Statement)
		}
		return nil
	}

	qs := st.Questions(b)
	if qs == nil {
		return fmt.Errorf("unknown block %q", b)
	}
	for _, q := range qs {
		c.printf("#%d %s (%d pts)\n", q.ID, q.Text, q.Points)
		selected, _ := c.store.Answer(q.ID)
		for i, opt := range q.Options {
			mark := " "
			if selected != nil && *selected == i {
				mark = "*"
			}
			c.printf("  %s %d) %s\n", mark, i, opt)
		}
	}
	return nil
}

func (c *console) answer(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: answer <question_id> <option|->")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if args[1] == "-" {
		return c.store.SetAnswer(id, nil)
	}
	idx, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("option must be a number: %w", err)
	}
	return c.store.SetAnswer(id, &idx)
}

func (c *console) code(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: code <task_id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	c.printf("enter code, end with a single \".\" line\n")
	c.flush()

	var b strings.Builder
	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-c.lines:
		}
		if !ok || strings.TrimSpace(line) == "." {
			break
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return c.store.SetCode(id, b.String())
}

func (c *console) submit(ctx context.Context) error {
	if err := c.store.Submit(ctx); err != nil {
		return err
	}
	c.printf("submitted, type \"result\" to wait for grading\n")
	return nil
}

func (c *console) result(ctx context.Context) error {
	c.printf("waiting for the result...\n")
	c.flush()

	out, err := c.poller.Run(ctx)
	if err != nil {
		return err
	}
	r := out.Result
	c.printf("status: %s, total: %d\n", r.Status, r.ScoreTotal)
	for _, b := range model.Blocks {
		c.printf("  %-5s %d\n", b, r.ScoreBlocks[b])
	}
	if out.Attempt == nil {
		return nil
	}

	for _, t := range out.Attempt.ProgTasks {
		c.printf("  prog #%d %s: %s\n", t.ID, t.Title, verdict(r.PerTask[t.ID]))
	}
	for _, b := range []model.Block{model.BlockMath, model.BlockRu} {
		for _, q := range out.Attempt.Questions(b) {
			c.printf("  %s #%d: %s\n", b, q.ID, verdict(r.PerQuestion[q.ID]))
		}
	}
	return nil
}

func verdict(ok bool) string {
	if ok {
		return "correct"
	}
	return "wrong"
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
