package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/erazemk/oddaja/internal/imaging"
	"github.com/erazemk/oddaja/internal/model"
	"github.com/erazemk/oddaja/internal/workflow"
)

// textOutput prints copied fields so they can be pasted from the terminal.
// Photos go to the exporter when one is configured.
type textOutput struct {
	w     io.Writer
	media *imaging.Exporter
}

func (o textOutput) CopyText(_ context.Context, step model.Step, text string) error {
	_, err := fmt.Fprintf(o.w, "--- %s ---\n%s\n", step, text)
	return err
}

func (o textOutput) CopyMedia(ctx context.Context, item model.WorkItem) (string, error) {
	if o.media == nil {
		return workflow.Discard{}.CopyMedia(ctx, item)
	}
	return imaging.Output{Exporter: o.media}.CopyMedia(ctx, item)
}

// terminal reads one key per line and dispatches it to the controller.
type terminal struct {
	ctrl *workflow.Controller
	keys *workflow.Keymap
	in   *bufio.Scanner
	out  io.Writer
}

func newTerminal(ctrl *workflow.Controller, in io.Reader, out io.Writer) (*terminal, error) {
	t := &terminal{ctrl: ctrl, in: bufio.NewScanner(in), out: out}
	keys, err := ctrl.Attach(t.prompt)
	if err != nil {
		return nil, err
	}
	t.keys = keys
	return t, nil
}

// prompt reads the destination reference. While it waits every line is
// text, so no key fires; an empty line cancels.
func (t *terminal) prompt(context.Context) (string, bool) {
	fmt.Fprint(t.out, "listing URL> ")
	if !t.in.Scan() {
		return "", false
	}
	ref := strings.TrimSpace(t.in.Text())
	return ref, ref != ""
}

func (t *terminal) notice(n workflow.Notice) {
	if n.Message == "" {
		return
	}
	fmt.Fprintf(t.out, "[%s] %s\n", n.Level, n.Message)
}

func (t *terminal) status() {
	st := t.ctrl.State()
	fmt.Fprintf(t.out, "queue: %d items", st.Queue.Len())
	if st.Item != nil {
		fmt.Fprintf(t.out, " | %s %q (%s) step %d/%d %s", st.Item.Kind, st.Item.Title, st.Item.Status,
			st.Step, model.StepFinalize, st.Step)
	}
	fmt.Fprintln(t.out)
}

func (t *terminal) help() {
	for _, b := range t.keys.Bindings() {
		fmt.Fprintf(t.out, "  %s  %s\n", b.KeyName, b.Description)
	}
	fmt.Fprintln(t.out, "  q  Quit")
}

func (t *terminal) action(key rune) workflow.Action {
	for _, b := range t.keys.Bindings() {
		if b.Key == key {
			return b.Action
		}
	}
	return ""
}

// claimNext opens the oldest ready item and claims it. A lost claim has
// already rebuilt the queue, so it moves on to the next ready item.
func (t *terminal) claimNext(ctx context.Context) {
	for tries := t.ctrl.State().Queue.Len(); tries > 0; tries-- {
		it, ok := t.ctrl.State().Queue.NextReady()
		if !ok {
			break
		}
		if n := t.ctrl.Open(ctx, it.Kind, it.ID); !n.OK() {
			t.notice(n)
			return
		}
		n := t.ctrl.Claim(ctx)
		t.notice(n)
		if !n.Refresh {
			return
		}
	}
	t.notice(workflow.Notice{Level: workflow.LevelInfo, Message: "Nothing ready to claim"})
}

func (t *terminal) run(ctx context.Context) error {
	defer t.ctrl.Detach()

	t.notice(t.ctrl.Refresh(ctx))
	t.claimNext(ctx)
	t.status()
	t.help()

	for {
		fmt.Fprint(t.out, "> ")
		if !t.in.Scan() {
			return t.in.Err()
		}
		line := strings.TrimSpace(t.in.Text())
		if line == "" {
			continue
		}
		key := []rune(line)[0]
		switch key {
		case 'q':
			return nil
		case '?', 'h':
			t.help()
			continue
		}

		n, ok := t.keys.Dispatch(ctx, key, false)
		if !ok {
			fmt.Fprintf(t.out, "unknown key %q, ? for help\n", key)
			continue
		}
		t.notice(n)
		if a := t.action(key); n.OK() && (a == workflow.ActionPublish || a == workflow.ActionError) {
			t.claimNext(ctx)
		}
		t.status()

		if err := ctx.Err(); err != nil {
			return nil
		}
	}
}
