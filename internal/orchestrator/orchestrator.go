// Package orchestrator implements cherry2k's single-exchange state
// machine: ParseMarkers -> ResolveSession -> LoadContext -> SaveUser ->
// RequestStream -> (StreamLoop race Cancel) -> SaveAssistant ->
// ClassifyIntent -> MaybeConfirmAndExecute -> MaybeCleanup. Grounded on
// the teacher's internal/ai/messages.go message-assembly idiom
// (system-then-history-then-user ordering, "[Router] ..." logging) and
// on original_source's cli::main exchange loop for the exact step order.
package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"cherry2k/internal/cancel"
	cherrycontext "cherry2k/internal/context"
	"cherry2k/internal/exec"
	"cherry2k/internal/logging"
	"cherry2k/internal/provider"
	"cherry2k/internal/sessions"
)

// sessionMaxAge bounds how old a session can get before MaybeCleanup's
// probabilistic sweep considers it for deletion.
const sessionMaxAge = 30 * 24 * time.Hour

// Orchestrator wires the session store, active provider, and safety
// config together to run one chat exchange.
type Orchestrator struct {
	Store    *sessions.Store
	Provider provider.Provider
	Safety   SafetyPolicy

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	log *logging.Logger
}

// SafetyPolicy mirrors config.SafetyConfig without importing internal/config,
// keeping the orchestrator decoupled from config's JSON shape.
type SafetyPolicy struct {
	ConfirmCommands bool
	BlockedPatterns []string
}

// New constructs an Orchestrator. Stdin/Stdout/Stderr default to nil-safe
// zero values the caller is expected to set to os.Stdin/os.Stdout/os.Stderr.
func New(store *sessions.Store, p provider.Provider, safety SafetyPolicy) *Orchestrator {
	return &Orchestrator{
		Store:    store,
		Provider: p,
		Safety:   safety,
		log:      logging.New("orchestrator"),
	}
}

// ExchangeResult reports what happened during one RunExchange call.
type ExchangeResult struct {
	SessionID     string
	WasCancelled  bool
	WasSummarized bool
	Intent        Intent
}

// RunExchange executes exactly one exchange of the C7 state machine for
// a single utterance in workingDir.
func (o *Orchestrator) RunExchange(ctx context.Context, workingDir, rawInput string) (*ExchangeResult, error) {
	exchangeID := uuid.New().String()[:8]
	elog := o.log.WithID(exchangeID)
	elog.Debugf("starting exchange in %s", workingDir)

	parsed := ParseMarkers(rawInput)

	session, err := o.Store.GetOrCreateSession(workingDir)
	if err != nil {
		return nil, err
	}

	contextResult, err := cherrycontext.Prepare(ctx, o.Store, session.ID, o.Provider)
	if err != nil {
		return nil, err
	}
	if contextResult.WasSummarized {
		fmt.Fprintln(o.stderr(), "(older conversation history was summarized to stay within context limits)")
	}

	if _, err := o.Store.SaveMessage(session.ID, sessions.RoleUser, parsed.Cleaned, nil); err != nil {
		return nil, err
	}

	messages := make([]provider.Message, 0, len(contextResult.Messages)+2)
	messages = append(messages, provider.NewMessage(provider.RoleSystem, provider.CommandModeSystemPrompt))
	messages = append(messages, contextResult.Messages...)
	messages = append(messages, provider.NewMessage(provider.RoleUser, parsed.Cleaned))

	req := provider.NewCompletionRequest(messages).Build()

	token := cancel.Setup()
	accumulated, wasCancelled, err := o.streamLoop(ctx, req, token)
	if err != nil {
		return nil, err
	}

	// Best-effort persistence: a partial response from cancellation is
	// still worth saving, so swallow save errors here rather than
	// overriding the user-visible outcome of the exchange.
	if _, saveErr := o.Store.SaveMessage(session.ID, sessions.RoleAssistant, accumulated, nil); saveErr != nil {
		elog.Warnf("failed to save assistant message: %v", saveErr)
	}

	if wasCancelled {
		fmt.Fprintln(o.stderr(), "Cancelled by user.")
		return &ExchangeResult{SessionID: session.ID, WasCancelled: true, WasSummarized: contextResult.WasSummarized}, nil
	}

	intent := ClassifyIntent(accumulated, parsed.ForceQuestion)
	if intent.Kind == IntentCommand {
		o.maybeConfirmAndExecute(elog, intent, token)
	}

	if _, err := o.Store.CleanupOldSessions(sessionMaxAge); err != nil {
		elog.Warnf("session cleanup sweep failed: %v", err)
	}

	elog.Debugf("exchange complete, intent=%v cancelled=%v", intent.Kind, wasCancelled)
	return &ExchangeResult{SessionID: session.ID, WasSummarized: contextResult.WasSummarized, Intent: intent}, nil
}

// streamLoop races the provider's stream against the cancellation
// token, line-buffering stdout output and accumulating the full
// response text for persistence.
func (o *Orchestrator) streamLoop(ctx context.Context, req provider.CompletionRequest, token *cancel.Token) (string, bool, error) {
	reqCtx, cancelReq := context.WithCancel(ctx)
	defer cancelReq()

	chunkCh := make(chan provider.StreamEvent, 16)
	type streamResult struct {
		resp *provider.CompletionResponse
		err  error
	}
	resultCh := make(chan streamResult, 1)

	go func() {
		resp, err := o.Provider.Complete(reqCtx, req, func(ev provider.StreamEvent) {
			chunkCh <- ev
		})
		close(chunkCh)
		resultCh <- streamResult{resp: resp, err: err}
	}()

	var accumulated strings.Builder
	var lineBuf strings.Builder
	out := o.stdout()

	flushLine := func() {
		if lineBuf.Len() == 0 {
			return
		}
		fmt.Fprint(out, lineBuf.String())
		lineBuf.Reset()
	}

	for {
		select {
		case ev, ok := <-chunkCh:
			if !ok {
				flushLine()
				result := <-resultCh
				if result.err != nil {
					return accumulated.String(), false, result.err
				}
				return accumulated.String(), false, nil
			}
			if ev.Delta == "" {
				continue
			}
			accumulated.WriteString(ev.Delta)
			appendLineBuffered(&lineBuf, out, ev.Delta)

		case <-token.Cancelled():
			cancelReq()
			flushLine()
			<-resultCh // drain so the goroutine doesn't leak
			return accumulated.String(), true, nil
		}
	}
}

// appendLineBuffered writes delta into buf, flushing each completed
// line (through the final '\n') straight to out so streaming output
// appears smoothly without per-character jitter.
func appendLineBuffered(buf *strings.Builder, out io.Writer, delta string) {
	buf.WriteString(delta)
	content := buf.String()

	lastNewline := strings.LastIndexByte(content, '\n')
	if lastNewline == -1 {
		return
	}

	fmt.Fprint(out, content[:lastNewline+1])
	buf.Reset()
	buf.WriteString(content[lastNewline+1:])
}

func (o *Orchestrator) maybeConfirmAndExecute(elog *logging.Logger, intent Intent, token *cancel.Token) {
	command := intent.Command

	if err := exec.Guard(command, o.Safety.BlockedPatterns); err != nil {
		fmt.Fprintf(o.stderr(), "BLOCKED: %v\n", err)
		return
	}

	if o.Safety.ConfirmCommands {
		for {
			result, err := exec.ConfirmCommand(o.stdin(), o.stderr(), command)
			if err != nil {
				elog.Warnf("confirmation prompt failed: %v", err)
				return
			}

			switch result {
			case exec.ConfirmYes:
				if err := exec.Guard(command, o.Safety.BlockedPatterns); err != nil {
					fmt.Fprintf(o.stderr(), "BLOCKED: %v\n", err)
					return
				}
				o.execute(elog, command, token)
				return
			case exec.ConfirmNo:
				fmt.Fprintln(o.stderr(), "Command cancelled.")
				return
			case exec.ConfirmEdit:
				edited, err := exec.EditCommand(o.stdin(), o.stderr(), command)
				if err != nil {
					elog.Warnf("edit prompt failed: %v", err)
					return
				}
				command = edited
			}
		}
	}

	o.execute(elog, command, token)
}

func (o *Orchestrator) execute(elog *logging.Logger, command string, token *cancel.Token) {
	elog.Debugf("executing command: %s", command)
	result, err := exec.Run(command, token)
	if err != nil {
		fmt.Fprintf(o.stderr(), "FAILED: %v\n", err)
		return
	}
	switch {
	case result.WasCancelled:
		fmt.Fprintln(o.stderr(), "Terminated by user cancellation.")
	case result.ExitCode == 0:
		fmt.Fprintln(o.stderr(), "Command completed successfully.")
	default:
		fmt.Fprintf(o.stderr(), "FAILED (exit %d)\n", result.ExitCode)
	}
}

func (o *Orchestrator) stdin() io.Reader {
	if o.Stdin != nil {
		return o.Stdin
	}
	return bufio.NewReader(strings.NewReader(""))
}

func (o *Orchestrator) stdout() io.Writer {
	if o.Stdout != nil {
		return o.Stdout
	}
	return io.Discard
}

func (o *Orchestrator) stderr() io.Writer {
	if o.Stderr != nil {
		return o.Stderr
	}
	return io.Discard
}
