package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/editengine/pkg/edit"
	"github.com/openfroyo/editengine/pkg/telemetry"
)

// Session serves edit commands read from a stream until the stream ends or
// the context is cancelled. Cancellation ends Run even while it waits for
// input.
type Session struct {
	engine  *edit.Engine
	encoder *Encoder
	decoder *Decoder
	logger  zerolog.Logger
	version string
	timeout time.Duration

	commandCount int
	failedCount  int
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithVersion sets the version announced in READY.
func WithVersion(version string) SessionOption {
	return func(s *Session) { s.version = version }
}

// WithCommandTimeout sets the timeout of commands which do not carry one.
func WithCommandTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.timeout = d }
}

// NewSession creates a session reading commands from r and writing
// messages to w.
func NewSession(engine *edit.Engine, r io.Reader, w io.Writer, logger zerolog.Logger, opts ...SessionOption) *Session {
	s := &Session{
		engine:  engine,
		encoder: NewEncoder(w),
		decoder: NewDecoder(r),
		logger:  logger.With().Str("component", "protocol").Logger(),
		version: "dev",
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run announces the session, serves commands and sends EXIT. The returned
// message is the one that was sent.
func (s *Session) Run(ctx context.Context) (*ExitMessage, error) {
	if err := s.sendReady(); err != nil {
		return nil, fmt.Errorf("failed to send ready: %w", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	reads := s.readCommands(stop)

	exit := &ExitMessage{Reason: "input_closed"}
loop:
	for {
		if ctx.Err() != nil {
			exit.Reason = "cancelled"
			break
		}
		var next decoded
		select {
		case <-ctx.Done():
			exit.Reason = "cancelled"
			break loop
		case next = <-reads:
		}
		if ctx.Err() != nil {
			exit.Reason = "cancelled"
			break
		}

		err := s.processCommand(ctx, next.cmd, next.err)
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		exit.Reason = "error"
		exit.ExitCode = 1
		s.logger.Error().Err(err).Msg("Stream failed")
		break
	}

	exit.CommandsTotal = s.commandCount
	exit.CommandsFailed = s.failedCount
	if err := s.encoder.EncodeExit(exit); err != nil {
		return exit, fmt.Errorf("failed to send exit: %w", err)
	}
	return exit, nil
}

func (s *Session) sendReady() error {
	engines := []string{}
	for _, def := range s.engine.Registry().Definitions() {
		engines = append(engines, def.EngineKey())
	}
	return s.encoder.EncodeReady(&ReadyMessage{
		Version:  s.version,
		Engines:  engines,
		Commands: CommandTypes,
		Metadata: map[string]string{"timeout": s.timeout.String()},
	})
}

// decoded is one read from the command stream.
type decoded struct {
	cmd *CommandMessage
	err error
}

// readCommands decodes the stream on its own goroutine so that Run can
// stop while a read is blocked. The goroutine ends after the first stream
// error, or once stop is closed and its pending read returns.
func (s *Session) readCommands(stop <-chan struct{}) <-chan decoded {
	reads := make(chan decoded)
	go func() {
		for {
			cmd, err := s.decoder.DecodeCommand()
			select {
			case reads <- decoded{cmd: cmd, err: err}:
			case <-stop:
				return
			}
			if err != nil && !errors.Is(err, ErrMalformed) {
				return
			}
		}
	}()
	return reads
}

// processCommand serves one decoded command. Malformed lines are answered
// with an ERROR and do not end the session.
func (s *Session) processCommand(ctx context.Context, cmd *CommandMessage, err error) error {
	if err != nil {
		if !errors.Is(err, ErrMalformed) {
			return err
		}
		s.commandCount++
		s.failedCount++
		errMsg := &ErrorMessage{Code: ErrCodeBadMessage, Message: err.Error()}
		if cmd != nil {
			errMsg.CommandID = cmd.ID
		}
		return s.encoder.EncodeError(errMsg)
	}

	s.commandCount++

	timeout := s.timeout
	if cmd.Timeout > 0 {
		timeout = time.Duration(cmd.Timeout) * time.Second
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	viewer := cmd.ViewerOf()
	cmdCtx = telemetry.WithViewerContext(cmdCtx, viewer.PHID)

	start := time.Now()
	outcome, result, err := s.handleCommand(cmdCtx, viewer, cmd)
	duration := time.Since(start).Seconds()

	if err != nil {
		s.failedCount++
		s.logger.Warn().Err(err).Str("command", cmd.ID).Str("type", string(cmd.Type)).Msg("Command failed")
		return s.encoder.EncodeError(errorMessage(cmd.ID, err))
	}

	return s.encoder.EncodeDone(&DoneMessage{
		CommandID: cmd.ID,
		Outcome:   outcome,
		Result:    result,
		Duration:  duration,
	})
}

// paramsError marks a command whose params could not be parsed.
type paramsError struct{ err error }

func (e *paramsError) Error() string { return e.err.Error() }
func (e *paramsError) Unwrap() error { return e.err }

func errorMessage(commandID string, err error) *ErrorMessage {
	msg := &ErrorMessage{CommandID: commandID, Code: ErrCodeEditFailed, Message: err.Error()}
	var pe *paramsError
	if errors.As(err, &pe) {
		msg.Code = ErrCodeBadParams
		return msg
	}
	if ee, ok := edit.AsError(err); ok {
		msg.Details = map[string]string{"class": string(ee.Class)}
		if ee.Code != "" {
			msg.Details["code"] = ee.Code
		}
	}
	return msg
}

func parseParams(params json.RawMessage, target interface{}) error {
	if err := ParseParams(params, target); err != nil {
		return &paramsError{err: err}
	}
	return nil
}

func (s *Session) handleCommand(ctx context.Context, viewer edit.Viewer, cmd *CommandMessage) (string, json.RawMessage, error) {
	var out edit.Outcome
	var err error

	switch cmd.Type {
	case CommandTypeRPC:
		var params edit.RPCRequest
		if err := parseParams(cmd.Params, &params); err != nil {
			return "", nil, err
		}
		out, err = s.engine.SubmitRPC(ctx, viewer, cmd.Engine, params)

	case CommandTypeComment:
		var params CommentParams
		if err := parseParams(cmd.Params, &params); err != nil {
			return "", nil, err
		}
		out, err = s.engine.SubmitComment(ctx, viewer, cmd.Engine, &edit.Request{
			ObjectIdentifier: params.Object,
			CommentText:      params.Comment,
			Actions:          params.Actions,
			Continue:         params.Continue,
		})

	case CommandTypeParams:
		var params SubmitParams
		if err := parseParams(cmd.Params, &params); err != nil {
			return "", nil, err
		}
		out, err = s.engine.SubmitParameters(ctx, viewer, cmd.Engine, &edit.Request{
			ObjectIdentifier: params.Object,
			ConfigKey:        params.Config,
			Template:         params.Template,
			Continue:         params.Continue,
			Params:           url.Values(params.Values),
		})

	case CommandTypeDocs:
		out, err = s.engine.ParameterDocs(ctx, viewer, cmd.Engine)

	case CommandTypeTransactions:
		var params TransactionsParams
		if err := parseParams(cmd.Params, &params); err != nil {
			return "", nil, err
		}
		txns, err := s.engine.ListTransactions(ctx, viewer, cmd.Engine, params.Object)
		if err != nil {
			return "", nil, err
		}
		if txns == nil {
			txns = []*edit.Transaction{}
		}
		result, err := json.Marshal(TransactionsResult{Transactions: txns})
		return "transactions", result, err

	default:
		return "", nil, fmt.Errorf("unsupported command type: %s", cmd.Type)
	}

	if err != nil {
		return "", nil, err
	}
	result, err := json.Marshal(ResultOf(out))
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return out.Name(), result, nil
}

// ResultOf shapes an outcome for the wire.
func ResultOf(out edit.Outcome) any {
	switch o := out.(type) {
	case *edit.Saved:
		return SavedResult{URI: o.URI, Created: o.Created, RPCResponse: o.RPCResponse()}
	case *edit.Invalid:
		return InvalidResult{Errors: o.Errors}
	case *edit.NoEffect:
		msg := "the submission would not change anything"
		if o.Err != nil {
			msg = o.Err.Message
		}
		return NoEffectResult{URI: o.URI, Message: msg}
	case *edit.Rejected:
		return RejectedResult{Reason: string(o.Reason), Code: o.Code, Message: o.Message}
	case *edit.Documentation:
		return DocsResult{Configuration: o.Configuration, Parameters: o.Parameters, Types: o.Types}
	default:
		return nil
	}
}
