// Package protocol defines the JSON-lines protocol used to drive an edit
// engine over a byte stream such as stdio. Each line is one Message; the
// serving side announces itself with READY, answers every CMD with DONE or
// ERROR, and says EXIT before it stops.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/openfroyo/editengine/pkg/edit"
)

// MessageType represents the type of message in the protocol.
type MessageType string

const (
	// MessageTypeReady indicates the session is ready to receive commands
	MessageTypeReady MessageType = "READY"
	// MessageTypeCommand carries one edit command from the client
	MessageTypeCommand MessageType = "CMD"
	// MessageTypeDone carries the outcome of a command
	MessageTypeDone MessageType = "DONE"
	// MessageTypeError indicates a command could not be carried out
	MessageTypeError MessageType = "ERROR"
	// MessageTypeExit indicates the session is ending
	MessageTypeExit MessageType = "EXIT"
)

// CommandType selects the engine entry point a command calls.
type CommandType string

const (
	// CommandTypeRPC applies a typed transaction batch
	CommandTypeRPC CommandType = "rpc"
	// CommandTypeComment adds a comment with optional actions
	CommandTypeComment CommandType = "comment"
	// CommandTypeParams applies an HTTP-style parameter batch
	CommandTypeParams CommandType = "params"
	// CommandTypeDocs documents an engine's parameters
	CommandTypeDocs CommandType = "docs"
	// CommandTypeTransactions lists an object's mutation log
	CommandTypeTransactions CommandType = "transactions"
)

// CommandTypes lists every supported command type.
var CommandTypes = []CommandType{
	CommandTypeRPC, CommandTypeComment, CommandTypeParams, CommandTypeDocs, CommandTypeTransactions,
}

// Error codes sent in ERROR messages.
const (
	ErrCodeBadMessage = "BAD_MESSAGE"
	ErrCodeBadParams  = "BAD_PARAMS"
	ErrCodeEditFailed = "EDIT_FAILED"
)

// Message is the base message structure for all protocol messages.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ReadyMessage is sent when the session is ready to receive commands.
type ReadyMessage struct {
	Version  string            `json:"version"`
	Engines  []string          `json:"engines"`
	Commands []CommandType     `json:"commands"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CommandMessage asks the session to run one edit command.
type CommandMessage struct {
	ID     string      `json:"id"`
	Type   CommandType `json:"type"`
	Engine string      `json:"engine"`

	// Viewer and Roles identify the acting user.
	Viewer string   `json:"viewer,omitempty"`
	Roles  []string `json:"roles,omitempty"`

	Timeout int             `json:"timeout,omitempty"` // seconds, 0 uses the session default
	Params  json.RawMessage `json:"params,omitempty"`
}

// DoneMessage carries the outcome of a command.
type DoneMessage struct {
	CommandID string          `json:"command_id"`
	Outcome   string          `json:"outcome"`
	Result    json.RawMessage `json:"result,omitempty"`
	Duration  float64         `json:"duration"` // seconds
}

// ErrorMessage indicates a command failed outside the edit outcomes.
type ErrorMessage struct {
	CommandID string            `json:"command_id,omitempty"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
}

// ExitMessage is sent before the session ends.
type ExitMessage struct {
	Reason         string `json:"reason"`
	ExitCode       int    `json:"exit_code"`
	CommandsTotal  int    `json:"commands_total"`
	CommandsFailed int    `json:"commands_failed"`
}

// Command parameter structures

// CommentParams contains parameters for a comment command.
type CommentParams struct {
	Object   string               `json:"object"`
	Comment  string               `json:"comment,omitempty"`
	Actions  []edit.CommentAction `json:"actions,omitempty"`
	Continue bool                 `json:"continue,omitempty"`
}

// SubmitParams contains parameters for a params command.
type SubmitParams struct {
	Object   string              `json:"object,omitempty"`
	Config   string              `json:"config,omitempty"`
	Template string              `json:"template,omitempty"`
	Continue bool                `json:"continue,omitempty"`
	Values   map[string][]string `json:"values"`
}

// TransactionsParams contains parameters for a transactions command.
type TransactionsParams struct {
	Object string `json:"object"`
}

// Result structures, one per outcome

// SavedResult is the result of a saved outcome.
type SavedResult struct {
	URI     string `json:"uri,omitempty"`
	Created bool   `json:"created"`
	edit.RPCResponse
}

// InvalidResult is the result of an invalid outcome.
type InvalidResult struct {
	Errors []edit.FieldError `json:"errors"`
}

// NoEffectResult is the result of a no_effect outcome.
type NoEffectResult struct {
	URI     string `json:"uri,omitempty"`
	Message string `json:"message"`
}

// RejectedResult is the result of a rejected outcome.
type RejectedResult struct {
	Reason  string `json:"reason"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// DocsResult is the result of a documentation outcome.
type DocsResult struct {
	Configuration string              `json:"configuration"`
	Parameters    []edit.ParameterDoc `json:"parameters"`
	Types         []string            `json:"types"`
}

// TransactionsResult is the result of a transactions command.
type TransactionsResult struct {
	Transactions []*edit.Transaction `json:"transactions"`
}

// Validation methods

// Validate checks if the message type is valid.
func (mt MessageType) Validate() error {
	switch mt {
	case MessageTypeReady, MessageTypeCommand, MessageTypeDone,
		MessageTypeError, MessageTypeExit:
		return nil
	default:
		return fmt.Errorf("invalid message type: %s", mt)
	}
}

// Validate checks if the command type is valid.
func (ct CommandType) Validate() error {
	for _, known := range CommandTypes {
		if ct == known {
			return nil
		}
	}
	return fmt.Errorf("invalid command type: %s", ct)
}

// Validate checks if the command message is valid.
func (cmd *CommandMessage) Validate() error {
	if cmd.ID == "" {
		return fmt.Errorf("command ID is required")
	}
	if err := cmd.Type.Validate(); err != nil {
		return err
	}
	if cmd.Engine == "" {
		return fmt.Errorf("engine is required")
	}
	if cmd.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if len(cmd.Params) == 0 && cmd.Type != CommandTypeDocs {
		return fmt.Errorf("command params are required")
	}
	return nil
}

// ViewerOf returns the acting user of a command.
func (cmd *CommandMessage) ViewerOf() edit.Viewer {
	return edit.Viewer{PHID: cmd.Viewer, Roles: cmd.Roles}
}
