// Package protocol defines the wire shapes exchanged across a space's
// trust boundary: operations an actor submits, events the executor emits
// back, and the batch envelope that carries them.
package protocol

import "encoding/json"

// OperationKind discriminates the six operation variants. Operations are a
// closed tagged union: exhaustively switch on Kind, never model this as an
// interface with per-kind implementations.
type OperationKind string

const (
	OpMessage    OperationKind = "message"
	OpCreateFile OperationKind = "createFile"
	OpReadFile   OperationKind = "readFile"
	OpEditFile   OperationKind = "editFile"
	OpDeleteFile OperationKind = "deleteFile"
	OpShell      OperationKind = "shell"
)

// Encoding is the byte/text encoding used for file content on the wire.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf8"
	EncodingBase64 Encoding = "base64"
)

// Edit is a single find-and-replace applied in document order by editFile.
type Edit struct {
	OldContent string `json:"oldContent"`
	NewContent string `json:"newContent"`
}

// Operation is the struct-of-optional-fields shape for all six kinds; only
// the fields relevant to Kind are populated. This mirrors how the teacher's
// ToolRequest carries every tool's fields on one struct keyed by a Kind tag.
type Operation struct {
	Kind OperationKind `json:"type"`
	ID   string        `json:"id,omitempty"`

	// message
	Content string `json:"content,omitempty"`

	// createFile / readFile / editFile / deleteFile
	Path      string   `json:"path,omitempty"`
	Encoding  Encoding `json:"encoding,omitempty"`
	Overwrite bool     `json:"overwrite,omitempty"`
	Edits     []Edit   `json:"edits,omitempty"`

	// shell
	Command   string            `json:"command,omitempty"`
	Cwd       string            `json:"cwd,omitempty"`
	TimeoutMs *int              `json:"timeoutMs,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// EventKind discriminates the nine event variants.
type EventKind string

const (
	EvMessage          EventKind = "message"
	EvCreateFile       EventKind = "createFile"
	EvReadFile         EventKind = "readFile"
	EvEditFile         EventKind = "editFile"
	EvDeleteFile       EventKind = "deleteFile"
	EvShell            EventKind = "shell"
	EvApprovalRequired EventKind = "approvalRequired"
	EvPolicyDenied     EventKind = "policyDenied"
	EvError            EventKind = "error"
)

// ErrorCategory classifies a top-level error event (§7 taxonomy).
type ErrorCategory string

const (
	ErrValidation ErrorCategory = "validation"
	ErrPolicy     ErrorCategory = "policy"
	ErrExecution  ErrorCategory = "execution"
	ErrTimeout    ErrorCategory = "timeout"
	ErrSystem     ErrorCategory = "system"
)

// ApprovalDetails is the op-specific context attached to an
// approvalRequired event, assembled from whichever fields the triggering
// operation carries.
type ApprovalDetails struct {
	Command string `json:"command,omitempty"`
	Path    string `json:"path,omitempty"`
	Policy  string `json:"policy,omitempty"`
}

// Event is the struct-of-optional-fields shape mirroring Operation; one
// Event is produced per evaluated operation (except when suspension cuts
// the batch short).
type Event struct {
	Kind        EventKind `json:"type"`
	OperationID string    `json:"operationId,omitempty"`
	Timestamp   string    `json:"timestamp"`
	Success     bool      `json:"success"`

	// createFile / readFile / editFile / deleteFile / shell
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`

	// createFile
	BytesWritten *int `json:"bytesWritten,omitempty"`

	// readFile
	Content  string   `json:"content,omitempty"`
	Encoding Encoding `json:"encoding,omitempty"`
	Size     *int     `json:"size,omitempty"`

	// editFile
	EditsApplied *int `json:"editsApplied,omitempty"`

	// shell
	Command    string `json:"command,omitempty"`
	ExitCode   *int   `json:"exitCode,omitempty"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	DurationMs *int64 `json:"durationMs,omitempty"`
	TimedOut   bool   `json:"timedOut,omitempty"`

	// approvalRequired / policyDenied
	OperationType OperationKind    `json:"operationType,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Suggestion    string           `json:"suggestion,omitempty"`
	Details       *ApprovalDetails `json:"details,omitempty"`

	// error
	Category ErrorCategory   `json:"category,omitempty"`
	Message  string          `json:"message,omitempty"`
	Extra    json.RawMessage `json:"extraDetails,omitempty"`
}

// ProtocolVersion is the only envelope version this core understands.
const ProtocolVersion = "1.0"

// OperationsMessage is the inbound batch envelope.
type OperationsMessage struct {
	ProtocolVersion string      `json:"protocolVersion"`
	Operations      []Operation `json:"operations"`
}

// EventsMessage is the outbound batch envelope, used where a caller wants
// to serialize a run's event vector with the same envelope shape as the
// operations it answers.
type EventsMessage struct {
	ProtocolVersion string  `json:"protocolVersion"`
	Events          []Event `json:"events"`
}
