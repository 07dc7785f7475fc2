package protocol

import (
	"fmt"
	"strings"
)

const (
	maxPathLength     = 255
	maxContentBytes   = 10 * 1024 * 1024
	maxMessageChars   = 100_000
	maxShellChars     = 4096
	minShellTimeoutMs = 1000
	maxShellTimeoutMs = 3_600_000
)

// Issue names one offending field path in an untrusted envelope, paired
// with a human-readable message. Validation never panics on malformed
// input; it always returns a full issue list rather than failing fast on
// the first problem, so a caller can report every error at once.
type Issue struct {
	Path    string
	Message string
}

// ValidationError wraps one or more Issues. It is the only error type the
// validators in this file return.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, iss := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", iss.Path, iss.Message))
	}
	return strings.Join(parts, "; ")
}

func newValidationError(issues []Issue) error {
	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: issues}
}

// ValidatePath enforces the four path invariants shared by every operation
// that crosses a trust boundary with a relative path: relative (no leading
// separator), no ".." segment, no NUL byte, length <= 255.
func ValidatePath(path string) []Issue {
	var issues []Issue
	if path == "" {
		return []Issue{{Path: "path", Message: "path must not be empty"}}
	}
	if strings.ContainsRune(path, 0) {
		issues = append(issues, Issue{Path: "path", Message: "path must not contain a NUL byte"})
	}
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, "\\") {
		issues = append(issues, Issue{Path: "path", Message: "path must be relative"})
	}
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			issues = append(issues, Issue{Path: "path", Message: "path must not contain a parent-traversal segment"})
			break
		}
	}
	if len(path) > maxPathLength {
		issues = append(issues, Issue{Path: "path", Message: fmt.Sprintf("path must be at most %d characters", maxPathLength)})
	}
	return issues
}

// ValidateOperation validates a single Operation against the §3 schema,
// defaulting Encoding and Overwrite where the wire format omits them.
// Returns the (possibly defaulted) Operation and nil on success, or the
// zero Operation and a *ValidationError naming every offending field.
func ValidateOperation(prefix string, op Operation) (Operation, error) {
	var issues []Issue
	field := func(name string) string {
		if prefix == "" {
			return name
		}
		return prefix + "." + name
	}

	switch op.Kind {
	case OpMessage:
		if len(op.Content) > maxMessageChars {
			issues = append(issues, Issue{Path: field("content"), Message: fmt.Sprintf("content must be at most %d characters", maxMessageChars)})
		}

	case OpCreateFile:
		issues = append(issues, prefixed(field("path"), ValidatePath(op.Path))...)
		if op.Encoding == "" {
			op.Encoding = EncodingUTF8
		}
		if op.Encoding != EncodingUTF8 && op.Encoding != EncodingBase64 {
			issues = append(issues, Issue{Path: field("encoding"), Message: "encoding must be utf8 or base64"})
		}
		if len(op.Content) > maxContentBytes {
			issues = append(issues, Issue{Path: field("content"), Message: "content must be at most 10MiB"})
		}

	case OpReadFile:
		issues = append(issues, prefixed(field("path"), ValidatePath(op.Path))...)
		if op.Encoding == "" {
			op.Encoding = EncodingUTF8
		}
		if op.Encoding != EncodingUTF8 && op.Encoding != EncodingBase64 {
			issues = append(issues, Issue{Path: field("encoding"), Message: "encoding must be utf8 or base64"})
		}

	case OpEditFile:
		issues = append(issues, prefixed(field("path"), ValidatePath(op.Path))...)
		if len(op.Edits) == 0 {
			issues = append(issues, Issue{Path: field("edits"), Message: "edits must be non-empty"})
		}

	case OpDeleteFile:
		issues = append(issues, prefixed(field("path"), ValidatePath(op.Path))...)

	case OpShell:
		if op.Command == "" {
			issues = append(issues, Issue{Path: field("command"), Message: "command must not be empty"})
		}
		if len(op.Command) > maxShellChars {
			issues = append(issues, Issue{Path: field("command"), Message: fmt.Sprintf("command must be at most %d characters", maxShellChars)})
		}
		if op.TimeoutMs != nil {
			if *op.TimeoutMs < minShellTimeoutMs || *op.TimeoutMs > maxShellTimeoutMs {
				issues = append(issues, Issue{Path: field("timeoutMs"), Message: fmt.Sprintf("timeoutMs must be between %d and %d", minShellTimeoutMs, maxShellTimeoutMs)})
			}
		}

	default:
		issues = append(issues, Issue{Path: field("type"), Message: fmt.Sprintf("unknown operation type %q", op.Kind)})
	}

	if err := newValidationError(issues); err != nil {
		return Operation{}, err
	}
	return op, nil
}

// ValidateOperationsMessage validates a full batch envelope: exact
// protocolVersion plus every operation in order, accumulating issues
// across the whole batch rather than stopping at the first bad operation.
func ValidateOperationsMessage(msg OperationsMessage) (OperationsMessage, error) {
	var issues []Issue
	if msg.ProtocolVersion != ProtocolVersion {
		issues = append(issues, Issue{Path: "protocolVersion", Message: fmt.Sprintf("protocolVersion must be %q", ProtocolVersion)})
	}

	validated := make([]Operation, len(msg.Operations))
	for i, op := range msg.Operations {
		prefix := fmt.Sprintf("operations.%d", i)
		v, err := ValidateOperation(prefix, op)
		if err != nil {
			var ve *ValidationError
			if ok := asValidationError(err, &ve); ok {
				issues = append(issues, ve.Issues...)
			}
			continue
		}
		validated[i] = v
	}

	if err := newValidationError(issues); err != nil {
		return OperationsMessage{}, err
	}
	return OperationsMessage{ProtocolVersion: msg.ProtocolVersion, Operations: validated}, nil
}

func prefixed(path string, issues []Issue) []Issue {
	out := make([]Issue, len(issues))
	for i, iss := range issues {
		p := path
		if iss.Path != "path" && iss.Path != "" {
			p = path + "." + iss.Path
		}
		out[i] = Issue{Path: p, Message: iss.Message}
	}
	return out
}

func asValidationError(err error, target **ValidationError) bool {
	ve, ok := err.(*ValidationError)
	if !ok {
		return false
	}
	*target = ve
	return true
}
