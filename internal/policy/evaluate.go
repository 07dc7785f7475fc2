package policy

import (
	"fmt"
	"strings"

	"spacerun/internal/protocol"
)

// Verdict discriminates a Decision's three outcomes.
type Verdict string

const (
	VerdictAllow            Verdict = "allow"
	VerdictDeny             Verdict = "deny"
	VerdictRequireApproval  Verdict = "requireApproval"
)

// Decision is the result of evaluating one operation against a Policy.
// message operations are always VerdictAllow; Deny and RequireApproval
// always carry a PolicyTag naming the rule that fired, for testability.
type Decision struct {
	Verdict    Verdict
	Reason     string
	Suggestion string
	PolicyTag  string
}

func allow() Decision { return Decision{Verdict: VerdictAllow} }

func deny(reason, tag string) Decision {
	return Decision{Verdict: VerdictDeny, Reason: reason, PolicyTag: tag}
}

func denyWithSuggestion(reason, suggestion, tag string) Decision {
	return Decision{Verdict: VerdictDeny, Reason: reason, Suggestion: suggestion, PolicyTag: tag}
}

func requireApproval(reason, tag string) Decision {
	return Decision{Verdict: VerdictRequireApproval, Reason: reason, PolicyTag: tag}
}

// Evaluate is a pure, side-effect-free function of (Policy, Operation) to
// Decision. The evaluation order within each branch is fixed by the
// protocol's invariants and must not be reordered: later rules intentionally
// fire only once earlier ones have passed.
func Evaluate(p Policy, op protocol.Operation) Decision {
	switch op.Kind {
	case protocol.OpMessage:
		return allow()

	case protocol.OpCreateFile, protocol.OpReadFile, protocol.OpEditFile, protocol.OpDeleteFile:
		return evaluateFilesystem(p, op)

	case protocol.OpShell:
		return evaluateShell(p, op)

	default:
		return deny(fmt.Sprintf("unknown operation type %q", op.Kind), "unknown")
	}
}

func isWrite(kind protocol.OperationKind) bool {
	switch kind {
	case protocol.OpCreateFile, protocol.OpEditFile, protocol.OpDeleteFile:
		return true
	default:
		return false
	}
}

func evaluateFilesystem(p Policy, op protocol.Operation) Decision {
	fs := p.Filesystem

	if !fs.Enabled {
		return deny("Filesystem access is disabled", "filesystem.enabled")
	}

	if isWrite(op.Kind) && fs.ReadOnly {
		return deny("Filesystem is read-only", "filesystem.readOnly")
	}

	if len(fs.BlockedPaths) > 0 && matchesAny(op.Path, fs.BlockedPaths) {
		return deny("Path is blocked by policy", "filesystem.blockedPaths")
	}

	if len(fs.AllowedPaths) > 0 && !matchesAny(op.Path, fs.AllowedPaths) {
		return deny("Path is not in the allowed list", "filesystem.allowedPaths")
	}

	if op.Kind == protocol.OpCreateFile && int64(len(op.Content)) > fs.MaxFileSize {
		return deny("File content exceeds the maximum allowed size", "filesystem.maxFileSize")
	}

	return allow()
}

func evaluateShell(p Policy, op protocol.Operation) Decision {
	sh := p.Shell

	if !sh.Enabled {
		return deny("Shell access is disabled", "shell.enabled")
	}

	for _, pattern := range sh.BlockedPatterns {
		if strings.Contains(op.Command, pattern) {
			return deny(fmt.Sprintf("Command contains blocked pattern %q", pattern), "shell.blockedPatterns")
		}
	}

	if len(sh.AllowedCommands) > 0 {
		base := baseToken(op.Command)
		if !containsExact(sh.AllowedCommands, base) {
			return denyWithSuggestion(
				fmt.Sprintf("Command %q is not in the allowed list", base),
				"allowed commands: "+strings.Join(sh.AllowedCommands, ", "),
				"shell.allowedCommands",
			)
		}
	}

	for _, pattern := range sh.ApprovalRequired {
		if strings.Contains(op.Command, pattern) {
			return requireApproval(fmt.Sprintf("Command contains pattern %q requiring approval", pattern), "shell.approvalRequired")
		}
	}

	return allow()
}

// baseToken extracts the base command token: trim, then split on the
// first ASCII space only. Tabs and other whitespace are not treated as
// delimiters, preserving the original's choice (spec §9 Open Questions).
func baseToken(command string) string {
	trimmed := strings.TrimSpace(command)
	if idx := strings.IndexByte(trimmed, ' '); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}

func containsExact(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
