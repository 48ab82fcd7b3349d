package logging

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AuditEventType defines the type of audit event (maps to a Mangle predicate)
type AuditEventType string

const (
	// Build events -> chunk_build/5
	AuditBuildStart    AuditEventType = "build_start"
	AuditBuildComplete AuditEventType = "build_complete"
	AuditBuildAbort    AuditEventType = "build_abort"

	// Rule memory events -> rule_op/4
	AuditRuleInsert AuditEventType = "rule_insert"
	AuditRuleExcise AuditEventType = "rule_excise"

	// Archive events -> archive_op/4
	AuditArchiveSave AuditEventType = "archive_save"
)

// AuditEvent is a structured audit record. Each one carries a pre-formatted
// Mangle fact so audit output can be loaded back as a program.
type AuditEvent struct {
	Timestamp int64
	EventType AuditEventType
	BuildID   string
	Target    string
	Outcome   string
	Success   bool
	Message   string
}

// AuditLogger writes audit events to the "audit" child of the root logger.
type AuditLogger struct {
	buildID string
}

// Audit returns an unscoped audit logger.
func Audit() *AuditLogger { return &AuditLogger{} }

// AuditWithBuild returns an audit logger scoped to one chunk build.
func AuditWithBuild(buildID string) *AuditLogger { return &AuditLogger{buildID: buildID} }

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.BuildID == "" {
		event.BuildID = a.buildID
	}
	Root().Named("audit").Info(string(event.EventType),
		zap.Int64("ts", event.Timestamp),
		zap.String("build", event.BuildID),
		zap.String("target", event.Target),
		zap.String("outcome", event.Outcome),
		zap.Bool("success", event.Success),
		zap.String("mangle", MangleFact(event)),
	)
}

// MangleFact renders e as a Mangle fact.
func MangleFact(e AuditEvent) string {
	switch e.EventType {
	case AuditBuildStart, AuditBuildComplete, AuditBuildAbort:
		return fmt.Sprintf("chunk_build(%d, /%s, \"%s\", \"%s\", \"%s\").",
			e.Timestamp, e.EventType, e.BuildID, escapeString(e.Target), e.Outcome)
	case AuditRuleInsert, AuditRuleExcise:
		return fmt.Sprintf("rule_op(%d, /%s, \"%s\", %v).",
			e.Timestamp, e.EventType, escapeString(e.Target), e.Success)
	case AuditArchiveSave:
		return fmt.Sprintf("archive_op(%d, /%s, \"%s\", %v).",
			e.Timestamp, e.EventType, escapeString(e.Target), e.Success)
	default:
		return fmt.Sprintf("audit_event(%d, /%s, \"%s\", %v).",
			e.Timestamp, e.EventType, escapeString(e.Message), e.Success)
	}
}

func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)
	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// BuildStart records the start of a chunk build.
func (a *AuditLogger) BuildStart(rule string) {
	a.Log(AuditEvent{EventType: AuditBuildStart, Target: rule, Success: true})
}

// BuildEnd records a build's terminal outcome.
func (a *AuditLogger) BuildEnd(name, outcome string, accepted bool) {
	et := AuditBuildComplete
	if !accepted {
		et = AuditBuildAbort
	}
	a.Log(AuditEvent{EventType: et, Target: name, Outcome: outcome, Success: accepted})
}

// RuleOp records an insertion or excision in production memory.
func (a *AuditLogger) RuleOp(op AuditEventType, name string, success bool) {
	a.Log(AuditEvent{EventType: op, Target: name, Success: success})
}

// ArchiveSave records an explanation written to the archive.
func (a *AuditLogger) ArchiveSave(name string, err error) {
	a.Log(AuditEvent{EventType: AuditArchiveSave, Target: name, Success: err == nil})
}
