package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the audit log name inside the audit directory.
const FileName = "audit.jsonl"

// Outcomes recorded with each entry.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeDenied  = "DENIED"
	OutcomeError   = "ERROR"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp time.Time              `json:"ts"`
	User      string                 `json:"user"`
	SessionID string                 `json:"session,omitempty"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Outcome   string                 `json:"outcome"`
	Code      string                 `json:"code,omitempty"`
}

// Options controls rotation.
type Options struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultOptions keeps five 10 MB files for 30 days.
var DefaultOptions = Options{MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 30}

// Logger writes audit entries to a rotating JSONL file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      *lumberjack.Logger
	now      func() time.Time
}

// NewLogger creates an audit logger writing to logDir/audit.jsonl.
func NewLogger(logDir string, opts Options) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create audit log directory")
	}

	filePath := filepath.Join(logDir, FileName)

	// Open once up front so permission problems fail at startup.
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open audit log file")
	}
	_ = file.Close()

	return &Logger{
		filePath: filePath,
		out: &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		},
		now: time.Now,
	}, nil
}

// LogAction records action for sessionID. The user is taken from ctx when
// set with WithUser.
func (l *Logger) LogAction(ctx context.Context, action, sessionID, outcome string, params map[string]interface{}) {
	code := ""
	if c, ok := params["code"].(string); ok {
		code = c
	}

	l.writeEntry(Entry{
		Timestamp: l.now().UTC(),
		User:      UserFromContext(ctx),
		SessionID: sessionID,
		Action:    action,
		Params:    params,
		Outcome:   outcome,
		Code:      code,
	})
}

func (l *Logger) writeEntry(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		log.WithField("err", err).Error("failed to marshal audit entry")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return
	}
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		log.WithField("err", err).Error("failed to write audit entry")
	}
}

// Rotate starts a new audit file, keeping the old one as a backup.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return errors.New("audit logger closed")
	}
	return errors.Wrap(l.out.Rotate(), "failed to rotate audit log")
}

// Close flushes and closes the audit file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return nil
	}
	err := l.out.Close()
	l.out = nil
	return err
}

// GetFilePath returns the path of the active audit file.
func (l *Logger) GetFilePath() string {
	return l.filePath
}

type userKey struct{}

// WithUser attaches the acting user (token subject) to ctx.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the user set with WithUser, or "unknown".
func UserFromContext(ctx context.Context) string {
	if ctx != nil {
		if user, ok := ctx.Value(userKey{}).(string); ok && user != "" {
			return user
		}
	}
	return "unknown"
}
