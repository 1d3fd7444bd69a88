package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"flatwatch/internal/logger"
)

type scriptRunner func(ctx context.Context, script string) ([]byte, error)

// MailAppNotifier composes and sends a message through the local macOS Mail app.
type MailAppNotifier struct {
	sender    string
	recipient string
	logger    logger.Logger
	run       scriptRunner
}

func NewMailAppNotifier(sender, recipient string, logger logger.Logger) (*MailAppNotifier, error) {
	if recipient == "" {
		return nil, errors.New("MAIL_TO is required for the mailapp notifier")
	}
	return &MailAppNotifier{
		sender:    sender,
		recipient: recipient,
		logger:    logger,
		run:       runOsascript,
	}, nil
}

func (m *MailAppNotifier) Notify(ctx context.Context, subject, body string) error {
	out, err := m.run(ctx, m.script(subject, body))
	if err != nil {
		m.logger.Errorf("osascript failed: %v: %s", err, strings.TrimSpace(string(out)))
		return fmt.Errorf("send via Mail.app: %w", err)
	}
	m.logger.Infof("Mail.app message %q sent to %s", subject, m.recipient)
	return nil
}

func (m *MailAppNotifier) script(subject, body string) string {
	props := []string{
		"visible:false",
		"subject:" + appleScriptString(subject),
		"content:" + appleScriptString(body),
	}
	if m.sender != "" {
		props = append(props, "sender:"+appleScriptString(m.sender))
	}

	var b strings.Builder
	b.WriteString("tell application \"Mail\"\n")
	fmt.Fprintf(&b, "\tset msg to make new outgoing message with properties {%s}\n", strings.Join(props, ", "))
	b.WriteString("\ttell msg\n")
	fmt.Fprintf(&b, "\t\tmake new to recipient with properties {address:%s}\n", appleScriptString(m.recipient))
	b.WriteString("\t\tsend\n")
	b.WriteString("\tend tell\n")
	b.WriteString("end tell\n")
	return b.String()
}

// appleScriptString quotes s as an AppleScript string literal.
func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func runOsascript(ctx context.Context, script string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "/usr/bin/osascript", "-")
	cmd.Stdin = strings.NewReader(script)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}
