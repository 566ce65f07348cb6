// Package notify delivers run summaries. Delivery is best-effort: errors
// are logged, never returned to the run.
package notify

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ecsol/cars-numberplate-inference/internal/config"
	"github.com/ecsol/cars-numberplate-inference/internal/orchestrator"
	"github.com/ecsol/cars-numberplate-inference/internal/tracking"
	slackapi "github.com/slack-go/slack"
)

// maxListedFailures caps the failed files included in a message.
const maxListedFailures = 10

// Message is a rendered run summary.
type Message struct {
	RunID    string
	Date     string
	Mode     string
	Failed   int
	CarsDone int
	// Summary is a one-line description of the run.
	Summary string
	// Details lists failed files, one per line.
	Details []string
	Counts  map[tracking.Status]int
}

// FromSummary renders a run summary as a message.
func FromSummary(sum *orchestrator.Summary) Message {
	msg := Message{
		RunID:    sum.RunID,
		Date:     sum.Date.Format("2006-01-02"),
		Mode:     string(sum.Mode),
		Failed:   sum.Failed,
		CarsDone: len(sum.CarsDone),
		Counts:   sum.Counts,
	}
	state := "ok"
	if !sum.OK() {
		state = "FAILED"
	}
	msg.Summary = fmt.Sprintf("platemask %s %s (%s): %d processed, %d verified, %d failed, %d skipped, %d cars done",
		msg.Date, state, msg.Mode, sum.Processed, sum.Verified, sum.Failed, sum.Skipped, msg.CarsDone)
	for i, f := range sum.Failures {
		if i == maxListedFailures {
			msg.Details = append(msg.Details, fmt.Sprintf("... and %d more", len(sum.Failures)-maxListedFailures))
			break
		}
		msg.Details = append(msg.Details, fmt.Sprintf("%d %s: %s", f.FileID, f.Path, f.Error))
	}
	return msg
}

// Notifier delivers a message somewhere.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// FromConfig returns the notifiers enabled in cfg.
func FromConfig(cfg config.NotifyConfig) []Notifier {
	var ns []Notifier
	if cfg.SlackWebhookURL != "" {
		ns = append(ns, NewSlack(cfg.SlackWebhookURL))
	}
	if cfg.DiscordWebhookURL != "" {
		d, err := NewDiscord(cfg.DiscordWebhookURL)
		if err != nil {
			log.Printf("notify: %v", err)
		} else {
			ns = append(ns, d)
		}
	}
	if cfg.Command != "" {
		ns = append(ns, Command{Template: cfg.Command})
	}
	return ns
}

// Send delivers msg to every notifier, logging failures.
func Send(ctx context.Context, ns []Notifier, msg Message) {
	for _, n := range ns {
		if err := n.Notify(ctx, msg); err != nil {
			log.Printf("notify: %T: %v", n, err)
		}
	}
}

// Slack posts to an incoming webhook.
type Slack struct {
	url  string
	post func(ctx context.Context, url string, msg *slackapi.WebhookMessage) error
}

// NewSlack returns a webhook notifier.
func NewSlack(url string) *Slack {
	return &Slack{url: url, post: slackapi.PostWebhookContext}
}

// Notify posts the summary with a colour-coded attachment.
func (s *Slack) Notify(ctx context.Context, msg Message) error {
	color := "good"
	if msg.Failed > 0 {
		color = "danger"
	}
	fields := []slackapi.AttachmentField{
		{Title: "Run", Value: msg.RunID, Short: true},
		{Title: "Mode", Value: msg.Mode, Short: true},
	}
	for _, st := range sortedStatuses(msg.Counts) {
		fields = append(fields, slackapi.AttachmentField{Title: string(st), Value: strconv.Itoa(msg.Counts[st]), Short: true})
	}
	att := slackapi.Attachment{Color: color, Fields: fields}
	if len(msg.Details) > 0 {
		att.Text = "```" + strings.Join(msg.Details, "\n") + "```"
	}
	if err := s.post(ctx, s.url, &slackapi.WebhookMessage{Text: msg.Summary, Attachments: []slackapi.Attachment{att}}); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}

func sortedStatuses(counts map[tracking.Status]int) []tracking.Status {
	var out []tracking.Status
	for _, st := range tracking.Statuses {
		if counts[st] > 0 {
			out = append(out, st)
		}
	}
	return out
}

// Command runs a shell command template. Placeholders: {{.RunID}},
// {{.Date}}, {{.Mode}}, {{.Failed}}, {{.Summary}}.
type Command struct {
	Template string
}

// Notify runs the expanded command with sh -c.
func (c Command) Notify(ctx context.Context, msg Message) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", templateMessage(c.Template, msg))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("command failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// templateMessage replaces placeholders in the command template with message values.
func templateMessage(command string, msg Message) string {
	r := strings.NewReplacer(
		"{{.RunID}}", msg.RunID,
		"{{.Date}}", msg.Date,
		"{{.Mode}}", msg.Mode,
		"{{.Failed}}", strconv.Itoa(msg.Failed),
		"{{.Summary}}", msg.Summary,
	)
	return r.Replace(command)
}
