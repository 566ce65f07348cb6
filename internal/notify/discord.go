package notify

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const (
	colorGood   = 0x36a64f
	colorDanger = 0xd00000
)

// Discord posts to a Discord channel webhook.
type Discord struct {
	id      string
	token   string
	execute func(ctx context.Context, id, token string, params *discordgo.WebhookParams) error
}

// NewDiscord parses a webhook URL of the form
// https://discord.com/api/webhooks/<id>/<token>.
func NewDiscord(webhookURL string) (*Discord, error) {
	u, err := url.Parse(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("discord webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	n := len(parts)
	if n < 3 || parts[n-3] != "webhooks" || parts[n-2] == "" || parts[n-1] == "" {
		return nil, fmt.Errorf("discord webhook url: want .../webhooks/<id>/<token>, got %q", u.Path)
	}
	sess, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Discord{
		id:    parts[n-2],
		token: parts[n-1],
		execute: func(ctx context.Context, id, token string, params *discordgo.WebhookParams) error {
			_, err := sess.WebhookExecute(id, token, false, params, discordgo.WithContext(ctx))
			return err
		},
	}, nil
}

// Notify posts the summary as one embed.
func (d *Discord) Notify(ctx context.Context, msg Message) error {
	embed := &discordgo.MessageEmbed{
		Title: msg.Summary,
		Color: colorGood,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Run", Value: msg.RunID, Inline: true},
			{Name: "Mode", Value: msg.Mode, Inline: true},
		},
	}
	if msg.Failed > 0 {
		embed.Color = colorDanger
	}
	for _, st := range sortedStatuses(msg.Counts) {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: string(st), Value: strconv.Itoa(msg.Counts[st]), Inline: true})
	}
	if len(msg.Details) > 0 {
		embed.Description = "```\n" + strings.Join(msg.Details, "\n") + "\n```"
	}
	if err := d.execute(ctx, d.id, d.token, &discordgo.WebhookParams{Embeds: []*discordgo.MessageEmbed{embed}}); err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	return nil
}
