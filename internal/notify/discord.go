package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// discordSession abstracts the discordgo.Session methods we use, enabling
// test mocks.
type discordSession interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts digests to a Discord channel over the REST API. No
// Gateway connection is needed for outbound-only posting.
type DiscordNotifier struct {
	sess      discordSession
	channelID string
}

// DiscordOpts holds parameters for creating a DiscordNotifier.
type DiscordOpts struct {
	Token     string // Discord bot token
	ChannelID string // channel to post digests to
	// For testing: inject a mock session instead of the real Discord API.
	Session discordSession
}

// NewDiscord creates a DiscordNotifier.
func NewDiscord(opts DiscordOpts) (*DiscordNotifier, error) {
	if opts.Session == nil && opts.Token == "" {
		return nil, fmt.Errorf("notify: discord bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: discord channel is required")
	}

	n := &DiscordNotifier{channelID: opts.ChannelID}
	if opts.Session != nil {
		n.sess = opts.Session
	} else {
		sess, err := discordgo.New("Bot " + opts.Token)
		if err != nil {
			return nil, fmt.Errorf("notify: discord session: %w", err)
		}
		n.sess = sess
	}
	return n, nil
}

func (n *DiscordNotifier) Name() string { return "discord" }

// Post delivers the digest as an embed.
func (n *DiscordNotifier) Post(ctx context.Context, digest Digest) error {
	embed := &discordgo.MessageEmbed{
		Title:       digest.Title(),
		Description: digest.Body(),
		Color:       discordColor(digest),
	}

	_, err := n.sess.ChannelMessageSendEmbed(n.channelID, embed,
		discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("notify: discord post: %w", err)
	}
	return nil
}

func discordColor(digest Digest) int {
	if !digest.Disclosed {
		return 0xcccccc
	}
	switch digest.Trend {
	case "up":
		return 0x36a64f
	case "down":
		return 0xd00000
	default:
		return 0x439fe0
	}
}
