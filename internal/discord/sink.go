package discord

import (
	"context"
	"fmt"
	"invitetrack/entity"

	"github.com/bwmarrin/discordgo"
)

// Messenger is the part of *discordgo.Session used to post messages.
type Messenger interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// LogChannel posts joins and departures as embeds into one channel.
type LogChannel struct {
	msg       Messenger
	channelID string
}

// NewLogChannel returns nil when no channel is configured.
func NewLogChannel(msg Messenger, channelID string) *LogChannel {
	if channelID == "" {
		return nil
	}
	return &LogChannel{msg: msg, channelID: channelID}
}

func (l *LogChannel) Joined(ctx context.Context, a *entity.Attribution) error {
	_, err := l.msg.ChannelMessageSendEmbed(l.channelID, joinEmbed(a), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("posting join: %w", err)
	}
	return nil
}

func (l *LogChannel) Left(ctx context.Context, d *entity.Departure) error {
	_, err := l.msg.ChannelMessageSendEmbed(l.channelID, leaveEmbed(d), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("posting departure: %w", err)
	}
	return nil
}
