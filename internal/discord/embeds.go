package discord

import (
	"fmt"
	"invitetrack/entity"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const (
	colorJoin    = 0x57F287
	colorLeave   = 0xED4245
	colorStats   = 0x3498DB
	colorList    = 0x00FFFF
	colorRanking = 0xFFD700
	colorHelp    = 0x5865F2

	// discord rejects embeds with more fields
	maxEmbedFields = 25
)

func mention(userID string) string {
	if userID == "" {
		return "unknown"
	}
	return "<@" + userID + ">"
}

func joinEmbed(a *entity.Attribution) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title: "📥 New member",
		Color: colorJoin,
	}
	if a.Known() {
		e.Description = fmt.Sprintf("**%s** was invited by **%s**.\nInvite `%s` uses: %d",
			mention(a.Member.ID), mention(a.InviterID), a.Code, a.NewUseCount)
	} else {
		e.Description = fmt.Sprintf("**%s** joined, but the invite is unknown.", mention(a.Member.ID))
	}
	return e
}

func leaveEmbed(d *entity.Departure) *discordgo.MessageEmbed {
	name := d.Member.Username
	if name == "" {
		name = d.Member.ID
	}
	return &discordgo.MessageEmbed{
		Title:       "📤 Member left",
		Description: fmt.Sprintf("**%s** left the server.", name),
		Color:       colorLeave,
	}
}

// inviteListEmbed lists invites one field each; lists longer than an embed allows
// are cut and the footer says how many were left out.
func inviteListEmbed(title string, invites []entity.Invite) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{Title: title, Color: colorList}
	if len(invites) == 0 {
		e.Description = "No active invites."
		return e
	}
	for i, inv := range invites {
		if i == maxEmbedFields {
			e.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d more not shown", len(invites)-i)}
			break
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  "Code: " + inv.Code,
			Value: fmt.Sprintf("Invited by: %s\nUses: %s", mention(inv.InviterID), usesText(inv)),
		})
	}
	return e
}

func usesText(inv entity.Invite) string {
	if inv.MaxUses > 0 {
		return fmt.Sprintf("%d/%d", inv.Uses, inv.MaxUses)
	}
	return fmt.Sprintf("%d", inv.Uses)
}

func rankingEmbed(rows []entity.InviterTotal) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{Title: "🏆 Top inviters", Color: colorRanking}
	if len(rows) == 0 {
		e.Description = "Nobody has invited anyone yet."
		return e
	}
	for i, row := range rows {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%d. %s", i+1, displayName(row)),
			Value: fmt.Sprintf("%d invites", row.Uses),
		})
	}
	return e
}

func displayName(row entity.InviterTotal) string {
	if row.InviterName != "" {
		return row.InviterName
	}
	return row.InviterID
}

func helpEmbed(prefix string) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{Title: "📚 Invite tracker commands", Color: colorHelp}
	for _, c := range commandHelp {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  "`" + prefix + strings.TrimSpace(c.usage) + "`",
			Value: c.text,
		})
	}
	return e
}
