package bot

import (
	"fmt"
	"invitetrack/entity"
	"strconv"
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

// Callback data prefixes; Telegram limits callback data to 64 bytes.
const (
	cbApprove = "a:" // a:<telegram_id>
	cbRevoke  = "r:" // r:<telegram_id>
)

func buildPendingUserButtons(telegramId int64) tgbotapi.InlineKeyboardMarkup {
	idStr := strconv.FormatInt(telegramId, 10)
	return tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{
			{
				{Text: "Approve ✓", CallbackData: cbApprove + idStr},
				{Text: "Revoke ✗", CallbackData: cbRevoke + idStr},
			},
		},
	}
}

// callbackTarget resolves the user a button refers to, answering the query itself
// when the press is not allowed or the user is gone.
func (t *TgBot) callbackTarget(cq *tgbotapi.CallbackQuery, prefix string) *entity.User {
	if !t.requireAdmin(cq.From.Id) {
		_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "Admin access required", ShowAlert: true})
		return nil
	}
	targetId, err := strconv.ParseInt(strings.TrimPrefix(cq.Data, prefix), 10, 64)
	if err != nil {
		_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "Invalid user ID"})
		return nil
	}
	target := t.findUser(targetId)
	if target == nil {
		_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "User not found"})
		return nil
	}
	return target
}

// markDone replaces the buttons message with its text and a result line.
func (t *TgBot) markDone(cq *tgbotapi.CallbackQuery, result string) {
	msg, ok := cq.Message.(tgbotapi.Message)
	if !ok {
		return
	}
	_, _, _ = t.api.EditMessageText(
		fmt.Sprintf("%s\n\n%s by %s", Sanitize(msg.Text), result, Sanitize(userDisplayName(t.findUser(cq.From.Id)))),
		&tgbotapi.EditMessageTextOpts{
			ChatId:    cq.From.Id,
			MessageId: msg.MessageId,
			ParseMode: "MarkdownV2",
		},
	)
}

func (t *TgBot) onApproveCallback(_ *tgbotapi.Bot, ctx *ext.Context) error {
	cq := ctx.CallbackQuery
	target := t.callbackTarget(cq, cbApprove)
	if target == nil {
		return nil
	}
	if err := t.approveUser(target); err != nil {
		t.reportError(cq.From.Id, "approve:callback", err)
		_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "Error occurred"})
		return nil
	}
	t.markDone(cq, "✓ Approved")
	_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "User approved"})
	return nil
}

func (t *TgBot) onRevokeCallback(_ *tgbotapi.Bot, ctx *ext.Context) error {
	cq := ctx.CallbackQuery
	target := t.callbackTarget(cq, cbRevoke)
	if target == nil {
		return nil
	}
	if err := t.revokeUser(target); err != nil {
		t.reportError(cq.From.Id, "revoke:callback", err)
		_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "Error occurred"})
		return nil
	}
	t.markDone(cq, "✗ Revoked")
	_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "User revoked"})
	return nil
}
