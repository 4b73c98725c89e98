// Package bot holds the customer and admin Telegram front ends. Both read a
// tgbotapi update channel on a single goroutine and talk to the services;
// neither keeps state that must survive a restart.
package bot

import (
	"context"
	"errors"
	"log"
	"runtime/debug"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Messenger is the part of *tgbotapi.BotAPI the bots use.
type Messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

const genericError = "Sembla que hi ha hagut un error."

var errNoMessage = errors.New("callback has no message")

// dispatch reads updates until ctx is done or the channel closes. A panic
// in one update is logged and does not stop the loop.
func dispatch(ctx context.Context, name string, updates tgbotapi.UpdatesChannel, handle func(context.Context, tgbotapi.Update)) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("ERROR: %s bot: panic on update %d: %v\n%s", name, u.UpdateID, r, debug.Stack())
					}
				}()
				handle(ctx, u)
			}()
		}
	}
}

type chat struct {
	api Messenger
}

func (c chat) send(msg tgbotapi.MessageConfig) {
	if _, err := c.api.Send(msg); err != nil {
		log.Printf("ERROR: send to %d: %v", msg.ChatID, err)
	}
}

func (c chat) reply(chatID int64, text string) {
	c.send(tgbotapi.NewMessage(chatID, text))
}

func (c chat) replyWith(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	c.send(msg)
}

// answer acknowledges a callback query so the client stops its spinner.
func (c chat) answer(cb *tgbotapi.CallbackQuery, text string) {
	if _, err := c.api.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
		log.Printf("WARN: answer callback %s: %v", cb.ID, err)
	}
}

// edit replaces the text and keyboard of the message a callback came from.
func (c chat) edit(cb *tgbotapi.CallbackQuery, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	if cb.Message == nil {
		return errNoMessage
	}
	chatID := cb.Message.Chat.ID
	var cfg tgbotapi.EditMessageTextConfig
	if kb != nil {
		cfg = tgbotapi.NewEditMessageTextAndMarkup(chatID, cb.Message.MessageID, text, *kb)
	} else {
		cfg = tgbotapi.NewEditMessageText(chatID, cb.Message.MessageID, text)
	}
	_, err := c.api.Send(cfg)
	return err
}

// editOrReply edits the callback's message, or sends a new one when the
// edit is refused.
func (c chat) editOrReply(cb *tgbotapi.CallbackQuery, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	if err := c.edit(cb, text, kb); err == nil {
		return
	}
	msg := tgbotapi.NewMessage(cb.From.ID, text)
	if cb.Message != nil {
		msg.ChatID = cb.Message.Chat.ID
	}
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	c.send(msg)
}
