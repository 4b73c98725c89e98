package handler

import (
	"encoding/json"
	"log"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateHandler receives Telegram updates in webhook mode and hands them to
// the bot's dispatch loop.
type UpdateHandler struct {
	name    string
	updates chan tgbotapi.Update
}

// NewUpdateHandler creates an UpdateHandler with a buffered update channel.
func NewUpdateHandler(name string, buffer int) *UpdateHandler {
	return &UpdateHandler{name: name, updates: make(chan tgbotapi.Update, buffer)}
}

// Updates is the channel the bot reads from, shaped like tgbotapi.UpdatesChannel.
func (h *UpdateHandler) Updates() tgbotapi.UpdatesChannel {
	return h.updates
}

// ServeHTTP decodes one update. A full queue answers 503 so Telegram
// redelivers later.
func (h *UpdateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var u tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		log.Printf("WARN: %s bot: decode update: %v", h.name, err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid update"})
		return
	}

	select {
	case h.updates <- u:
		w.WriteHeader(http.StatusOK)
	default:
		log.Printf("WARN: %s bot: update queue full, dropping update %d", h.name, u.UpdateID)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "busy"})
	}
}
