// ABOUTME: Optimistic operator sends: socket first, REST when the link is down
// ABOUTME: Failed sends stay visible until the operator retries them by hand

package console

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opsdesk/livechat/internal/chat"
)

// Send dispatches the compose box content as an operator message. The
// message appears in the open view immediately under a fresh temp ID and
// is marked pending until the server acknowledges it. While a REST send is
// in flight, further sends are ignored.
func (c *Controller) Send(text string) {
	c.do(func() {
		text = strings.TrimSpace(text)
		id := c.store.SelectedID
		if text == "" || id == "" || c.store.Sending {
			return
		}

		tempID := uuid.NewString()
		m := chat.Message{
			TempID:         tempID,
			ConversationID: id,
			Direction:      chat.DirectionOutgoing,
			SenderRole:     chat.RoleAdmin,
			Content:        text,
			Type:           chat.TypeText,
			CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		}
		c.store.ApplyMessage(m)
		c.store.AddPending(tempID)
		c.socket.StopTyping(id)

		// The compose box clears only once delivery is underway; a failed
		// send leaves the draft in place for the operator.
		if c.socket.SendMessage(text, tempID) {
			c.store.InputText = ""
			return
		}
		c.deliverOverREST(id, tempID, text)
	})
}

// RetryMessage re-dispatches a failed send under its original temp ID, so
// a late success from the first attempt and the retry reconcile to one row.
func (c *Controller) RetryMessage(tempID string) {
	c.do(func() {
		id := c.store.SelectedID
		if id == "" {
			return
		}
		if _, failed := c.store.FailureReason(tempID); !failed {
			return
		}
		var text string
		found := false
		for i := range c.store.Messages {
			if c.store.Messages[i].TempID == tempID {
				text = c.store.Messages[i].Content
				found = true
				break
			}
		}
		if !found {
			return
		}

		c.store.AddPending(tempID)
		if c.socket.SendMessage(text, tempID) {
			return
		}
		c.deliverOverREST(id, tempID, text)
	})
}

// deliverOverREST posts the message through the HTTP API. Runs on the loop;
// the request itself runs in a goroutine and settles back as a task.
func (c *Controller) deliverOverREST(id, tempID, text string) {
	c.store.Sending = true
	go func() {
		err := c.api.PostMessage(c.ctx, id, text)
		c.do(func() {
			c.store.Sending = false
			if err != nil {
				c.logger.Warn("message delivery failed",
					"conversation", id, "temp_id", tempID, "error", err)
				c.store.SetFailed(tempID, err.Error())
				c.store.BackendOnline = false
				return
			}
			c.store.BackendOnline = true
			c.store.RemovePending(tempID)
			c.store.ClearFailed(tempID)
			if strings.TrimSpace(c.store.InputText) == text {
				c.store.InputText = ""
			}
			// The REST path has no per-message ack frame, and the server's
			// copy of the message carries no temp ID the reconciler could
			// match on. Re-fetch the detail so the optimistic row is replaced
			// by the confirmed one, and the list so last_message catches up.
			if c.store.SelectedID == id {
				c.loadDetail(id)
			}
			c.refreshList()
		})
	}()
}

func messageKey(id int64) string {
	return "msg:" + strconv.FormatInt(id, 10)
}
