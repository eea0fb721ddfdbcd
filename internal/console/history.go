// ABOUTME: History backfill: pages older messages in by before-id cursor
// ABOUTME: A page is discarded unless the view it was fetched for still holds

package console

// LoadOlder fetches the page of messages older than the oldest confirmed
// message currently in view and prepends it. One page may be in flight at
// a time. When the oldest message is still unconfirmed there is no usable
// cursor, so paging stops until the view settles.
func (c *Controller) LoadOlder() {
	c.do(func() {
		id := c.store.SelectedID
		if id == "" || c.store.LoadingHistory || !c.store.HasMoreHistory {
			return
		}
		oldest, ok := c.store.OldestMessage()
		if !ok {
			return
		}
		if !oldest.Confirmed() {
			// An optimistic send at the head means the archive boundary is
			// unknown. Treat history as exhausted rather than guess a cursor.
			c.store.HasMoreHistory = false
			return
		}
		cursor := oldest.ID
		c.store.LoadingHistory = true

		go func() {
			page, err := c.api.Messages(c.ctx, id, historyPageSize, cursor)
			c.do(func() {
				if c.store.SelectedID != id {
					return
				}
				c.store.LoadingHistory = false
				if err != nil {
					c.logger.Warn("history fetch failed",
						"conversation", id, "before_id", cursor, "error", err)
					return
				}
				current, ok := c.store.OldestMessage()
				if !ok || current.ID != cursor {
					// The view shifted under the request. The page was cut
					// against a cursor that no longer fronts the list, so
					// prepending it could duplicate or misplace rows.
					return
				}
				c.store.PrependMessages(page.Messages)
				c.store.HasMoreHistory = page.HasMore
			})
		}()
	})
}
