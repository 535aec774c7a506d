package idempotency

import "strconv"

// MessageKey identifies an inbound chat message.
func MessageKey(chatID int64, messageID int) string {
	return "msg:" + strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(messageID)
}

// CallbackKey identifies an inline button press.
func CallbackKey(callbackID string) string {
	return "cb:" + callbackID
}
