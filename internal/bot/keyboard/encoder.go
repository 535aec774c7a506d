package keyboard

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CallbackDataSeparator  = ":"
	CallbackDataLimitBytes = 64
)

// Callback identifiers routed by the bot.
const (
	CallbackHoroscopeCancel = "horoscope_cancel"
)

func EncodeCallback(unique, data string) (string, error) {
	if unique == "" {
		return "", errors.New("callback identifier is empty")
	}

	payload := unique
	if data != "" {
		payload = unique + CallbackDataSeparator + data
	}
	if len(payload) > CallbackDataLimitBytes {
		return "", fmt.Errorf("callback data exceeds %d byte limit: got %d", CallbackDataLimitBytes, len(payload))
	}

	return payload, nil
}

func DecodeCallback(callbackData string) (unique, data string, err error) {
	if callbackData == "" {
		return "", "", errors.New("callback data is empty")
	}

	unique, data, _ = strings.Cut(callbackData, CallbackDataSeparator)
	return unique, data, nil
}
