package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const itemCursorPrefix = "item"

// DecodeItemCursor returns the item position a listing continues after.
// An empty cursor starts from the beginning.
func DecodeItemCursor(cursorStr string) (int, error) {
	if cursorStr == "" {
		return 0, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return 0, err
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 || parts[0] != itemCursorPrefix {
		return 0, fmt.Errorf("invalid cursor format")
	}

	var position int
	if _, err := fmt.Sscanf(parts[1], "%d", &position); err != nil {
		return 0, fmt.Errorf("invalid position in cursor: %w", err)
	}
	if position < 0 {
		return 0, fmt.Errorf("invalid position in cursor: %d", position)
	}
	return position, nil
}

// EncodeItemCursor returns the cursor for the page after position
func EncodeItemCursor(position int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf("%s|%d", itemCursorPrefix, position)))
}
