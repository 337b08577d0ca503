package designer

import "encoding/json"

const (
	BasePrice       = 30000
	PricePerSticker = 15000
)

// Price quotes a finished design: the blank garment plus a surcharge per
// sticker. Text is free. Unreadable designs cost the base price.
func Price(elementsJSON string) int64 {
	var wire []struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal([]byte(elementsJSON), &wire); err != nil {
		return BasePrice
	}
	stickers := 0
	for _, w := range wire {
		if w.Type == KindSticker {
			stickers++
		}
	}
	return PriceForStickers(stickers)
}

// PriceForStickers quotes a design carrying n stickers.
func PriceForStickers(n int) int64 {
	if n < 0 {
		n = 0
	}
	return BasePrice + int64(n)*PricePerSticker
}

// CountStickers returns how many of the elements are stickers.
func CountStickers(elements []Element) int {
	n := 0
	for _, el := range elements {
		if el.Kind() == KindSticker {
			n++
		}
	}
	return n
}
