package models

// Reply is transport-agnostic output of a chat operation: text plus an
// optional list of selectable items.
type Reply struct {
	Text  string      `json:"text"`
	Items []ReplyItem `json:"items,omitempty"`
}

// ReplyItem is a selectable entry. Value is sent back as the user's next
// input when chosen; URL, when set, is opened instead.
type ReplyItem struct {
	Label string `json:"label"`
	Value string `json:"value,omitempty"`
	URL   string `json:"url,omitempty"`
}
