package types

type FrameUpdate struct {
	Type   string `json:"type"`
	Image  string `json:"image"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type TextUpdate struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Text string `json:"text"`
}

type Alert struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Command struct {
	Type string `json:"type"`
}
