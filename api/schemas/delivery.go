package schemas

// ImageEnvelope is the JSON body accepted by the chat webhook.
type ImageEnvelope struct {
	Tag         string       `json:"tag"`
	ImageBase64 ImageContent `json:"image_base64"`
}

// ImageContent carries the base64 encoded image.
type ImageContent struct {
	Content string `json:"content"`
}

// DeliveryOutcome is the result of exactly one delivery attempt.
type DeliveryOutcome struct {
	Target     string `json:"target,omitempty"`
	Success    bool   `json:"success"`
	MessageID  string `json:"message_id,omitempty"`
	Error      string `json:"error,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	RawBody    string `json:"raw_body,omitempty"`
}
