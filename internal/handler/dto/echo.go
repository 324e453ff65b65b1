package dto

// EchoRequest is the JSON body accepted by POST /api/string.
// Text is a pointer so a missing key can be told apart from "".
type EchoRequest struct {
	Text *string `json:"text"`
}

// EchoResponse is returned by /api/string.
type EchoResponse struct {
	OriginalText  string `json:"original_text"`
	RandomInteger int    `json:"random_integer"`
	Result        string `json:"result"`
}

// MessageErrorResponse is the error shape used by /api/string.
type MessageErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
