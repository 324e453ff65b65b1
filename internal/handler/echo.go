package handler

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"mime"
	"net/http"

	"github.com/starterkit/starterkit/internal/handler/dto"
)

// Echo range bounds, inclusive.
const (
	echoMinInt = 1
	echoMaxInt = 1000
)

// EchoHandler serves /api/string, which echoes text back with a random integer.
type EchoHandler struct {
	randInt func() int
}

// NewEchoHandler creates a new EchoHandler.
func NewEchoHandler() *EchoHandler {
	return &EchoHandler{
		randInt: func() int {
			return echoMinInt + rand.Intn(echoMaxInt-echoMinInt+1)
		},
	}
}

// Get handles GET /api/string?text=...
func (h *EchoHandler) Get(w http.ResponseWriter, r *http.Request) {
	values, ok := r.URL.Query()["text"]
	if !ok || len(values) == 0 {
		h.writeMissingText(w)
		return
	}
	h.respond(w, values[0])
}

// Post handles POST /api/string with a JSON body or form data.
func (h *EchoHandler) Post(w http.ResponseWriter, r *http.Request) {
	text, ok, err := h.textFromBody(r)
	if isBodyTooLarge(err) {
		writeBodyTooLarge(w)
		return
	}
	if !ok {
		h.writeMissingText(w)
		return
	}
	h.respond(w, text)
}

// textFromBody returns the text field and whether it was present.
// err is the body read or decode error, if any.
func (h *EchoHandler) textFromBody(r *http.Request) (string, bool, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "application/json" {
		var req dto.EchoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", false, err
		}
		if req.Text == nil {
			return "", false, nil
		}
		return *req.Text, true, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", false, err
	}
	values, ok := r.PostForm["text"]
	if !ok || len(values) == 0 {
		return "", false, nil
	}
	return values[0], true, nil
}

func (h *EchoHandler) respond(w http.ResponseWriter, text string) {
	n := h.randInt()
	writeJSON(w, http.StatusOK, dto.EchoResponse{
		OriginalText:  text,
		RandomInteger: n,
		Result:        fmt.Sprintf("%s %d", text, n),
	})
}

func (h *EchoHandler) writeMissingText(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, dto.MessageErrorResponse{
		Error:   "No text provided",
		Message: "Please provide text via query parameter (GET) or JSON body (POST)",
	})
}
