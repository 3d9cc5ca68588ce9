package protocol

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// AddSymbolsRequest is the body of POST /add-symbols: a bare JSON array.
type AddSymbolsRequest []string

// RemoveSymbolRequest is the body of DELETE /remove-symbol. Symbol is a
// pointer so a missing field can be told apart from an empty string.
type RemoveSymbolRequest struct {
	Symbol *string `json:"symbol"`
}

type APIResponse struct {
	Status  string   `json:"status"`           // "success", "error"
	Message string   `json:"message,omitempty"`
	Symbols []string `json:"symbols,omitempty"` // newly added symbols on add
}

func Success(msg string) APIResponse { return APIResponse{Status: StatusSuccess, Message: msg} }

func Error(msg string) APIResponse { return APIResponse{Status: StatusError, Message: msg} }
