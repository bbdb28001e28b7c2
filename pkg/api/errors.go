package api

// ErrorResponse стандартный ответ сервера при ошибке.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
