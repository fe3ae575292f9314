// Package handler holds what the endpoint packages share: the JSON
// envelope wrapping every session, job, token, and error payload.
package handler

// Response is the uniform reply shape. Data carries the payload
// (session record, job reference, token) on success; Message carries
// the reason on error.
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}
