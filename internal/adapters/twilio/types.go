package twilio

import "fmt"

// MessageResource is the subset of Twilio's Message resource the service reads back.
type MessageResource struct {
	SID          string  `json:"sid"`
	AccountSID   string  `json:"account_sid"`
	From         string  `json:"from"`
	To           string  `json:"to"`
	Body         string  `json:"body"`
	Status       string  `json:"status"`
	ErrorCode    *int    `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
	DateCreated  string  `json:"date_created"`
}

// APIError is the error document Twilio returns on non-2xx responses.
type APIError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	MoreInfo   string `json:"more_info"`
	Status     int    `json:"status"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("twilio API error %d (HTTP %d): %s", e.Code, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("twilio API error (HTTP %d): %s", e.HTTPStatus, e.Message)
}
