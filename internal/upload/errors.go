package upload

import "fmt"

// Reason は拒否理由の種別です。
type Reason string

const (
	ReasonUploadError    Reason = "UPLOAD_ERROR"
	ReasonTypeRejected   Reason = "TYPE_REJECTED"
	ReasonSizeExceeded   Reason = "SIZE_EXCEEDED"
	ReasonStorageFailure Reason = "STORAGE_FAILURE"
)

// Error はアップロードを受け付けなかった理由を表します。
type Error struct {
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(reason Reason, err error) *Error {
	return &Error{Reason: reason, Message: defaultMessages[reason], Err: err}
}

var defaultMessages = map[Reason]string{
	ReasonUploadError:    "File upload error",
	ReasonTypeRejected:   "Invalid file type",
	ReasonSizeExceeded:   "File too large",
	ReasonStorageFailure: "Failed to store file",
}
