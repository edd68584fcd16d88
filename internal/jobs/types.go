package jobs

import "time"

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	StatusFailed    Status = "error"
)

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record は 1 回分のメンテナンス実行の状態です。
type Record struct {
	JobID     string     `json:"jobId"`
	Task      string     `json:"task"`
	Status    Status     `json:"status"`
	Removed   int64      `json:"removed"`
	Error     *ErrorInfo `json:"error,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// TaskPayload はタスクのペイロードです。定期実行では JobID は空です。
type TaskPayload struct {
	JobID string `json:"jobId,omitempty"`
}
