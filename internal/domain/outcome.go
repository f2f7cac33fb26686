package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Reason - причина отказа. Все причины восстановимы: каждая заканчивается
// одним Fail-исходом и одной записью аудита. InvariantViolation живет в actions.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonParseError           Reason = "parse_error"
	ReasonPermissionDenied     Reason = "permission_denied"
	ReasonNotWhitelisted       Reason = "not_whitelisted"
	ReasonDeniedContent        Reason = "denied_content"
	ReasonConfirmationRequired Reason = "confirmation_required"
	ReasonConfirmationDenied   Reason = "confirmation_denied"
	ReasonExecutionFailure     Reason = "execution_failure"
	ReasonTimedOut             Reason = "timed_out"
)

// Rejection - типизированный отказ пайплайна.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

func Reject(reason Reason, format string, args ...interface{}) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf достает причину из цепочки ошибок. Незнакомые ошибки считаются ExecutionFailure.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ReasonExecutionFailure
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusFail    Status = "fail"
)

// ExecutionResult - результат одного повышенного процесса.
type ExecutionResult struct {
	Succeeded bool   `json:"succeeded"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ExitCode  int    `json:"exit_code"`
}

// Outcome - единственный ответ, который получает потребитель на каждую команду.
type Outcome struct {
	Action string
	Status Status
	Detail string
	At     time.Time
	Reason Reason
}

type outcomeJSON struct {
	Action    string `json:"action"`
	Status    Status `json:"status"`
	Detail    string `json:"detail"`
	Timestamp int64  `json:"timestamp"`
	Reason    Reason `json:"reason,omitempty"`
}

// MarshalJSON отдает timestamp в миллисекундах, как и во входном формате.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(outcomeJSON{
		Action:    o.Action,
		Status:    o.Status,
		Detail:    o.Detail,
		Timestamp: o.At.UnixMilli(),
		Reason:    o.Reason,
	})
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	var w outcomeJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*o = Outcome{Action: w.Action, Status: w.Status, Detail: w.Detail, At: time.UnixMilli(w.Timestamp), Reason: w.Reason}
	return nil
}

func Success(action, detail string, at time.Time) Outcome {
	return Outcome{Action: action, Status: StatusSuccess, Detail: detail, At: at}
}

func Fail(action string, err error, at time.Time) Outcome {
	return Outcome{Action: action, Status: StatusFail, Detail: err.Error(), At: at, Reason: ReasonOf(err)}
}

func (o Outcome) Succeeded() bool { return o.Status == StatusSuccess }
