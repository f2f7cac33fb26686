// Package command разбирает и сериализует команды агента.
// Разбор только структурный: белый список, риск и содержимое проверяет пайплайн.
package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/rootgw/internal/domain"
)

// wireCommand - входной формат:
// {"action": str, "params": {str: scalar}, "timestamp": int(ms), "need_root": bool, "verify"?: str}
type wireCommand struct {
	Action    string                     `json:"action"`
	Params    map[string]json.RawMessage `json:"params,omitempty"`
	Timestamp int64                      `json:"timestamp"`
	NeedRoot  bool                       `json:"need_root"`
	Verify    string                     `json:"verify,omitempty"`
}

const maxActionLen = 128

// Parse проверяет форму команды. Любая ошибка - *domain.Rejection с ReasonParseError.
func Parse(raw []byte) (domain.Command, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var w wireCommand
	if err := dec.Decode(&w); err != nil {
		return domain.Command{}, domain.Reject(domain.ReasonParseError, "malformed command: %v", err)
	}
	if dec.More() {
		return domain.Command{}, domain.Reject(domain.ReasonParseError, "trailing data after command object")
	}

	action := strings.TrimSpace(w.Action)
	if action == "" {
		return domain.Command{}, domain.Reject(domain.ReasonParseError, "action is required")
	}
	if len(action) > maxActionLen {
		return domain.Command{}, domain.Reject(domain.ReasonParseError, "action name too long")
	}

	params := make(domain.Params, len(w.Params))
	for key, rawVal := range w.Params {
		var v domain.Value
		if err := v.UnmarshalJSON(rawVal); err != nil {
			return domain.Command{}, domain.Reject(domain.ReasonParseError, "param %q: %v", key, err)
		}
		params[key] = v
	}

	cmd := domain.Command{
		Action:            action,
		Params:            params,
		RequiresElevation: w.NeedRoot,
		Verify:            w.Verify,
	}
	if w.Timestamp > 0 {
		cmd.IssuedAt = time.UnixMilli(w.Timestamp)
	}
	return cmd, nil
}

// Serialize - обратная операция к Parse. Parse(Serialize(c)) == c для команд
// с временем, усеченным до миллисекунд.
func Serialize(c domain.Command) ([]byte, error) {
	w := struct {
		Action    string        `json:"action"`
		Params    domain.Params `json:"params"`
		Timestamp int64         `json:"timestamp"`
		NeedRoot  bool          `json:"need_root"`
		Verify    string        `json:"verify,omitempty"`
	}{
		Action:   c.Action,
		Params:   c.Params,
		NeedRoot: c.RequiresElevation,
		Verify:   c.Verify,
	}
	if w.Params == nil {
		w.Params = domain.Params{}
	}
	if !c.IssuedAt.IsZero() {
		w.Timestamp = c.IssuedAt.UnixMilli()
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("command: serialize %s: %w", c.Action, err)
	}
	return data, nil
}

// IsParseError - удобный хелпер для вызывающих.
func IsParseError(err error) bool {
	var rej *domain.Rejection
	return errors.As(err, &rej) && rej.Reason == domain.ReasonParseError
}
