package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/xela07ax/rootgw/internal/actions"
	"github.com/xela07ax/rootgw/internal/approval"
	"github.com/xela07ax/rootgw/internal/audit"
	"github.com/xela07ax/rootgw/internal/command"
	"github.com/xela07ax/rootgw/internal/domain"
	"github.com/xela07ax/rootgw/internal/policy"
	"github.com/xela07ax/rootgw/internal/risk"
	"github.com/xela07ax/rootgw/internal/session"
)

// Stage - состояние команды в пайплайне.
type Stage int

const (
	StageReceived Stage = iota
	StagePermissionGated
	StageWhitelistChecked
	StageContentChecked
	StageRiskConfirmed
	StageExecuted
	StageLogged
	StageDelivered
)

var stageNames = [...]string{
	StageReceived:         "received",
	StagePermissionGated:  "permission_gated",
	StageWhitelistChecked: "whitelist_checked",
	StageContentChecked:   "content_checked",
	StageRiskConfirmed:    "risk_confirmed",
	StageExecuted:         "executed",
	StageLogged:           "logged",
	StageDelivered:        "delivered",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Elevation - состояние прав сессии. Пайплайн только читает его и никогда
// не запрашивает права сам.
type Elevation interface {
	State() session.ElevationState
}

const (
	DefaultExecTimeout = 15 * time.Second
	maxDetailLen       = 4 << 10
	unknownActionLabel = "unknown"
)

type Deps struct {
	Gate      policy.Enforcer
	Catalog   *actions.Catalog
	Analyzer  *risk.Analyzer
	Confirmer approval.Confirmer // nil: High-действия отклоняются с ConfirmationRequired
	Elevation Elevation
	Executor  actions.Executor
	Trail     *audit.Trail
	Metrics   *Metrics
	Logger    *zap.Logger

	ExecTimeout time.Duration
	Now         func() time.Time
}

// Pipeline проводит каждую команду через гейты до исполнения и гарантирует
// ровно одну запись аудита и ровно один исход на команду.
type Pipeline struct {
	d   Deps
	log *zap.Logger
}

func NewPipeline(d Deps) (*Pipeline, error) {
	if d.Gate == nil || d.Elevation == nil || d.Executor == nil {
		return nil, errors.New("pipeline: gate, elevation and executor are required")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Catalog == nil {
		d.Catalog = actions.MustDefault(actions.DefaultTargets())
	}
	if d.Analyzer == nil {
		d.Analyzer = risk.NewAnalyzer(nil, d.Logger)
	}
	if d.Trail == nil {
		d.Trail = audit.NewTrail(nil, nil)
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(nil)
	}
	if d.ExecTimeout <= 0 {
		d.ExecTimeout = DefaultExecTimeout
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Pipeline{d: d, log: d.Logger.Named("pipeline")}, nil
}

func (p *Pipeline) Catalog() *actions.Catalog { return p.d.Catalog }

func (p *Pipeline) Trail() *audit.Trail { return p.d.Trail }

// run - одна команда в полете.
type run struct {
	id      string
	traceID string
	src     domain.Source
	cmd     domain.Command
	stage   Stage
	started time.Time
}

func (p *Pipeline) newRun(ctx context.Context, src domain.Source, cmd domain.Command) *run {
	return &run{
		id:      ulid.Make().String(),
		traceID: extractTraceID(ctx),
		src:     src,
		cmd:     cmd,
		stage:   StageReceived,
		started: time.Now(),
	}
}

// Submit обрабатывает структурированную команду. deliver вызывается ровно один
// раз до возврата, тот же исход возвращается вызывающему.
func (p *Pipeline) Submit(ctx context.Context, src domain.Source, cmd domain.Command, deliver Deliver) domain.Outcome {
	r := p.newRun(ctx, src, cmd)
	out := p.guard(ctx, r)
	p.finish(r, out, newFeedback(deliver))
	return out
}

// SubmitRaw разбирает JSON команды. Ошибка разбора тоже попадает в аудит.
func (p *Pipeline) SubmitRaw(ctx context.Context, src domain.Source, raw []byte, deliver Deliver) domain.Outcome {
	cmd, err := command.Parse(raw)
	if err != nil {
		return p.rejectUnparsed(ctx, src, err, deliver)
	}
	return p.Submit(ctx, src, cmd, deliver)
}

// SubmitText извлекает первую команду из свободного текста модели.
func (p *Pipeline) SubmitText(ctx context.Context, src domain.Source, text string, deliver Deliver) domain.Outcome {
	cmd, ok := command.ExtractFromFreeText(text)
	if !ok {
		return p.rejectUnparsed(ctx, src, domain.Reject(domain.ReasonParseError, "no command object found in text"), deliver)
	}
	return p.Submit(ctx, src, cmd, deliver)
}

func (p *Pipeline) rejectUnparsed(ctx context.Context, src domain.Source, err error, deliver Deliver) domain.Outcome {
	r := p.newRun(ctx, src, domain.Command{})
	out := domain.Fail("", err, p.d.Now())
	p.finish(r, out, newFeedback(deliver))
	return out
}

// guard превращает панику коллаборатора в Fail. Нарушение инварианта
// таблицы действий пробрасывается дальше.
func (p *Pipeline) guard(ctx context.Context, r *run) (out domain.Outcome) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		if err, ok := v.(error); ok && errors.Is(err, actions.ErrInvariantViolation) {
			panic(v)
		}
		p.log.Error("pipeline step panicked",
			zap.String("execution_id", r.id),
			zap.String("trace_id", r.traceID),
			zap.String("action", r.cmd.Action),
			zap.String("stage", r.stage.String()),
			zap.Any("panic", v),
			zap.ByteString("stack", debug.Stack()),
		)
		out = domain.Fail(r.cmd.Action, domain.Reject(domain.ReasonExecutionFailure, "internal error"), p.d.Now())
	}()

	res, err := p.run(ctx, r)
	if err != nil {
		return domain.Fail(r.cmd.Action, err, p.d.Now())
	}
	return domain.Success(r.cmd.Action, successDetail(res), p.d.Now())
}

func (p *Pipeline) run(ctx context.Context, r *run) (domain.ExecutionResult, error) {
	action := r.cmd.Action

	// 1. PermissionGated: флаг источника и need_root против состояния сессии
	if err := p.d.Gate.Authorize(ctx, r.src); err != nil {
		return domain.ExecutionResult{}, asRejection(err, domain.ReasonPermissionDenied)
	}
	if !r.cmd.RequiresElevation {
		return domain.ExecutionResult{}, domain.Reject(domain.ReasonPermissionDenied, "need_root is false but %q runs elevated", action)
	}
	if st := p.d.Elevation.State(); st != session.ElevationGranted {
		return domain.ExecutionResult{}, domain.Reject(domain.ReasonPermissionDenied, "elevation is %s", st)
	}
	r.stage = StagePermissionGated

	// 2. WhitelistChecked
	if !p.d.Catalog.IsWhitelisted(action) {
		if hint, ok := p.d.Catalog.Suggest(action); ok {
			return domain.ExecutionResult{}, domain.Reject(domain.ReasonNotWhitelisted, "unknown action %q (did you mean %q?)", action, hint)
		}
		return domain.ExecutionResult{}, domain.Reject(domain.ReasonNotWhitelisted, "unknown action %q", action)
	}
	r.stage = StageWhitelistChecked

	// 3. ContentChecked: денайлист, затем схема параметров и второй белый список целей
	if pattern, hit := p.d.Analyzer.ContainsDeniedContent(r.cmd.Params); hit {
		return domain.ExecutionResult{}, domain.Reject(domain.ReasonDeniedContent, "parameters match denied pattern %q", pattern)
	}
	prepared, err := p.d.Catalog.Prepare(action, r.cmd.Params)
	if err != nil {
		if errors.Is(err, actions.ErrInvariantViolation) {
			panic(err)
		}
		return domain.ExecutionResult{}, err
	}
	r.stage = StageContentChecked

	// 4. RiskConfirmed
	ready, err := p.confirm(ctx, r, prepared)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	if ready.Confirmed() {
		r.stage = StageRiskConfirmed
	}

	// 5. Executed
	res, err := actions.Dispatch(ctx, p.d.Executor, ready, p.d.ExecTimeout)
	if err != nil {
		return domain.ExecutionResult{}, classifyExecErr(action, err)
	}
	r.stage = StageExecuted

	if !res.Succeeded {
		return res, domain.Reject(domain.ReasonExecutionFailure, "exit code %d: %s", res.ExitCode, clip(strings.TrimSpace(res.Stderr)))
	}
	if v := r.cmd.Verify; v != "" && !strings.Contains(res.Stdout, v) {
		return res, domain.Reject(domain.ReasonExecutionFailure, "verify: %q not found in output", v)
	}
	return res, nil
}

func (p *Pipeline) confirm(ctx context.Context, r *run, prepared actions.Prepared) (actions.Ready, error) {
	// Без подтверждающего Normal сам вернет ConfirmationRequired для High
	if !prepared.IsHighRisk() || p.d.Confirmer == nil {
		return actions.Normal(prepared)
	}

	pending := actions.RequireConfirmation(prepared)
	decision := p.d.Confirmer.Confirm(ctx, approval.Request{
		ExecutionID: r.id,
		TraceID:     r.traceID,
		Source:      r.src,
		Action:      r.cmd.Action,
		Params:      r.cmd.Params,
		CommandLine: prepared.CommandLine,
	})
	p.log.Info("confirmation decided",
		zap.String("execution_id", r.id),
		zap.String("action", r.cmd.Action),
		zap.String("decision", string(decision)),
	)
	return actions.Confirm(pending, decision)
}

// finish пишет аудит, метрики и лог, затем отдает исход потребителю.
func (p *Pipeline) finish(r *run, out domain.Outcome, fb *feedback) {
	elapsed := time.Since(r.started)

	p.d.Trail.Record(audit.Entry{
		ID:           r.id,
		TraceID:      r.traceID,
		At:           out.At,
		Action:       r.cmd.Action,
		ParamSummary: r.cmd.Params.Summary(),
		Outcome:      out.Detail,
		Succeeded:    out.Succeeded(),
		Source:       r.src,
		Reason:       out.Reason,
		Stage:        r.stage.String(),
		DurationMs:   elapsed.Milliseconds(),
	})

	label := r.cmd.Action
	if !p.d.Catalog.IsWhitelisted(label) {
		label = unknownActionLabel
	}
	p.d.Metrics.CommandsTotal.WithLabelValues(label, string(out.Status)).Inc()
	p.d.Metrics.CommandDuration.WithLabelValues(label, string(out.Status)).Observe(elapsed.Seconds())

	fields := []zap.Field{
		zap.String("execution_id", r.id),
		zap.String("trace_id", r.traceID),
		zap.String("source", string(r.src)),
		zap.String("action", r.cmd.Action),
		zap.String("stage", r.stage.String()),
		zap.Duration("took", elapsed),
	}
	if out.Succeeded() {
		p.log.Info("command succeeded", fields...)
	} else {
		p.d.Metrics.RejectionsTotal.WithLabelValues(string(out.Reason)).Inc()
		p.log.Warn("command failed", append(fields,
			zap.String("reason", string(out.Reason)),
			zap.String("detail", out.Detail),
		)...)
	}
	r.stage = StageLogged

	fired, err := fb.send(out)
	if err != nil {
		p.log.Error("feedback delivery failed", zap.String("execution_id", r.id), zap.Error(err))
	}
	if fired {
		r.stage = StageDelivered
	}
}

func classifyExecErr(action string, err error) error {
	var rej *domain.Rejection
	switch {
	case errors.As(err, &rej):
		return rej
	case errors.Is(err, session.ErrTimedOut):
		return domain.Reject(domain.ReasonTimedOut, "%s: %v", action, err)
	case errors.Is(err, context.Canceled):
		return domain.Reject(domain.ReasonExecutionFailure, "%s: cancelled", action)
	default:
		return domain.Reject(domain.ReasonExecutionFailure, "%s: %v", action, err)
	}
}

// asRejection сохраняет типизированный отказ или оборачивает чужую ошибку.
func asRejection(err error, reason domain.Reason) error {
	var rej *domain.Rejection
	if errors.As(err, &rej) {
		return rej
	}
	return domain.Reject(reason, "%v", err)
}

func successDetail(res domain.ExecutionResult) string {
	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		return "ok"
	}
	return clip(out)
}

func clip(s string) string {
	if len(s) <= maxDetailLen {
		return s
	}
	return s[:maxDetailLen] + "..."
}
