package resolution

import (
	"context"

	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/connresult/internal/classify"
	"github.com/smart-mcp-proxy/connresult/internal/config"
	"github.com/smart-mcp-proxy/connresult/internal/connresult"
	"github.com/smart-mcp-proxy/connresult/internal/reqcontext"
)

// ServiceLookup finds a configured service by name, or returns nil.
type ServiceLookup func(name string) *config.ServiceConfig

// ReportRecorder counts classified reports.
type ReportRecorder interface {
	RecordReport(code string)
}

// Outcome is the answer to one attempt report.
type Outcome struct {
	Result  connresult.ConnectionResult `json:"result"`
	Summary string                      `json:"summary"`
	Detail  string                      `json:"detail,omitempty"`
	Token   string                      `json:"token,omitempty"`
}

// Remediator turns attempt reports into ConnectionResults, issuing a
// persisted resolution when the code is resolvable and the service has a
// target configured for it.
type Remediator struct {
	registry *Registry
	services ServiceLookup
	recorder ReportRecorder
	logger   *zap.Logger
}

// NewRemediator creates a remediator. recorder may be nil.
func NewRemediator(registry *Registry, services ServiceLookup, recorder ReportRecorder, logger *zap.Logger) *Remediator {
	return &Remediator{
		registry: registry,
		services: services,
		recorder: recorder,
		logger:   logger,
	}
}

// Remediate classifies report and returns the resulting ConnectionResult.
// Storage failures while issuing a resolution are returned as errors; the
// classification itself never fails.
func (m *Remediator) Remediate(ctx context.Context, report classify.Report) (*Outcome, error) {
	svc := m.services(report.Service)
	verdict := classify.Evaluate(report, svc)

	if m.recorder != nil {
		m.recorder.RecordReport(verdict.Code.String())
	}

	outcome := &Outcome{
		Result:  connresult.New(verdict.Code, nil),
		Summary: verdict.Summary,
		Detail:  verdict.Detail,
	}

	target := TargetFor(verdict.Code, svc)
	if target == "" {
		reqcontext.CorrelationLogger(ctx, m.logger).Debug("Classified attempt",
			zap.String("service", report.Service),
			zap.Stringer("code", verdict.Code))
		return outcome, nil
	}

	intent := connresult.Intent{
		Action:  verdict.Code.Action(),
		Target:  target,
		Service: report.Service,
	}
	if report.Account != "" {
		intent.Extras = map[string]string{"account": report.Account}
	}

	pending, err := m.registry.Issue(ctx, report.Service, verdict.Code, intent)
	if err != nil {
		return nil, err
	}

	outcome.Result = connresult.New(verdict.Code, pending)
	outcome.Token = pending.Token()
	return outcome, nil
}

// TargetFor returns the configured remediation target for code, or "" when
// the code is not resolvable or the service has no target for it.
func TargetFor(code connresult.ErrorCode, svc *config.ServiceConfig) string {
	if svc == nil || code.Recoverability() != connresult.RecoverabilityResolvable {
		return ""
	}

	switch code {
	case connresult.ServiceMissing:
		return svc.InstallURL
	case connresult.ServiceVersionUpdateRequired:
		return svc.UpdateURL
	case connresult.ServiceDisabled:
		return svc.EnableURL
	case connresult.SignInRequired:
		return svc.LoginURL
	case connresult.ResolutionRequired:
		return svc.ResolveURL
	default:
		return ""
	}
}
