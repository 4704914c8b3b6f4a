// Grading-domain semantic attributes.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sanad-Labs/sanad/pkg/contracts"
)

var (
	AttrTenantID = attribute.Key("sanad.tenant.id")
	AttrDealID   = attribute.Key("sanad.deal.id")
	AttrClaimID  = attribute.Key("sanad.claim.id")
	AttrCalcID   = attribute.Key("sanad.calc.id")
	AttrPassID   = attribute.Key("sanad.pass.id")

	AttrGrade        = attribute.Key("sanad.grade")
	AttrTawaturClass = attribute.Key("sanad.tawatur.class")
	AttrDefectCount  = attribute.Key("sanad.defect.count")

	AttrDefectCode     = attribute.Key("sanad.defect.code")
	AttrDefectSeverity = attribute.Key("sanad.defect.severity")

	AttrMethodologyVersion = attribute.Key("sanad.methodology.version")
	AttrEngineVersion      = attribute.Key("sanad.engine.version")
)

// ClaimAttrs identifies the claim a span or metric point concerns.
func ClaimAttrs(tenantID, dealID, claimID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTenantID.String(tenantID),
		AttrDealID.String(dealID),
		AttrClaimID.String(claimID),
	}
}

// PassAttrs describes a finished grading pass.
func PassAttrs(result *contracts.SanadGradeResult) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTenantID.String(result.TenantID),
		AttrClaimID.String(result.ClaimID),
		AttrPassID.String(result.PassID),
		AttrGrade.String(string(result.Grade)),
		AttrTawaturClass.String(string(result.Tawatur)),
		AttrDefectCount.Int(len(result.Defects)),
		AttrMethodologyVersion.String(result.MethodologyVersion),
		AttrEngineVersion.String(result.EngineVersion),
	}
}

// DefectAttrs describes one detected defect.
func DefectAttrs(d contracts.DefectResult) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrDefectCode.String(string(d.Code)),
		AttrDefectSeverity.String(string(d.Severity)),
	}
}

// SpanFromContext extracts the current span, no-op when absent.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span when non-nil.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
