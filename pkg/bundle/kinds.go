package bundle

import (
	"fmt"

	"github.com/ledgerspine/spine/pkg/governance"
)

// BuildJobProofBundleV1 assembles a job stream's event log, key table, and
// artifacts into a JobProofBundle.v1: the leaf bundle kind, never wrapping
// another bundle.
func BuildJobProofBundleV1(p BuildParams) (*BuildResult, error) {
	content, err := assembleContent(p, "job")
	if err != nil {
		return nil, err
	}
	manifest, err := BuildManifest(KindJobProofBundleV1, p.TenantID, p.Scope, p.GeneratedAt, content)
	if err != nil {
		return nil, err
	}
	return sealBundle(p, governance.BundleJob, manifest, content)
}

// BuildMonthProofBundleV1 assembles a month stream's event log alongside
// its own governance sub-stream (key rotations, revocations raised during
// the month) into a MonthProofBundle.v1.
func BuildMonthProofBundleV1(p BuildParams) (*BuildResult, error) {
	content, err := assembleContent(p, "month")
	if err != nil {
		return nil, err
	}
	manifest, err := BuildManifest(KindMonthProofBundleV1, p.TenantID, p.Scope, p.GeneratedAt, content)
	if err != nil {
		return nil, err
	}
	return sealBundle(p, governance.BundleMonth, manifest, content)
}

// InvoiceParams wraps a pre-built job bundle plus the invoice's own
// top-level event stream, artifacts, and key/governance surface.
type InvoiceParams struct {
	BuildParams
	JobBundle *BuildResult
}

// BuildInvoiceBundleV1 wraps a job bundle under
// "payload/job_proof_bundle/" and records its manifest hash in the
// binding block, per spec §4.4's embedded-sub-bundle rule.
func BuildInvoiceBundleV1(p InvoiceParams) (*BuildResult, error) {
	if p.JobBundle == nil {
		return nil, fmt.Errorf("bundle: invoice bundle requires an embedded job bundle")
	}
	content, err := assembleContent(p.BuildParams, "invoice")
	if err != nil {
		return nil, err
	}
	binding := embedSubBundle(content, "payload/job_proof_bundle/", p.JobBundle)
	manifest, err := BuildManifestWithBindings(KindInvoiceBundleV1, p.TenantID, p.Scope, p.GeneratedAt, content, []EmbeddedBinding{binding})
	if err != nil {
		return nil, err
	}
	return sealBundle(p.BuildParams, governance.BundleInvoice, manifest, content)
}

// FinancePackParams wraps a pre-built month bundle plus the finance
// pack's own top-level surface (e.g. cross-stream reconciliation
// artifacts).
type FinancePackParams struct {
	BuildParams
	MonthBundle *BuildResult
}

// BuildFinancePackBundleV1 wraps a month bundle under
// "payload/month_proof_bundle/".
func BuildFinancePackBundleV1(p FinancePackParams) (*BuildResult, error) {
	if p.MonthBundle == nil {
		return nil, fmt.Errorf("bundle: finance pack bundle requires an embedded month bundle")
	}
	content, err := assembleContent(p.BuildParams, "financepack")
	if err != nil {
		return nil, err
	}
	binding := embedSubBundle(content, "payload/month_proof_bundle/", p.MonthBundle)
	manifest, err := BuildManifestWithBindings(KindFinancePackBundleV1, p.TenantID, p.Scope, p.GeneratedAt, content, []EmbeddedBinding{binding})
	if err != nil {
		return nil, err
	}
	return sealBundle(p.BuildParams, governance.BundleFinancePack, manifest, content)
}

// ClosePackParams wraps a pre-built invoice bundle (which itself wraps a
// job bundle) under "payload/invoice_bundle/".
type ClosePackParams struct {
	BuildParams
	InvoiceBundle *BuildResult
}

// BuildClosePackBundleV1 wraps an invoice bundle under
// "payload/invoice_bundle/", completing the three-level nesting
// ClosePack -> Invoice -> Job.
func BuildClosePackBundleV1(p ClosePackParams) (*BuildResult, error) {
	if p.InvoiceBundle == nil {
		return nil, fmt.Errorf("bundle: close pack bundle requires an embedded invoice bundle")
	}
	content, err := assembleContent(p.BuildParams, "closepack")
	if err != nil {
		return nil, err
	}
	binding := embedSubBundle(content, "payload/invoice_bundle/", p.InvoiceBundle)
	manifest, err := BuildManifestWithBindings(KindClosePackBundleV1, p.TenantID, p.Scope, p.GeneratedAt, content, []EmbeddedBinding{binding})
	if err != nil {
		return nil, err
	}
	return sealBundle(p.BuildParams, governance.BundleClosePack, manifest, content)
}
