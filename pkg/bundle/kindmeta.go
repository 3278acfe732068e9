package bundle

import "github.com/ledgerspine/spine/pkg/governance"

// streamLabel returns the directory name a kind's own stream snapshot is
// written under (job/snapshot.json, month/snapshot.json, ...).
func streamLabel(k Kind) string {
	switch k {
	case KindJobProofBundleV1:
		return "job"
	case KindMonthProofBundleV1:
		return "month"
	case KindInvoiceBundleV1:
		return "invoice"
	case KindFinancePackBundleV1:
		return "financepack"
	case KindClosePackBundleV1:
		return "closepack"
	default:
		return "stream"
	}
}

// StreamLabel exports streamLabel for callers outside this package (the
// verifier needs it to find the right snapshot file without re-deriving
// the convention).
func StreamLabel(k Kind) string { return streamLabel(k) }

// GovernanceBundleKind maps a manifest Kind to the governance.BundleKind
// a policy document keys its signer rules by.
func GovernanceBundleKind(k Kind) governance.BundleKind {
	switch k {
	case KindJobProofBundleV1:
		return governance.BundleJob
	case KindMonthProofBundleV1:
		return governance.BundleMonth
	case KindFinancePackBundleV1:
		return governance.BundleFinancePack
	case KindInvoiceBundleV1:
		return governance.BundleInvoice
	case KindClosePackBundleV1:
		return governance.BundleClosePack
	default:
		return ""
	}
}

// EmbeddedWrapperPrefix returns the fixed path prefix a wrapping bundle
// kind places its single embedded sub-bundle under, and ok=false for the
// two leaf kinds that never wrap anything.
func EmbeddedWrapperPrefix(k Kind) (prefix string, ok bool) {
	switch k {
	case KindInvoiceBundleV1:
		return "payload/job_proof_bundle/", true
	case KindFinancePackBundleV1:
		return "payload/month_proof_bundle/", true
	case KindClosePackBundleV1:
		return "payload/invoice_bundle/", true
	default:
		return "", false
	}
}
