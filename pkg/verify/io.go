package verify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ledgerspine/spine/pkg/bundle"
	"github.com/ledgerspine/spine/pkg/verifyreport"
)

// loadDir reads every regular file under root into a name->bytes map,
// keyed by its slash-separated path relative to root.
func loadDir(root string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify: read bundle directory %s: %w", root, err)
	}
	return out, nil
}

// VerifyBundleDir is the shared implementation behind the five
// kind-specific wrappers: load path (directory or .zip file) into memory
// and run Verify against it.
func VerifyBundleDir(ctx context.Context, path string, kind bundle.Kind, mode verifyreport.Mode, trust TrustInputs, hashConcurrency int, tool verifyreport.Tool) *verifyreport.Output {
	target := verifyreport.Target{Kind: verifyreport.TargetDir, Path: path}
	info, statErr := os.Stat(path)
	var files map[string][]byte
	var loadErr error
	switch {
	case statErr != nil:
		loadErr = statErr
	case info.IsDir():
		files, loadErr = loadDir(path)
	default:
		target.Kind = verifyreport.TargetZip
		var data []byte
		data, loadErr = os.ReadFile(path)
		if loadErr == nil {
			files, loadErr = bundle.ExtractZip(data)
		}
	}
	if loadErr != nil {
		out := verifyreport.New(tool, mode, target)
		out.AddError(CodeInputInvalid, path, loadErr.Error())
		out.Finalize()
		return out
	}
	return Verify(ctx, Params{
		Files:           files,
		Kind:            kind,
		Mode:            mode,
		Trust:           trust,
		HashConcurrency: hashConcurrency,
		Tool:            tool,
		Target:          target,
	})
}

// VerifyJobProofBundleDir verifies a JobProofBundle.v1 at path.
func VerifyJobProofBundleDir(ctx context.Context, path string, mode verifyreport.Mode, trust TrustInputs, hashConcurrency int, tool verifyreport.Tool) *verifyreport.Output {
	return VerifyBundleDir(ctx, path, bundle.KindJobProofBundleV1, mode, trust, hashConcurrency, tool)
}

// VerifyMonthProofBundleDir verifies a MonthProofBundle.v1 at path.
func VerifyMonthProofBundleDir(ctx context.Context, path string, mode verifyreport.Mode, trust TrustInputs, hashConcurrency int, tool verifyreport.Tool) *verifyreport.Output {
	return VerifyBundleDir(ctx, path, bundle.KindMonthProofBundleV1, mode, trust, hashConcurrency, tool)
}

// VerifyFinancePackBundleDir verifies a FinancePackBundle.v1 at path.
func VerifyFinancePackBundleDir(ctx context.Context, path string, mode verifyreport.Mode, trust TrustInputs, hashConcurrency int, tool verifyreport.Tool) *verifyreport.Output {
	return VerifyBundleDir(ctx, path, bundle.KindFinancePackBundleV1, mode, trust, hashConcurrency, tool)
}

// VerifyInvoiceBundleDir verifies an InvoiceBundle.v1 at path.
func VerifyInvoiceBundleDir(ctx context.Context, path string, mode verifyreport.Mode, trust TrustInputs, hashConcurrency int, tool verifyreport.Tool) *verifyreport.Output {
	return VerifyBundleDir(ctx, path, bundle.KindInvoiceBundleV1, mode, trust, hashConcurrency, tool)
}

// VerifyClosePackBundleDir verifies a ClosePackBundle.v1 at path.
func VerifyClosePackBundleDir(ctx context.Context, path string, mode verifyreport.Mode, trust TrustInputs, hashConcurrency int, tool verifyreport.Tool) *verifyreport.Output {
	return VerifyBundleDir(ctx, path, bundle.KindClosePackBundleV1, mode, trust, hashConcurrency, tool)
}
