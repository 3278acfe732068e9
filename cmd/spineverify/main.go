// Command spineverify is the offline CLI surface for this module's proof
// bundles: "verify [--job-proof|...] <path>". It
// never reads the bundle's own trust claims; every trust input arrives
// via environment variable, matching pkg/keys.TrustedKeySet's
// JSON-over-env convention.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ledgerspine/spine/pkg/bundle"
	"github.com/ledgerspine/spine/pkg/spineconfig"
	"github.com/ledgerspine/spine/pkg/verify"
	"github.com/ledgerspine/spine/pkg/verifyreport"
)

var logger = log.New(log.Writer(), "[spineverify] ", log.LstdFlags)

const (
	exitOK       = 0
	exitNotOK    = 1
	exitArgUsage = 2
)

var toolVersion = "dev"
var toolCommit = "unknown"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("spineverify verify", flag.ContinueOnError)
	var (
		jobProof        = fs.Bool("job-proof", false, "verify a JobProofBundle.v1")
		monthProof      = fs.Bool("month-proof", false, "verify a MonthProofBundle.v1")
		financePack     = fs.Bool("finance-pack", false, "verify a FinancePackBundle.v1")
		invoiceBundle   = fs.Bool("invoice-bundle", false, "verify an InvoiceBundle.v1")
		closePack       = fs.Bool("close-pack", false, "verify a ClosePackBundle.v1")
		strict          = fs.Bool("strict", false, "require the verification report and policy admission")
		failOnWarnings  = fs.Bool("fail-on-warnings", false, "treat warnings as failures")
		format          = fs.String("format", "text", "output format: json|text")
		jsonOut         = fs.String("json-out", "", "also write the full VerifyCliOutput.v1 report to this path")
		hashConcurrency = fs.Int("hash-concurrency", 0, "bounded concurrency for file hashing (0 = config default)")
		configPath      = fs.String("config", "", "optional spineconfig YAML file")
	)
	if len(args) < 1 || args[0] != "verify" {
		fmt.Fprintln(os.Stderr, "usage: spineverify verify [--job-proof|--month-proof|--finance-pack|--invoice-bundle|--close-pack] <path> [flags]")
		return exitArgUsage
	}
	// flag stops at the first positional argument, so parsing resumes
	// after each one to accept flags on either side of <path>.
	var positional []string
	rest := args[1:]
	for {
		if err := fs.Parse(rest); err != nil {
			return exitArgUsage
		}
		rest = fs.Args()
		if len(rest) == 0 {
			break
		}
		positional = append(positional, rest[0])
		rest = rest[1:]
	}
	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "spineverify: exactly one bundle path is required")
		return exitArgUsage
	}
	path := positional[0]

	kind, err := resolveKind(*jobProof, *monthProof, *financePack, *invoiceBundle, *closePack)
	if err != nil {
		fmt.Fprintln(os.Stderr, "spineverify:", err)
		return exitArgUsage
	}

	cfg, err := spineconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "spineverify:", err)
		return exitArgUsage
	}

	mode := verifyreport.Mode(cfg.DefaultMode)
	if *failOnWarnings {
		mode = verifyreport.ModeFailOnWarnings
	} else if *strict {
		mode = verifyreport.ModeStrict
	} else if mode == "" {
		mode = verifyreport.ModeNonStrict
	}

	concurrency := cfg.HashConcurrency
	if *hashConcurrency > 0 {
		concurrency = *hashConcurrency
	}

	trust, err := loadTrust()
	if err != nil {
		fmt.Fprintln(os.Stderr, "spineverify:", err)
		return exitArgUsage
	}

	logger.Printf("verifying %s as %s in %s mode", path, kind, mode)

	out := verify.VerifyBundleDir(context.Background(), path, kind, mode, trust, concurrency, verifyreport.Tool{
		Name: "spineverify", Version: toolVersion, Commit: toolCommit,
	})

	if err := emit(out, *format); err != nil {
		fmt.Fprintln(os.Stderr, "spineverify:", err)
		return exitArgUsage
	}
	if *jsonOut != "" {
		raw, err := out.JSON()
		if err != nil {
			fmt.Fprintln(os.Stderr, "spineverify: render json-out:", err)
			return exitArgUsage
		}
		if err := os.WriteFile(*jsonOut, raw, 0o644); err != nil {
			fmt.Fprintln(os.Stderr, "spineverify: write json-out:", err)
			return exitArgUsage
		}
	}

	if out.OK {
		return exitOK
	}
	return exitNotOK
}

func resolveKind(job, month, finance, invoice, closep bool) (bundle.Kind, error) {
	type flagKind struct {
		set  bool
		kind bundle.Kind
	}
	candidates := []flagKind{
		{job, bundle.KindJobProofBundleV1},
		{month, bundle.KindMonthProofBundleV1},
		{finance, bundle.KindFinancePackBundleV1},
		{invoice, bundle.KindInvoiceBundleV1},
		{closep, bundle.KindClosePackBundleV1},
	}
	var kind bundle.Kind
	selected := 0
	for _, c := range candidates {
		if c.set {
			selected++
			kind = c.kind
		}
	}
	if selected != 1 {
		return "", fmt.Errorf("exactly one of --job-proof, --month-proof, --finance-pack, --invoice-bundle, --close-pack is required")
	}
	return kind, nil
}

func loadTrust() (verify.TrustInputs, error) {
	roots, err := spineconfig.LoadTrustedKeySetEnv(spineconfig.EnvGovernanceRoots)
	if err != nil {
		return verify.TrustInputs{}, err
	}
	pricing, err := spineconfig.LoadTrustedKeySetEnv(spineconfig.EnvPricingSigners)
	if err != nil {
		return verify.TrustInputs{}, err
	}
	time, err := spineconfig.LoadTrustedKeySetEnv(spineconfig.EnvTimeAuthorities)
	if err != nil {
		return verify.TrustInputs{}, err
	}
	return verify.TrustInputs{GovernanceRoots: roots, PricingSigners: pricing, TimeAuthorities: time}, nil
}

func emit(out *verifyreport.Output, format string) error {
	switch format {
	case "json":
		raw, err := out.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(raw))
	case "text":
		fmt.Println(out.Summary)
		for _, e := range out.Errors {
			fmt.Printf("ERROR  %-40s %s: %s\n", e.Path, e.Code, e.Message)
		}
		for _, w := range out.Warnings {
			fmt.Printf("WARN   %-40s %s: %s\n", w.Path, w.Code, w.Message)
		}
	default:
		return fmt.Errorf("unknown --format %q", format)
	}
	return nil
}
