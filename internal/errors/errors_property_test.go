package errors

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestAnalyzerErrorClassificationProperty checks that the backend error
// classifier never leaves an error unclassified and never flips an explicit
// classification.
func TestAnalyzerErrorClassificationProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: throttling and network patterns are always classified transient
	properties.Property("network patterns are transient", prop.ForAll(
		func(pattern string, prefix string, suffix string) bool {
			originalErr := errors.New(prefix + pattern + suffix)

			classifiedErr := ClassifyAnalyzerError(originalErr)

			return IsTransient(classifiedErr)
		},
		genTransientPattern(),
		gen.AlphaString().Map(func(s string) string { return s[:min(len(s), 5)] }),
		gen.AlphaString().Map(func(s string) string { return s[:min(len(s), 5)] }),
	))

	// Property: credential failures are never retried
	properties.Property("credential failures are permanent", prop.ForAll(
		func(pattern string) bool {
			classifiedErr := ClassifyAnalyzerError(errors.New(pattern))

			return !IsTransient(classifiedErr)
		},
		genPermanentPattern(),
	))

	// Property: classification is idempotent
	properties.Property("classification is idempotent", prop.ForAll(
		func(message string) bool {
			once := ClassifyAnalyzerError(errors.New(message))
			twice := ClassifyAnalyzerError(once)

			return IsTransient(once) == IsTransient(twice) && IsPermanent(once) == IsPermanent(twice)
		},
		gen.AlphaString(),
	))

	// Property: nil errors remain nil
	properties.Property("nil errors remain nil", prop.ForAll(
		func() bool {
			return ClassifyAnalyzerError(nil) == nil
		},
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// genTransientPattern generates backend failure text that must be retried
func genTransientPattern() gopter.Gen {
	transientPatterns := []interface{}{
		"connection refused",
		"i/o timeout",
		"rate limit",
		"too many requests",
		"service unavailable",
		"bad gateway",
		"broken pipe",
	}

	return gen.OneConstOf(transientPatterns...)
}

// genPermanentPattern generates backend failure text that must not be retried
func genPermanentPattern() gopter.Gen {
	permanentPatterns := []interface{}{
		"invalid api key",
		"authentication failed",
		"permission denied",
		"model not found",
		"invalid request body",
		"context length exceeded",
	}

	return gen.OneConstOf(permanentPatterns...)
}
