package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"unicode"

	"github.com/torosent/tracefire/internal/extractor"
	"github.com/torosent/tracefire/internal/replay"
)

// knownErrors are checked in order. Sentinels come before the wrapper types
// that may carry them.
var knownErrors = []struct {
	label string
	match func(error) bool
}{
	{"Unresolved at drain timeout", is(replay.ErrUnresolved)},
	{"Abandoned after interrupt", is(replay.ErrAbandoned)},
	{"Executor panic", is(replay.ErrExecutorPanic)},
	{"Context deadline exceeded", is(context.DeadlineExceeded)},
	{"Context canceled", is(context.Canceled)},
	{"HTTP error response", as[*replay.HTTPError]},
	{"Response check failed", as[*extractor.CheckError]},
	{"Request URL error", as[*url.Error]},
	{"Network error", as[*net.OpError]},
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func as[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// errorLabel names the error breakdown entry for a failed record.
func errorLabel(err error) string {
	if err == nil {
		return "Unknown error"
	}
	for _, k := range knownErrors {
		if k.match(err) {
			return k.label
		}
	}
	return typeLabel(fmt.Sprintf("%T", err))
}

// typeLabel turns a %T rendering such as "*github.com/acme/pkg.DNSLookupError"
// into "DNS Lookup Error (pkg)".
func typeLabel(typeName string) string {
	name := strings.TrimPrefix(strings.TrimSpace(typeName), "*")
	if name == "" {
		return "Unknown error"
	}
	name = name[strings.LastIndex(name, "/")+1:]

	pkg, ident, found := strings.Cut(name, ".")
	if !found {
		pkg, ident = "", name
	}
	words := splitIdent(ident)
	if len(words) == 0 {
		words = []string{ident}
	}
	label := strings.Join(words, " ")
	if pkg == "" || pkg == "main" {
		return label
	}
	return label + " (" + pkg + ")"
}

// splitIdent breaks a Go identifier at case and digit boundaries, keeping
// acronyms whole and capitalizing other words.
func splitIdent(ident string) []string {
	runes := []rune(ident)
	var words []string
	start := 0
	flush := func(end int) {
		if end <= start {
			return
		}
		word := string(runes[start:end])
		if strings.ToUpper(word) != word || !strings.ContainsFunc(word, unicode.IsLetter) {
			word = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
		}
		words = append(words, word)
		start = end
	}
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		switch {
		case unicode.IsUpper(cur) && unicode.IsLower(prev):
			flush(i)
		case unicode.IsUpper(cur) && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			flush(i)
		case unicode.IsDigit(cur) != unicode.IsDigit(prev):
			flush(i)
		}
	}
	flush(len(runes))
	return words
}
