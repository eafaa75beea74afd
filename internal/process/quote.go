package process

import (
	"fmt"
	"regexp"
	"strings"
)

// Raw marks a command fragment that must reach the remote shell unquoted,
// like redirections or glob patterns.
type Raw struct {
	Value string
}

func (r Raw) String() string { return r.Value }

// Quote composes a single command line from arguments, shell-quoting
// everything that is not Raw. Non-string arguments are formatted first.
func Quote(args ...interface{}) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		switch v := a.(type) {
		case Raw:
			parts = append(parts, v.Value)
		case *Raw:
			parts = append(parts, v.Value)
		case string:
			parts = append(parts, shellQuote(v))
		default:
			parts = append(parts, shellQuote(fmt.Sprintf("%v", v)))
		}
	}
	return strings.Join(parts, " ")
}

// QuoteArgs composes a command line from a plain argv.
func QuoteArgs(args []string) string {
	anys := make([]interface{}, len(args))
	for i, a := range args {
		anys[i] = a
	}
	return Quote(anys...)
}

var safeShellArg = regexp.MustCompile(`^[A-Za-z0-9@%+=:,./_-]+$`)

// shellQuote single-quotes s for POSIX shells, escaping embedded single
// quotes by closing, escaping and reopening the quote.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if safeShellArg.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
