// Package flagx contains helpers for parsing a subset of command-line flags
// without clashing with flags owned by other components (cobra commands in
// vaultctl, the standard flag set in tests).
package flagx

import (
	"flag"
	"io"
	"strings"
)

// FilterArgs returns the subset of args made of allowed flags and their
// values. Both "-c conf.json" and "--config=conf.json" forms are kept; a
// following token that starts with "-" is never treated as a value.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// JsonConfigFlags extracts the JSON config path given via -c or -config.
// It returns an empty string when neither is present.
func JsonConfigFlags(args []string) string {
	return stringFlag(args, "config", "c")
}

// EnvFileFlags extracts the dotenv file path given via -env-file.
func EnvFileFlags(args []string) string {
	return stringFlag(args, "env-file", "")
}

func stringFlag(args []string, long, short string) string {
	var value string

	names := []string{"-" + long, "--" + long}
	if short != "" {
		names = append(names, "-"+short)
	}
	filtered := FilterArgs(args, names)

	fs := flag.NewFlagSet(long, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&value, long, "", "")
	if short != "" {
		fs.StringVar(&value, short, "", "")
	}
	_ = fs.Parse(filtered)

	return value
}
