package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var envRefRe = regexp.MustCompile(`\$\{(\w+)\}`)

// ExpandEnv replaces every ${VAR} reference in raw with the value of the
// environment variable VAR. All missing variables are collected and reported
// together so a broken config fails once with the full list instead of one
// variable at a time.
func ExpandEnv(raw []byte) ([]byte, error) {
	var missing []string
	seen := make(map[string]bool)

	expanded := envRefRe.ReplaceAllFunc(raw, func(ref []byte) []byte {
		name := string(envRefRe.FindSubmatch(ref)[1])
		val, ok := os.LookupEnv(name)
		if !ok {
			if !seen[name] {
				seen[name] = true
				missing = append(missing, name)
			}
			return ref
		}
		return []byte(val)
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("config references unset environment variables: %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}
