package process

import (
	"os"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Decode turns captured bytes into text without ever failing. Valid UTF-8
// passes through; anything else is read as ISO-8859-1.
func Decode(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return string(out)
}

// Environ is an immutable set of KEY=VALUE pairs.
type Environ struct {
	vars []string
}

// SnapshotEnviron captures the current process environment.
func SnapshotEnviron() Environ {
	return Environ{vars: slices.Clone(os.Environ())}
}

func NewEnviron(vars ...string) Environ {
	return Environ{vars: slices.Clone(vars)}
}

// With returns a fresh environment slice with overrides applied. The
// receiver is not modified.
func (e Environ) With(overrides map[string]string) []string {
	out := make([]string, 0, len(e.vars)+len(overrides))
	for _, kv := range e.vars {
		k, _, _ := strings.Cut(kv, "=")
		if _, replaced := overrides[k]; replaced {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
