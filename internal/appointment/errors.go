package appointment

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrScopeRequired        = errors.New("delete scope must be chosen for a recurring occurrence")
	ErrConfirmationRequired = errors.New("routine appointment deletion needs an extra confirmation")
	ErrInvalidMode          = errors.New("unknown delete mode")
	ErrReadOnly             = errors.New("user may not modify appointments")
)

// ValidationErrors maps a form field (JSON path, e.g. "participants[0].phone")
// to a message. It is returned before any request is sent.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
