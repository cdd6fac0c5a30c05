package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	dataVersionTag = "data_ver="
	algoVersionTag = "algo_ver="
)

// Versions are the two generation counters embedded in every derived key.
// Data is bumped when source data changes, Algo when analysis changes.
type Versions struct {
	Data int
	Algo int
}

// Key identifies a cached derived result
type Key struct {
	Endpoint string
	Params   string
	Versions Versions
}

// NewKey canonicalizes params by sorting them by name. Names and values
// are query-escaped so a value cannot imitate a separator.
func NewKey(endpoint string, params map[string]string, v Versions) Key {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, len(names))
	for i, name := range names {
		pairs[i] = url.QueryEscape(name) + "=" + url.QueryEscape(params[name])
	}
	return Key{
		Endpoint: endpoint,
		Params:   strings.Join(pairs, "&"),
		Versions: v,
	}
}

// String formats the key for the storage boundary
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s%d:%s%d",
		k.Endpoint, k.Params, dataVersionTag, k.Versions.Data, algoVersionTag, k.Versions.Algo)
}

// Derive is shorthand for NewKey(...).String()
func Derive(endpoint string, params map[string]string, v Versions) string {
	return NewKey(endpoint, params, v).String()
}

// ParseVersions reads the trailing version tags of a formatted key.
// ok is false for keys outside the versioned namespace.
func ParseVersions(raw string) (v Versions, ok bool) {
	algoAt := strings.LastIndex(raw, ":"+algoVersionTag)
	if algoAt < 0 {
		return Versions{}, false
	}
	algo, err := strconv.Atoi(raw[algoAt+1+len(algoVersionTag):])
	if err != nil {
		return Versions{}, false
	}

	head := raw[:algoAt]
	dataAt := strings.LastIndex(head, ":"+dataVersionTag)
	if dataAt < 0 {
		return Versions{}, false
	}
	data, err := strconv.Atoi(head[dataAt+1+len(dataVersionTag):])
	if err != nil {
		return Versions{}, false
	}
	return Versions{Data: data, Algo: algo}, true
}

// Stale reports whether v predates current on either axis
func (v Versions) Stale(current Versions) bool {
	return v.Data < current.Data || v.Algo < current.Algo
}
