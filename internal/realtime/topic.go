package realtime

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Topic names a server-side stream plus its filter parameters, for
// example {Name: "dashboard", Params: {"days": 30}}.
type Topic struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Subscription is the handle returned by Subscribe
type Subscription struct {
	ID    string `json:"id"`
	Topic Topic  `json:"topic"`
}

// validate checks that the topic has a name and only scalar params
func (t Topic) validate() error {
	if t.Name == "" {
		return errEmptyTopic
	}
	for k, v := range t.Params {
		switch v.(type) {
		case nil, string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
		default:
			return fmt.Errorf("%w: %s is %T", errNonScalarParam, k, v)
		}
	}
	return nil
}

// clone returns a copy whose params map is not shared
func (t Topic) clone() Topic {
	c := Topic{Name: t.Name}
	if len(t.Params) > 0 {
		c.Params = make(map[string]interface{}, len(t.Params))
		for k, v := range t.Params {
			c.Params[k] = v
		}
	}
	return c
}

// key returns a canonical form of the topic; equal keys mean identical
// topics. Param types are part of the key, so 30 and "30" differ.
func (t Topic) key() string {
	var b strings.Builder
	b.WriteString(t.Name)
	for _, k := range t.sortedKeys() {
		fmt.Fprintf(&b, "\x00%s=%T:%v", k, t.Params[k], t.Params[k])
	}
	return b.String()
}

// Equal reports whether both topics have the same name and params
func (t Topic) Equal(other Topic) bool {
	return t.key() == other.key()
}

// Query encodes the params as a URL query string
func (t Topic) Query() string {
	values := make(url.Values, len(t.Params))
	for _, k := range t.sortedKeys() {
		if t.Params[k] == nil {
			continue
		}
		values.Set(k, fmt.Sprint(t.Params[k]))
	}
	return values.Encode()
}

func (t Topic) sortedKeys() []string {
	keys := make([]string, 0, len(t.Params))
	for k := range t.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
