// Package keyexpr translates MQTT topics to overlay key expressions and back.
package keyexpr

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	Separator  = "/"
	SingleWild = "*"
	MultiWild  = "**"

	mqttSingleWild = "+"
	mqttMultiWild  = "#"
)

// Key 是 overlay 网络上的结构化地址，按 "/" 分段
type Key string

func (k Key) String() string {
	return string(k)
}

// IsWild reports whether the key contains a "*" or "**" chunk.
func (k Key) IsWild() bool {
	for _, chunk := range strings.Split(string(k), Separator) {
		if chunk == SingleWild || chunk == MultiWild {
			return true
		}
	}
	return false
}

type TranslationError struct {
	Input  string
	Scope  string
	Reason string
}

func (e *TranslationError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("cannot translate '%s' (scope '%s'): %s", e.Input, e.Scope, e.Reason)
	}
	return fmt.Sprintf("cannot translate '%s': %s", e.Input, e.Reason)
}

var keyCache = expirable.NewLRU[string, Key](1024, nil, time.Hour)

// TopicToKey converts an MQTT topic (or topic filter) to a key expression,
// prefixing it with scope when scope is not empty. "+" becomes "*" and "#"
// becomes "**".
func TopicToKey(topic string, scope string) (Key, error) {
	cacheKey := scope + "\x00" + topic
	if key, ok := keyCache.Get(cacheKey); ok {
		return key, nil
	}

	if topic == "" {
		return "", &TranslationError{Input: topic, Scope: scope, Reason: "empty topic"}
	}
	levels := strings.Split(topic, Separator)
	for i, level := range levels {
		switch {
		case level == "":
			return "", &TranslationError{Input: topic, Scope: scope, Reason: "empty topic level"}
		case level == mqttSingleWild:
			levels[i] = SingleWild
		case level == mqttMultiWild:
			if i != len(levels)-1 {
				return "", &TranslationError{Input: topic, Scope: scope, Reason: "'#' must be the last level"}
			}
			levels[i] = MultiWild
		case strings.ContainsAny(level, mqttSingleWild+mqttMultiWild):
			return "", &TranslationError{Input: topic, Scope: scope, Reason: "wildcards must occupy a whole level"}
		case strings.Contains(level, SingleWild):
			return "", &TranslationError{Input: topic, Scope: scope, Reason: "'*' is not allowed in a topic"}
		}
	}

	key := Key(strings.Join(levels, Separator))
	if scope != "" {
		if err := CheckScope(scope); err != nil {
			return "", &TranslationError{Input: topic, Scope: scope, Reason: err.Error()}
		}
		key = Key(scope + Separator + string(key))
	}

	keyCache.Add(cacheKey, key)
	return key, nil
}

// KeyToTopic converts a concrete key back to an MQTT topic, stripping scope.
func KeyToTopic(key Key, scope string) (string, error) {
	if key.IsWild() {
		return "", &TranslationError{Input: string(key), Scope: scope, Reason: "key contains '*' or '**' wildcards which cannot be published over MQTT"}
	}
	if scope == "" {
		if key == "" {
			return "", &TranslationError{Input: string(key), Reason: "empty key"}
		}
		return string(key), nil
	}
	topic, found := strings.CutPrefix(string(key), scope+Separator)
	if !found || topic == "" {
		return "", &TranslationError{Input: string(key), Scope: scope, Reason: "key is not prefixed by the scope"}
	}
	return topic, nil
}

// CheckScope validates a scope prefix: non-empty chunks and no wildcards.
func CheckScope(scope string) error {
	for _, chunk := range strings.Split(scope, Separator) {
		if chunk == "" {
			return fmt.Errorf("scope '%s' contains an empty chunk", scope)
		}
		if strings.ContainsAny(chunk, "*+#") {
			return fmt.Errorf("scope '%s' must not contain wildcards", scope)
		}
	}
	return nil
}

// Intersects reports whether some concrete key is matched by both a and b.
func Intersects(a, b Key) bool {
	return intersects(strings.Split(string(a), Separator), strings.Split(string(b), Separator))
}

func intersects(a, b []string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	if len(a) > 0 && a[0] == MultiWild {
		// "**" 可以匹配零个或多个分段
		if intersects(a[1:], b) {
			return true
		}
		return len(b) > 0 && intersects(a, b[1:])
	}
	if len(b) > 0 && b[0] == MultiWild {
		return intersects(b, a)
	}
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	if a[0] == SingleWild || b[0] == SingleWild || a[0] == b[0] {
		return intersects(a[1:], b[1:])
	}
	return false
}
