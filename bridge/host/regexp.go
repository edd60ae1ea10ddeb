package host

import (
	"fmt"
	"regexp"
	"sync"
)

var patternCache sync.Map // pattern string -> *regexp.Regexp

// regexpMatch backs the SQL regexp(pattern, text) function used by the
// REGEXP operator: 1 on match, 0 otherwise, NULL if either side is NULL.
func regexpMatch(pattern, text any) (any, error) {
	if pattern == nil || text == nil {
		return nil, nil
	}
	p := asText(pattern)
	re, ok := patternCache.Load(p)
	if !ok {
		compiled, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("regexp: %w", err)
		}
		re, _ = patternCache.LoadOrStore(p, compiled)
	}
	if re.(*regexp.Regexp).MatchString(asText(text)) {
		return int64(1), nil
	}
	return int64(0), nil
}

func asText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}
