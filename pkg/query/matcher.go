package query

// Matcher selects the query groups an invalidation applies to.
// Implementations must be pure: Match may inspect only the key.
type Matcher interface {
	Match(k Key) bool
}

// literal is implemented by matchers that name concrete keys. Those keys are
// marked stale even if no query for them has been registered yet.
type literal interface {
	keys() []Key
}

type exactMatcher struct {
	key Key
}

func (m exactMatcher) Match(k Key) bool { return m.key.Equal(k) }
func (m exactMatcher) keys() []Key      { return []Key{m.key} }

// Exact matches one key.
func Exact(k Key) Matcher {
	return exactMatcher{key: k}
}

// Keys matches each of the given keys exactly.
func Keys(keys ...Key) Matcher {
	ms := make([]Matcher, len(keys))
	for i, k := range keys {
		ms[i] = Exact(k)
	}
	return Any(ms...)
}

type prefixMatcher struct {
	prefix Key
}

func (m prefixMatcher) Match(k Key) bool { return k.HasPrefix(m.prefix) }

// Prefix matches every key whose leading segments equal segments.
// Prefix("communityDetail") matches ["communityDetail"] and
// ["communityDetail", 7, "comments"].
func Prefix(segments ...any) Matcher {
	return prefixMatcher{prefix: K(segments...)}
}

type groupMatcher struct {
	key Key
}

func (m groupMatcher) Match(k Key) bool { return k.HasPrefix(m.key) }
func (m groupMatcher) keys() []Key      { return []Key{m.key} }

// Group matches the key built from segments and every key extending it.
// The group key itself is marked even when nothing is registered under it,
// so Group("posts") always marks ["posts"] and also marks a registered page
// such as ["posts", 2].
func Group(segments ...any) Matcher {
	return groupMatcher{key: K(segments...)}
}

// Predicate adapts fn to a Matcher. fn must not touch state outside the key.
type Predicate func(k Key) bool

// Match calls p.
func (p Predicate) Match(k Key) bool { return p(k) }

type anyMatcher []Matcher

func (m anyMatcher) Match(k Key) bool {
	for _, sub := range m {
		if sub.Match(k) {
			return true
		}
	}
	return false
}

func (m anyMatcher) keys() []Key {
	var out []Key
	for _, sub := range m {
		if lit, ok := sub.(literal); ok {
			out = append(out, lit.keys()...)
		}
	}
	return out
}

// Any matches a key if any of ms matches it.
func Any(ms ...Matcher) Matcher {
	return anyMatcher(ms)
}
