package httpcache

// Entry is the persisted CacheEntry record from spec.md §3: everything
// needed to reconstruct an HTTP response without re-fetching it, plus the
// freshness timestamps the eviction and enumeration logic key off of.
type Entry struct {
	Key                    CacheKey
	URL                    string
	Method                 string
	StatusCode             int
	StatusMessage          string
	ResponseHeaders        map[string][]string
	ResponseBodySize       uint64
	SentRequestEpochS      int64
	ReceivedResponseEpochS int64
	CreatedEpochS          int64
	LastAccessedEpochS     int64
}

// clone returns a deep-enough copy for handing back to callers — the
// headers map is copied so callers mutating it can't corrupt cache state.
func (e *Entry) clone() *Entry {
	c := *e
	if e.ResponseHeaders != nil {
		c.ResponseHeaders = make(map[string][]string, len(e.ResponseHeaders))
		for k, v := range e.ResponseHeaders {
			vv := make([]string, len(v))
			copy(vv, v)
			c.ResponseHeaders[k] = vv
		}
	}
	return &c
}

// Equal does a field-wise comparison, used by tests (scenario 1: a put then
// get must return an equal metadata record).
func (e *Entry) Equal(other *Entry) bool {
	if other == nil {
		return false
	}
	if e.Key != other.Key || e.URL != other.URL || e.Method != other.Method ||
		e.StatusCode != other.StatusCode || e.StatusMessage != other.StatusMessage ||
		e.ResponseBodySize != other.ResponseBodySize ||
		e.SentRequestEpochS != other.SentRequestEpochS ||
		e.ReceivedResponseEpochS != other.ReceivedResponseEpochS ||
		e.CreatedEpochS != other.CreatedEpochS {
		return false
	}
	if len(e.ResponseHeaders) != len(other.ResponseHeaders) {
		return false
	}
	for k, v := range e.ResponseHeaders {
		ov, ok := other.ResponseHeaders[k]
		if !ok || len(v) != len(ov) {
			return false
		}
		for i := range v {
			if v[i] != ov[i] {
				return false
			}
		}
	}
	return true
}
