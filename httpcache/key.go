package httpcache

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/slicingmelon/go-rawurlparser"
)

// CacheKey is the canonical, unhashed "HTTP-method || '/' || absolute-URL"
// string; hashKey turns it into the body file name. The method and URL are
// validated when the key is built; BuildKey is the only constructor.
type CacheKey string

// BuildKey validates url as an absolute URL (via the teacher's own
// rawurlparser dependency) and returns the canonical "METHOD/absolute-url"
// form from spec.md §6. A malformed URL is rejected as IllegalArgument
// instead of silently hashed.
func BuildKey(method, url string) (CacheKey, error) {
	if method == "" || url == "" {
		return "", wrapError(CodeIllegalArgument, "method and url must not be empty", nil)
	}
	parsed, err := rawurlparser.RawURLParse(url)
	if err != nil {
		return "", wrapError(CodeIllegalArgument, "malformed url", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", wrapError(CodeIllegalArgument, "url must be absolute", nil)
	}
	return CacheKey(strings.ToUpper(method) + "/" + url), nil
}

// hashKey is the pure digest function from spec.md §1: hash(key) → filename.
// sha1 is stdlib here because spec.md explicitly frames this step as an
// out-of-scope pure function, not a component this module implements.
func hashKey(key CacheKey) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}
