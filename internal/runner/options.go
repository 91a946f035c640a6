package runner

import "github.com/projectdiscovery/goflags"

// Options mirrors the teacher's own flat CLI options struct
// (internal/cli/options.go in the retrieved copy), scaled down to the three
// things this binary can do: inspect a cache directory, prime it by
// fetching a URL, or evict everything in it.
type Options struct {
	CacheDir    string
	MaxSizeByte uint64
	FetchURL    string
	FetchMethod string
	EvictAll    bool
	Inspect     bool
	Debug       bool
}

func parseFlags() (*Options, error) {
	opts := &Options{}

	flagSet := goflags.NewFlagSet()
	flagSet.SetDescription("httpcachectl: inspect, prime, or evict a disk-backed HTTP cache.")

	flagSet.StringVarP(&opts.CacheDir, "dir", "d", "httpcache-data", "cache root directory")
	flagSet.StringVarP(&opts.FetchURL, "fetch", "f", "", "fetch this URL through the cache (primes it on a miss)")
	flagSet.StringVarP(&opts.FetchMethod, "method", "m", "GET", "HTTP method to use with -fetch")
	flagSet.BoolVarP(&opts.EvictAll, "evict-all", "e", false, "evict every entry from the cache and exit")
	flagSet.BoolVarP(&opts.Inspect, "inspect", "i", false, "list cache entries and exit")
	flagSet.BoolVarP(&opts.Debug, "debug", "v", false, "enable debug logging")

	var maxSizeMB int
	flagSet.IntVarP(&maxSizeMB, "max-size-mb", "s", 500, "maximum cache size in megabytes")

	if err := flagSet.Parse(); err != nil {
		return nil, err
	}
	opts.MaxSizeByte = uint64(maxSizeMB) * 1024 * 1024

	return opts, nil
}
