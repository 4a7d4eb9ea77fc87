// internal/stages/hybrid-search/config.go
package hybridsearch

import "time"

type Config struct {
	// Branch blend weights. Validated at startup to sum to 1.0.
	DenseWeight  float64
	SparseWeight float64

	// Raw hit counts requested from each branch before merging.
	KDense  int
	KSparse int

	// KFinal caps the merged output unless the input overrides it.
	KFinal int

	// BranchTimeout bounds each branch independently; the slow branch
	// degrades to empty instead of stalling the merge.
	BranchTimeout time.Duration

	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		DenseWeight:   0.6,
		SparseWeight:  0.4,
		KDense:        16,
		KSparse:       16,
		KFinal:        8,
		BranchTimeout: 2500 * time.Millisecond,
		Timeout:       10 * time.Second,
	}
}
