package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratio lets num out of every den events through.
type ratio struct {
	num, den uint64
}

var defaultDebugRatio = &ratio{num: 1, den: 50}

// sampler thins out high-volume debug detail. A sampler without a ratio lets
// everything through.
type sampler struct {
	ratio atomic.Pointer[ratio]
	seen  atomic.Uint64
}

func (s *sampler) set(r *ratio) {
	if r != nil && r.num >= r.den {
		r = nil
	}
	s.ratio.Store(r)
	s.seen.Store(0)
}

func (s *sampler) allow() bool {
	r := s.ratio.Load()
	if r == nil {
		return true
	}
	return (s.seen.Add(1)-1)%r.den < r.num
}

// parseSampleRatio reads "n/d" or "d" (one in d). "0" and "all" keep every
// event; an empty or malformed spec yields the default ratio.
func parseSampleRatio(spec string) *ratio {
	spec = strings.ToLower(strings.TrimSpace(spec))
	switch spec {
	case "":
		return defaultDebugRatio
	case "0", "all":
		return nil
	}
	numText, denText, hasSlash := strings.Cut(spec, "/")
	if !hasSlash {
		numText, denText = "1", spec
	}
	num, err := strconv.ParseUint(strings.TrimSpace(numText), 10, 32)
	if err != nil || num == 0 {
		return defaultDebugRatio
	}
	den, err := strconv.ParseUint(strings.TrimSpace(denText), 10, 32)
	if err != nil || den == 0 {
		return defaultDebugRatio
	}
	if num >= den {
		return nil
	}
	return &ratio{num: num, den: den}
}
