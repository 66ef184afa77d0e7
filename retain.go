package wrapcache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// retention pins recently used wrappers with an LRU of strong references.
// A nil *retention is valid and does nothing.
type retention[P any] struct {
	lru *lru.Cache[Handle, P]
}

func newRetention[P any](size int) *retention[P] {
	if size <= 0 {
		return nil
	}
	c, err := lru.New[Handle, P](size)
	if err != nil {
		panic(err)
	}
	return &retention[P]{lru: c}
}

func (r *retention[P]) keep(h Handle, v P) {
	if r == nil {
		return
	}
	r.lru.Add(h, v)
}

func (r *retention[P]) forget(h Handle) {
	if r == nil {
		return
	}
	r.lru.Remove(h)
}

func (r *retention[P]) reset() {
	if r == nil {
		return
	}
	r.lru.Purge()
}

func (r *retention[P]) len() int {
	if r == nil {
		return 0
	}
	return r.lru.Len()
}
