package report

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// RunReport is the report of one completed run.
type RunReport struct {
	RunID     string        `json:"run_id"`
	Identity  string        `json:"identity"`
	Objective string        `json:"objective"`
	Models    []string      `json:"models"`
	CreatedAt time.Time     `json:"created_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Summary   Summary       `json:"summary"`
}

// Cache keeps recent run reports by run id with a size bound and a TTL.
type Cache struct {
	lru *expirable.LRU[string, RunReport]
}

func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 256
	}
	return &Cache{lru: expirable.NewLRU[string, RunReport](size, nil, ttl)}
}

func (c *Cache) Put(r RunReport) {
	c.lru.Add(r.RunID, r)
}

func (c *Cache) Get(runID string) (RunReport, bool) {
	return c.lru.Get(runID)
}

func (c *Cache) Len() int { return c.lru.Len() }
