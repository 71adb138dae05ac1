// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"sync"

	"github.com/luxfi/log"

	"github.com/luxfi/dap-aggregator/auth"
	"github.com/luxfi/dap-aggregator/config"
	"github.com/luxfi/dap-aggregator/driver"
	"github.com/luxfi/dap-aggregator/hpke"
	"github.com/luxfi/dap-aggregator/messages"
	"github.com/luxfi/dap-aggregator/metrics"
	"github.com/luxfi/dap-aggregator/storage"
	"github.com/luxfi/dap-aggregator/vdaf"
	"github.com/luxfi/dap-aggregator/workengine"
)

// TaskSet resolves a TaskID to its static configuration, the one lookup
// every handler needs before it can apply time/version/batch rules. It is
// deliberately the narrowest interface transport depends on so cmd/dap-aggd
// can back it with anything from a fixed map to a config.Store.
type TaskSet interface {
	Task(taskID messages.TaskID) (config.TaskConfig, bool)
}

// StaticTaskSet is a TaskSet over a fixed set of tasks loaded at startup.
type StaticTaskSet struct {
	mu    sync.RWMutex
	tasks map[messages.TaskID]config.TaskConfig
}

// NewStaticTaskSet builds a TaskSet from already-loaded configs.
func NewStaticTaskSet(cfgs ...config.TaskConfig) *StaticTaskSet {
	s := &StaticTaskSet{tasks: make(map[messages.TaskID]config.TaskConfig, len(cfgs))}
	for _, c := range cfgs {
		s.tasks[c.TaskID] = c
	}
	return s
}

func (s *StaticTaskSet) Task(taskID messages.TaskID) (config.TaskConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.tasks[taskID]
	return c, ok
}

// Add registers or replaces a task's configuration.
func (s *StaticTaskSet) Add(c config.TaskConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[c.TaskID] = c
}

// Deps bundles every collaborator the route handlers dispatch into. Role
// fields are nil when this process does not run that role: a Helper-only
// deployment leaves Engine/CollectorHpke unset, a Leader-only deployment
// leaves Helper unset.
type Deps struct {
	Tasks TaskSet
	Auth  *auth.Authorizer
	Now   func() messages.Time

	// Leader-side collaborators.
	Leader *driver.Leader
	Engine *workengine.Engine

	// Helper-side collaborators.
	Helper *driver.Helper

	// Shared.
	Store   storage.Store
	HpkeReg *hpke.Registry
	Vdaf    vdaf.Vdaf
	Logger  log.Logger

	// Metrics is optional; a nil Metrics disables instrumentation.
	Metrics *metrics.DAPMetrics
}
