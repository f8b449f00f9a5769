package controller

import (
	"github.com/henderiw/rangetable/pkg/index"
	"github.com/henderiw/rangetable/pkg/rangetype"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/labels"
)

type Opt func(*Controller)

func WithLogger(logger *zap.Logger) Opt {
	return func(c *Controller) {
		c.log = logger
	}
}

// WithIndex replaces the default grid index.
func WithIndex(idx index.Index) Opt {
	return func(c *Controller) {
		c.idx = idx
	}
}

// WithMaxNodes caps the number of registered nodes; 0 means no limit.
func WithMaxNodes(n int64) Opt {
	return func(c *Controller) {
		c.maxNodes = n
	}
}

// WithMetrics toggles reporting to the prometheus collectors.
func WithMetrics(enabled bool) Opt {
	return func(c *Controller) {
		c.metrics = enabled
	}
}

type RegisterOpt func(*node)

func WithLabels(l labels.Set) RegisterOpt {
	return func(n *node) {
		n.labels = l
	}
}

// WithRangeTypes restricts the tiers the node delegate is notified about.
// Membership is still tracked for every tier.
func WithRangeTypes(m rangetype.Mask) RegisterOpt {
	return func(n *node) {
		n.mask = m
	}
}
