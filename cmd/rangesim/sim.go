package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/henderiw/rangetable/pkg/controller"
	"github.com/henderiw/rangetable/pkg/geom"
	"github.com/henderiw/rangetable/pkg/index"
	"github.com/henderiw/rangetable/pkg/rangedef"
	"github.com/henderiw/rangetable/pkg/rangetype"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/labels"
)

// simConfig describes a vertical list scrolled back and forth.
type simConfig struct {
	Rows           int             `mapstructure:"rows"`
	MaxNodes       int64           `mapstructure:"max-nodes"`
	RowHeight      float64         `mapstructure:"row-height"`
	HeaderEvery    int             `mapstructure:"header-every"`
	ViewportWidth  float64         `mapstructure:"viewport-width"`
	ViewportHeight float64         `mapstructure:"viewport-height"`
	Step           float64         `mapstructure:"step"`
	Steps          int             `mapstructure:"steps"`
	Index          string          `mapstructure:"index"`
	CellSize       float64         `mapstructure:"cell-size"`
	DropHeaders    bool            `mapstructure:"drop-headers"`
	Range          rangedef.Config `mapstructure:"range"`
}

func defaultSimConfig() simConfig {
	return simConfig{
		Rows:           200,
		RowHeight:      44,
		HeaderEvery:    20,
		ViewportWidth:  320,
		ViewportHeight: 480,
		Step:           120,
		Steps:          40,
		Index:          "grid",
		CellSize:       index.DefaultCellSize,
		Range:          rangedef.DefaultConfig(),
	}
}

func (r simConfig) newIndex() (index.Index, error) {
	switch r.Index {
	case "grid":
		return index.NewGrid(r.CellSize), nil
	case "rtree":
		return index.NewRTree(), nil
	default:
		return nil, fmt.Errorf("unknown index %q, expected grid or rtree", r.Index)
	}
}

type simulation struct {
	cfg  simConfig
	c    *controller.Controller
	q    *controller.EventQueue
	out  io.Writer
	log  *zap.Logger
	rows int
}

func newSimulation(cfg simConfig, out io.Writer, logger *zap.Logger) (*simulation, error) {
	def, err := rangedef.New(cfg.Range)
	if err != nil {
		return nil, err
	}
	idx, err := cfg.newIndex()
	if err != nil {
		return nil, err
	}
	c := controller.New(def,
		controller.WithLogger(logger),
		controller.WithIndex(idx),
		controller.WithMaxNodes(cfg.MaxNodes),
	)
	s := &simulation{
		cfg: cfg,
		c:   c,
		q:   &controller.EventQueue{},
		out: out,
		log: logger,
	}

	for i := 0; i < cfg.Rows; i++ {
		kind := "row"
		if cfg.HeaderEvery > 0 && i%cfg.HeaderEvery == 0 {
			kind = "header"
		}
		frame := geom.RectFrom(0, float64(i)*cfg.RowHeight, cfg.ViewportWidth, cfg.RowHeight)
		if _, err := s.c.Register(controller.StaticGeometry(frame), s.q, controller.WithLabels(labels.Set{
			"kind": kind,
			"row":  strconv.Itoa(i),
		})); err != nil {
			return nil, err
		}
		s.rows++
	}
	return s, nil
}

// run scrolls down for half the steps and back up for the rest, printing
// every transition.
func (r *simulation) run() error {
	y := 0.0
	for step := 0; step < r.cfg.Steps; step++ {
		if r.cfg.DropHeaders && step == r.cfg.Steps/4 {
			n := r.c.UnregisterByLabel(labels.SelectorFromSet(labels.Set{"kind": "header"}))
			r.log.Info("dropped headers", zap.Int("count", n))
		}

		vp := geom.RectFrom(0, y, r.cfg.ViewportWidth, r.cfg.ViewportHeight)
		if err := r.c.Update(vp); err != nil {
			return err
		}
		for _, e := range r.q.Drain() {
			l, err := r.c.Labels(e.ID)
			if err != nil {
				// unregistered since
				fmt.Fprintf(r.out, "%4d %s\n", step, e)
				continue
			}
			fmt.Fprintf(r.out, "%4d %s %s=%s\n", step, e, l.Get("kind"), l.Get("row"))
			if e.Transition == controller.Entered && e.RangeType == rangetype.Visible && !l.Has("seen") {
				if err := r.c.SetLabels(e.ID, labels.Merge(l, labels.Set{"seen": "true"})); err != nil {
					return err
				}
			}
		}

		if step < r.cfg.Steps/2 {
			y += r.cfg.Step
		} else {
			y -= r.cfg.Step
		}
	}

	s := r.c.Snapshot()
	r.log.Info("simulation done",
		zap.Uint64("generation", s.Generation),
		zap.Stringer("viewport", s.Viewport),
		zap.Int("registered", r.c.Len()),
		zap.Int64("capacity", r.c.Capacity()),
		zap.Int("seen", r.seen()),
	)
	return nil
}

// seen counts the registered rows that have been visible at least once.
func (r *simulation) seen() int {
	return len(r.c.NodesByLabel(labels.SelectorFromSet(labels.Set{"seen": "true"})))
}
