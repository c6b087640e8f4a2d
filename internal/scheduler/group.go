package scheduler

// Group starts and stops a fixed set of loops together. Loops keep their own
// timers; stopping one never affects another.
type Group struct {
	loops []*Scheduler
}

func NewGroup(loops ...*Scheduler) *Group {
	return &Group{loops: loops}
}

func (g *Group) StartAll() {
	for _, l := range g.loops {
		l.Start()
	}
}

// StopAll stops loops in reverse start order and waits for in-flight ticks.
func (g *Group) StopAll() {
	for i := len(g.loops) - 1; i >= 0; i-- {
		g.loops[i].Stop()
	}
}

// Status reports whether each loop is running, keyed by loop name.
func (g *Group) Status() map[string]bool {
	out := make(map[string]bool, len(g.loops))
	for _, l := range g.loops {
		out[l.Name()] = l.IsRunning()
	}
	return out
}
