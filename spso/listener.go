package spso

// ListenerKind identifies the kind of event a listener is registered
// against. The registry is fixed at compile time (a typed enum with
// per-type lists), not a dynamic dispatch table.
type ListenerKind int

const (
	// GlobalBestUpdate fires whenever the current-best fitness strictly
	// improves.
	GlobalBestUpdate ListenerKind = iota
	// Stop fires when a stop condition is detected.
	Stop
	// numListenerKinds must stay last; it counts the kinds above.
	numListenerKinds
)

// GlobalBestListener is called with the fitness and position that just
// became the new current best.
type GlobalBestListener func(fitness float64, position Position)

// StopListener is called once, when a stop condition first fires.
type StopListener func()

// listenerRegistry holds one listener list per kind, for the two kinds that
// exist. There is no registration path for any other kind.
type listenerRegistry struct {
	globalBest []GlobalBestListener
	stop       []StopListener
}

// AddGlobalBestListener registers l to be called, in insertion order, every
// time the global best improves.
func (e *Engine) AddGlobalBestListener(l GlobalBestListener) {
	e.listeners.globalBest = append(e.listeners.globalBest, l)
}

// AddStopListener registers l to be called once, when the engine decides to
// stop.
func (e *Engine) AddStopListener(l StopListener) {
	e.listeners.stop = append(e.listeners.stop, l)
}

func (e *Engine) notifyGlobalBest(fitness float64, position Position) {
	for _, l := range e.listeners.globalBest {
		l(fitness, position)
	}
}

func (e *Engine) notifyStop() {
	for _, l := range e.listeners.stop {
		l()
	}
}
