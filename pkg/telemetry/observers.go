package telemetry

import "github.com/furrowlabs/furrow/pkg/engine"

type multiObserver []engine.Observer

// CombineObservers fans engine callbacks out to several observers. Nil
// entries are dropped; combining zero observers yields nil.
func CombineObservers(obs ...engine.Observer) engine.Observer {
	var active multiObserver
	for _, o := range obs {
		if o != nil {
			active = append(active, o)
		}
	}
	if len(active) == 0 {
		return nil
	}
	return active
}

// StepFinished implements engine.Observer.
func (m multiObserver) StepFinished(result engine.StepResult) {
	for _, o := range m {
		o.StepFinished(result)
	}
}

// RunFinished implements engine.Observer.
func (m multiObserver) RunFinished(report *engine.RunReport) {
	for _, o := range m {
		o.RunFinished(report)
	}
}
