package guard

// event is anything the loop handles. Each signal the guard reacts to has
// its own type; *Resolved events carry the result of work done off the
// loop.
type event interface{ isEvent() }

type result struct {
	outcome Outcome
	err     error
	n       int
	ok      bool
	policy  Policy
}

type (
	openEvent struct {
		key   string
		reply chan<- result
	}
	openResolved struct {
		key       string
		seq       uint64
		protected bool
		err       error
		reply     chan<- result
	}
	answerEvent struct {
		key       string
		candidate string
		reply     chan<- result
	}
	answerResolved struct {
		key   string
		seq   uint64
		ok    bool
		reply chan<- result
	}
	cancelEvent struct {
		key   string
		reply chan<- result
	}
	timerEvent struct {
		fn func()
	}
	sweepEvent struct {
		reply chan<- result
	}
	activityEvent struct {
		reply chan<- result
	}
	policyEvent struct {
		policy Policy
		get    bool
		reply  chan<- result
	}
	protectEvent struct {
		key   string
		reply chan<- result
	}
	unprotectEvent struct {
		key       string
		candidate string
		reply     chan<- result
	}
	markResolved struct {
		key     string
		protect bool
		err     error
		reply   chan<- result
	}
)

func (openEvent) isEvent()      {}
func (openResolved) isEvent()   {}
func (answerEvent) isEvent()    {}
func (answerResolved) isEvent() {}
func (cancelEvent) isEvent()    {}
func (timerEvent) isEvent()     {}
func (sweepEvent) isEvent()     {}
func (activityEvent) isEvent()  {}
func (policyEvent) isEvent()    {}
func (protectEvent) isEvent()   {}
func (unprotectEvent) isEvent() {}
func (markResolved) isEvent()   {}
