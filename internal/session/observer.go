package session

// Observer is told about session progress. Implementations must be safe for
// use from the session goroutine while being read elsewhere.
type Observer interface {
	StateChanged(State)
	FrameDecoded()
	DecodeFailed()
	TransportFailed()
	Reconnecting()
	PublishFailed()
}

// NoopObserver ignores everything.
type NoopObserver struct{}

func (NoopObserver) StateChanged(State) {}
func (NoopObserver) FrameDecoded()      {}
func (NoopObserver) DecodeFailed()      {}
func (NoopObserver) TransportFailed()   {}
func (NoopObserver) Reconnecting()      {}
func (NoopObserver) PublishFailed()     {}
