package selkie

// Transfer is the byte-moving collaborator attached to an Endpoint. The
// selector invokes Fillable and CompleteWrite on worker goroutines when
// the readiness the endpoint asked for arrives; implementations that
// want further notifications must call back into Endpoint.WantRead or
// Endpoint.WantWrite, interest is consumed by each dispatch.
type Transfer interface {
	// OnOpen runs once, from the goroutine that wins the endpoint's
	// open transition.
	OnOpen(ep *Endpoint)

	// Fillable reports that the channel was readable.
	Fillable()

	// CompleteWrite reports that the channel was writable.
	CompleteWrite()

	// OnClose runs once, from the goroutine that wins the endpoint's
	// close transition, before the registration is destroyed.
	OnClose()
}

// TransferFuncs adapts plain functions to the Transfer interface. Nil
// fields are no-ops.
type TransferFuncs struct {
	OnOpenFunc        func(ep *Endpoint)
	FillableFunc      func()
	CompleteWriteFunc func()
	OnCloseFunc       func()
}

var _ Transfer = (*TransferFuncs)(nil)

func (t *TransferFuncs) OnOpen(ep *Endpoint) {
	if t.OnOpenFunc != nil {
		t.OnOpenFunc(ep)
	}
}

func (t *TransferFuncs) Fillable() {
	if t.FillableFunc != nil {
		t.FillableFunc()
	}
}

func (t *TransferFuncs) CompleteWrite() {
	if t.CompleteWriteFunc != nil {
		t.CompleteWriteFunc()
	}
}

func (t *TransferFuncs) OnClose() {
	if t.OnCloseFunc != nil {
		t.OnCloseFunc()
	}
}
