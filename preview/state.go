package preview

import "errors"

// StateKind names a session state.
type StateKind string

const (
	KindIdle      StateKind = "idle"
	KindLoading   StateKind = "loading"
	KindReady     StateKind = "ready"
	KindError     StateKind = "error"
	KindDelegated StateKind = "delegated"
)

// State is one of Idle, Loading, Ready, Failed or Delegated.
type State interface {
	Kind() StateKind
	isState()
}

type Idle struct{}

type Loading struct {
	DocumentID string
}

// Ready carries the pages to display. TotalPages counts every page of the
// document, so it can exceed len(Pages) when pages were skipped or cut off
// by the page limit.
type Ready struct {
	DocumentID string
	Format     Format
	Pages      []RenderedPage
	TotalPages int
}

// FailureKind tags a Failed state for the UI.
type FailureKind string

const (
	FailureFetch  FailureKind = "fetch-failed"
	FailureDecode FailureKind = "decode-failed"
)

// Failed is the Error state. Every failure can be retried by opening the
// document again.
type Failed struct {
	DocumentID string
	Reason     FailureKind
	Message    string
	Err        error
	Retryable  bool
}

const ActionOpenExternally = "open-externally"

// Action tells the UI to hand the document to the browser or OS instead of
// rendering it inline.
type Action struct {
	Kind     string
	FileName string
	URL      string
}

type Delegated struct {
	DocumentID string
	Action     Action
}

func (Idle) Kind() StateKind      { return KindIdle }
func (Loading) Kind() StateKind   { return KindLoading }
func (Ready) Kind() StateKind     { return KindReady }
func (Failed) Kind() StateKind    { return KindError }
func (Delegated) Kind() StateKind { return KindDelegated }

func (Idle) isState()      {}
func (Loading) isState()   {}
func (Ready) isState()     {}
func (Failed) isState()    {}
func (Delegated) isState() {}

const (
	msgNotFound     = "The requested file was not found on the shared drive."
	msgFetchFailed  = "Failed to load file for preview"
	msgEmptyFile    = "The file is empty and cannot be previewed"
	msgNoValidPages = "No pages could be decoded from TIFF file"
)

// newFailed classifies err into a user-facing Failed state.
func newFailed(documentID string, err error) Failed {
	f := Failed{DocumentID: documentID, Err: err, Retryable: true}

	var fe *FetchError
	switch {
	case IsNotFound(err):
		f.Reason, f.Message = FailureFetch, msgNotFound
	case errors.As(err, &fe):
		f.Reason, f.Message = FailureFetch, msgFetchFailed
	case errors.Is(err, ErrEmptyBuffer):
		f.Reason, f.Message = FailureDecode, msgEmptyFile
	case errors.Is(err, ErrNoValidFrames):
		f.Reason, f.Message = FailureDecode, msgNoValidPages
	default:
		f.Reason, f.Message = FailureDecode, msgFetchFailed
	}
	return f
}
