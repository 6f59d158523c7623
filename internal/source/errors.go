package source

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/mmcdole/gofeed"
)

// ErrMissingTitle is returned by Normalize for candidates without a title.
var ErrMissingTitle = errors.New("missing title")

// Kind classifies a fetch failure.
type Kind string

const (
	KindTimeout Kind = "timeout"
	KindNetwork Kind = "network"
	KindParse   Kind = "parse"
	KindSchema  Kind = "schema"
)

// FetchError is the failure an adapter reports instead of items.
type FetchError struct {
	Source string
	Kind   Kind
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StatusError reports a non-200 HTTP response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.Code, http.StatusText(e.Code))
}

// AsFetchError returns err as a *FetchError for the named source,
// classifying it when it is not one already. A nil err yields nil.
func AsFetchError(source string, err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{Source: source, Kind: kindOf(err), Err: err}
}

func kindOf(err error) Kind {
	var netErr net.Error
	var syntaxErr *xml.SyntaxError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return KindTimeout
	case errors.Is(err, gofeed.ErrFeedTypeNotDetected), errors.As(err, &syntaxErr):
		return KindParse
	default:
		return KindNetwork
	}
}
