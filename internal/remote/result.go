package remote

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"enotebook-sync/internal/domain"
)

type Kind int

const (
	KindSuccess Kind = iota
	KindRejection
	KindConnectivity
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRejection:
		return "rejection"
	case KindConnectivity:
		return "connectivity"
	default:
		return "unknown"
	}
}

var (
	ErrRejected    = errors.New("remote rejected request")
	ErrUnavailable = errors.New("remote unavailable")
)

// Result is the tagged outcome of one logical mutation.
type Result struct {
	Kind    Kind
	Note    *domain.Note
	SubNote *domain.SubNote
	Err     *Failure
}

func (r Result) OK() bool { return r.Kind == KindSuccess }

// Error returns the failure as an error, or nil on success.
func (r Result) Error() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

func failed(f *Failure) Result {
	return Result{Kind: f.Kind, Err: f}
}

// Attempt records what one candidate route returned.
type Attempt struct {
	Route  string
	Method string
	URL    string
	Status int
	Body   string
	Err    error
}

func (a Attempt) class() attemptClass {
	if a.Err != nil {
		return classConnectivity
	}
	switch {
	case a.Status >= 200 && a.Status < 300:
		return classSuccess
	case a.Status == http.StatusNotFound, a.Status == http.StatusMethodNotAllowed:
		return classMiss
	case a.Status == http.StatusRequestTimeout, a.Status == http.StatusTooManyRequests, a.Status >= 500:
		return classConnectivity
	default:
		return classRejection
	}
}

type attemptClass int

const (
	classSuccess attemptClass = iota
	classMiss
	classRejection
	classConnectivity
)

// Failure carries every attempt made for one logical operation.
type Failure struct {
	Kind     Kind
	Op       string
	Attempts []Attempt
}

// classify folds per-candidate attempts into one failure. A rejection from a
// route that matched beats everything; otherwise any connectivity-class
// attempt makes the whole operation retryable; only routing misses left
// means no candidate shape exists on the remote.
func classify(op string, attempts []Attempt) *Failure {
	f := &Failure{Op: op, Attempts: attempts, Kind: KindRejection}
	sawConnectivity := false
	for _, a := range attempts {
		switch a.class() {
		case classRejection:
			f.Kind = KindRejection
			return f
		case classConnectivity:
			sawConnectivity = true
		}
	}
	if sawConnectivity {
		f.Kind = KindConnectivity
	}
	return f
}

// Cause returns the most specific attempt: a rejection from a matched route,
// then a connectivity failure, then the last routing miss.
func (f *Failure) Cause() Attempt {
	var conn, miss *Attempt
	for i := range f.Attempts {
		a := &f.Attempts[i]
		switch a.class() {
		case classRejection:
			return *a
		case classConnectivity:
			if conn == nil {
				conn = a
			}
		case classMiss:
			miss = a
		}
	}
	if conn != nil {
		return *conn
	}
	if miss != nil {
		return *miss
	}
	return Attempt{}
}

// StatusCode is the HTTP status of the most specific attempt, 0 when the
// request never got a response.
func (f *Failure) StatusCode() int {
	return f.Cause().Status
}

func (f *Failure) Error() string {
	c := f.Cause()
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", f.Op, f.Kind)
	switch {
	case c.Err != nil:
		fmt.Fprintf(&b, ": %s %s: %v", c.Method, c.URL, c.Err)
	case c.Status != 0:
		fmt.Fprintf(&b, ": %s %s: status %d", c.Method, c.URL, c.Status)
		if c.Body != "" {
			fmt.Fprintf(&b, ": %s", c.Body)
		}
	}
	if len(f.Attempts) > 1 {
		fmt.Fprintf(&b, " (%d candidates tried)", len(f.Attempts))
	}
	return b.String()
}

func (f *Failure) Is(target error) bool {
	switch target {
	case ErrRejected:
		return f.Kind == KindRejection
	case ErrUnavailable:
		return f.Kind == KindConnectivity
	}
	return false
}

func (f *Failure) Unwrap() error {
	return f.Cause().Err
}

// IsConnectivity reports whether err is a retryable remote failure.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func IsRejection(err error) bool {
	return errors.Is(err, ErrRejected)
}
