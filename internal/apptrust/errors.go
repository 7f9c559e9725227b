package apptrust

import "fmt"

// UpstreamError reports a non-2xx response or transport failure from
// the platform. Status is zero when the request never got a response.
type UpstreamError struct {
	Method string
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s %s: upstream returned %d: %s", e.Method, e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("%s %s: upstream returned %d", e.Method, e.URL, e.Status)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
