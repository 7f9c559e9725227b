package apptrust

import (
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
)

// TraceLevel controls how much request context is printed when a call
// fails. The tracer only runs on failure paths.
type TraceLevel int

const (
	TraceNone TraceLevel = iota
	TraceBasic
	TraceVerbose
)

func ParseTraceLevel(s string) (TraceLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TraceNone, nil
	case "basic":
		return TraceBasic, nil
	case "verbose":
		return TraceVerbose, nil
	}
	return TraceNone, fmt.Errorf("unknown trace level %q (want none, basic, or verbose)", s)
}

// Tracer renders redacted, reproducible request traces for operator
// diagnosis. The bearer credential is never printed.
type Tracer struct {
	level  TraceLevel
	logger *log.Logger
}

func NewTracer(level TraceLevel, logger *log.Logger) *Tracer {
	if logger == nil {
		logger = log.Default()
	}
	return &Tracer{level: level, logger: logger}
}

// Request prints the failed request at the configured level. basic
// prints method, URL, and header names; verbose adds the body and an
// equivalent curl command line.
func (t *Tracer) Request(method, url string, header http.Header, body []byte) {
	if t == nil || t.level == TraceNone {
		return
	}
	t.logger.Printf("request failed: %s %s", method, url)
	t.logger.Printf("request headers: %s", strings.Join(headerNames(header), ", "))
	if t.level < TraceVerbose {
		return
	}
	if len(body) > 0 {
		t.logger.Printf("request body: %s", body)
	}
	t.logger.Printf("reproduce with: %s", curlLine(method, url, header, body))
}

func headerNames(header http.Header) []string {
	names := make([]string, 0, len(header))
	for name := range header {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func curlLine(method, url string, header http.Header, body []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "curl -X %s", method)
	for _, name := range headerNames(header) {
		fmt.Fprintf(&b, " -H '%s: %s'", name, redactValue(name, header.Get(name)))
	}
	if len(body) > 0 {
		fmt.Fprintf(&b, " -d '%s'", string(body))
	}
	fmt.Fprintf(&b, " '%s'", url)
	return b.String()
}

func redactValue(name, value string) string {
	if !strings.EqualFold(name, "Authorization") {
		return value
	}
	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer [REDACTED]"
	}
	return "[REDACTED]"
}
