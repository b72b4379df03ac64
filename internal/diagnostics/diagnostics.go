// Package diagnostics runs reachability probes against a resolved target. Probe
// failures of any kind (missing tool, timeout, unreachable host) are reported as
// text in the result; nothing here returns an error.
package diagnostics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os/exec"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"ticketbridge/internal/target"
)

const (
	KindPing       = "ping"
	KindTraceroute = "traceroute"
	KindPort       = "port"

	summaryLineMax = 240
)

type ProbeResult struct {
	Kind     string        `json:"kind"`
	Output   string        `json:"output"`
	OK       bool          `json:"ok"`
	Duration time.Duration `json:"duration"`
}

type Result struct {
	Target     target.Target `json:"target"`
	Ping       ProbeResult   `json:"ping"`
	Traceroute ProbeResult   `json:"traceroute"`
	Port       ProbeResult   `json:"port"`
}

// Summary is a one-line digest for notification payloads.
func (r Result) Summary() string {
	return "PING: " + firstLine(r.Ping.Output) +
		" | TRACE: " + firstLine(r.Traceroute.Output) +
		" | PORT: " + firstLine(r.Port.Output)
}

// Prober is one reachability check.
type Prober interface {
	Kind() string
	Probe(ctx context.Context, t target.Target) ProbeResult
}

type Options struct {
	PingCount    int
	PingTimeout  time.Duration
	TraceMaxHops int
	TraceTimeout time.Duration
	PortTimeout  time.Duration

	// GOOS selects command syntax; defaults to runtime.GOOS.
	GOOS     string
	Commands CommandRunner
	LookPath func(file string) (string, error)
	Dial     func(ctx context.Context, network, address string) (net.Conn, error)
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.PingCount <= 0 {
		o.PingCount = 4
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 20 * time.Second
	}
	if o.TraceMaxHops <= 0 {
		o.TraceMaxHops = 15
	}
	if o.TraceTimeout <= 0 {
		o.TraceTimeout = 60 * time.Second
	}
	if o.PortTimeout <= 0 {
		o.PortTimeout = 5 * time.Second
	}
	if o.GOOS == "" {
		o.GOOS = runtime.GOOS
	}
	if o.Commands == nil {
		o.Commands = ExecCommandRunner{}
	}
	if o.LookPath == nil {
		o.LookPath = exec.LookPath
	}
	if o.Dial == nil {
		o.Dial = (&net.Dialer{}).DialContext
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Runner runs ping, traceroute and the port probe in sequence. Each probe has its
// own hard timeout, so a run is bounded by their sum.
type Runner struct {
	ping   Prober
	trace  Prober
	port   Prober
	logger *slog.Logger
}

func NewRunner(opts Options) *Runner {
	opts = opts.withDefaults()
	return &Runner{
		ping:   &PingProber{opts: opts},
		trace:  &TracerouteProber{opts: opts},
		port:   &PortProber{opts: opts},
		logger: opts.Logger,
	}
}

// NewRunnerWithProbers wires custom probers, e.g. for tests.
func NewRunnerWithProbers(ping, trace, port Prober, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{ping: ping, trace: trace, port: port, logger: logger}
}

func (r *Runner) Run(ctx context.Context, t target.Target) Result {
	res := Result{Target: t}
	res.Ping = r.probe(ctx, r.ping, t)
	res.Traceroute = r.probe(ctx, r.trace, t)
	res.Port = r.probe(ctx, r.port, t)
	return res
}

func (r *Runner) probe(ctx context.Context, p Prober, t target.Target) ProbeResult {
	start := time.Now()
	res := p.Probe(ctx, t)
	if res.Kind == "" {
		res.Kind = p.Kind()
	}
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	r.logger.Debug("probe finished", "kind", res.Kind, "target", t.String(), "ok", res.OK, "duration", res.Duration)
	return res
}

// runTool executes cmd under timeout and turns every failure mode into output text.
func runTool(ctx context.Context, runner CommandRunner, kind string, timeout time.Duration, cmd Command) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, err := runner.Run(ctx, cmd)
	res := ProbeResult{Kind: kind, Output: string(out), Duration: time.Since(start)}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.OK = true
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Output = appendNote(res.Output, "<timeout: "+cmd.Name+" exceeded "+timeout.String()+">")
	case errors.Is(ctx.Err(), context.Canceled):
		res.Output = appendNote(res.Output, "<canceled: "+cmd.Name+">")
	case errors.As(err, &exitErr):
		// Non-zero exit still carries the tool's own diagnostics.
		if strings.TrimSpace(res.Output) == "" {
			res.Output = "<" + cmd.Name + ": " + exitErr.Error() + ">"
		}
	default:
		res.Output = appendNote(res.Output, "<error: "+err.Error()+">")
	}
	return res
}

func appendNote(out, note string) string {
	out = strings.TrimRight(out, "\n")
	if out == "" {
		return note
	}
	return out + "\n" + note
}

// bareHost drops a port that slipped into the host field.
func bareHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	if strings.Count(host, ":") == 1 {
		h, _, _ := strings.Cut(host, ":")
		return h
	}
	return host
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return truncateRunes(line, summaryLineMax)
	}
	return "(no output)"
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
