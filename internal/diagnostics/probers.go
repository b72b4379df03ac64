package diagnostics

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"ticketbridge/internal/target"
)

type PingProber struct {
	opts Options
}

func (p *PingProber) Kind() string { return KindPing }

func (p *PingProber) Probe(ctx context.Context, t target.Target) ProbeResult {
	return runTool(ctx, p.opts.Commands, KindPing, p.opts.PingTimeout, p.command(bareHost(t.Host)))
}

func (p *PingProber) command(host string) Command {
	count := strconv.Itoa(p.opts.PingCount)
	if p.opts.GOOS == "windows" {
		return Command{Name: "ping", Args: []string{"-n", count, host}}
	}
	return Command{Name: "ping", Args: []string{"-c", count, "-W", "3", host}}
}

type TracerouteProber struct {
	opts Options
}

func (p *TracerouteProber) Kind() string { return KindTraceroute }

func (p *TracerouteProber) Probe(ctx context.Context, t target.Target) ProbeResult {
	return runTool(ctx, p.opts.Commands, KindTraceroute, p.opts.TraceTimeout, p.command(bareHost(t.Host)))
}

func (p *TracerouteProber) command(host string) Command {
	hops := strconv.Itoa(p.opts.TraceMaxHops)
	if p.opts.GOOS == "windows" {
		return Command{Name: "tracert", Args: []string{"-d", "-h", hops, host}}
	}
	return Command{Name: "traceroute", Args: []string{"-n", "-m", hops, host}}
}

// PortProber prefers netcat for its short standard output and falls back to a
// plain TCP connect when nc is not installed.
type PortProber struct {
	opts Options
}

func (p *PortProber) Kind() string { return KindPort }

func (p *PortProber) Probe(ctx context.Context, t target.Target) ProbeResult {
	host := bareHost(t.Host)
	if _, err := p.opts.LookPath("nc"); err == nil {
		secs := strconv.Itoa(int(math.Ceil(p.opts.PortTimeout.Seconds())))
		cmd := Command{Name: "nc", Args: []string{"-vz", "-w", secs, host, strconv.Itoa(t.Port)}}
		return runTool(ctx, p.opts.Commands, KindPort, p.opts.PortTimeout, cmd)
	}
	return p.dial(ctx, host, t.Port)
}

func (p *PortProber) dial(ctx context.Context, host string, port int) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, p.opts.PortTimeout)
	defer cancel()

	addr := target.Target{Host: host, Port: port}.Address()
	start := time.Now()
	conn, err := p.opts.Dial(ctx, "tcp", addr)
	res := ProbeResult{Kind: KindPort, Duration: time.Since(start)}
	if err != nil {
		res.Output = fmt.Sprintf("Port %s CLOSED/ERROR: %v", addr, err)
		return res
	}
	_ = conn.Close()
	res.OK = true
	res.Output = fmt.Sprintf("Port %s OPEN (TCP connect OK)", addr)
	return res
}
