// Package content composes ticket titles, bodies and follow-ups as Markdown.
package content

import (
	"fmt"
	"strings"

	"ticketbridge/internal/diagnostics"
	"ticketbridge/internal/events"
	"ticketbridge/internal/retell"
	"ticketbridge/internal/target"
)

const (
	MaxTitleLen   = 250
	maxPingLen    = 5000
	maxTraceLen   = 5000
	maxPortLen    = 2000
	maxCallResLen = 1800

	// InvalidTargetSummary replaces the probe summary when no host could be extracted.
	InvalidTargetSummary = "Could not run diagnostics (invalid target)."
)

// Title builds the ticket title, capped at MaxTitleLen characters.
func Title(eventRef int64, problem string) string {
	var t string
	if problem != "" {
		t = fmt.Sprintf("Event %d - %s", eventRef, problem)
	} else {
		t = fmt.Sprintf("Event %d generated from epistech", eventRef)
	}
	return truncate(t, MaxTitleLen)
}

// Body lists the source row context and, when known, the problem description.
func Body(ev events.Event, problem string) string {
	var b strings.Builder
	b.WriteString("**Event management context**\n\n")
	fmt.Fprintf(&b, "- comment: %s\n", orDash(ev.Comment))
	fmt.Fprintf(&b, "- responsible: %s\n", orDash(ev.Responsible))
	fmt.Fprintf(&b, "- impacted client: %s\n", orDash(ev.ImpactedClient))
	fmt.Fprintf(&b, "- impacted system: %s\n", orDash(ev.ImpactedSystem))
	if problem != "" {
		b.WriteString("\n**Description (monitoring problem):**\n\n")
		b.WriteString(problem)
		b.WriteString("\n")
	}
	return b.String()
}

// Followup reports the probe outputs for the target parsed out of raw.
func Followup(raw string, t target.Target, r diagnostics.Result) string {
	var b strings.Builder
	b.WriteString("Automatic diagnostics for the target extracted from the impacted system field:\n\n")
	if raw != "" {
		fmt.Fprintf(&b, "**Impacted system (raw)**: %s\n\n", inlineCode(raw))
	}
	fmt.Fprintf(&b, "**Target (parsed)**: %s\n\n", inlineCode(t.String()))
	section(&b, "PING", r.Ping.Output, maxPingLen)
	section(&b, "Traceroute", r.Traceroute.Output, maxTraceLen)
	section(&b, "Port check (nc/TCP)", r.Port.Output, maxPortLen)
	return b.String()
}

// InvalidTarget is the follow-up used when the impacted system field names no host.
func InvalidTarget(raw string) string {
	return fmt.Sprintf("Could not extract a valid target from the impacted system field. Value: %s", inlineCode(fmt.Sprintf("%q", raw)))
}

// CallOutcome records a notification attempt on the ticket.
func CallOutcome(name, to string, res retell.CallResult) string {
	var b strings.Builder
	if res.Error {
		fmt.Fprintf(&b, "Phone notification to %s (%s) failed (status %d).\n\n", orDash(name), inlineCode(to), res.Status)
	} else {
		fmt.Fprintf(&b, "Phone notification sent to %s (%s).\n\n", orDash(name), inlineCode(to))
		if res.CallID != "" {
			fmt.Fprintf(&b, "Call id: %s\n\n", inlineCode(res.CallID))
		}
	}
	if text := strings.TrimSpace(res.Text); text != "" {
		b.WriteString(fence(truncate(text, maxCallResLen)))
	}
	return b.String()
}

// CallVariables are the dynamic variables handed to the voice agent.
func CallVariables(contactName, title string, ev events.Event, summary string, ticketID int64) map[string]string {
	if contactName == "" {
		contactName = "Engineer"
	}
	services := ev.ImpactedClient
	if services == "" {
		services = ev.ImpactedSystem
	}
	if services == "" {
		services = "(no data)"
	}
	return map[string]string{
		"Nombre":                  contactName,
		"Asunto_Alerta_Impactada": title,
		"Servicios_Impactados":    services,
		"Pruebas_realizadas":      summary,
		"Ticket":                  fmt.Sprint(ticketID),
	}
}

func section(b *strings.Builder, heading, output string, limit int) {
	fmt.Fprintf(b, "**%s**:\n\n", heading)
	b.WriteString(fence(truncate(strings.TrimSpace(output), limit)))
	b.WriteString("\n")
}

// fence wraps s in a code block whose fence is longer than any backtick run in s.
func fence(s string) string {
	f := strings.Repeat("`", max(3, longestRun(s, '`')+1))
	return f + "\n" + s + "\n" + f + "\n"
}

func inlineCode(s string) string {
	n := longestRun(s, '`')
	if n == 0 {
		return "`" + s + "`"
	}
	f := strings.Repeat("`", n+1)
	return f + " " + s + " " + f
}

func longestRun(s string, c rune) int {
	best, cur := 0, 0
	for _, r := range s {
		if r == c {
			cur++
			best = max(best, cur)
			continue
		}
		cur = 0
	}
	return best
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
