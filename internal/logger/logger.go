package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/propdesk/propdesk/internal/netutil"
	"rsc.io/qr"
)

var (
	mu      sync.Mutex
	out     io.Writer = os.Stderr
	noColor bool
	level   = levelInfo
)

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	blue   = "\033[34m"
	cyan   = "\033[36m"
	white  = "\033[37m"

	brightRed  = "\033[91m"
	brightBlue = "\033[94m"

	// 256-color teal shades
	teal     = "\033[38;5;37m"
	deepTeal = "\033[38;5;30m"
	softTeal = "\033[38;5;116m"
)

func init() {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		noColor = true
	}
}

// SetLevel sets the minimum level written: debug, info, warn or error.
// Unknown values leave the level unchanged.
func SetLevel(l string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(l) {
	case "debug":
		level = levelDebug
	case "info":
		level = levelInfo
	case "warn", "warning":
		level = levelWarn
	case "error":
		level = levelError
	}
}

// SetOutput redirects all log output. Used by tests and the CLI.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

func enabled(l int) bool {
	mu.Lock()
	defer mu.Unlock()
	return l >= level
}

func c(code, text string) string {
	if noColor {
		return text
	}
	return code + text + reset
}

func ts() string {
	return c(dim, time.Now().Format("15:04:05"))
}

func write(format string, args ...interface{}) {
	mu.Lock()
	fmt.Fprintf(out, format+"\n", args...)
	mu.Unlock()
}

func Banner() {
	lines := "\n" +
		"   " + c(teal, "/\\") + "\n" +
		"  " + c(teal, "/  \\") + "   " + c(bold+brightBlue, "PropDesk") + "\n" +
		"  " + c(teal, "|[]|") + "   " + c(dim, "Real-estate CRM") + "\n" +
		c(dim, " ─────────────────────────────────") + "\n"
	mu.Lock()
	fmt.Fprint(out, lines)
	mu.Unlock()
}

func Debug(format string, args ...interface{}) {
	if !enabled(levelDebug) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	write("%s  %s  %s", ts(), c(dim, "·"), c(dim, msg))
}

func Info(format string, args ...interface{}) {
	if !enabled(levelInfo) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	write("%s  %s  %s", ts(), c(cyan, "~"), msg)
}

func Success(format string, args ...interface{}) {
	if !enabled(levelInfo) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	write("%s  %s  %s", ts(), c(green, "✓"), msg)
}

func Warn(format string, args ...interface{}) {
	if !enabled(levelWarn) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	write("%s  %s  %s", ts(), c(yellow, "⚠"), c(yellow, msg))
}

func Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	write("%s  %s  %s", ts(), c(red, "✗"), c(red, msg))
}

func Fatal(format string, args ...interface{}) {
	Error(format, args...)
	os.Exit(1)
}

// WS logs a live-channel lifecycle event (connected, disconnected, subscribe...).
func WS(event, detail string) {
	if !enabled(levelInfo) {
		return
	}
	var icon, eventColor string
	switch event {
	case "connected":
		icon = c(teal, "⚡")
		eventColor = teal
	case "disconnected":
		icon = c(softTeal, "·")
		eventColor = softTeal
	default:
		icon = c(deepTeal, "↔")
		eventColor = deepTeal
	}
	write("%s  %s %s %s",
		ts(),
		icon,
		c(eventColor, fmt.Sprintf("%-16s", "ws:"+event)),
		c(blue, detail),
	)
}

// Event logs a domain event published to subscribers.
func Event(eventType, topic string) {
	if !enabled(levelDebug) {
		return
	}
	if topic == "" {
		topic = "*"
	}
	write("%s  %s %s %s", ts(), c(teal, "»"), c(deepTeal, fmt.Sprintf("%-22s", eventType)), c(dim, topic))
}

func Listen(addr, url string, port int) {
	write("")
	write("%s  %s  Listening on %s", ts(), c(brightBlue, "⌂"), c(bold+white, addr))
	write("              %s  %s", c(dim, "→"), c(cyan, url))

	if lanIP := netutil.LANIP(); lanIP != "" {
		lanURL := fmt.Sprintf("http://%s:%d", lanIP, port)
		write("              %s  %s", c(dim, "→"), c(cyan, lanURL))
		write("")
		printQR(lanURL)
		write("              %s", c(dim, "Scan to open on your phone"))
	}
	write("")
}

func printQR(url string) {
	code, err := qr.Encode(url, qr.L)
	if err != nil {
		return
	}

	size := code.Size
	quiet := 1
	full := size + quiet*2

	black := func(x, y int) bool {
		qx, qy := x-quiet, y-quiet
		if qx < 0 || qy < 0 || qx >= size || qy >= size {
			return false
		}
		return code.Black(qx, qy)
	}

	var b strings.Builder
	for y := 0; y < full; y += 2 {
		b.Reset()
		for x := 0; x < full; x++ {
			top := black(x, y)
			bot := y+1 < full && black(x, y+1)

			switch {
			case top && bot:
				b.WriteString("█")
			case top:
				b.WriteString("▀")
			case bot:
				b.WriteString("▄")
			default:
				b.WriteString(" ")
			}
		}
		write("              %s", c(teal, b.String()))
	}
}

func Shutdown(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	write("")
	write("%s  %s  %s", ts(), c(dim, "■"), c(dim, msg))
}

func Bye() {
	write("%s  %s  %s", ts(), c(dim, "~"), c(dim, "Stopped."))
	write("")
}

func HTTP(method, path string, status int, dur time.Duration) {
	if !enabled(levelInfo) {
		return
	}
	statusStr := fmt.Sprintf("%d", status)
	var coloredStatus string
	switch {
	case status >= 400:
		coloredStatus = c("\033[41;97m", " "+statusStr+" ")
	default:
		coloredStatus = c(dim+teal, statusStr)
	}

	mc := teal
	switch method {
	case "POST", "PUT", "PATCH":
		mc = brightBlue
	case "DELETE":
		mc = brightRed
	}

	write("%s  %s %s %s %s",
		ts(),
		c(mc, "["+method+"]"),
		coloredStatus,
		c(dim, path),
		c(dim, fmtDuration(dur)),
	)
}

func fmtDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		ms := float64(d.Microseconds()) / 1000.0
		if ms < 10 {
			return fmt.Sprintf("%.1fms", ms)
		}
		return fmt.Sprintf("%.0fms", ms)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
