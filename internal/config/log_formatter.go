package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	colorRed         = 31
	colorGreen       = 32
	colorYellow      = 33
	colorBlue        = 36
	colorGray        = 37
	colorLightGreen  = 92
	colorLightYellow = 93
	colorCyan        = 96
)

const logTimeFormat = "2006-01-02 15:04:05.000"

// ConsoleFormatter renders entries as colored key=value lines with fields
// sorted by key. The caller is printed when the logger reports callers.
type ConsoleFormatter struct {
	DisableColors bool
}

func (f *ConsoleFormatter) Format(entry *log.Entry) ([]byte, error) {
	var b bytes.Buffer

	f.pair(&b, "level", f.paint(levelColor(entry.Level), strings.ToUpper(entry.Level.String())[:4]))
	f.pair(&b, "ts", f.paint(colorLightYellow, entry.Time.Format(logTimeFormat)))
	if entry.HasCaller() {
		source := fmt.Sprintf("%s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line)
		f.pair(&b, "source", f.paint(colorLightYellow, source))
	}

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw, err := json.Marshal(entry.Data[k])
		if err != nil || len(raw) == 0 {
			continue
		}
		f.pair(&b, k, f.paint(valueColor(string(raw)), string(raw)))
	}
	f.pair(&b, "msg", f.paint(colorLightGreen, strconv.Quote(entry.Message)))

	line := strings.NewReplacer("\r", `\r`, "\n", `\n`).Replace(b.String())
	return []byte(line + "\n"), nil
}

func (f *ConsoleFormatter) pair(b *bytes.Buffer, key, value string) {
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	b.WriteString(f.paint(colorCyan, key))
	b.WriteByte('=')
	b.WriteString(value)
}

func (f *ConsoleFormatter) paint(color int, s string) string {
	if f.DisableColors {
		return s
	}
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", color, s)
}

func levelColor(level log.Level) int {
	switch level {
	case log.PanicLevel, log.FatalLevel, log.ErrorLevel:
		return colorRed
	case log.WarnLevel:
		return colorYellow
	case log.DebugLevel, log.TraceLevel:
		return colorGray
	}
	return colorBlue
}

func valueColor(s string) int {
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return colorGreen
	}
	if strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return colorLightYellow
	}
	return colorCyan
}
