package sink

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/web3tea/pgcdc-sentinel/keyvalue"
	"github.com/web3tea/pgcdc-sentinel/wal2json"
)

// ConsoleSink prints every key/value write as a table.
type ConsoleSink struct {
	out            io.Writer
	colorEnabled   bool
	tableStyle     table.Style
	maxColumnWidth int
	// "hex", "base64" or "escaped"
	binaryFormat string
}

type ConsoleSinkOption func(*ConsoleSink)

func WithColorOutput(enabled bool) ConsoleSinkOption {
	return func(s *ConsoleSink) {
		s.colorEnabled = enabled
	}
}

// WithMaxColumnWidth sets the width at which values are truncated.
func WithMaxColumnWidth(width int) ConsoleSinkOption {
	return func(s *ConsoleSink) {
		if width > 3 {
			s.maxColumnWidth = width
		}
	}
}

// WithBinaryFormat sets how binary values, such as msgpack payloads, are shown.
// Valid values: "hex", "base64", "escaped"
func WithBinaryFormat(format string) ConsoleSinkOption {
	return func(s *ConsoleSink) {
		s.binaryFormat = format
	}
}

func WithOutput(w io.Writer) ConsoleSinkOption {
	return func(s *ConsoleSink) {
		s.out = w
	}
}

func NewConsoleSink(options ...ConsoleSinkOption) *ConsoleSink {
	customStyle := table.Style{
		Name: "KV-Custom",
		Box: table.BoxStyle{
			BottomLeft:       "└",
			BottomRight:      "┘",
			BottomSeparator:  "┴",
			Left:             "│",
			LeftSeparator:    "├",
			MiddleHorizontal: "─",
			MiddleSeparator:  "┼",
			MiddleVertical:   "│",
			PaddingLeft:      " ",
			PaddingRight:     " ",
			Right:            "│",
			RightSeparator:   "┤",
			TopLeft:          "┌",
			TopRight:         "┐",
			TopSeparator:     "┬",
			UnfinishedRow:    "...",
		},
		Options: table.Options{
			DrawBorder:      true,
			SeparateColumns: true,
			SeparateFooter:  true,
			SeparateHeader:  true,
			SeparateRows:    false,
		},
		Title: table.TitleOptions{
			Align:  text.AlignCenter,
			Colors: text.Colors{text.FgHiWhite, text.Bold},
		},
		Color: table.ColorOptions{
			Header: text.Colors{text.FgHiWhite, text.Bold},
			Row:    text.Colors{},
			Footer: text.Colors{text.FgHiWhite, text.Bold},
		},
	}

	sink := &ConsoleSink{
		out:            os.Stdout,
		colorEnabled:   true,
		tableStyle:     customStyle,
		maxColumnWidth: 80,
		binaryFormat:   "hex",
	}
	for _, option := range options {
		option(sink)
	}
	if !sink.colorEnabled {
		sink.tableStyle.Title.Colors = nil
		sink.tableStyle.Color = table.ColorOptions{}
	}
	return sink
}

func (s *ConsoleSink) Init(ctx context.Context) error {
	return nil
}

func (s *ConsoleSink) Write(ctx context.Context, events []*keyvalue.Event) error {
	for _, event := range events {
		s.writeEventTable(event)
	}
	return nil
}

func (s *ConsoleSink) colorize(attrs ...color.Attribute) func(a ...interface{}) string {
	if !s.colorEnabled {
		return fmt.Sprint
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.SprintFunc()
}

func (s *ConsoleSink) writeEventTable(event *keyvalue.Event) {
	var opText, titlePrefix string
	switch event.Kind {
	case wal2json.Insert:
		opText = s.colorize(color.FgGreen, color.Bold)("INSERT")
		titlePrefix = "PUT"
	case wal2json.Update:
		opText = s.colorize(color.FgYellow, color.Bold)("UPDATE")
		titlePrefix = "PUT"
	case wal2json.Delete:
		opText = s.colorize(color.FgRed, color.Bold)("DELETE")
		titlePrefix = "REMOVE"
	default:
		opText = string(event.Kind)
		titlePrefix = string(event.Kind)
	}

	summaryRows := []table.Row{
		{"Operation", opText},
		{"Table", fmt.Sprintf("%s.%s", event.Schema, event.Table)},
		{"Dataset", event.Dataset},
		{"Key", s.truncateString(event.Key)},
	}
	if event.Xid != 0 {
		summaryRows = append(summaryRows, table.Row{"Xid", event.Xid})
	}
	if event.Timestamp != "" {
		summaryRows = append(summaryRows, table.Row{"Timestamp", event.Timestamp})
	}

	summaryTable := table.NewWriter()
	for _, row := range summaryRows {
		summaryTable.AppendRow(row)
	}
	summaryTable.SetStyle(s.tableStyle)
	summaryTable.Style().Options.DrawBorder = false
	summaryTable.Style().Options.SeparateRows = false

	eventTable := table.NewWriter()
	eventTable.AppendRow(table.Row{summaryTable.Render()})

	if !event.IsDelete() {
		eventTable.AppendRow(table.Row{""})
		eventTable.AppendRow(table.Row{text.Bold.Sprint("Value")})
		eventTable.AppendRow(table.Row{s.createValueTable(event.Value).Render()})
	}

	eventTable.SetStyle(s.tableStyle)
	eventTable.SetTitle(fmt.Sprintf("%s %s", titlePrefix, event.Dataset))

	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, strings.Repeat("─", 100))
	fmt.Fprintln(s.out, eventTable.Render())
}

// createValueTable shows JSON object values column by column and anything
// else as a single cell.
func (s *ConsoleSink) createValueTable(value any) table.Writer {
	valueColor := s.colorize(color.FgGreen)
	dataTable := table.NewWriter()
	dataTable.SetStyle(s.tableStyle)

	if str, ok := value.(string); ok {
		var columns map[string]any
		if err := json.Unmarshal([]byte(str), &columns); err == nil {
			dataTable.AppendHeader(table.Row{"Column", "Value"})
			for _, k := range getSortedKeys(columns) {
				dataTable.AppendRow(table.Row{k, valueColor(s.formatValue(columns[k]))})
			}
			return dataTable
		}
	}
	dataTable.AppendRow(table.Row{valueColor(s.formatValue(value))})
	return dataTable
}

func (s *ConsoleSink) formatValue(val interface{}) string {
	if val == nil {
		return "NULL"
	}

	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Slice:
		if byteSlice, ok := val.([]byte); ok {
			return s.formatByteArray(byteSlice)
		}
		return s.truncateString(fmt.Sprintf("%v", val))
	case reflect.String, reflect.Map, reflect.Struct:
		return s.truncateString(fmt.Sprintf("%v", val))
	default:
		return fmt.Sprintf("%v", val)
	}
}

func (s *ConsoleSink) formatByteArray(data []byte) string {
	if len(data) == 0 {
		return "[]"
	}

	var result string
	switch s.binaryFormat {
	case "base64":
		result = "base64:" + base64.StdEncoding.EncodeToString(data)
	case "escaped":
		if isTextual(data) {
			result = formatEscapedString(data)
		} else {
			result = "0x" + hex.EncodeToString(data)
		}
	default:
		result = "0x" + hex.EncodeToString(data)
	}
	return s.truncateString(result)
}

func (s *ConsoleSink) truncateString(str string) string {
	if len(str) <= s.maxColumnWidth {
		return str
	}
	return str[:s.maxColumnWidth-3] + "..."
}

// isTextual reports whether data is printable UTF-8.
func isTextual(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	for _, r := range string(data) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func formatEscapedString(data []byte) string {
	var result strings.Builder
	result.WriteRune('"')
	for _, r := range string(data) {
		switch r {
		case '\n':
			result.WriteString("\\n")
		case '\r':
			result.WriteString("\\r")
		case '\t':
			result.WriteString("\\t")
		case '\\':
			result.WriteString("\\\\")
		case '"':
			result.WriteString("\\\"")
		default:
			if unicode.IsPrint(r) {
				result.WriteRune(r)
			} else {
				result.WriteString(fmt.Sprintf("\\u%04x", r))
			}
		}
	}
	result.WriteRune('"')
	return result.String()
}

func getSortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *ConsoleSink) Flush(ctx context.Context) error {
	return nil
}

func (s *ConsoleSink) Close() error {
	return nil
}

func (s *ConsoleSink) Type() string {
	return "console"
}

var _ Sink = (*ConsoleSink)(nil)
