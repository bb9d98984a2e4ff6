package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/web3tea/pgcdc-sentinel/keyvalue"
	"github.com/web3tea/pgcdc-sentinel/pkg/log"
)

// StdoutSink writes one JSON document per event.
type StdoutSink struct {
	out         io.Writer
	prettyPrint bool
}

func NewStdoutSink(prettyPrint bool) *StdoutSink {
	return &StdoutSink{
		out:         os.Stdout,
		prettyPrint: prettyPrint,
	}
}

func (s *StdoutSink) Init(ctx context.Context) error {
	log.Debugf("StdoutSink Init")
	return nil
}

func (s *StdoutSink) Close() error {
	log.Debugf("StdoutSink Close")
	return nil
}

func (s *StdoutSink) Flush(ctx context.Context) error {
	return nil
}

func (s *StdoutSink) Type() string {
	return "stdout"
}

func (s *StdoutSink) Write(ctx context.Context, events []*keyvalue.Event) error {
	log.Debugf("StdoutSink Write %d events", len(events))

	if len(events) == 0 {
		return nil
	}

	if s.prettyPrint {
		_, err := fmt.Fprint(s.out, s.buildPrettyOutput(events))
		return err
	}

	outputs := make([]string, 0, len(events))
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			log.Errorf("Failed to marshal event %s/%s: %v", event.Dataset, event.Key, err)
			continue
		}
		outputs = append(outputs, string(data))
	}
	_, err := fmt.Fprintln(s.out, strings.Join(outputs, "\n"))
	return err
}

func (s *StdoutSink) buildPrettyOutput(events []*keyvalue.Event) string {
	var sb strings.Builder

	for i, event := range events {
		if i > 0 {
			sb.WriteString("\n")
		}

		sb.WriteString("----------------------------------------\n")
		sb.WriteString(fmt.Sprintf("Operation: %s\n", event.Kind))
		sb.WriteString(fmt.Sprintf("Table: %s.%s\n", event.Schema, event.Table))
		sb.WriteString(fmt.Sprintf("Dataset: %s\n", event.Dataset))
		sb.WriteString(fmt.Sprintf("Key: %s\n", event.Key))
		if event.Xid != 0 {
			sb.WriteString(fmt.Sprintf("Xid: %d\n", event.Xid))
		}
		if event.Timestamp != "" {
			sb.WriteString(fmt.Sprintf("Timestamp: %s\n", event.Timestamp))
		}
		if !event.IsDelete() {
			sb.WriteString("Value:\n")
			sb.WriteString(prettyValue(event.Value))
			sb.WriteString("\n")
		}
		sb.WriteString("----------------------------------------\n")
	}

	return sb.String()
}

func prettyValue(v any) string {
	if str, ok := v.(string); ok {
		var doc any
		if err := json.Unmarshal([]byte(str), &doc); err == nil {
			out, _ := json.MarshalIndent(doc, "  ", "  ")
			return "  " + string(out)
		}
		return "  " + str
	}
	out, _ := json.MarshalIndent(v, "  ", "  ")
	return "  " + string(out)
}

var _ Sink = (*StdoutSink)(nil)
