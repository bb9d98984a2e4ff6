package sink

import "io"

func SetStdoutOutput(s *StdoutSink, w io.Writer) {
	s.out = w
}
