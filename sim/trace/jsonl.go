package trace

import (
	"bufio"
	"fmt"
	"io"

	"github.com/sugawarayuuta/sonnet"
)

// JSONLWriter writes one JSON object per record per line.
type JSONLWriter struct {
	w      *bufio.Writer
	closer io.Closer
}

// NewJSONLWriter writes to w. If w is an io.Closer it is closed by Close.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	jw := &JSONLWriter{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		jw.closer = c
	}
	return jw
}

// Write implements Writer.
func (jw *JSONLWriter) Write(rec Record) error {
	data, err := sonnet.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode trace record: %w", err)
	}
	if _, err := jw.w.Write(data); err != nil {
		return err
	}
	return jw.w.WriteByte('\n')
}

// Close flushes and closes the underlying writer.
func (jw *JSONLWriter) Close() error {
	if err := jw.w.Flush(); err != nil {
		return err
	}
	if jw.closer != nil {
		return jw.closer.Close()
	}
	return nil
}

// ReadJSONL decodes a JSON lines trace.
func ReadJSONL(r io.Reader) ([]Record, error) {
	var out []Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := sonnet.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("jsonl trace line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl trace: %w", err)
	}
	return out, nil
}
