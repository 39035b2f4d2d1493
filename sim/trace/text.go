package trace

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/inference-sim/particle-sim/sim/message"
)

// Line prefixes of the text log. The detector log prefix is what snapshot
// readers look for.
const (
	prefixLog       = "SubV_defs::logging_out: {"
	prefixCollision = "SubV_defs::collision_out: {"
	prefixResponse  = "Responder_defs::response_out: {"
	prefixImpulse   = "RandomImpulse_defs::impulse_out: {"
)

// TextWriter writes the message log format: a bare time line whenever the
// clock advances, then one bracketed line per message.
type TextWriter struct {
	w       *bufio.Writer
	closer  io.Closer
	started bool
	last    float64
}

// NewTextWriter writes to w. If w is an io.Closer it is closed by Close.
func NewTextWriter(w io.Writer) *TextWriter {
	tw := &TextWriter{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		tw.closer = c
	}
	return tw
}

// Write implements Writer.
func (tw *TextWriter) Write(rec Record) error {
	if !tw.started || rec.Time != tw.last {
		if _, err := fmt.Fprintln(tw.w, formatTime(rec.Time)); err != nil {
			return err
		}
		tw.started = true
		tw.last = rec.Time
	}
	_, err := fmt.Fprintln(tw.w, FormatText(rec))
	return err
}

// Close flushes and closes the underlying writer.
func (tw *TextWriter) Close() error {
	if err := tw.w.Flush(); err != nil {
		return err
	}
	if tw.closer != nil {
		return tw.closer.Close()
	}
	return nil
}

// FormatText renders one record as a text log line.
func FormatText(rec Record) string {
	var b strings.Builder
	b.WriteByte('[')
	switch rec.Kind {
	case KindLog:
		id := 0
		if len(rec.ParticleIDs) > 0 {
			id = rec.ParticleIDs[0]
		}
		fmt.Fprintf(&b, "%s[subV_id: %d, p_id: %d, vel: <%s>, pos: <%s>, purpose: %s]}",
			prefixLog, rec.DetectorID, id, formatVec(rec.Data), formatVec(rec.Position), rec.Purpose)
	case KindCollision:
		b.WriteString(prefixCollision)
		for _, id := range rec.ParticleIDs {
			fmt.Fprintf(&b, "[(p_id:%d): <%s>]", id, formatVec(rec.Positions[id]))
		}
		b.WriteByte('}')
	case KindResponse:
		fmt.Fprintf(&b, "%s[p_ids: <%s>, data: <%s>, purpose: %s]}", prefixResponse, formatIDs(rec.ParticleIDs), formatVec(rec.Data), rec.Purpose)
	case KindImpulse:
		fmt.Fprintf(&b, "%s[p_ids: <%s>, data: <%s>, purpose: %s]}", prefixImpulse, formatIDs(rec.ParticleIDs), formatVec(rec.Data), rec.Purpose)
	default:
		fmt.Fprintf(&b, "%s: {}", rec.Kind)
	}
	b.WriteByte(']')
	return b.String()
}

var logEntry = regexp.MustCompile(`\[subV_id: (-?\d+), p_id: (-?\d+), vel: <([^>]*)>, pos: <([^>]*)>, purpose: (\w*)\]`)

// ParseText reads the detector log records back from a text log. Lines of
// other message kinds are skipped.
func ParseText(r io.Reader) ([]Record, error) {
	var out []Record
	now := 0.0
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if t, err := strconv.ParseFloat(text, 64); err == nil {
			now = t
			continue
		}
		if !strings.Contains(text, prefixLog) {
			continue
		}
		for _, m := range logEntry.FindAllStringSubmatch(text, -1) {
			det, _ := strconv.Atoi(m[1])
			id, _ := strconv.Atoi(m[2])
			vel, err := parseVec(m[3])
			if err != nil {
				return nil, fmt.Errorf("text trace line %d: velocity: %w", line, err)
			}
			pos, err := parseVec(m[4])
			if err != nil {
				return nil, fmt.Errorf("text trace line %d: position: %w", line, err)
			}
			out = append(out, Record{
				Time:        now,
				Kind:        KindLog,
				DetectorID:  det,
				ParticleIDs: []int{id},
				Data:        vel,
				Position:    pos,
				Purpose:     message.Purpose(m[5]),
			})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read text trace: %w", err)
	}
	return out, nil
}

func formatTime(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}

func formatVec(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

func formatIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, " ")
}

func parseVec(s string) ([]float64, error) {
	fields := strings.Fields(s)
	out := make([]float64, len(fields))
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}
