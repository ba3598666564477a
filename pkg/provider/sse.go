package provider

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// EncodeSSE renders one event as a complete text/event-stream frame. Frames
// are what the stream cache buffers, so a resumed client receives bytes
// identical to the original delivery.
func EncodeSSE(ev Event, seq int) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrap(err, "marshal event")
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "event: %s\n", ev.Type)
	fmt.Fprintf(&b, "id: %d\n", seq)
	for _, line := range bytes.Split(data, []byte("\n")) {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}
