package messagestore

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteSSE renders e in the Server-Sent-Events wire format spec §4.D names:
// event name from the variant, data as the string/JSON body, Finished with
// an empty body.
func WriteSSE(w io.Writer, e Event) error {
	switch e.Kind {
	case EventFinished:
		_, err := fmt.Fprintf(w, "event: finished\ndata: \n\n")
		return err
	case EventRefreshRequired:
		_, err := fmt.Fprintf(w, "event: refresh_required\ndata: {\"reason\":%q}\n\n", e.Reason)
		return err
	case EventJSONPatch:
		_, err := fmt.Fprintf(w, "event: json_patch\ndata: %s\n\n", e.Patch)
		return err
	default:
		_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, e.Payload)
		return err
	}
}

// wsFrame is the single JSON payload shape spec §4.D names for WebSocket
// transport.
type wsFrame struct {
	Finished        bool            `json:"finished,omitempty"`
	RefreshRequired bool            `json:"refresh_required,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	Kind            EventKind       `json:"kind,omitempty"`
	Payload         string          `json:"payload,omitempty"`
	Patch           json.RawMessage `json:"patch,omitempty"`
}

// EncodeWS renders e as the JSON frame a WebSocket subscriber expects.
func EncodeWS(e Event) ([]byte, error) {
	switch e.Kind {
	case EventFinished:
		return json.Marshal(wsFrame{Finished: true})
	case EventRefreshRequired:
		return json.Marshal(wsFrame{RefreshRequired: true, Reason: e.Reason})
	default:
		return json.Marshal(wsFrame{Kind: e.Kind, Payload: e.Payload, Patch: e.Patch})
	}
}
