package hub

// Message is one websocket frame queued for every viewer. Binary frames
// carry encoded images; text frames carry JSON.
type Message struct {
	Binary bool
	Data   []byte
}

// Text wraps pre-encoded JSON.
func Text(data []byte) Message {
	return Message{Data: data}
}

// Binary wraps an encoded image.
func Binary(data []byte) Message {
	return Message{Binary: true, Data: data}
}

// Kind names the frame type for logs.
func (m Message) Kind() string {
	if m.Binary {
		return "binary"
	}
	return "text"
}
