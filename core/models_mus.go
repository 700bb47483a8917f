package core

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// Hand-written MUS serializers for the persisted record shapes. Field layout
// follows declaration order; time.Time is stored as Unix microseconds with 0
// as the sentinel for the zero time.

var (
	// MessageMUS serializes Message values.
	MessageMUS = messageMUS{}
	// ConversationMUS serializes Conversation values.
	ConversationMUS = conversationMUS{}
	// ConversationListMUS serializes the whole stored collection.
	ConversationListMUS = conversationListMUS{}
)

var (
	_ mus.Serializer[Message]        = messageMUS{}
	_ mus.Serializer[Conversation]   = conversationMUS{}
	_ mus.Serializer[[]Conversation] = conversationListMUS{}
)

// ErrMalformedLength indicates a negative or impossible collection length.
var ErrMalformedLength = fmt.Errorf("malformed length prefix")

// timeMUS encodes a time.Time as Unix microseconds.
type timeMUS struct{}

func (timeMUS) Marshal(t time.Time, bs []byte) int {
	if t.IsZero() {
		return varint.Int64.Marshal(0, bs)
	}
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func (timeMUS) Unmarshal(bs []byte) (time.Time, int, error) {
	us, n, err := varint.Int64.Unmarshal(bs)
	if err != nil || us == 0 {
		return time.Time{}, n, err
	}
	return time.UnixMicro(us).UTC(), n, nil
}

func (timeMUS) Size(t time.Time) int {
	if t.IsZero() {
		return varint.Int64.Size(0)
	}
	return varint.Int64.Size(t.UnixMicro())
}

func (timeMUS) Skip(bs []byte) (int, error) {
	return varint.Int64.Skip(bs)
}

var timeSer = timeMUS{}

// stringSliceMUS encodes a []string with a varint length prefix.
type stringSliceMUS struct{}

func (stringSliceMUS) Marshal(v []string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, s := range v {
		n += ord.String.Marshal(s, bs[n:])
	}
	return n
}

func (stringSliceMUS) Unmarshal(bs []byte) (v []string, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 || length > len(bs) {
		return nil, n, ErrMalformedLength
	}
	if length == 0 {
		return nil, n, nil
	}
	v = make([]string, length)
	for i := range v {
		var n1 int
		v[i], n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
	}
	return v, n, nil
}

func (stringSliceMUS) Size(v []string) (size int) {
	size = varint.Int.Size(len(v))
	for _, s := range v {
		size += ord.String.Size(s)
	}
	return size
}

func (s stringSliceMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}

var stringSliceSer = stringSliceMUS{}

type messageMUS struct{}

func (messageMUS) Marshal(m Message, bs []byte) (n int) {
	n = ord.String.Marshal(m.ID, bs)
	n += varint.Int.Marshal(int(m.Sender), bs[n:])
	n += ord.String.Marshal(m.Text, bs[n:])
	n += ord.String.Marshal(m.GeneratedImage, bs[n:])
	n += stringSliceSer.Marshal(m.UploadedImages, bs[n:])
	n += stringSliceSer.Marshal(m.Suggestions, bs[n:])
	n += timeSer.Marshal(m.Timestamp, bs[n:])
	return n
}

func (messageMUS) Unmarshal(bs []byte) (m Message, n int, err error) {
	var n1 int
	if m.ID, n, err = ord.String.Unmarshal(bs); err != nil {
		return m, n, err
	}
	var sender int
	if sender, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return m, n + n1, err
	}
	m.Sender = Sender(sender)
	n += n1
	if m.Text, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return m, n + n1, err
	}
	n += n1
	if m.GeneratedImage, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return m, n + n1, err
	}
	n += n1
	if m.UploadedImages, n1, err = stringSliceSer.Unmarshal(bs[n:]); err != nil {
		return m, n + n1, err
	}
	n += n1
	if m.Suggestions, n1, err = stringSliceSer.Unmarshal(bs[n:]); err != nil {
		return m, n + n1, err
	}
	n += n1
	if m.Timestamp, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return m, n + n1, err
	}
	n += n1
	return m, n, nil
}

func (messageMUS) Size(m Message) (size int) {
	size = ord.String.Size(m.ID)
	size += varint.Int.Size(int(m.Sender))
	size += ord.String.Size(m.Text)
	size += ord.String.Size(m.GeneratedImage)
	size += stringSliceSer.Size(m.UploadedImages)
	size += stringSliceSer.Size(m.Suggestions)
	size += timeSer.Size(m.Timestamp)
	return size
}

func (s messageMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}

type conversationMUS struct{}

func (conversationMUS) Marshal(c Conversation, bs []byte) (n int) {
	n = ord.String.Marshal(c.ID, bs)
	n += ord.String.Marshal(c.Title, bs[n:])
	n += varint.Int.Marshal(len(c.Messages), bs[n:])
	for _, m := range c.Messages {
		n += MessageMUS.Marshal(m, bs[n:])
	}
	n += timeSer.Marshal(c.CreatedAt, bs[n:])
	n += timeSer.Marshal(c.UpdatedAt, bs[n:])
	n += ord.String.Marshal(c.Summary, bs[n:])
	n += stringSliceSer.Marshal(c.Tags, bs[n:])
	n += ord.String.Marshal(c.CharacterDescription, bs[n:])
	n += varint.Int.Marshal(c.TotalMessages, bs[n:])
	n += ord.Bool.Marshal(c.HasImages, bs[n:])
	return n
}

func (conversationMUS) Unmarshal(bs []byte) (c Conversation, n int, err error) {
	var n1 int
	if c.ID, n, err = ord.String.Unmarshal(bs); err != nil {
		return c, n, err
	}
	if c.Title, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	var count int
	if count, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if count < 0 || count > len(bs) {
		return c, n, ErrMalformedLength
	}
	c.Messages = make([]Message, count)
	for i := range c.Messages {
		if c.Messages[i], n1, err = MessageMUS.Unmarshal(bs[n:]); err != nil {
			return c, n + n1, err
		}
		n += n1
	}
	if c.CreatedAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.UpdatedAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.Summary, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.Tags, n1, err = stringSliceSer.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.CharacterDescription, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.TotalMessages, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.HasImages, n1, err = ord.Bool.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	return c, n, nil
}

func (conversationMUS) Size(c Conversation) (size int) {
	size = ord.String.Size(c.ID)
	size += ord.String.Size(c.Title)
	size += varint.Int.Size(len(c.Messages))
	for _, m := range c.Messages {
		size += MessageMUS.Size(m)
	}
	size += timeSer.Size(c.CreatedAt)
	size += timeSer.Size(c.UpdatedAt)
	size += ord.String.Size(c.Summary)
	size += stringSliceSer.Size(c.Tags)
	size += ord.String.Size(c.CharacterDescription)
	size += varint.Int.Size(c.TotalMessages)
	size += ord.Bool.Size(c.HasImages)
	return size
}

func (s conversationMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}

type conversationListMUS struct{}

func (conversationListMUS) Marshal(v []Conversation, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, c := range v {
		n += ConversationMUS.Marshal(c, bs[n:])
	}
	return n
}

func (conversationListMUS) Unmarshal(bs []byte) (v []Conversation, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 || length > len(bs) {
		return nil, n, ErrMalformedLength
	}
	if length == 0 {
		return nil, n, nil
	}
	v = make([]Conversation, length)
	for i := range v {
		var n1 int
		if v[i], n1, err = ConversationMUS.Unmarshal(bs[n:]); err != nil {
			return nil, n + n1, err
		}
		n += n1
	}
	return v, n, nil
}

func (conversationListMUS) Size(v []Conversation) (size int) {
	size = varint.Int.Size(len(v))
	for _, c := range v {
		size += ConversationMUS.Size(c)
	}
	return size
}

func (s conversationListMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}
