package media

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	groups  []groupCall
	singles []singleCall
	texts   []string
	nextID  int
}

type groupCall struct {
	t     Type
	count int
}

type singleCall struct {
	t       Type
	caption string
}

func (s *recordingSender) nextRef() MessageRef {
	s.nextID++
	return MessageRef{ID: s.nextID}
}

func (s *recordingSender) SendSingle(ctx context.Context, chatID int64, replyTo *int, t Type, item Item, caption string, keyboard Keyboard) (MessageRef, error) {
	s.singles = append(s.singles, singleCall{t: t, caption: caption})
	return s.nextRef(), nil
}

func (s *recordingSender) SendMediaGroup(ctx context.Context, chatID int64, replyTo *int, t Type, items []Item) ([]MessageRef, error) {
	s.groups = append(s.groups, groupCall{t: t, count: len(items)})
	refs := make([]MessageRef, len(items))
	for i := range items {
		refs[i] = s.nextRef()
	}
	return refs, nil
}

func (s *recordingSender) SendMessage(ctx context.Context, chatID int64, replyTo *int, text string, keyboard Keyboard) (MessageRef, error) {
	s.texts = append(s.texts, text)
	return s.nextRef(), nil
}

func items(n int) []Item {
	out := make([]Item, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestSend_NoMediaSendsTextOnly(t *testing.T) {
	s := &recordingSender{}
	refs, err := Send(context.Background(), s, 1, nil, Batch{}, "hello", nil)
	require.NoError(t, err)
	assert.Len(t, refs, 1)
	assert.Equal(t, []string{"hello"}, s.texts)
}

func TestSend_ThreePhotosOneDocumentAttachesCaptionToLastSingleton(t *testing.T) {
	s := &recordingSender{}
	batch := Batch{
		TypePhoto:    items(3),
		TypeDocument: items(1),
	}
	refs, err := Send(context.Background(), s, 1, nil, batch, "Done", nil)
	require.NoError(t, err)

	require.Len(t, s.groups, 1)
	assert.Equal(t, TypePhoto, s.groups[0].t)
	assert.Equal(t, 3, s.groups[0].count)

	require.Len(t, s.singles, 1)
	assert.Equal(t, TypeDocument, s.singles[0].t)
	assert.Equal(t, "Done", s.singles[0].caption)

	assert.Empty(t, s.texts)
	assert.Len(t, refs, 4)
}

func TestSend_ChunksGroupsAtMax(t *testing.T) {
	s := &recordingSender{}
	batch := Batch{TypePhoto: items(25)}
	_, err := Send(context.Background(), s, 1, nil, batch, "", nil)
	require.NoError(t, err)

	require.Len(t, s.groups, 3)
	assert.Equal(t, 10, s.groups[0].count)
	assert.Equal(t, 10, s.groups[1].count)
	assert.Equal(t, 5, s.groups[2].count)
}

func TestSend_TrailingTextWhenNoSingletonToAttach(t *testing.T) {
	s := &recordingSender{}
	batch := Batch{TypePhoto: items(4)}
	_, err := Send(context.Background(), s, 1, nil, batch, "caption", nil)
	require.NoError(t, err)

	assert.Empty(t, s.singles)
	assert.Equal(t, []string{"caption"}, s.texts)
}

func TestSend_EmptyBatchNoTextNoKeyboardSendsNothing(t *testing.T) {
	s := &recordingSender{}
	refs, err := Send(context.Background(), s, 1, nil, Batch{}, "", nil)
	require.NoError(t, err)
	assert.Nil(t, refs)
	assert.Empty(t, s.texts)
}
