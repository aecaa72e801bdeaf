package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/peonylabs/herald/youtubeapi"
)

// fakePlatform serves canned search results and video details.
type fakePlatform struct {
	searches    map[string][]string // eventType -> video ids
	details     map[string]*youtubeapi.VideoDetail
	searchErr   error
	detailErr   map[string]error
	searchCalls int
}

func (f *fakePlatform) SearchBroadcasts(_ context.Context, _ string, eventType string) ([]string, error) {
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searches[eventType], nil
}

func (f *fakePlatform) VideoDetail(_ context.Context, id string) (*youtubeapi.VideoDetail, error) {
	if err := f.detailErr[id]; err != nil {
		return nil, err
	}
	d, ok := f.details[id]
	if !ok {
		return nil, errors.New("video " + id + " not found")
	}
	return d, nil
}

// fakePublisher records messages instead of delivering them.
type fakePublisher struct {
	mu         sync.Mutex
	nextID     int
	published  []publishedMsg
	edits      []publishedMsg
	pins       []Handle
	unpins     []Handle
	publishErr error
}

type publishedMsg struct {
	channelID string
	msg       Message
}

func (f *fakePublisher) Publish(_ context.Context, channelID string, msg Message) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return Handle{}, f.publishErr
	}
	f.nextID++
	f.published = append(f.published, publishedMsg{channelID: channelID, msg: msg})
	return Handle{ChannelID: channelID, MessageID: fmt.Sprintf("m%d", f.nextID)}, nil
}

func (f *fakePublisher) Edit(_ context.Context, h Handle, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, publishedMsg{channelID: h.ChannelID, msg: msg})
	return nil
}

func (f *fakePublisher) Pin(_ context.Context, h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pins = append(f.pins, h)
	return nil
}

func (f *fakePublisher) Unpin(_ context.Context, h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unpins = append(f.unpins, h)
	return nil
}
