package video

import (
	"context"
	"fmt"
	"sync"
)

// FakeProvider is an in-process Provider for local runs and tests.
type FakeProvider struct {
	mu       sync.Mutex
	seq      int64
	meetings map[int64]MeetingRequest

	CreateErr error
	UpdateErr error
	DeleteErr error

	creates int
	deletes int
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{seq: 90000000000, meetings: make(map[int64]MeetingRequest)}
}

func (f *FakeProvider) CreateMeeting(ctx context.Context, req MeetingRequest) (*ProviderMeeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.seq++
	f.meetings[f.seq] = req
	return &ProviderMeeting{
		ID:       f.seq,
		Topic:    req.Topic,
		JoinURL:  fmt.Sprintf("https://video.example.test/j/%d", f.seq),
		StartURL: fmt.Sprintf("https://video.example.test/s/%d?zak=host", f.seq),
		Status:   "waiting",
	}, nil
}

func (f *FakeProvider) UpdateMeeting(ctx context.Context, meetingID int64, req MeetingRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	if _, ok := f.meetings[meetingID]; !ok {
		return ErrMeetingGone
	}
	f.meetings[meetingID] = req
	return nil
}

func (f *FakeProvider) DeleteMeeting(ctx context.Context, meetingID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if _, ok := f.meetings[meetingID]; !ok {
		return ErrMeetingGone
	}
	delete(f.meetings, meetingID)
	return nil
}

// Scheduled returns the request a live meeting was last scheduled with.
func (f *FakeProvider) Scheduled(meetingID int64) (MeetingRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.meetings[meetingID]
	return req, ok
}

// Live returns the number of meetings the provider still holds.
func (f *FakeProvider) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.meetings)
}

// Creates returns how many create calls were made.
func (f *FakeProvider) Creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}
