package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"roomstay/pkg/model"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomClient reads room listings from the rooms directory service, the
// collaborator that owns nightly rates and the host-controlled listed flag.
type RoomClient struct {
	httpClient *HttpClient
}

func NewRoomClient(baseURL string) *RoomClient {
	return &RoomClient{
		httpClient: NewHttpClient(baseURL),
	}
}

func (c *RoomClient) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	resp, err := c.httpClient.GET(ctx, "/api/rooms/"+url.PathEscape(roomID))
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrRoomNotFound
	default:
		return nil, fmt.Errorf("rooms directory returned status %d", resp.StatusCode)
	}

	var room model.Room
	if err := resp.DecodeJSON(&room); err != nil {
		return nil, fmt.Errorf("could not decode room: %w", err)
	}
	if room.ID == "" {
		room.ID = roomID
	}

	return &room, nil
}
