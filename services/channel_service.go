package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/akinalp/mqvi-client/gateway"
	"github.com/akinalp/mqvi-client/models"
	"github.com/akinalp/mqvi-client/pkg"
)

// ChannelService, kanal dizini (directory) istemcisi.
// Sunucu tarafındaki CRUD'un sadece client'ın ihtiyaç duyduğu kısmı.
type ChannelService interface {
	List(ctx context.Context) ([]models.Channel, error)
	// Search, isimde arama yapar. Boş sorgu "%" olarak gönderilir (tüm kanallar).
	Search(ctx context.Context, query string) ([]models.Channel, error)
	Join(ctx context.Context, channelID string) error
	// Create, kanalı oluşturur ve yeni kanalın ID'sini döner.
	Create(ctx context.Context, name string) (string, error)
	Members(ctx context.Context, channelID string) ([]string, error)
	// CallCandidates, kanal üyelerinden kendisi hariç aranabilecekleri döner.
	CallCandidates(ctx context.Context, channelID, self string) ([]string, error)
}

type channelService struct {
	gw    gateway.Gateway
	token string
}

// NewChannelService, constructor: interface döner.
func NewChannelService(gw gateway.Gateway, token string) ChannelService {
	return &channelService{gw: gw, token: token}
}

type channelsResponse struct {
	Channels []models.Channel `json:"channels"`
}

func (s *channelService) List(ctx context.Context) ([]models.Channel, error) {
	raw, err := s.gw.Send(ctx, http.MethodGet, "/api/channels", nil, s.token)
	if err != nil {
		return nil, err
	}
	var resp channelsResponse
	if err := gateway.Decode(raw, &resp); err != nil {
		return nil, err
	}
	return resp.Channels, nil
}

func (s *channelService) Search(ctx context.Context, query string) ([]models.Channel, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		query = "%"
	}

	raw, err := s.gw.Send(ctx, http.MethodPost, "/api/channels/search", models.SearchChannelsRequest{Query: query}, s.token)
	if err != nil {
		return nil, err
	}
	var resp channelsResponse
	if err := gateway.Decode(raw, &resp); err != nil {
		return nil, err
	}
	return resp.Channels, nil
}

func (s *channelService) Join(ctx context.Context, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return fmt.Errorf("%w: channel is required", pkg.ErrBadRequest)
	}
	_, err := s.gw.Send(ctx, http.MethodPost, "/api/channels/join", models.JoinChannelRequest{Channel: channelID}, s.token)
	return err
}

func (s *channelService) Create(ctx context.Context, name string) (string, error) {
	req := models.CreateChannelRequest{Name: name}
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}

	raw, err := s.gw.Send(ctx, http.MethodPost, "/api/channels/create", req, s.token)
	if err != nil {
		return "", err
	}
	var resp struct {
		ChannelID string `json:"channelId"`
	}
	if err := gateway.Decode(raw, &resp); err != nil {
		return "", err
	}
	if resp.ChannelID == "" {
		return "", &gateway.Error{Message: "missing channelId", Kind: pkg.ErrParse}
	}
	return resp.ChannelID, nil
}

func (s *channelService) Members(ctx context.Context, channelID string) ([]string, error) {
	q := url.Values{}
	q.Set("channel", channelID)

	raw, err := s.gw.Send(ctx, http.MethodGet, "/api/channels/members?"+q.Encode(), nil, s.token)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Members []string `json:"members"`
	}
	if err := gateway.Decode(raw, &resp); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

func (s *channelService) CallCandidates(ctx context.Context, channelID, self string) ([]string, error) {
	members, err := s.Members(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return models.CallCandidates(members, self), nil
}
