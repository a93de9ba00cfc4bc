// Package discord implements the provider client for Discord bot
// notifications. Discord serves no market data; its only capability is
// posting messages to a channel.
package discord

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/openfold/brokergate/internal/core"
	"github.com/openfold/brokergate/internal/provider"
	"github.com/tidwall/gjson"
)

const baseURL = "https://discord.com/api/v10"

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Discord implements provider.Client.
type Discord struct {
	desc provider.Descriptor
}

// New creates a new Discord client
func New() *Discord {
	return &Discord{
		desc: provider.Descriptor{
			ID:          "discord",
			DisplayName: "Discord",
			AuthScheme:  provider.AuthBotToken,
			Capabilities: []provider.Capability{
				provider.CapNotifications,
			},
			Endpoints: map[provider.Operation]provider.EndpointRef{
				provider.OpPostMessage: {Capability: provider.CapNotifications, Method: "POST", Host: provider.HostTrading, Path: "/channels/{channel_id}/messages"},
			},
			RateLimit: provider.RateLimit{PerMinute: 50, Burst: 5},
			// Discord has no sandbox; both modes hit the same host.
			BaseURLs: map[core.Mode]map[provider.HostKind]string{
				core.ModeLive: {
					provider.HostMarketData: baseURL,
					provider.HostTrading:    baseURL,
				},
			},
		},
	}
}

func (d *Discord) Name() string {
	return "discord"
}

func (d *Discord) Descriptor() provider.Descriptor {
	return d.desc
}

func (d *Discord) BuildRequest(op provider.Operation, params map[string]any, creds provider.Credentials) (*provider.RequestSpec, error) {
	ep, ok := d.desc.Endpoint(op)
	if !ok {
		return nil, core.WrapError(core.ErrUnsupportedCapability,
			fmt.Errorf("discord does not implement %s", op))
	}

	token, okToken := creds.Get("bot_token")
	if !okToken {
		return nil, core.WrapError(core.ErrMissingCredentials,
			fmt.Errorf("discord requires bot_token"))
	}

	base, err := d.desc.BaseURL(creds.Mode, ep.Host)
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidInput, err)
	}

	content, _ := params["content"].(string)
	if content == "" {
		return nil, core.WrapError(core.ErrInvalidInput,
			fmt.Errorf("post_message requires content"))
	}

	urlParams := map[string]any{}
	if ch, okCh := params["channel_id"]; okCh {
		urlParams["channel_id"] = ch
	} else if ch, okCh := creds.Get("channel_id"); okCh {
		urlParams["channel_id"] = ch
	}

	u, err := provider.BuildURL(base, ep.Path, urlParams)
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidInput, err)
	}

	body, err := json.Marshal(map[string]any{"content": content})
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidInput, err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bot "+token)
	header.Set("Content-Type", "application/json")

	return &provider.RequestSpec{
		Method: ep.Method,
		URL:    u,
		Header: header,
		Body:   body,
	}, nil
}

// ParseResponse checks status and Discord's numeric error envelope
// ({"code": 50001, "message": "Missing Access"}).
func (d *Discord) ParseResponse(op provider.Operation, status int, body []byte) (*provider.RawResult, error) {
	if status == http.StatusTooManyRequests {
		retry := gjson.GetBytes(body, "retry_after")
		if retry.Exists() {
			return nil, core.NewRateLimited(secondsToDuration(retry.Float()))
		}
		return nil, core.NewRateLimited(0)
	}
	if status < 200 || status > 299 {
		return nil, core.NewHTTPError(status, string(body))
	}
	if !gjson.ValidBytes(body) {
		return nil, core.NewParseError(fmt.Errorf("discord: invalid JSON body"))
	}
	return &provider.RawResult{Provider: "discord", Operation: op, Body: body}, nil
}
