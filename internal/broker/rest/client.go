package rest

import (
	"net/http"
	"time"

	"gridbot/internal/logger"

	"github.com/sirupsen/logrus"
)

// Client is one signed REST session against the broker. The engine creates a
// separate Client per credential set; the two hedge sessions reuse a single
// Client when their keys match.
type Client struct {
	name    string
	baseURL string
	apiKey  string
	secret  string

	httpClient *http.Client
	log        *logger.Logger
}

func New(name, baseURL, apiKey, secret string, log *logger.Logger) *Client {
	return &Client{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		secret:  secret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) logEntry() *logrus.Entry {
	return c.log.WithComponent("broker").WithField("session", c.name)
}
