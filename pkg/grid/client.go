package grid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	"github.com/coopernurse/gridscaler/pkg/common"
	log "github.com/mgutz/logxi/v1"
	"github.com/pkg/errors"
	"io/ioutil"
	"net/http"
	"strings"
	"time"
)

const maxErrBodyLen = 200

// WorkerIdsInput is the body of the disable-workers and set-workers-terminating calls
type WorkerIdsInput struct {
	WorkerIds []string
}

// NewClient returns a Grid backed by the autoscalable HTTP endpoints under baseUrl
func NewClient(baseUrl string, timeout time.Duration) (*Client, error) {
	httpClient, err := common.NewHTTPClientWithSettings(common.DefaultHTTPClientSettings(timeout))
	if err != nil {
		return nil, errors.Wrap(err, "grid: unable to create http client")
	}
	return NewClientWithHTTP(baseUrl, httpClient), nil
}

func NewClientWithHTTP(baseUrl string, httpClient *http.Client) *Client {
	return &Client{
		baseUrl: strings.TrimRight(baseUrl, "/"),
		client:  httpClient,
	}
}

type Client struct {
	baseUrl string
	client  *http.Client
}

func (c *Client) GetCurrentState(ctx context.Context) (*autoscaler.GridState, error) {
	var state autoscaler.GridState
	err := c.do(ctx, http.MethodGet, "/autoscalable/state", nil, &state)
	if err != nil {
		return nil, err
	}
	if state.CurrentTime == 0 {
		state.CurrentTime = common.NowMillis()
	}
	return &state, nil
}

func (c *Client) DisableWorkers(ctx context.Context, workerIds []string) error {
	return c.do(ctx, http.MethodPost, "/autoscalable/disable-workers", WorkerIdsInput{WorkerIds: workerIds}, nil)
}

func (c *Client) SetWorkersTerminating(ctx context.Context, workerIds []string) error {
	return c.do(ctx, http.MethodPost, "/autoscalable/set-workers-terminating",
		WorkerIdsInput{WorkerIds: workerIds}, nil)
}

func (c *Client) do(ctx context.Context, method string, path string, input interface{}, output interface{}) (err error) {
	var body *bytes.Reader
	if input == nil {
		body = bytes.NewReader(nil)
	} else {
		data, err := json.Marshal(input)
		if err != nil {
			return errors.Wrap(err, "grid: json.Marshal failed")
		}
		body = bytes.NewReader(data)
	}

	url := c.baseUrl + path
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return errors.Wrapf(err, "grid: unable to create request for %s", url)
	}
	req = req.WithContext(ctx)
	if input != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if log.IsDebug() {
		log.Debug("grid: request", "method", method, "url", url)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "grid: %s %s failed", method, url)
	}
	defer common.CheckClose(resp.Body, &err)

	respBody, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "grid: error reading response from %s", url)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("grid: %s %s returned status %d - %s", method, url, resp.StatusCode,
			common.StrTruncate(string(respBody), maxErrBodyLen))
	}

	if output != nil {
		err = json.Unmarshal(respBody, output)
		if err != nil {
			return errors.Wrapf(err, "grid: invalid JSON from %s", url)
		}
	}
	return nil
}
