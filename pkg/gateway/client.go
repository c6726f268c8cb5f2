package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	"github.com/coopernurse/gridscaler/pkg/common"
	"github.com/coopernurse/gridscaler/pkg/db"
	"github.com/pkg/errors"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client calls the admin API of a running gridscalerd
type Client struct {
	baseUrl string
	client  *http.Client
}

func NewClient(baseUrl string, timeout time.Duration) (*Client, error) {
	httpClient, err := common.NewHTTPClientWithSettings(common.DefaultHTTPClientSettings(timeout))
	if err != nil {
		return nil, errors.Wrap(err, "gateway: unable to create http client")
	}
	return NewClientWithHTTP(baseUrl, httpClient), nil
}

func NewClientWithHTTP(baseUrl string, httpClient *http.Client) *Client {
	return &Client{baseUrl: strings.TrimRight(baseUrl, "/"), client: httpClient}
}

func (c *Client) Status(ctx context.Context) (autoscaler.Status, error) {
	var out autoscaler.Status
	err := c.do(ctx, http.MethodGet, "/v1/autoscaler", nil, &out)
	return out, err
}

func (c *Client) PutOptions(ctx context.Context, patch OptionsPatch) (autoscaler.Status, error) {
	var out autoscaler.Status
	err := c.do(ctx, http.MethodPut, "/v1/autoscaler/options", patch, &out)
	return out, err
}

func (c *Client) Launch(ctx context.Context, numInstances int) ([]autoscaler.LaunchingWorker, error) {
	var out LaunchOutput
	err := c.do(ctx, http.MethodPost, "/v1/autoscaler/launch", autoscaler.LaunchRequest{NumInstances: numInstances}, &out)
	return out.LaunchingWorkers, err
}

func (c *Client) Terminate(ctx context.Context, workers []autoscaler.Worker) ([]autoscaler.TerminatingWorker, error) {
	var out TerminateOutput
	err := c.do(ctx, http.MethodPost, "/v1/autoscaler/terminate", TerminateInput{Workers: workers}, &out)
	return out.TerminatingWorkers, err
}

func (c *Client) TerminateByIds(ctx context.Context, workerIds []string) ([]autoscaler.TerminatingWorker, error) {
	var out TerminateOutput
	err := c.do(ctx, http.MethodPost, "/v1/autoscaler/terminate", TerminateInput{WorkerIds: workerIds}, &out)
	return out.TerminatingWorkers, err
}

func (c *Client) GridState(ctx context.Context) (autoscaler.GridState, error) {
	var out autoscaler.GridState
	err := c.do(ctx, http.MethodGet, "/v1/grid/state", nil, &out)
	return out, err
}

func (c *Client) TerminateLaunching(ctx context.Context, keys []autoscaler.WorkerKey) ([]autoscaler.LaunchingWorker, error) {
	var out TerminateLaunchingOutput
	err := c.do(ctx, http.MethodPost, "/v1/autoscaler/terminate-launching", TerminateLaunchingInput{WorkerKeys: keys}, &out)
	return out.LaunchingWorkers, err
}

func (c *Client) ConfigUrl(ctx context.Context) (string, error) {
	var out ConfigUrlOutput
	err := c.do(ctx, http.MethodGet, "/v1/autoscaler/config-url", nil, &out)
	return out.ConfigUrl, err
}

func (c *Client) ListEvents(ctx context.Context, input db.ListEventsInput) (db.ListEventsOutput, error) {
	query := url.Values{}
	if input.Type != "" {
		query.Set("type", input.Type)
	}
	if input.Limit > 0 {
		query.Set("limit", strconv.FormatInt(input.Limit, 10))
	}
	if input.NextToken != "" {
		query.Set("nextToken", input.NextToken)
	}
	path := "/v1/events"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var out db.ListEventsOutput
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method string, path string, input interface{}, output interface{}) (err error) {
	var body []byte
	if input != nil {
		body, err = json.Marshal(input)
		if err != nil {
			return errors.Wrap(err, "gateway: json.Marshal failed")
		}
	}
	req, err := http.NewRequest(method, c.baseUrl+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "gateway: unable to create request for %s", path)
	}
	req = req.WithContext(ctx)
	if input != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "gateway: %s %s failed", method, path)
	}
	defer common.CheckClose(resp.Body, &err)

	respBody, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "gateway: error reading response from %s", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errOut ErrorOutput
		if json.Unmarshal(respBody, &errOut) == nil && errOut.Error != "" {
			return fmt.Errorf("gateway: %s %s returned status %d - %s", method, path, resp.StatusCode, errOut.Error)
		}
		return fmt.Errorf("gateway: %s %s returned status %d", method, path, resp.StatusCode)
	}
	if output != nil {
		if err = json.Unmarshal(respBody, output); err != nil {
			return errors.Wrapf(err, "gateway: invalid JSON from %s", path)
		}
	}
	return nil
}
