package vm

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/coopernurse/gridscaler/pkg/config"
	"github.com/digitalocean/godo"
	"github.com/stretchr/testify/assert"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeDOServer struct {
	lock      *sync.Mutex
	createReq *godo.DropletMultiCreateRequest
	deleted   []string
	listTag   string
}

func dropletJSON(id int, name string) map[string]interface{} {
	return map[string]interface{}{
		"id":         id,
		"name":       name,
		"created_at": "2019-06-01T10:00:00Z",
		"networks": map[string]interface{}{
			"v4": []map[string]interface{}{
				{"ip_address": fmt.Sprintf("159.0.0.%d", id), "type": "public"},
				{"ip_address": fmt.Sprintf("10.10.0.%d", id), "type": "private"},
			},
		},
	}
}

func (s *fakeDOServer) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()
	rw.Header().Set("Content-Type", "application/json")

	switch {
	case req.Method == http.MethodPost && req.URL.Path == "/v2/droplets":
		body, _ := ioutil.ReadAll(req.Body)
		s.createReq = &godo.DropletMultiCreateRequest{}
		_ = json.Unmarshal(body, s.createReq)
		droplets := make([]map[string]interface{}, 0)
		for i, name := range s.createReq.Names {
			droplets = append(droplets, map[string]interface{}{"id": i + 1, "name": name})
		}
		rw.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(rw).Encode(map[string]interface{}{"droplets": droplets})
	case req.Method == http.MethodGet && req.URL.Path == "/v2/droplets":
		s.listTag = req.URL.Query().Get("tag_name")
		page := req.URL.Query().Get("page")
		resp := map[string]interface{}{}
		if page == "" || page == "1" {
			resp["droplets"] = []interface{}{dropletJSON(1, "grid-a")}
			resp["links"] = map[string]interface{}{
				"pages": map[string]interface{}{
					"next": "http://example.com/v2/droplets?page=2",
					"last": "http://example.com/v2/droplets?page=2",
				},
			}
		} else {
			resp["droplets"] = []interface{}{dropletJSON(2, "grid-b")}
			resp["links"] = map[string]interface{}{
				"pages": map[string]interface{}{
					"prev":  "http://example.com/v2/droplets?page=1",
					"first": "http://example.com/v2/droplets?page=1",
				},
			}
		}
		_ = json.NewEncoder(rw).Encode(resp)
	case req.Method == http.MethodGet && strings.HasPrefix(req.URL.Path, "/v2/droplets/"):
		var id int
		_, _ = fmt.Sscanf(strings.TrimPrefix(req.URL.Path, "/v2/droplets/"), "%d", &id)
		name := ""
		if s.createReq != nil && id > 0 && id <= len(s.createReq.Names) {
			name = s.createReq.Names[id-1]
		}
		_ = json.NewEncoder(rw).Encode(map[string]interface{}{"droplet": dropletJSON(id, name)})
	case req.Method == http.MethodDelete && strings.HasPrefix(req.URL.Path, "/v2/droplets/"):
		id := strings.TrimPrefix(req.URL.Path, "/v2/droplets/")
		if id == "404" {
			rw.WriteHeader(http.StatusNotFound)
			_, _ = rw.Write([]byte(`{"id":"not_found","message":"The resource you were accessing could not be found."}`))
			return
		}
		s.deleted = append(s.deleted, id)
		rw.WriteHeader(http.StatusNoContent)
	default:
		rw.WriteHeader(http.StatusNotFound)
	}
}

func newTestDOAdapter(t *testing.T, srv *fakeDOServer) (*DOAdapter, func()) {
	ts := httptest.NewServer(srv)
	client := godo.NewClient(ts.Client())
	baseUrl, err := url.Parse(ts.URL + "/")
	assert.Nil(t, err)
	client.BaseURL = baseUrl
	adapter := NewDOAdapterWithClient(client, config.DigitalOceanOptions{
		Region:      "nyc3",
		DropletSize: "s-1vcpu-1gb",
		ImageSlug:   "debian-9-x64",
	})
	adapter.ipPollPeriod = 10 * time.Millisecond
	return adapter, ts.Close
}

func TestDOCreateVMs(t *testing.T) {
	srv := &fakeDOServer{lock: &sync.Mutex{}}
	adapter, closeFx := newTestDOAdapter(t, srv)
	defer closeFx()

	vms, err := adapter.CreateVMs(context.Background(), CreateVMsOptions{ClusterName: "grid", Count: 2})
	assert.Nil(t, err)
	assert.Equal(t, 2, len(vms))
	assert.Equal(t, "1", vms[0].Id)
	assert.Equal(t, srv.createReq.Names[0], vms[0].Name)
	assert.Equal(t, "159.0.0.1", vms[0].PublicIpAddr)
	assert.Equal(t, "10.10.0.1", vms[0].PrivateIpAddr)
	assert.Equal(t, []string{"cluster:grid"}, srv.createReq.Tags)
	assert.Equal(t, "nyc3", srv.createReq.Region)
}

func TestDOListVMsPaginates(t *testing.T) {
	srv := &fakeDOServer{lock: &sync.Mutex{}}
	adapter, closeFx := newTestDOAdapter(t, srv)
	defer closeFx()

	vms, err := adapter.ListVMs(context.Background(), ListVMsOptions{ClusterName: "grid"})
	assert.Nil(t, err)
	assert.Equal(t, 2, len(vms))
	assert.Equal(t, "grid-a", vms[0].Name)
	assert.Equal(t, "grid-b", vms[1].Name)
	assert.Equal(t, "cluster:grid", srv.listTag)
	assert.Equal(t, 2019, vms[0].CreatedAt.Year())
}

func TestDODestroyVM(t *testing.T) {
	srv := &fakeDOServer{lock: &sync.Mutex{}}
	adapter, closeFx := newTestDOAdapter(t, srv)
	defer closeFx()

	ctx := context.Background()
	assert.Nil(t, adapter.DestroyVM(ctx, "42"))
	assert.Equal(t, []string{"42"}, srv.deleted)
	assert.Equal(t, NotFound, adapter.DestroyVM(ctx, "404"))
	assert.NotNil(t, adapter.DestroyVM(ctx, "not-a-number"))
}

func TestTokenSource(t *testing.T) {
	token, err := (&TokenSource{AccessToken: "abc"}).Token()
	assert.Nil(t, err)
	assert.Equal(t, "abc", token.AccessToken)
}
