package slack

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/slack-go/slack"
)

// fakeSlackAPI serves canned Web API responses keyed by method name and
// records the form values of each call.
type fakeSlackAPI struct {
	mu        sync.Mutex
	responses map[string][]string
	calls     map[string][]url.Values
}

func newFakeSlackAPI(t *testing.T) (*fakeSlackAPI, *slack.Client) {
	t.Helper()
	f := &fakeSlackAPI{responses: map[string][]string{}, calls: map[string][]url.Values{}}
	server := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(server.Close)
	return f, slack.New("xoxb-test", slack.OptionAPIURL(server.URL+"/"))
}

func (f *fakeSlackAPI) on(method string, bodies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method] = append(f.responses[method], bodies...)
}

func (f *fakeSlackAPI) callsTo(method string) []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeSlackAPI) serve(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[1:]
	_ = r.ParseForm()

	f.mu.Lock()
	f.calls[method] = append(f.calls[method], r.Form)
	var body string
	if queue := f.responses[method]; len(queue) > 0 {
		body = queue[0]
		if len(queue) > 1 {
			f.responses[method] = queue[1:]
		}
	} else {
		body = `{"ok":false,"error":"unknown_method"}`
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}
