package submit

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/augmentweb/internal/dataset"
)

type capturedPost struct {
	method      string
	path        string
	userAgent   string
	selection   []string
	hasUpload   bool
	uploadName  string
	uploadBytes []byte
}

type recordingServer struct {
	*httptest.Server
	mu     sync.Mutex
	posts  []capturedPost
	status int
}

func newRecordingServer(t *testing.T, status int) *recordingServer {
	t.Helper()
	rs := &recordingServer{status: status}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		post := capturedPost{method: r.Method, path: r.URL.Path, userAgent: r.UserAgent()}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		post.selection = r.MultipartForm.Value[dataset.FieldSelection]
		if files := r.MultipartForm.File[dataset.FieldUpload]; len(files) > 0 {
			post.hasUpload = true
			post.uploadName = files[0].Filename
			f, err := files[0].Open()
			if err == nil {
				post.uploadBytes, _ = io.ReadAll(f)
				_ = f.Close()
			}
		} else if _, ok := r.MultipartForm.Value[dataset.FieldUpload]; ok {
			post.hasUpload = true
		}
		rs.mu.Lock()
		rs.posts = append(rs.posts, post)
		rs.mu.Unlock()
		if rs.status == http.StatusSeeOther {
			http.Redirect(w, r, "/progress", http.StatusSeeOther)
			return
		}
		w.WriteHeader(rs.status)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) Posts() []capturedPost {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]capturedPost, len(rs.posts))
	copy(out, rs.posts)
	return out
}

func newClient(t *testing.T, baseURL string, policy dataset.Policy) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: baseURL, Timeout: 5 * time.Second, Policy: policy, UserAgent: "test-agent"}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestSubmitSendsEachPresetLiteral(t *testing.T) {
	t.Parallel()

	for _, preset := range dataset.Presets() {
		t.Run(string(preset), func(t *testing.T) {
			t.Parallel()
			srv := newRecordingServer(t, http.StatusSeeOther)
			client := newClient(t, srv.URL, dataset.PolicyExactlyOne)

			var sel dataset.Selection
			require.NoError(t, sel.SelectPreset(preset))
			res := client.SubmitSelection(context.Background(), sel)

			require.True(t, res.OK(), "result: %+v", res)
			require.Equal(t, http.StatusSeeOther, res.StatusCode)
			require.Equal(t, "/progress", res.Location)
			posts := srv.Posts()
			require.Len(t, posts, 1)
			require.Equal(t, []string{string(preset)}, posts[0].selection)
		})
	}
}

func TestSubmitSendsUploadBytes(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, http.StatusSeeOther)
	client := newClient(t, srv.URL, dataset.PolicyExactlyOne)

	payload := []byte("PK\x03\x04 pretend zip")
	var sel dataset.Selection
	require.NoError(t, sel.AttachUpload(dataset.Upload{Filename: "pets.zip", ContentType: "application/zip", Data: payload}))
	res := client.SubmitSelection(context.Background(), sel)

	require.True(t, res.OK())
	posts := srv.Posts()
	require.Len(t, posts, 1)
	require.Equal(t, "pets.zip", posts[0].uploadName)
	require.Equal(t, payload, posts[0].uploadBytes)
	require.Empty(t, posts[0].selection)
}

func TestSubmitPermissiveSendsEmptyForm(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, http.StatusSeeOther)
	client := newClient(t, srv.URL, dataset.PolicyPermissive)

	res := client.Submit(context.Background(), dataset.Request{})

	require.True(t, res.OK())
	posts := srv.Posts()
	require.Len(t, posts, 1)
	require.Equal(t, http.MethodPost, posts[0].method)
	require.Equal(t, dataset.SubmitPath, posts[0].path)
	require.True(t, posts[0].hasUpload, "empty upload part should still be sent")
	require.Empty(t, posts[0].uploadBytes)
	require.Nil(t, posts[0].selection)
}

func TestSubmitStrictRefusesLocally(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, http.StatusSeeOther)
	client := newClient(t, srv.URL, dataset.PolicyExactlyOne)

	res := client.Submit(context.Background(), dataset.Request{})
	require.Equal(t, OutcomeInvalid, res.Outcome)
	require.ErrorIs(t, res.Err, dataset.ErrNothingSelected)

	both := dataset.Request{Dataset: dataset.PresetMNIST, Upload: &dataset.Upload{Filename: "a.zip", Data: []byte("x")}}
	res = client.Submit(context.Background(), both)
	require.Equal(t, OutcomeInvalid, res.Outcome)
	require.ErrorIs(t, res.Err, dataset.ErrAmbiguousSelection)

	require.Empty(t, srv.Posts())
}

func TestSubmitCIFAR10SendsExactlyOnePost(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, http.StatusSeeOther)
	client := newClient(t, srv.URL, dataset.PolicyExactlyOne)

	var sel dataset.Selection
	require.NoError(t, sel.SelectPreset(dataset.PresetMNIST))
	require.NoError(t, sel.SelectPreset(dataset.PresetCIFAR10))
	res := client.SubmitSelection(context.Background(), sel)

	require.True(t, res.OK())
	posts := srv.Posts()
	require.Len(t, posts, 1)
	require.Equal(t, []string{"CIFAR10"}, posts[0].selection)
	require.Empty(t, posts[0].uploadName)
	require.Empty(t, posts[0].uploadBytes)
	require.Equal(t, "test-agent", posts[0].userAgent)
}

func TestSubmitReportsRejection(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, http.StatusUnprocessableEntity)
	client := newClient(t, srv.URL, dataset.PolicyExactlyOne)

	res := client.Submit(context.Background(), dataset.Request{Dataset: dataset.PresetOther})
	require.False(t, res.OK())
	require.Equal(t, OutcomeRejected, res.Outcome)
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	require.ErrorIs(t, res.Err, ErrRejected)
}

func TestSubmitReportsTransportFailure(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, http.StatusOK)
	base := srv.URL
	srv.Close()
	client := newClient(t, base, dataset.PolicyExactlyOne)

	res := client.Submit(context.Background(), dataset.Request{Dataset: dataset.PresetKMNIST})
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.Error(t, res.Err)
}

func TestDispatchDeliversOneResult(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, http.StatusSeeOther)
	client := newClient(t, srv.URL, dataset.PolicyExactlyOne)

	results := client.Dispatch(context.Background(), dataset.Request{Dataset: dataset.PresetCIFAR100})
	select {
	case res := <-results:
		require.True(t, res.OK())
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not deliver a result")
	}
	_, open := <-results
	require.False(t, open)
	require.Len(t, srv.Posts(), 1)
}

func TestNewValidatesBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseURL: "ftp://example.com"}, nil)
	require.Error(t, err)

	c, err := New(Config{BaseURL: "http://localhost:8080/app/"}, nil)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/user_input", c.Endpoint())
}
