package web

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/oneconcern/datapush/pkg/engine/localdb"
	"github.com/oneconcern/datapush/pkg/fingerprint"
	"github.com/oneconcern/datapush/pkg/model"
	"github.com/oneconcern/datapush/pkg/push"
	"github.com/oneconcern/datapush/pkg/push/status"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrefix = "/orgs/acme/ds/images/push"

func testServer(t testing.TB, pushOpts []push.Option, opts ...Option) *httptest.Server {
	t.Helper()
	fs := afero.NewMemMapFs()
	eng := localdb.New(fs, "/data")
	o, err := push.New(eng, append([]push.Option{push.WithFs(fs), push.WithTmpPath("/tmp/push")}, pushOpts...)...)
	require.NoError(t, err)

	srv := httptest.NewServer(InitRouter(NewServer(o, opts...)))
	t.Cleanup(srv.Close)
	return srv
}

func stampOf(t testing.TB, files map[string]string) string {
	t.Helper()
	entries := make(map[string]string, len(files))
	for pth, content := range files {
		entries[pth] = fingerprint.New().HexBytes([]byte(content))
	}
	doc, err := model.NewStamp(entries, nil).Marshal()
	require.NoError(t, err)
	return string(doc)
}

func postForm(t testing.TB, srv *httptest.Server, route string, values url.Values, target interface{}) int {
	t.Helper()
	resp, err := srv.Client().PostForm(srv.URL+route, values)
	require.NoError(t, err)
	return decode(t, resp, target)
}

func upload(t testing.TB, srv *httptest.Server, route, token, pth, content string, target interface{}) int {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("token", token))
	require.NoError(t, mw.WriteField("path", pth))
	fw, err := mw.CreateFormFile("file", "upload")
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := srv.Client().Post(srv.URL+route, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return decode(t, resp, target)
}

func decode(t testing.TB, resp *http.Response, target interface{}) int {
	t.Helper()
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if target != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
	}
	return resp.StatusCode
}

func TestPushRoundTrip(t *testing.T) {
	srv := testServer(t, nil)
	files := map[string]string{"a.txt": "alpha", "b/c.txt": "gamma"}

	var initRes push.InitResult
	code := postForm(t, srv, testPrefix+"/init", url.Values{"stamp": {stampOf(t, files)}}, &initRes)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, initRes.Token)
	assert.Equal(t, []string{"a.txt", "b/c.txt"}, initRes.NeededFiles)

	for _, pth := range initRes.NeededFiles {
		code = upload(t, srv, testPrefix+"/upload", initRes.Token, pth, files[pth], nil)
		require.Equal(t, http.StatusOK, code)
	}

	code = postForm(t, srv, testPrefix+"/meta", url.Values{
		"token": {initRes.Token},
		"meta":  {`[{"key":"owner","data":"alice"}]`},
	}, nil)
	require.Equal(t, http.StatusOK, code)

	var commitRes push.CommitResult
	code = postForm(t, srv, testPrefix+"/commit", url.Values{"token": {initRes.Token}}, &commitRes)
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, commitRes.Checksum)

	var errResp ErrorResponse
	code = postForm(t, srv, testPrefix+"/commit", url.Values{"token": {initRes.Token}}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, status.KindUnknownToken, errResp.Kind)

	t.Run("pull required", func(t *testing.T) {
		var res push.InitResult
		code := postForm(t, srv, testPrefix+"/init", url.Values{
			"stamp":    {stampOf(t, files)},
			"checksum": {"outdated"},
		}, &res)
		require.Equal(t, http.StatusOK, code)
		assert.True(t, res.PullRequired)
		assert.Empty(t, res.Token)
	})
}

func TestErrors(t *testing.T) {
	srv := testServer(t, []push.Option{push.WithAllowCreate(false)})

	var errResp ErrorResponse
	code := postForm(t, srv, testPrefix+"/init", url.Values{"stamp": {stampOf(t, map[string]string{"a.txt": "alpha"})}}, &errResp)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, status.KindPushNotAllowed, errResp.Kind)

	errResp = ErrorResponse{}
	code = postForm(t, srv, testPrefix+"/init", url.Values{"stamp": {"{"}}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, status.KindBadRequest, errResp.Kind)

	errResp = ErrorResponse{}
	code = postForm(t, srv, "/orgs/acme/ds/.hidden/push/init", url.Values{"stamp": {"{}"}}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, status.KindBadRequest, errResp.Kind)

	errResp = ErrorResponse{}
	code = upload(t, srv, testPrefix+"/upload", "nope", "a.txt", "alpha", &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, status.KindUnknownToken, errResp.Kind)
}

func TestMissingFiles(t *testing.T) {
	srv := testServer(t, nil)
	files := map[string]string{"a.txt": "alpha", "b.txt": "beta"}

	var initRes push.InitResult
	require.Equal(t, http.StatusOK, postForm(t, srv, testPrefix+"/init", url.Values{"stamp": {stampOf(t, files)}}, &initRes))

	var errResp ErrorResponse
	code := upload(t, srv, testPrefix+"/upload", initRes.Token, "../../secrets", "stolen", &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, status.KindBadRequest, errResp.Kind)

	require.Equal(t, http.StatusOK, upload(t, srv, testPrefix+"/upload", initRes.Token, "a.txt", "alpha", nil))

	errResp = ErrorResponse{}
	code = postForm(t, srv, testPrefix+"/commit", url.Values{"token": {initRes.Token}}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, status.KindMissingFiles, errResp.Kind)
	assert.Equal(t, []string{"b.txt"}, errResp.Paths)

	t.Run("token of another dataset", func(t *testing.T) {
		var other ErrorResponse
		code := postForm(t, srv, "/orgs/acme/ds/other/push/commit", url.Values{"token": {initRes.Token}}, &other)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, status.KindUnknownToken, other.Kind)
	})
}

func TestUploadTooLarge(t *testing.T) {
	srv := testServer(t, nil, WithMaxUploadSize(512))

	var initRes push.InitResult
	require.Equal(t, http.StatusOK, postForm(t, srv, testPrefix+"/init", url.Values{"stamp": {stampOf(t, map[string]string{"big": "x"})}}, &initRes))

	var errResp ErrorResponse
	code := upload(t, srv, testPrefix+"/upload", initRes.Token, "big", strings.Repeat("x", 4096), &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, status.KindBadRequest, errResp.Kind)
}

func TestUploadFieldsAfterFile(t *testing.T) {
	srv := testServer(t, nil)
	files := map[string]string{"a.txt": "alpha"}

	var initRes push.InitResult
	require.Equal(t, http.StatusOK, postForm(t, srv, testPrefix+"/init", url.Values{"stamp": {stampOf(t, files)}}, &initRes))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("token", initRes.Token))
	fw, err := mw.CreateFormFile("file", "upload")
	require.NoError(t, err)
	_, err = io.WriteString(fw, "alpha")
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("path", "a.txt"))
	require.NoError(t, mw.Close())

	resp, err := srv.Client().Post(srv.URL+testPrefix+"/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	var errResp ErrorResponse
	assert.Equal(t, http.StatusBadRequest, decode(t, resp, &errResp))
	assert.Equal(t, status.KindBadRequest, errResp.Kind)
	assert.Contains(t, errResp.Error, `"path"`)

	// a form without any file part
	body.Reset()
	mw = multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("token", initRes.Token))
	require.NoError(t, mw.WriteField("path", "a.txt"))
	require.NoError(t, mw.Close())
	resp, err = srv.Client().Post(srv.URL+testPrefix+"/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	errResp = ErrorResponse{}
	assert.Equal(t, http.StatusBadRequest, decode(t, resp, &errResp))
	assert.Equal(t, status.KindBadRequest, errResp.Kind)

	require.Equal(t, http.StatusOK, upload(t, srv, testPrefix+"/upload", initRes.Token, "a.txt", "alpha", nil))
}

func TestTokenAuthorizer(t *testing.T) {
	srv := testServer(t, nil, WithAuthorizer(TokenAuthorizer("s3cr3t")))
	form := url.Values{"stamp": {stampOf(t, map[string]string{"a.txt": "alpha"})}}

	var errResp ErrorResponse
	code := postForm(t, srv, testPrefix+"/init", form, &errResp)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, status.KindUnauthorized, errResp.Kind)

	for _, header := range []string{"Bearer wrong", "s3cr3t", "Bearer s3cr3t"} {
		req, err := http.NewRequest(http.MethodPost, srv.URL+testPrefix+"/init", strings.NewReader(form.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Authorization", header)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()

		if header == "Bearer s3cr3t" {
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			continue
		}
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "header %q should be rejected", header)
	}
}

func TestHealth(t *testing.T) {
	srv := testServer(t, nil)
	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var body map[string]string
	assert.Equal(t, http.StatusOK, decode(t, resp, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusCode(status.KindMergeConflict))
	assert.Equal(t, http.StatusBadRequest, StatusCode(status.KindStaleBaseline))
	assert.Equal(t, http.StatusUnauthorized, StatusCode(status.KindUnauthorized))
	assert.Equal(t, http.StatusForbidden, StatusCode(status.KindPushNotAllowed))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(status.KindInternal))
}
