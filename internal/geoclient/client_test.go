package geoclient_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"

	"github.com/gothamgeo/geoclient/internal/geoclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHTTPClient is a mock implementation of HTTPClient for testing.
type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

// timeoutError satisfies net.Error with Timeout() == true.
type timeoutError struct{}

func (timeoutError) Error() string   { return "request timed out" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func addressParams() url.Values {
	params := url.Values{}
	params.Set("houseNumber", "314")
	params.Set("street", "WEST 100 ST")
	params.Set("borough", "Manhattan")
	return params
}

func TestClient_Lookup(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	subscriptionKey := "test-subscription-key"

	t.Run("successful address lookup", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(req *http.Request) (*http.Response, error) {
				// Verify request parameters
				assert.Equal(t, "GET", req.Method)
				assert.Equal(t, "/geoclient/v1/address.json", req.URL.Path)
				assert.Equal(t, "314", req.URL.Query().Get("houseNumber"))
				assert.Equal(t, "WEST 100 ST", req.URL.Query().Get("street"))
				assert.Equal(t, "Manhattan", req.URL.Query().Get("borough"))
				assert.Equal(t, subscriptionKey, req.Header.Get("Ocp-Apim-Subscription-Key"))
				assert.Equal(t, "no-cache", req.Header.Get("Cache-Control"))
				assert.Equal(t, "application/json", req.Header.Get("Accept"))

				responseBody := `{"address":{"latitude":40.796076,"longitude":-73.970158,"bbl":"1018870049"}}`
				return &http.Response{
					StatusCode: http.StatusOK,
					Body:       io.NopCloser(bytes.NewBufferString(responseBody)),
				}, nil
			},
		}

		client := geoclient.NewClientWithHTTP(
			mockClient, "https://example.test/geoclient/v1", subscriptionKey, logger,
		)
		rec, err := client.Lookup(ctx, geoclient.EndpointAddress, addressParams())

		require.NoError(t, err)
		require.NotNil(t, rec)

		lat, ok := rec.Field("latitude")
		assert.True(t, ok)
		assert.Equal(t, "40.796076", lat)

		bbl, ok := rec.Field("bbl")
		assert.True(t, ok)
		assert.Equal(t, "1018870049", bbl)
	})

	t.Run("no match when endpoint key is absent", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusOK,
					Body:       io.NopCloser(bytes.NewBufferString(`{"status":"OK"}`)),
				}, nil
			},
		}

		client := geoclient.NewClientWithHTTP(mockClient, "", subscriptionKey, logger)
		rec, err := client.Lookup(ctx, geoclient.EndpointBin, url.Values{"bin": []string{"1012345"}})

		require.Error(t, err)
		assert.Nil(t, rec)
		assert.ErrorIs(t, err, geoclient.ErrNoMatch)
	})

	t.Run("first candidate taken from results list", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				responseBody := `{"results":[
					{"response":{"bbl":"3012340056"}},
					{"response":{"bbl":"3012340057"}}
				]}`
				return &http.Response{
					StatusCode: http.StatusOK,
					Body:       io.NopCloser(bytes.NewBufferString(responseBody)),
				}, nil
			},
		}

		client := geoclient.NewClientWithHTTP(mockClient, "", subscriptionKey, logger)
		rec, err := client.Lookup(ctx, geoclient.EndpointAddress, addressParams())

		require.NoError(t, err)
		bbl, ok := rec.Field("bbl")
		assert.True(t, ok)
		assert.Equal(t, "3012340056", bbl)
	})

	t.Run("no match on empty results list", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusOK,
					Body:       io.NopCloser(bytes.NewBufferString(`{"results":[]}`)),
				}, nil
			},
		}

		client := geoclient.NewClientWithHTTP(mockClient, "", subscriptionKey, logger)
		rec, err := client.Lookup(ctx, geoclient.EndpointAddress, addressParams())

		require.Error(t, err)
		assert.Nil(t, rec)
		assert.ErrorIs(t, err, geoclient.ErrNoMatch)
	})

	t.Run("non-2xx status", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusInternalServerError,
					Body:       io.NopCloser(bytes.NewBufferString(`server blew up`)),
				}, nil
			},
		}

		client := geoclient.NewClientWithHTTP(mockClient, "", subscriptionKey, logger)
		rec, err := client.Lookup(ctx, geoclient.EndpointAddress, addressParams())

		require.Error(t, err)
		assert.Nil(t, rec)

		var remoteErr *geoclient.RemoteError
		require.ErrorAs(t, err, &remoteErr)
		assert.Equal(t, http.StatusInternalServerError, remoteErr.StatusCode)
		assert.Equal(t, "server blew up", remoteErr.Body)
		assert.False(t, remoteErr.Timeout)
	})

	t.Run("malformed JSON body", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusOK,
					Body:       io.NopCloser(bytes.NewBufferString(`<html>not json</html>`)),
				}, nil
			},
		}

		client := geoclient.NewClientWithHTTP(mockClient, "", subscriptionKey, logger)
		rec, err := client.Lookup(ctx, geoclient.EndpointAddress, addressParams())

		require.Error(t, err)
		assert.Nil(t, rec)

		var remoteErr *geoclient.RemoteError
		require.ErrorAs(t, err, &remoteErr)
		assert.Equal(t, http.StatusOK, remoteErr.StatusCode)
	})

	t.Run("timed out request", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return nil, &url.Error{Op: "Get", URL: "https://example.test", Err: timeoutError{}}
			},
		}

		client := geoclient.NewClientWithHTTP(mockClient, "", subscriptionKey, logger)
		rec, err := client.Lookup(ctx, geoclient.EndpointAddress, addressParams())

		require.Error(t, err)
		assert.Nil(t, rec)

		var remoteErr *geoclient.RemoteError
		require.ErrorAs(t, err, &remoteErr)
		assert.True(t, remoteErr.Timeout)
	})

	t.Run("extra opaque header", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, "batch-42", req.Header.Get("X-Request-Source"))
				return &http.Response{
					StatusCode: http.StatusOK,
					Body:       io.NopCloser(bytes.NewBufferString(`{"bin":{"bbl":"1000010001"}}`)),
				}, nil
			},
		}

		client := geoclient.NewClientWithHTTP(mockClient, "", subscriptionKey, logger)
		client.SetHeader("X-Request-Source", "batch-42")

		_, err := client.Lookup(ctx, geoclient.EndpointBin, url.Values{"bin": []string{"1000010001"}})
		require.NoError(t, err)
	})
}

func TestRecord_Field(t *testing.T) {
	rec, err := geoclient.DecodeRecord([]byte(`{
		"latitude": 40.748817,
		"zipCode": "10001",
		"lowBblOfThisBuildingsCondominiumUnits": null,
		"sanbornVolume": 3,
		"geosupportReturnCode": "00",
		"nested": {"inner": {"value": "deep"}}
	}`))
	require.NoError(t, err)

	t.Run("string attribute", func(t *testing.T) {
		value, ok := rec.Field("zipCode")
		assert.True(t, ok)
		assert.Equal(t, "10001", value)
	})

	t.Run("numbers render as written", func(t *testing.T) {
		value, ok := rec.Field("latitude")
		assert.True(t, ok)
		assert.Equal(t, "40.748817", value)

		value, ok = rec.Field("sanbornVolume")
		assert.True(t, ok)
		assert.Equal(t, "3", value)
	})

	t.Run("null is missing", func(t *testing.T) {
		value, ok := rec.Field("lowBblOfThisBuildingsCondominiumUnits")
		assert.False(t, ok)
		assert.Empty(t, value)
	})

	t.Run("absent attribute is missing", func(t *testing.T) {
		_, ok := rec.Field("notThere")
		assert.False(t, ok)
	})

	t.Run("dotted path descends nested objects", func(t *testing.T) {
		value, ok := rec.Field("nested.inner.value")
		assert.True(t, ok)
		assert.Equal(t, "deep", value)
	})

	t.Run("dotted path through a scalar is missing", func(t *testing.T) {
		_, ok := rec.Field("zipCode.inner")
		assert.False(t, ok)
	})
}
