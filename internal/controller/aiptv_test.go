package controller

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aiptvActiveBody = `[
	{
		"channelId": "a159c90e",
		"streamName": "Cinema One",
		"streamId": "src-2",
		"clients": [{"userAgent": "VLC/3.0"}],
		"availableStreams": [
			{"id": "src-1", "name": "Provider A"},
			{"id": "src-2", "name": "Provider B"},
			{"id": "src-3", "name": "Provider C"}
		]
	},
	{
		"channelId": "b277d1f0",
		"streamName": "Cinema Two",
		"streamId": "only-1",
		"clients": [],
		"availableStreams": [
			{"id": "only-1", "name": "Provider A"}
		]
	}
]`

func TestAIPTV_ActiveChannels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, aiptvPathActive, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(aiptvActiveBody))
	}))
	defer server.Close()

	client := NewAIPTVClient(server.URL)
	channels, err := client.ActiveChannels(context.Background())
	require.NoError(t, err)

	require.Len(t, channels, 2)
	assert.Equal(t, "a159c90e", channels[0].ID)
	assert.Equal(t, "Cinema One", channels[0].Name)
	assert.Equal(t, "src-2", channels[0].SourceRef)
	assert.Equal(t, []string{"VLC/3.0"}, channels[0].Clients)
}

func TestAIPTV_NextStream_AdvancesRing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(aiptvPathActive, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(aiptvActiveBody))
	})

	var switched map[string]string
	mux.HandleFunc(aiptvPathStreamBase+"a159c90e"+aiptvPathSwitchTail, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		payload, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(payload, &switched))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewAIPTVClient(server.URL)
	require.NoError(t, client.NextStream(context.Background(), "a159c90e"))
	assert.Equal(t, "src-3", switched["streamId"], "advances to the source after the current one")
}

func TestAIPTV_NextStream_SingleSourceFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(aiptvActiveBody))
	}))
	defer server.Close()

	client := NewAIPTVClient(server.URL)
	err := client.NextStream(context.Background(), "b277d1f0")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoAlternateFound)
}

func TestAIPTV_NextStream_UnknownChannel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewAIPTVClient(server.URL)
	err := client.NextStream(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestAIPTV_WatchURL(t *testing.T) {
	client := NewAIPTVClient("http://host:5002")
	assert.Equal(t, "http://host:5002/api/proxy/a159c90e", client.WatchURL("a159c90e"))
}
