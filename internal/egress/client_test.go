package egress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestInfoFileLocation(t *testing.T) {
	tests := []struct {
		name string
		info *Info
		want string
	}{
		{name: "nil info", info: nil, want: ""},
		{name: "no results", info: &Info{EgressID: "EG_1"}, want: ""},
		{
			name: "file_results wins",
			info: &Info{
				FileResults: []FileResult{{Location: "s3://bucket/a.mp4"}},
				File:        &FileResult{Location: "s3://bucket/b.mp4"},
				Result:      &FileResult{Location: "s3://bucket/c.mp4"},
			},
			want: "s3://bucket/a.mp4",
		},
		{
			name: "file fallback",
			info: &Info{File: &FileResult{Location: "s3://bucket/b.mp4"}, Result: &FileResult{Location: "s3://bucket/c.mp4"}},
			want: "s3://bucket/b.mp4",
		},
		{
			name: "result fallback",
			info: &Info{Result: &FileResult{Location: "s3://bucket/c.mp4"}},
			want: "s3://bucket/c.mp4",
		},
		{
			name: "empty first result skipped",
			info: &Info{FileResults: []FileResult{{Location: ""}}, File: &FileResult{Location: "s3://bucket/b.mp4"}},
			want: "s3://bucket/b.mp4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.FileLocation())
		})
	}
}

func TestClientStartParticipantEgress(t *testing.T) {
	var gotPath string
	var gotBody startRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(Info{EgressID: "EG_42", Status: "EGRESS_ACTIVE"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret", time.Second, zaptest.NewLogger(t))
	info, err := c.StartParticipantEgress(context.Background(), "room-1", "worker@example.com", Output{
		Bucket: "recordings",
		Key:    "recordings/2026-08-30/worker/room-1.mp4",
	})

	require.NoError(t, err)
	assert.Equal(t, "EG_42", info.EgressID)
	assert.Equal(t, "/egress/participant/start", gotPath)
	assert.Equal(t, "room-1", gotBody.RoomName)
	assert.Equal(t, "worker@example.com", gotBody.ParticipantIdentity)
	assert.Equal(t, "recordings", gotBody.Output.Bucket)
}

func TestClientStopEgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/egress/stop", r.URL.Path)
		var body stopRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "EG_42", body.EgressID)
		json.NewEncoder(w).Encode(Info{
			EgressID:    "EG_42",
			Status:      "EGRESS_COMPLETE",
			FileResults: []FileResult{{Location: "s3://recordings/a.mp4", Size: 1024}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "", time.Second, zaptest.NewLogger(t))
	info, err := c.StopEgress(context.Background(), "EG_42")

	require.NoError(t, err)
	assert.Equal(t, "s3://recordings/a.mp4", info.FileLocation())
}

func TestClientEngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "egress not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "", time.Second, zaptest.NewLogger(t))
	_, err := c.StopEgress(context.Background(), "EG_MISSING")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "egress not found")
}
